package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	MaxQuantity = 99

	// AnyVersion disables the caller's precondition; Save still uses CAS and
	// the mutation is retried on a lost race.
	AnyVersion int64 = -1

	maxAttempts = 5
)

var ErrInvalidQuantity = fmt.Errorf("quantity must be between 1 and %d", MaxQuantity)

// ProductLookup resolves the product snapshot stored on a line item.
type ProductLookup interface {
	Get(ctx context.Context, id string) (domain.Product, error)
}

type Service struct {
	repo     Repository
	cache    Cache
	products ProductLookup
	promos   *pricing.Promotions
	log      *zap.Logger
	sfg      singleflight.Group
	now      func() time.Time
}

func NewService(repo Repository, cache Cache, products ProductLookup, promos *pricing.Promotions, log *zap.Logger) *Service {
	if cache == nil {
		cache = NoopCache{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		cache:    cache,
		products: products,
		promos:   promos,
		log:      log,
		now:      time.Now,
	}
}

// Get returns the user's cart with the promo discount applied. A user
// without a stored cart gets an empty cart at version zero.
func (s *Service) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.log.Warn("cache get error", zap.String("user_id", userID), zap.Error(err))
		}

		cart, err = s.fetch(ctx, userID)
		if err != nil {
			return nil, err
		}
		if cart.Version > 0 {
			if err := s.cache.Set(ctx, userID, cart); err != nil {
				s.log.Warn("cache set error", zap.String("user_id", userID), zap.Error(err))
			}
		}
		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	// singleflight shares the value between callers.
	cart := v.(*domain.Cart).Clone()
	s.applyDiscount(cart)
	return cart, nil
}

// Load reads the cart from the repository, skipping the cache. Order
// placement prices from it.
func (s *Service) Load(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.fetch(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.applyDiscount(cart)
	return cart, nil
}

func (s *Service) fetch(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.repo.Get(ctx, userID)
	if errors.Is(err, ErrCartNotFound) {
		now := s.now()
		return &domain.Cart{OwnerID: userID, Items: []domain.LineItem{}, CreatedAt: now, UpdatedAt: now}, nil
	}
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *Service) applyDiscount(cart *domain.Cart) {
	discount, ok := s.promos.Discount(cart.PromoCode, cart.TotalPrice())
	if !ok {
		cart.Discount = decimal.Zero
		return
	}
	cart.Discount = discount
}

// AddItem adds quantity of a catalog product, merging with an existing line.
func (s *Service) AddItem(ctx context.Context, userID, productID string, quantity int, ifMatch int64) (*domain.Cart, error) {
	if quantity < 1 || quantity > MaxQuantity {
		return nil, ErrInvalidQuantity
	}
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, userID, ifMatch, func(c *domain.Cart) error {
		for i := range c.Items {
			if c.Items[i].Product.ID == productID {
				if c.Items[i].Quantity+quantity > MaxQuantity {
					return ErrInvalidQuantity
				}
				c.Items[i].Quantity += quantity
				c.Items[i].AddedAt = s.now()
				return nil
			}
		}
		c.Items = append(c.Items, domain.LineItem{Product: product.Ref(), Quantity: quantity, AddedAt: s.now()})
		return nil
	})
}

// UpdateItem sets an absolute quantity. Zero or less removes the line.
func (s *Service) UpdateItem(ctx context.Context, userID, productID string, quantity int, ifMatch int64) (*domain.Cart, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, userID, productID, ifMatch)
	}
	if quantity > MaxQuantity {
		return nil, ErrInvalidQuantity
	}
	return s.mutate(ctx, userID, ifMatch, func(c *domain.Cart) error {
		for i := range c.Items {
			if c.Items[i].Product.ID == productID {
				c.Items[i].Quantity = quantity
				return nil
			}
		}
		return ErrItemNotFound
	})
}

func (s *Service) RemoveItem(ctx context.Context, userID, productID string, ifMatch int64) (*domain.Cart, error) {
	return s.mutate(ctx, userID, ifMatch, func(c *domain.Cart) error {
		for i := range c.Items {
			if c.Items[i].Product.ID == productID {
				c.Items = append(c.Items[:i], c.Items[i+1:]...)
				return nil
			}
		}
		return ErrItemNotFound
	})
}

// ApplyPromo attaches a promo code after validating it against the
// configured promotions.
func (s *Service) ApplyPromo(ctx context.Context, userID, code string, ifMatch int64) (*domain.Cart, error) {
	canonical, err := s.promos.Canonical(code)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, userID, ifMatch, func(c *domain.Cart) error {
		c.PromoCode = canonical
		return nil
	})
}

func (s *Service) ClearPromo(ctx context.Context, userID string, ifMatch int64) (*domain.Cart, error) {
	return s.mutate(ctx, userID, ifMatch, func(c *domain.Cart) error {
		c.PromoCode = ""
		return nil
	})
}

var errAlreadyEmpty = errors.New("cart already empty")

// ClearAt empties the cart if its stored version still equals version, or
// unconditionally with AnyVersion. The cleared cart is saved at the next
// version so clients holding an older one keep getting conflicts. A cart
// that moved on since version, or is already empty, is left alone and
// ClearAt reports false.
func (s *Service) ClearAt(ctx context.Context, userID string, version int64) (bool, error) {
	_, err := s.mutate(ctx, userID, version, func(c *domain.Cart) error {
		if c.IsEmpty() && c.PromoCode == "" {
			return errAlreadyEmpty
		}
		c.Items = []domain.LineItem{}
		c.PromoCode = ""
		return nil
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errAlreadyEmpty):
		return false, nil
	case version != AnyVersion && errors.Is(err, ErrVersionConflict):
		s.log.Info("cart changed since order, not clearing",
			zap.String("user_id", userID), zap.Int64("version", version))
		return false, nil
	}
	return false, err
}

// mutate runs a read-modify-write cycle. With an explicit ifMatch a stale
// version is reported to the caller; without one a lost race is retried.
func (s *Service) mutate(ctx context.Context, userID string, ifMatch int64, apply func(*domain.Cart) error) (*domain.Cart, error) {
	for attempt := 1; ; attempt++ {
		cart, err := s.fetch(ctx, userID)
		if err != nil {
			return nil, err
		}
		if ifMatch != AnyVersion && cart.Version != ifMatch {
			return nil, ErrVersionConflict
		}
		if cart.ID == "" {
			cart.ID = uuid.NewString()
		}

		if err := apply(cart); err != nil {
			return nil, err
		}
		cart.UpdatedAt = s.now()

		err = s.repo.Save(ctx, cart, cart.Version)
		if err == nil {
			s.writeThrough(userID, cart)
			s.applyDiscount(cart)
			return cart, nil
		}
		if !errors.Is(err, ErrVersionConflict) || ifMatch != AnyVersion || attempt == maxAttempts {
			s.log.Warn("repo save cart error", zap.String("user_id", userID), zap.Int("attempt", attempt), zap.Error(err))
			return nil, err
		}
	}
}

// writeThrough caches the committed cart. When that fails the entry is
// dropped so the next read goes to the repository.
func (s *Service) writeThrough(userID string, cart *domain.Cart) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.cache.Set(ctx, userID, cart)
	if err == nil {
		return
	}
	s.log.Warn("cache set error", zap.String("user_id", userID), zap.Error(err))
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.log.Warn("cache invalidate error", zap.String("user_id", userID), zap.Error(err))
	}
}
