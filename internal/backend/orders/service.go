package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrUnsupportedPayment = errors.New("unsupported payment method")
)

// Carts is the slice of the cart service that order placement needs. Load
// must read the authoritative copy, not a cache.
type Carts interface {
	Load(ctx context.Context, userID string) (*domain.Cart, error)
	ClearAt(ctx context.Context, userID string, version int64) (bool, error)
}

type PlaceRequest struct {
	UserID          string
	IdempotencyKey  string
	ShippingAddress domain.ShippingAddress
	PaymentMethod   string
}

type Service struct {
	repo   Repository
	carts  Carts
	rules  pricing.Rules
	promos *pricing.Promotions
	log    *zap.Logger
	now    func() time.Time
}

func NewService(repo Repository, carts Carts, rules pricing.Rules, promos *pricing.Promotions, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, carts: carts, rules: rules, promos: promos, log: log, now: time.Now}
}

type orderPlacedPayload struct {
	OrderID     string             `json:"order_id"`
	UserID      string             `json:"user_id"`
	CartVersion int64              `json:"cart_version"`
	Items       []domain.OrderItem `json:"items"`
	Total       string             `json:"total"`
	CreatedAt   time.Time          `json:"created_at"`
}

// PlaceOrder turns the user's server-side cart into an order. A repeated
// idempotency key for the same user returns the order created first.
// The second return value reports whether a new order was created.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceRequest) (*domain.Order, bool, error) {
	if req.IdempotencyKey != "" {
		existing, err := s.repo.GetByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
		if err == nil {
			s.log.Info("order replayed",
				zap.String("user_id", req.UserID),
				zap.String("order_id", existing.ID.String()))
			return existing, false, nil
		}
		if !errors.Is(err, ErrOrderNotFound) {
			return nil, false, err
		}
	}

	if err := req.ShippingAddress.Validate(); err != nil {
		return nil, false, err
	}
	if req.PaymentMethod != domain.PaymentCashOnDelivery {
		return nil, false, fmt.Errorf("%w: %q", ErrUnsupportedPayment, req.PaymentMethod)
	}

	cart, err := s.carts.Load(ctx, req.UserID)
	if err != nil {
		return nil, false, fmt.Errorf("load cart: %w", err)
	}
	if cart.IsEmpty() {
		// a concurrent request with the same key may have just placed the
		// order and cleared the cart
		if existing := s.replay(ctx, req); existing != nil {
			return existing, false, nil
		}
		return nil, false, ErrEmptyCart
	}

	subtotal := pricing.Subtotal(cart.Items)
	discount, ok := s.promos.Discount(cart.PromoCode, subtotal)
	promoCode := cart.PromoCode
	if !ok {
		promoCode = ""
	}

	order := &domain.Order{
		ID:              uuid.New(),
		UserID:          req.UserID,
		Items:           domain.OrderItemsFromCart(cart),
		Quote:           s.rules.Quote(cart.Items, discount, promoCode),
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Status:          domain.OrderStatusPending,
		IdempotencyKey:  req.IdempotencyKey,
		CartVersion:     cart.Version,
		CreatedAt:       s.now().UTC(),
	}

	payload, err := json.Marshal(orderPlacedPayload{
		OrderID:     order.ID.String(),
		UserID:      order.UserID,
		CartVersion: order.CartVersion,
		Items:       order.Items,
		Total:       order.Quote.Total.StringFixed(2),
		CreatedAt:   order.CreatedAt,
	})
	if err != nil {
		return nil, false, fmt.Errorf("marshal order event: %w", err)
	}

	err = s.repo.Create(ctx, order, OutboxEvent{
		AggregateID: order.ID.String(),
		EventType:   EventOrderPlaced,
		Payload:     payload,
		CreatedAt:   order.CreatedAt,
	})
	if errors.Is(err, ErrDuplicateOrder) {
		// lost a race against a concurrent retry with the same key
		existing, getErr := s.repo.GetByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	// only the priced version is cleared; items added meanwhile stay
	cleared, err := s.carts.ClearAt(ctx, req.UserID, cart.Version)
	switch {
	case err != nil:
		s.log.Error("failed to clear cart after order",
			zap.String("user_id", req.UserID),
			zap.String("order_id", order.ID.String()),
			zap.Error(err))
	case !cleared:
		s.log.Info("cart changed during checkout, left as is",
			zap.String("user_id", req.UserID),
			zap.String("order_id", order.ID.String()),
			zap.Int64("cart_version", cart.Version))
	}

	s.log.Info("order placed",
		zap.String("user_id", order.UserID),
		zap.String("order_id", order.ID.String()),
		zap.String("total", order.Quote.Total.StringFixed(2)))
	return order, true, nil
}

func (s *Service) replay(ctx context.Context, req PlaceRequest) *domain.Order {
	if req.IdempotencyKey == "" {
		return nil
	}
	existing, err := s.repo.GetByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
	if err != nil {
		return nil
	}
	return existing
}

// Get returns an order owned by userID. Admins may read any order.
func (s *Service) Get(ctx context.Context, userID, orderID string, admin bool) (*domain.Order, error) {
	id, err := uuid.Parse(orderID)
	if err != nil {
		return nil, ErrOrderNotFound
	}
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !admin && order.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// List returns every order, newest first.
func (s *Service) List(ctx context.Context) ([]*domain.Order, error) {
	return s.repo.List(ctx)
}
