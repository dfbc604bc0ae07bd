// Package cart keeps the storefront's view of the remotely stored cart. The
// server is the source of truth: every mutation is followed by a full
// refetch and the local snapshot is only ever replaced, never patched.
package cart

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/fjod/storefront/internal/storefront/client"
	"go.uber.org/zap"
)

var (
	ErrItemBusy        = errors.New("an update for this item is already in progress")
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// promoKey is the busy slot shared by promo operations.
const promoKey = "\x00promo"

// API is the subset of the backend client the controller drives.
type API interface {
	GetCart(ctx context.Context) (*domain.Cart, error)
	AddItem(ctx context.Context, productID string, quantity int, version int64) error
	UpdateItem(ctx context.Context, productID string, quantity int, version int64) error
	RemoveItem(ctx context.Context, productID string, version int64) error
	ApplyPromo(ctx context.Context, code string, version int64) error
	ClearPromo(ctx context.Context, version int64) error
}

// View is an immutable snapshot for rendering.
type View struct {
	Cart          *domain.Cart // nil until the first successful fetch
	Quote         domain.Quote
	Busy          []string
	Err           error
	LoginRequired bool
}

func (v View) IsEmpty() bool {
	return v.Cart == nil || v.Cart.IsEmpty()
}

type Controller struct {
	api   API
	rules pricing.Rules
	log   *zap.Logger

	mu         sync.Mutex
	cart       *domain.Cart
	issued     uint64
	applied    uint64
	busy       map[string]struct{}
	lastErr    error
	needsLogin bool
}

func NewController(api API, rules pricing.Rules, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		api:   api,
		rules: rules,
		log:   log,
		busy:  make(map[string]struct{}),
	}
}

// Refresh fetches the full cart. A response that arrives after a newer one
// has already been applied is dropped.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.issued++
	seq := c.issued
	c.mu.Unlock()

	cart, err := c.api.GetCart(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq <= c.applied {
		c.log.Debug("discarding stale cart response", zap.Uint64("seq", seq), zap.Uint64("applied", c.applied))
		return err
	}
	if err != nil {
		c.recordLocked(err)
		return err
	}
	c.applied = seq
	c.cart = cart
	c.lastErr = nil
	c.needsLogin = false
	return nil
}

func (c *Controller) Add(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	return c.mutate(ctx, productID, func(ctx context.Context, version int64) error {
		return c.api.AddItem(ctx, productID, quantity, version)
	})
}

// SetQuantity sets an absolute quantity. Zero or less removes the item.
func (c *Controller) SetQuantity(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return c.Remove(ctx, productID)
	}
	return c.mutate(ctx, productID, func(ctx context.Context, version int64) error {
		return c.api.UpdateItem(ctx, productID, quantity, version)
	})
}

func (c *Controller) Remove(ctx context.Context, productID string) error {
	return c.mutate(ctx, productID, func(ctx context.Context, version int64) error {
		return c.api.RemoveItem(ctx, productID, version)
	})
}

// ApplyPromo asks the server to attach code. The server decides the discount.
func (c *Controller) ApplyPromo(ctx context.Context, code string) error {
	return c.mutate(ctx, promoKey, func(ctx context.Context, version int64) error {
		return c.api.ApplyPromo(ctx, code, version)
	})
}

func (c *Controller) ClearPromo(ctx context.Context) error {
	return c.mutate(ctx, promoKey, func(ctx context.Context, version int64) error {
		return c.api.ClearPromo(ctx, version)
	})
}

func (c *Controller) mutate(ctx context.Context, key string, call func(context.Context, int64) error) error {
	c.mu.Lock()
	if _, ok := c.busy[key]; ok {
		c.mu.Unlock()
		return ErrItemBusy
	}
	c.busy[key] = struct{}{}
	version := client.AnyVersion
	if c.cart != nil {
		version = c.cart.Version
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.busy, key)
		c.mu.Unlock()
	}()

	if err := call(ctx, version); err != nil {
		if errors.Is(err, client.ErrVersionConflict) {
			c.log.Info("cart version conflict, refetching", zap.Int64("version", version))
			_ = c.Refresh(ctx)
		}
		c.mu.Lock()
		c.recordLocked(err)
		c.mu.Unlock()
		return err
	}
	return c.Refresh(ctx)
}

func (c *Controller) recordLocked(err error) {
	c.lastErr = err
	c.needsLogin = errors.Is(err, client.ErrAuthRequired)
}

// Version is the version of the last applied snapshot, or client.AnyVersion.
func (c *Controller) Version() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cart == nil {
		return client.AnyVersion
	}
	return c.cart.Version
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		Err:           c.lastErr,
		LoginRequired: c.needsLogin,
		Busy:          make([]string, 0, len(c.busy)),
	}
	for k := range c.busy {
		if k != promoKey {
			v.Busy = append(v.Busy, k)
		}
	}
	sort.Strings(v.Busy)
	if c.cart != nil {
		v.Cart = c.cart.Clone()
	}
	v.Quote = c.rules.QuoteCart(v.Cart)
	return v
}
