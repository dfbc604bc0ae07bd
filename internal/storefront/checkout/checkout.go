// Package checkout drives the Shipping -> Payment -> Confirmation flow for a
// single order attempt.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrEmptyCart     = errors.New("your cart is empty")
	ErrAlreadyPlaced = errors.New("order has already been placed")
	ErrSubmitting    = errors.New("order submission already in progress")
	ErrNotStarted    = errors.New("checkout has not been started")
	ErrInvalidStepOp = errors.New("operation not allowed at this step")
)

type API interface {
	GetCart(ctx context.Context) (*domain.Cart, error)
	PlaceOrder(ctx context.Context, addr domain.ShippingAddress, idempotencyKey string) (string, error)
}

// Summary is the order summary shown beside every step.
type Summary struct {
	Step    Step
	Cart    *domain.Cart
	Quote   domain.Quote
	Address domain.ShippingAddress
	OrderID string
	Err     error
}

type Session struct {
	api    API
	rules  pricing.Rules
	log    *zap.Logger
	newKey func() string

	mu         sync.Mutex
	step       Step
	cart       *domain.Cart
	addr       domain.ShippingAddress
	orderID    string
	attemptKey string
	submitting bool
	lastErr    error
}

type Option func(*Session)

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithKeyGenerator overrides how idempotency tokens are minted.
func WithKeyGenerator(fn func() string) Option {
	return func(s *Session) { s.newKey = fn }
}

func New(api API, rules pricing.Rules, opts ...Option) *Session {
	s := &Session{
		api:    api,
		rules:  rules,
		log:    zap.NewNop(),
		newKey: func() string { return uuid.NewString() },
		step:   StepShipping,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads the cart the order will be placed from.
func (s *Session) Start(ctx context.Context) error {
	cart, err := s.api.GetCart(ctx)
	if err != nil {
		s.setErr(err)
		return fmt.Errorf("load cart: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step.IsTerminal() {
		return ErrAlreadyPlaced
	}
	if cart.IsEmpty() {
		s.lastErr = ErrEmptyCart
		return ErrEmptyCart
	}
	s.cart = cart
	s.lastErr = nil
	return nil
}

func (s *Session) SetAddress(addr domain.ShippingAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.step.IsTerminal():
		return ErrAlreadyPlaced
	case s.submitting:
		return ErrSubmitting
	}
	if s.step == StepPayment && addr != s.addr {
		s.attemptKey = ""
	}
	s.addr = addr
	return nil
}

func (s *Session) ProceedToPayment() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guardLocked(StepPayment); err != nil {
		return err
	}
	if err := s.addr.Validate(); err != nil {
		s.lastErr = err
		return err
	}
	s.moveLocked(StepPayment)
	return nil
}

// BackToShipping returns to address entry. The address is kept; the next
// submission is a new attempt with a fresh token.
func (s *Session) BackToShipping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return ErrSubmitting
	}
	if err := s.guardLocked(StepShipping); err != nil {
		return err
	}
	s.attemptKey = ""
	s.moveLocked(StepShipping)
	return nil
}

// PlaceOrder submits the order. Retries after a failure reuse the attempt's
// idempotency token so the server creates at most one order.
func (s *Session) PlaceOrder(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return "", ErrSubmitting
	}
	if err := s.guardLocked(StepConfirmation); err != nil {
		s.mu.Unlock()
		return "", err
	}
	if s.cart == nil {
		s.mu.Unlock()
		return "", ErrNotStarted
	}
	if err := s.addr.Validate(); err != nil {
		s.lastErr = err
		s.mu.Unlock()
		return "", err
	}
	if s.attemptKey == "" {
		s.attemptKey = s.newKey()
	}
	key, addr := s.attemptKey, s.addr
	s.submitting = true
	s.mu.Unlock()

	id, err := s.api.PlaceOrder(ctx, addr, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	if err != nil {
		s.log.Warn("place order failed", zap.String("idempotency_key", key), zap.Error(err))
		s.lastErr = err
		return "", err
	}
	s.orderID = id
	s.lastErr = nil
	s.moveLocked(StepConfirmation)
	s.log.Info("order placed", zap.String("order_id", id))
	return id, nil
}

func (s *Session) guardLocked(to Step) error {
	if s.step.IsTerminal() {
		return ErrAlreadyPlaced
	}
	if !CanTransition(s.step, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStepOp, s.step, to)
	}
	return nil
}

func (s *Session) moveLocked(to Step) {
	s.log.Debug("checkout step", zap.Stringer("from", s.step), zap.Stringer("to", to))
	s.step = to
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Session) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

func (s *Session) OrderID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderID
}

func (s *Session) Address() domain.ShippingAddress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Summary prices the cart snapshot for display. Shipping is derived from the
// subtotal; the discount is whatever the server attached to the cart.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart := s.cart.Clone()
	return Summary{
		Step:    s.step,
		Cart:    cart,
		Quote:   s.rules.QuoteCart(cart),
		Address: s.addr,
		OrderID: s.orderID,
		Err:     s.lastErr,
	}
}
