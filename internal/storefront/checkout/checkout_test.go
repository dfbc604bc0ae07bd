package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/fjod/storefront/internal/storefront/client"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type placeCall struct {
	addr domain.ShippingAddress
	key  string
}

type fakeAPI struct {
	mu      sync.Mutex
	cart    *domain.Cart
	getErr  error
	errs    []error // consumed one per PlaceOrder call
	calls   []placeCall
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeAPI) GetCart(context.Context) (*domain.Cart, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.cart.Clone(), nil
}

func (f *fakeAPI) PlaceOrder(_ context.Context, addr domain.ShippingAddress, key string) (string, error) {
	if f.entered != nil {
		close(f.entered)
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, placeCall{addr: addr, key: key})
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return "order-" + key, nil
}

func cartWith(price string, qty int) *domain.Cart {
	return &domain.Cart{
		ID:       "c1",
		OwnerID:  "u1",
		Version:  1,
		Discount: decimal.Zero,
		Items: []domain.LineItem{{
			Product:  domain.ProductRef{ID: "p1", Name: "Item", UnitPrice: decimal.RequireFromString(price)},
			Quantity: qty,
		}},
	}
}

func address() domain.ShippingAddress {
	return domain.ShippingAddress{
		FullName: "Jane Doe",
		Address:  "1 Main St",
		City:     "Springfield",
		State:    "IL",
		ZipCode:  "62701",
		Phone:    "555-0100",
	}
}

func sequentialKeys() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("k%d", n)
	}
}

func started(t *testing.T, api *fakeAPI) *Session {
	t.Helper()
	s := New(api, pricing.DefaultRules(), WithKeyGenerator(sequentialKeys()))
	require.NoError(t, s.Start(context.Background()))
	return s
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Step
		want     bool
	}{
		{StepShipping, StepPayment, true},
		{StepPayment, StepShipping, true},
		{StepPayment, StepConfirmation, true},
		{StepShipping, StepConfirmation, false},
		{StepShipping, StepShipping, false},
		{StepConfirmation, StepPayment, false},
		{StepConfirmation, StepShipping, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStart_EmptyCart(t *testing.T) {
	api := &fakeAPI{cart: &domain.Cart{ID: "c1"}}
	s := New(api, pricing.DefaultRules())
	assert.ErrorIs(t, s.Start(context.Background()), ErrEmptyCart)
	assert.Equal(t, StepShipping, s.Step())
}

func TestStart_AuthRequired(t *testing.T) {
	api := &fakeAPI{getErr: client.ErrAuthRequired}
	s := New(api, pricing.DefaultRules())
	assert.ErrorIs(t, s.Start(context.Background()), client.ErrAuthRequired)
}

func TestProceedToPayment_NeedsCompleteAddress(t *testing.T) {
	s := started(t, &fakeAPI{cart: cartWith("10", 1)})

	addr := address()
	addr.City = "   "
	require.NoError(t, s.SetAddress(addr))

	err := s.ProceedToPayment()
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"city"}, verr.Fields)
	assert.Equal(t, StepShipping, s.Step())

	require.NoError(t, s.SetAddress(address()))
	require.NoError(t, s.ProceedToPayment())
	assert.Equal(t, StepPayment, s.Step())
}

func TestBackToShipping_KeepsAddress(t *testing.T) {
	s := started(t, &fakeAPI{cart: cartWith("10", 1)})
	require.NoError(t, s.SetAddress(address()))
	require.NoError(t, s.ProceedToPayment())

	require.NoError(t, s.BackToShipping())
	assert.Equal(t, StepShipping, s.Step())
	assert.Equal(t, address(), s.Address())

	assert.ErrorIs(t, s.BackToShipping(), ErrInvalidStepOp)
}

func TestPlaceOrder_OnlyFromPayment(t *testing.T) {
	api := &fakeAPI{cart: cartWith("10", 1)}
	s := started(t, api)
	require.NoError(t, s.SetAddress(address()))

	_, err := s.PlaceOrder(context.Background())
	assert.ErrorIs(t, err, ErrInvalidStepOp)
	assert.Empty(t, api.calls)
}

func TestPlaceOrder_Success(t *testing.T) {
	api := &fakeAPI{cart: cartWith("10", 1)}
	s := started(t, api)
	require.NoError(t, s.SetAddress(address()))
	require.NoError(t, s.ProceedToPayment())

	id, err := s.PlaceOrder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "order-k1", id)
	assert.Equal(t, StepConfirmation, s.Step())
	assert.Equal(t, id, s.OrderID())
	require.Len(t, api.calls, 1)
	assert.Equal(t, address(), api.calls[0].addr)

	// Confirmation is terminal.
	assert.ErrorIs(t, s.SetAddress(address()), ErrAlreadyPlaced)
	assert.ErrorIs(t, s.BackToShipping(), ErrAlreadyPlaced)
	assert.ErrorIs(t, s.ProceedToPayment(), ErrAlreadyPlaced)
	_, err = s.PlaceOrder(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyPlaced)
	assert.Len(t, api.calls, 1)
}

func TestPlaceOrder_RetryReusesKey(t *testing.T) {
	netErr := &client.NetworkError{Op: "place order", Err: errors.New("timeout")}
	api := &fakeAPI{cart: cartWith("10", 1), errs: []error{netErr, netErr}}
	s := started(t, api)
	require.NoError(t, s.SetAddress(address()))
	require.NoError(t, s.ProceedToPayment())
	ctx := context.Background()

	for range 2 {
		_, err := s.PlaceOrder(ctx)
		assert.ErrorAs(t, err, new(*client.NetworkError))
		assert.Equal(t, StepPayment, s.Step())
		assert.Equal(t, netErr, s.Summary().Err)
	}

	id, err := s.PlaceOrder(ctx)
	require.NoError(t, err)
	assert.Equal(t, "order-k1", id)

	require.Len(t, api.calls, 3)
	for _, c := range api.calls {
		assert.Equal(t, "k1", c.key)
	}
}

func TestPlaceOrder_EditingAddressStartsNewAttempt(t *testing.T) {
	api := &fakeAPI{cart: cartWith("10", 1), errs: []error{errors.New("boom")}}
	s := started(t, api)
	ctx := context.Background()
	require.NoError(t, s.SetAddress(address()))
	require.NoError(t, s.ProceedToPayment())

	_, err := s.PlaceOrder(ctx)
	require.Error(t, err)

	require.NoError(t, s.BackToShipping())
	addr := address()
	addr.Phone = "555-0199"
	require.NoError(t, s.SetAddress(addr))
	require.NoError(t, s.ProceedToPayment())

	_, err = s.PlaceOrder(ctx)
	require.NoError(t, err)
	require.Len(t, api.calls, 2)
	assert.Equal(t, "k1", api.calls[0].key)
	assert.Equal(t, "k2", api.calls[1].key)
	assert.Equal(t, "555-0199", api.calls[1].addr.Phone)
}

func TestPlaceOrder_DoubleSubmitRejected(t *testing.T) {
	api := &fakeAPI{
		cart:    cartWith("10", 1),
		block:   make(chan struct{}),
		entered: make(chan struct{}),
	}
	s := started(t, api)
	require.NoError(t, s.SetAddress(address()))
	require.NoError(t, s.ProceedToPayment())
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := s.PlaceOrder(ctx)
		done <- err
	}()
	<-api.entered

	_, err := s.PlaceOrder(ctx)
	assert.ErrorIs(t, err, ErrSubmitting)
	assert.ErrorIs(t, s.BackToShipping(), ErrSubmitting)
	assert.ErrorIs(t, s.SetAddress(address()), ErrSubmitting)

	close(api.block)
	require.NoError(t, <-done)
	assert.Len(t, api.calls, 1)
	assert.Equal(t, StepConfirmation, s.Step())
}

func TestSummary_ShippingFromSnapshot(t *testing.T) {
	tests := []struct {
		name      string
		price     string
		qty       int
		rules     pricing.Rules
		wantShip  string
		wantTotal string
	}{
		{"below threshold", "20", 2, pricing.DefaultRules(), "9.99", "49.99"},
		{"at threshold strict", "25", 2, pricing.DefaultRules(), "9.99", "59.99"},
		{"above threshold", "30", 2, pricing.DefaultRules(), "0", "60"},
		{
			"scenario inclusive",
			"50", 2,
			pricing.Rules{FreeShippingThreshold: decimal.NewFromInt(100), FlatShippingFee: decimal.NewFromInt(10), InclusiveThreshold: true},
			"0", "100",
		},
		{
			"scenario strict",
			"50", 2,
			pricing.Rules{FreeShippingThreshold: decimal.NewFromInt(100), FlatShippingFee: decimal.NewFromInt(10)},
			"10", "110",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&fakeAPI{cart: cartWith(tt.price, tt.qty)}, tt.rules)
			require.NoError(t, s.Start(context.Background()))

			sum := s.Summary()
			assert.True(t, decimal.RequireFromString(tt.wantShip).Equal(sum.Quote.Shipping), "shipping %s", sum.Quote.Shipping)
			assert.True(t, decimal.RequireFromString(tt.wantTotal).Equal(sum.Quote.Total), "total %s", sum.Quote.Total)
		})
	}
}

func TestSummary_ServerDiscountDisplayed(t *testing.T) {
	cart := cartWith("200", 1)
	cart.PromoCode = "SAVE10"
	cart.Discount = decimal.NewFromInt(20)
	s := New(&fakeAPI{cart: cart}, pricing.DefaultRules())
	require.NoError(t, s.Start(context.Background()))

	q := s.Summary().Quote
	assert.True(t, decimal.NewFromInt(20).Equal(q.Discount))
	assert.True(t, decimal.NewFromInt(180).Equal(q.Total))
}
