package pricing

import (
	"testing"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func line(price string, qty int) domain.LineItem {
	return domain.LineItem{Product: domain.ProductRef{ID: price, UnitPrice: d(price)}, Quantity: qty}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "want %s, got %s", want, got.String())
}

func TestSubtotal_IsExactSum(t *testing.T) {
	items := []domain.LineItem{line("0.10", 3), line("0.20", 1), line("19.99", 2)}

	assertDecimal(t, "40.48", Subtotal(items))
}

func TestSubtotal_Empty(t *testing.T) {
	assertDecimal(t, "0", Subtotal(nil))
}

func TestShipping_Thresholds(t *testing.T) {
	strict := Rules{FreeShippingThreshold: d("100"), FlatShippingFee: d("10")}
	inclusive := strict
	inclusive.InclusiveThreshold = true

	tests := []struct {
		name     string
		rules    Rules
		subtotal string
		want     string
	}{
		{"strict below", strict, "99.99", "10"},
		{"strict at boundary", strict, "100.00", "10"},
		{"strict above", strict, "100.01", "0"},
		{"inclusive below", inclusive, "99.99", "10"},
		{"inclusive at boundary", inclusive, "100.00", "0"},
		{"inclusive above", inclusive, "150", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertDecimal(t, tt.want, tt.rules.Shipping(d(tt.subtotal)))
		})
	}
}

func TestQuote_BoundaryScenario(t *testing.T) {
	items := []domain.LineItem{line("50.00", 2)}
	strict := Rules{FreeShippingThreshold: d("100"), FlatShippingFee: d("10")}

	q := strict.Quote(items, decimal.Zero, "")
	assertDecimal(t, "100", q.Subtotal)
	assertDecimal(t, "10", q.Shipping)
	assertDecimal(t, "110", q.Total)

	strict.InclusiveThreshold = true
	q = strict.Quote(items, decimal.Zero, "")
	assertDecimal(t, "0", q.Shipping)
	assertDecimal(t, "100", q.Total)
	assert.True(t, q.FreeShipping())
}

func TestQuote_DefaultRules(t *testing.T) {
	r := DefaultRules()

	assertDecimal(t, "9.99", r.Quote([]domain.LineItem{line("25", 2)}, decimal.Zero, "").Shipping)
	assertDecimal(t, "0", r.Quote([]domain.LineItem{line("25.01", 2)}, decimal.Zero, "").Shipping)
}

func TestQuote_WithPromo(t *testing.T) {
	r := DefaultRules()
	promos := DefaultPromotions()
	items := []domain.LineItem{line("100.00", 2)}

	discount, ok := promos.Discount("SAVE10", Subtotal(items))
	assert.True(t, ok)

	q := r.Quote(items, discount, "SAVE10")
	assertDecimal(t, "200", q.Subtotal)
	assertDecimal(t, "20", q.Discount)
	assertDecimal(t, "180", q.Total)
}

func TestQuote_NeverNegative(t *testing.T) {
	r := Rules{FreeShippingThreshold: d("0"), FlatShippingFee: d("5")}

	q := r.Quote([]domain.LineItem{line("1", 1)}, d("50"), "")
	assertDecimal(t, "0", q.Total)

	q = r.Quote([]domain.LineItem{line("1", 1)}, d("-3"), "")
	assertDecimal(t, "0", q.Discount)
}

func TestQuoteCart_UsesServerDiscount(t *testing.T) {
	c := &domain.Cart{Items: []domain.LineItem{line("30", 1)}, Discount: d("3"), PromoCode: "SAVE10"}

	q := DefaultRules().QuoteCart(c)
	assertDecimal(t, "36.99", q.Total)
	assert.Equal(t, "SAVE10", q.PromoCode)

	assertDecimal(t, "0", DefaultRules().QuoteCart(nil).Total)
}

func TestQuote_EmptyCartHasNoShipping(t *testing.T) {
	r := DefaultRules()
	for _, items := range [][]domain.LineItem{nil, {}} {
		q := r.Quote(items, decimal.Zero, "")
		assertDecimal(t, "0", q.Subtotal)
		assertDecimal(t, "0", q.Shipping)
		assertDecimal(t, "0", q.Total)
	}
	assertDecimal(t, "0", r.QuoteCart(&domain.Cart{}).Total)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "$9.99", Format(d("9.99")))
	assert.Equal(t, "$100.00", Format(d("100")))
	assert.Equal(t, "$0.33", Format(d("1").Div(d("3"))))
}
