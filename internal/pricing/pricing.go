// Package pricing aggregates cart lines into a quote. The same Rules value is
// used by the storefront for display and by the backend when an order is
// placed, so shipping is configured in exactly one place.
package pricing

import (
	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// Rules holds the shipping configuration.
type Rules struct {
	FreeShippingThreshold decimal.Decimal
	FlatShippingFee       decimal.Decimal
	// InclusiveThreshold makes a subtotal equal to the threshold ship free.
	// The default is strict: only subtotals above the threshold are free.
	InclusiveThreshold bool
}

func DefaultRules() Rules {
	return Rules{
		FreeShippingThreshold: decimal.NewFromInt(50),
		FlatShippingFee:       decimal.RequireFromString("9.99"),
	}
}

func Subtotal(items []domain.LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total
}

func (r Rules) Shipping(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThan(r.FreeShippingThreshold) {
		return decimal.Zero
	}
	if r.InclusiveThreshold && subtotal.Equal(r.FreeShippingThreshold) {
		return decimal.Zero
	}
	return r.FlatShippingFee
}

// Quote prices items with a discount that was computed by the promo
// authority. The total never goes below zero and nothing ships, or is
// charged for shipping, without items.
func (r Rules) Quote(items []domain.LineItem, discount decimal.Decimal, promoCode string) domain.Quote {
	subtotal := Subtotal(items)
	shipping := decimal.Zero
	if len(items) > 0 {
		shipping = r.Shipping(subtotal)
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	total := subtotal.Add(shipping).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return domain.Quote{
		Subtotal:  subtotal,
		Shipping:  shipping,
		Discount:  discount,
		Total:     total,
		PromoCode: promoCode,
	}
}

// QuoteCart prices a cart using the discount the server attached to it.
func (r Rules) QuoteCart(c *domain.Cart) domain.Quote {
	if c == nil {
		return r.Quote(nil, decimal.Zero, "")
	}
	return r.Quote(c.Items, c.Discount, c.PromoCode)
}

// Format renders an amount for display with two decimals.
func Format(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}
