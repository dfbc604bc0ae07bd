package domain

import "github.com/shopspring/decimal"

// Quote is a priced cart: total = subtotal + shipping - discount.
type Quote struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	Shipping  decimal.Decimal `json:"shipping"`
	Discount  decimal.Decimal `json:"discount"`
	Total     decimal.Decimal `json:"total"`
	PromoCode string          `json:"promo_code,omitempty"`
}

// FreeShipping reports whether the quote ships for free.
func (q Quote) FreeShipping() bool {
	return q.Shipping.IsZero()
}
