package pricing

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrUnknownPromo = errors.New("invalid promo code")

var hundred = decimal.NewFromInt(100)

// Promotions is the server-side promo authority. Codes are matched
// case-insensitively; each maps to a percentage off the subtotal.
type Promotions struct {
	percent map[string]decimal.Decimal
}

func NewPromotions(codes map[string]decimal.Decimal) *Promotions {
	p := &Promotions{percent: make(map[string]decimal.Decimal, len(codes))}
	for code, pct := range codes {
		p.percent[normalize(code)] = pct
	}
	return p
}

// DefaultPromotions accepts SAVE10 for 10% off.
func DefaultPromotions() *Promotions {
	return NewPromotions(map[string]decimal.Decimal{"SAVE10": decimal.NewFromInt(10)})
}

// Canonical returns the stored form of an accepted code.
func (p *Promotions) Canonical(code string) (string, error) {
	c := normalize(code)
	if _, ok := p.percent[c]; !ok || c == "" {
		return "", ErrUnknownPromo
	}
	return c, nil
}

// Discount returns the amount taken off subtotal and whether code is valid.
// Unknown codes leave the total unchanged.
func (p *Promotions) Discount(code string, subtotal decimal.Decimal) (decimal.Decimal, bool) {
	if p == nil || code == "" {
		return decimal.Zero, false
	}
	pct, ok := p.percent[normalize(code)]
	if !ok {
		return decimal.Zero, false
	}
	return subtotal.Mul(pct).Div(hundred).Round(2), true
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
