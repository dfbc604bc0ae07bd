// Package catalog narrows and orders the product list for display.
package catalog

import (
	"fmt"
	"slices"
	"strings"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

type Sort string

const (
	SortNone      Sort = ""
	SortPriceLow  Sort = "price-low"
	SortPriceHigh Sort = "price-high"
)

// ParseSort accepts the values of the --sort flag.
func ParseSort(s string) (Sort, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return SortNone, nil
	case "low", "price-low":
		return SortPriceLow, nil
	case "high", "price-high":
		return SortPriceHigh, nil
	}
	return SortNone, fmt.Errorf("unknown sort %q, want low or high", s)
}

// Filter selects products by category and price range. Category matches
// as a case-insensitive substring. A zero MaxPrice leaves the range open
// at the top.
type Filter struct {
	Category string
	MinPrice decimal.Decimal
	MaxPrice decimal.Decimal
	Sort     Sort
}

func (f Filter) Validate() error {
	if f.MinPrice.IsNegative() || f.MaxPrice.IsNegative() {
		return fmt.Errorf("price bounds must not be negative")
	}
	if !f.MaxPrice.IsZero() && f.MaxPrice.LessThan(f.MinPrice) {
		return fmt.Errorf("max price %s is below min price %s", f.MaxPrice, f.MinPrice)
	}
	return nil
}

func (f Filter) matches(p domain.Product) bool {
	if q := strings.ToLower(strings.TrimSpace(f.Category)); q != "" &&
		!strings.Contains(strings.ToLower(p.Category), q) {
		return false
	}
	if p.Price.LessThan(f.MinPrice) {
		return false
	}
	return f.MaxPrice.IsZero() || !p.Price.GreaterThan(f.MaxPrice)
}

// Apply returns the matching products in a new slice. Without a sort the
// input order is kept; ties keep it too.
func (f Filter) Apply(products []domain.Product) []domain.Product {
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if f.matches(p) {
			out = append(out, p)
		}
	}
	switch f.Sort {
	case SortPriceLow:
		slices.SortStableFunc(out, func(a, b domain.Product) int { return a.Price.Cmp(b.Price) })
	case SortPriceHigh:
		slices.SortStableFunc(out, func(a, b domain.Product) int { return b.Price.Cmp(a.Price) })
	}
	return out
}
