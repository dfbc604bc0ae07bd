package api

import (
	"github.com/shopspring/decimal"
)

// Money is a decimal that always marshals as a two-decimal JSON string.
// Unmarshal accepts both strings and bare numbers.
type Money struct {
	decimal.Decimal
}

func M(d decimal.Decimal) Money { return Money{d} }

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.StringFixed(2) + `"`), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		m.Decimal = decimal.Zero
		return nil
	}
	return m.Decimal.UnmarshalJSON(b)
}
