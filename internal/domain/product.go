package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
	Category    string          `json:"category"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Ref returns the denormalized snapshot stored on line items.
func (p Product) Ref() ProductRef {
	return ProductRef{
		ID:        p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		ImageURL:  p.ImageURL,
		Category:  p.Category,
	}
}
