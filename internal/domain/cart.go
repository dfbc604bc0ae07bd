package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductRef is the product snapshot carried by a line item.
type ProductRef struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	ImageURL  string          `json:"image_url,omitempty"`
	Category  string          `json:"category,omitempty"`
}

type LineItem struct {
	Product  ProductRef `json:"product"`
	Quantity int        `json:"quantity"`
	AddedAt  time.Time  `json:"added_at"`
}

// LineTotal is unit price times quantity.
func (li LineItem) LineTotal() decimal.Decimal {
	return li.Product.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Cart is the server-held collection of line items for one user. Totals are
// never stored, they are always derived from Items.
type Cart struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Items     []LineItem      `json:"items"`
	Version   int64           `json:"version"`
	PromoCode string          `json:"promo_code,omitempty"`
	Discount  decimal.Decimal `json:"discount"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (c *Cart) TotalItems() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.LineTotal())
	}
	return total
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Item returns the line item for productID.
func (c *Cart) Item(productID string) (LineItem, bool) {
	for _, it := range c.Items {
		if it.Product.ID == productID {
			return it, true
		}
	}
	return LineItem{}, false
}

// Clone returns a deep copy so snapshots handed to callers cannot be mutated.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Items = make([]LineItem, len(c.Items))
	copy(cp.Items, c.Items)
	return &cp
}
