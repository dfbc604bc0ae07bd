package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentCashOnDelivery is the only supported payment method.
const PaymentCashOnDelivery = "cash_on_delivery"

type OrderItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type Order struct {
	ID              uuid.UUID       `json:"id"`
	UserID          string          `json:"user_id"`
	Items           []OrderItem     `json:"items"`
	Quote           Quote           `json:"quote"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	PaymentMethod   string          `json:"payment_method"`
	Status          OrderStatus     `json:"status"`
	IdempotencyKey  string          `json:"idempotency_key,omitempty"`
	CartVersion     int64           `json:"cart_version"`
	CreatedAt       time.Time       `json:"created_at"`
}

// OrderItemsFromCart snapshots the cart lines at placement time.
func OrderItemsFromCart(c *Cart) []OrderItem {
	items := make([]OrderItem, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, OrderItem{
			ProductID:   it.Product.ID,
			ProductName: it.Product.Name,
			Quantity:    it.Quantity,
			UnitPrice:   it.Product.UnitPrice,
		})
	}
	return items
}
