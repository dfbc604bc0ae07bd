// Package api holds the JSON wire types shared by the storefront client and
// the reference backend. Money travels as two-decimal strings.
package api

import (
	"time"

	"github.com/fjod/storefront/internal/domain"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderIfMatch        = "If-Match"
	HeaderETag           = "ETag"
	HeaderRequestID      = "X-Request-ID"
)

// CodeVersionConflict marks a 409 caused by a stale If-Match cart version.
const CodeVersionConflict = "version_conflict"

// Envelope is the success body: {success, data}.
type Envelope[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
}

// ErrorBody is the failure body: {success:false, message, code}.
type ErrorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ProductRefDTO struct {
	ID       string `json:"_id"`
	Name     string `json:"name"`
	Price    Money  `json:"price"`
	ImageURL string `json:"imageUrl,omitempty"`
	Category string `json:"category,omitempty"`
}

type CartItemDTO struct {
	Product  ProductRefDTO `json:"productId"`
	Quantity int           `json:"quantity"`
}

type CartDTO struct {
	ID         string        `json:"_id"`
	UserID     string        `json:"userId"`
	Items      []CartItemDTO `json:"items"`
	TotalItems int           `json:"totalItems"`
	TotalPrice Money         `json:"totalPrice"`
	PromoCode  string        `json:"promoCode,omitempty"`
	Discount   Money         `json:"discount"`
	Version    int64         `json:"version"`
}

func FromCart(c *domain.Cart) CartDTO {
	dto := CartDTO{
		ID:         c.ID,
		UserID:     c.OwnerID,
		Items:      make([]CartItemDTO, 0, len(c.Items)),
		TotalItems: c.TotalItems(),
		TotalPrice: M(c.TotalPrice()),
		PromoCode:  c.PromoCode,
		Discount:   M(c.Discount),
		Version:    c.Version,
	}
	for _, it := range c.Items {
		dto.Items = append(dto.Items, CartItemDTO{
			Product: ProductRefDTO{
				ID:       it.Product.ID,
				Name:     it.Product.Name,
				Price:    M(it.Product.UnitPrice),
				ImageURL: it.Product.ImageURL,
				Category: it.Product.Category,
			},
			Quantity: it.Quantity,
		})
	}
	return dto
}

// ToCart rebuilds the domain cart. Totals are recomputed from the items, the
// wire totals are informational only.
func (d CartDTO) ToCart() *domain.Cart {
	c := &domain.Cart{
		ID:        d.ID,
		OwnerID:   d.UserID,
		Items:     make([]domain.LineItem, 0, len(d.Items)),
		Version:   d.Version,
		PromoCode: d.PromoCode,
		Discount:  d.Discount.Decimal,
	}
	for _, it := range d.Items {
		c.Items = append(c.Items, domain.LineItem{
			Product: domain.ProductRef{
				ID:        it.Product.ID,
				Name:      it.Product.Name,
				UnitPrice: it.Product.Price.Decimal,
				ImageURL:  it.Product.ImageURL,
				Category:  it.Product.Category,
			},
			Quantity: it.Quantity,
		})
	}
	return c
}

type CartItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity"`
}

type PromoRequest struct {
	Code string `json:"code" validate:"required"`
}

type ProductDTO struct {
	ID          string    `json:"_id"`
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description"`
	Price       Money     `json:"price"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"createdAt"`
}

func FromProduct(p domain.Product) ProductDTO {
	return ProductDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       M(p.Price),
		ImageURL:    p.ImageURL,
		Category:    p.Category,
		CreatedAt:   p.CreatedAt,
	}
}

func (p ProductDTO) ToProduct() domain.Product {
	return domain.Product{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.Decimal,
		ImageURL:    p.ImageURL,
		Category:    p.Category,
		CreatedAt:   p.CreatedAt,
	}
}

// PlaceOrderRequest is the POST /order body. Items is always empty; the
// server reads the order lines from the stored cart.
type PlaceOrderRequest struct {
	Items           []CartItemDTO          `json:"items"`
	ShippingAddress domain.ShippingAddress `json:"shippingAddress" validate:"-"`
	PaymentMethod   string                 `json:"paymentMethod" validate:"required,eq=cash_on_delivery"`
}

type OrderCreated struct {
	ID string `json:"_id"`
}

type OrderUserDTO struct {
	ID       string `json:"_id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

type OrderItemDTO struct {
	Product  ProductRefDTO `json:"productId"`
	Quantity int           `json:"quantity"`
}

type OrderDTO struct {
	ID              string                 `json:"_id"`
	User            OrderUserDTO           `json:"userId"`
	Items           []OrderItemDTO         `json:"items"`
	Subtotal        Money                  `json:"subtotal"`
	Shipping        Money                  `json:"shipping"`
	Discount        Money                  `json:"discount"`
	Total           Money                  `json:"total"`
	PromoCode       string                 `json:"promoCode,omitempty"`
	ShippingAddress domain.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string                 `json:"paymentMethod"`
	Status          string                 `json:"status"`
	CreatedAt       time.Time              `json:"createdAt"`
}

func FromOrder(o *domain.Order, u domain.User) OrderDTO {
	dto := OrderDTO{
		ID:              o.ID.String(),
		User:            OrderUserDTO{ID: o.UserID, Username: u.Username, Email: u.Email},
		Items:           make([]OrderItemDTO, 0, len(o.Items)),
		Subtotal:        M(o.Quote.Subtotal),
		Shipping:        M(o.Quote.Shipping),
		Discount:        M(o.Quote.Discount),
		Total:           M(o.Quote.Total),
		PromoCode:       o.Quote.PromoCode,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		Status:          string(o.Status),
		CreatedAt:       o.CreatedAt,
	}
	for _, it := range o.Items {
		dto.Items = append(dto.Items, OrderItemDTO{
			Product:  ProductRefDTO{ID: it.ProductID, Name: it.ProductName, Price: M(it.UnitPrice)},
			Quantity: it.Quantity,
		})
	}
	return dto
}

type UserDTO struct {
	ID        string    `json:"_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"userRole"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u UserDTO) ToUser() domain.User {
	return domain.User{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
}

type UsersResponse struct {
	Success bool      `json:"success"`
	Users   []UserDTO `json:"users"`
}

type SignupRequest struct {
	Username string `json:"username" validate:"required,min=3"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Success bool    `json:"success"`
	Token   string  `json:"token"`
	User    UserDTO `json:"user"`
}
