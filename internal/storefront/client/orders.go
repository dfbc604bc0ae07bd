package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/domain"
)

// PlaceOrder submits the stored cart as an order. Retries must reuse the same
// idempotencyKey so the server creates at most one order.
func (c *Client) PlaceOrder(ctx context.Context, addr domain.ShippingAddress, idempotencyKey string) (string, error) {
	raw, err := c.do(ctx, "place order", request{
		method: http.MethodPost,
		path:   "/order",
		body: api.PlaceOrderRequest{
			Items:           []api.CartItemDTO{},
			ShippingAddress: addr,
			PaymentMethod:   domain.PaymentCashOnDelivery,
		},
		auth:    true,
		headers: map[string]string{api.HeaderIdempotencyKey: idempotencyKey},
	})
	if err != nil {
		return "", err
	}
	created, err := decodeData[api.OrderCreated]("place order", raw)
	if err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", &ServerRejection{Status: raw.status, Message: "order response carried no id"}
	}
	return created.ID, nil
}

func (c *Client) GetOrder(ctx context.Context, id string) (api.OrderDTO, error) {
	raw, err := c.do(ctx, "get order", request{method: http.MethodGet, path: "/order/" + url.PathEscape(id), auth: true})
	if err != nil {
		return api.OrderDTO{}, err
	}
	return decodeData[api.OrderDTO]("get order", raw)
}

// ListOrders returns every order, newest first. Admin only.
func (c *Client) ListOrders(ctx context.Context) ([]api.OrderDTO, error) {
	raw, err := c.do(ctx, "list orders", request{method: http.MethodGet, path: "/orders", auth: true})
	if err != nil {
		return nil, err
	}
	return decodeData[[]api.OrderDTO]("list orders", raw)
}
