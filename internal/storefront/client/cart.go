package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/domain"
)

// AnyVersion skips the If-Match precondition on a cart mutation.
const AnyVersion int64 = -1

func ifMatch(version int64) map[string]string {
	if version < 0 {
		return nil
	}
	return map[string]string{api.HeaderIfMatch: strconv.Quote(strconv.FormatInt(version, 10))}
}

func (c *Client) GetCart(ctx context.Context) (*domain.Cart, error) {
	raw, err := c.do(ctx, "get cart", request{method: http.MethodGet, path: "/cart/get", auth: true})
	if err != nil {
		return nil, err
	}
	dto, err := decodeData[api.CartDTO]("get cart", raw)
	if err != nil {
		return nil, err
	}
	cart := dto.ToCart()
	if v, ok := parseETag(raw.header.Get(api.HeaderETag)); ok {
		cart.Version = v
	}
	return cart, nil
}

// AddItem adds quantity of productID. The response carries no cart; callers
// refetch.
func (c *Client) AddItem(ctx context.Context, productID string, quantity int, version int64) error {
	_, err := c.do(ctx, "add to cart", request{
		method:  http.MethodPost,
		path:    "/cart/add",
		body:    api.CartItemRequest{ProductID: productID, Quantity: quantity},
		auth:    true,
		headers: ifMatch(version),
	})
	return err
}

func (c *Client) UpdateItem(ctx context.Context, productID string, quantity int, version int64) error {
	_, err := c.do(ctx, "update cart", request{
		method:  http.MethodPut,
		path:    "/cart/update",
		body:    api.CartItemRequest{ProductID: productID, Quantity: quantity},
		auth:    true,
		headers: ifMatch(version),
	})
	return err
}

func (c *Client) RemoveItem(ctx context.Context, productID string, version int64) error {
	_, err := c.do(ctx, "remove from cart", request{
		method:  http.MethodDelete,
		path:    "/cart/remove/" + url.PathEscape(productID),
		auth:    true,
		headers: ifMatch(version),
	})
	return err
}

func (c *Client) ApplyPromo(ctx context.Context, code string, version int64) error {
	_, err := c.do(ctx, "apply promo", request{
		method:  http.MethodPost,
		path:    "/cart/promo",
		body:    api.PromoRequest{Code: code},
		auth:    true,
		headers: ifMatch(version),
	})
	return err
}

func (c *Client) ClearPromo(ctx context.Context, version int64) error {
	_, err := c.do(ctx, "clear promo", request{
		method:  http.MethodDelete,
		path:    "/cart/promo",
		auth:    true,
		headers: ifMatch(version),
	})
	return err
}

func parseETag(tag string) (int64, bool) {
	if tag == "" {
		return 0, false
	}
	if len(tag) > 2 && tag[:2] == "W/" {
		tag = tag[2:]
	}
	if s, err := strconv.Unquote(tag); err == nil {
		tag = s
	}
	v, err := strconv.ParseInt(tag, 10, 64)
	return v, err == nil
}
