package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/domain"
)

func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	raw, err := c.do(ctx, "list products", request{method: http.MethodGet, path: "/products"})
	if err != nil {
		return nil, err
	}
	dtos, err := decodeData[[]api.ProductDTO]("list products", raw)
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(dtos))
	for _, d := range dtos {
		products = append(products, d.ToProduct())
	}
	return products, nil
}

func (c *Client) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	raw, err := c.do(ctx, "get product", request{method: http.MethodGet, path: "/products/" + url.PathEscape(id)})
	if err != nil {
		return domain.Product{}, err
	}
	dto, err := decodeData[api.ProductDTO]("get product", raw)
	if err != nil {
		return domain.Product{}, err
	}
	return dto.ToProduct(), nil
}

func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	_, err := c.do(ctx, "delete product", request{method: http.MethodDelete, path: "/products/" + url.PathEscape(id), auth: true})
	return err
}
