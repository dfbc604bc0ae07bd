// Package admin computes the admin dashboard overview from the admin
// endpoints.
package admin

import (
	"context"
	"errors"
	"strings"

	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/storefront/session"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

var ErrNotAdmin = errors.New("admin access required")

const recentLimit = 5

type API interface {
	ListUsers(ctx context.Context) ([]api.UserDTO, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListOrders(ctx context.Context) ([]api.OrderDTO, error)
	DeleteUser(ctx context.Context, id string) error
	DeleteProduct(ctx context.Context, id string) error
}

type Stats struct {
	TotalUsers    int
	TotalProducts int
	TotalOrders   int
	TotalRevenue  decimal.Decimal
	RecentOrders  []api.OrderDTO
	RecentUsers   []api.UserDTO
}

type Dashboard struct {
	api     API
	session *session.Session
}

func NewDashboard(api API, sess *session.Session) *Dashboard {
	return &Dashboard{api: api, session: sess}
}

func (d *Dashboard) guard() error {
	if !d.session.IsAdmin() {
		return ErrNotAdmin
	}
	return nil
}

// Stats fetches users, products and orders concurrently. Revenue is the sum
// of order totals. Lists are returned by the server newest first.
func (d *Dashboard) Stats(ctx context.Context) (Stats, error) {
	if err := d.guard(); err != nil {
		return Stats{}, err
	}

	var (
		users    []api.UserDTO
		products []domain.Product
		orders   []api.OrderDTO
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		users, err = d.api.ListUsers(ctx)
		return err
	})
	g.Go(func() (err error) {
		products, err = d.api.ListProducts(ctx)
		return err
	})
	g.Go(func() (err error) {
		orders, err = d.api.ListOrders(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	revenue := decimal.Zero
	for _, o := range orders {
		revenue = revenue.Add(o.Total.Decimal)
	}
	return Stats{
		TotalUsers:    len(users),
		TotalProducts: len(products),
		TotalOrders:   len(orders),
		TotalRevenue:  revenue,
		RecentOrders:  head(orders, recentLimit),
		RecentUsers:   head(users, recentLimit),
	}, nil
}

func (d *Dashboard) Users(ctx context.Context, query string) ([]api.UserDTO, error) {
	if err := d.guard(); err != nil {
		return nil, err
	}
	users, err := d.api.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	return FilterUsers(users, query), nil
}

func (d *Dashboard) Orders(ctx context.Context) ([]api.OrderDTO, error) {
	if err := d.guard(); err != nil {
		return nil, err
	}
	return d.api.ListOrders(ctx)
}

func (d *Dashboard) DeleteUser(ctx context.Context, id string) error {
	if err := d.guard(); err != nil {
		return err
	}
	return d.api.DeleteUser(ctx, id)
}

func (d *Dashboard) DeleteProduct(ctx context.Context, id string) error {
	if err := d.guard(); err != nil {
		return err
	}
	return d.api.DeleteProduct(ctx, id)
}

// FilterUsers keeps users whose username or email contains query, ignoring
// case. An empty query keeps everyone.
func FilterUsers(users []api.UserDTO, query string) []api.UserDTO {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return users
	}
	out := make([]api.UserDTO, 0, len(users))
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Username), q) || strings.Contains(strings.ToLower(u.Email), q) {
			out = append(out, u)
		}
	}
	return out
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		s = s[:n]
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}
