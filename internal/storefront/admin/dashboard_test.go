package admin

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/storefront/session"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeAPI struct {
	users     []api.UserDTO
	products  []domain.Product
	orders    []api.OrderDTO
	ordersErr error
	calls     atomic.Int32
	deleted   []string
}

func (f *fakeAPI) ListUsers(context.Context) ([]api.UserDTO, error) {
	f.calls.Add(1)
	return f.users, nil
}

func (f *fakeAPI) ListProducts(context.Context) ([]domain.Product, error) {
	f.calls.Add(1)
	return f.products, nil
}

func (f *fakeAPI) ListOrders(context.Context) ([]api.OrderDTO, error) {
	f.calls.Add(1)
	return f.orders, f.ordersErr
}

func (f *fakeAPI) DeleteUser(_ context.Context, id string) error {
	f.calls.Add(1)
	f.deleted = append(f.deleted, "user:"+id)
	return nil
}

func (f *fakeAPI) DeleteProduct(_ context.Context, id string) error {
	f.calls.Add(1)
	f.deleted = append(f.deleted, "product:"+id)
	return nil
}

func sessionAs(t *testing.T, role string) *session.Session {
	t.Helper()
	s := session.New(nil)
	require.NoError(t, s.Login("tok", domain.User{ID: "u0", Username: "op", Role: role}))
	return s
}

func fixture() *fakeAPI {
	f := &fakeAPI{}
	for i := range 7 {
		f.users = append(f.users, api.UserDTO{ID: fmt.Sprint(i), Username: fmt.Sprintf("user%d", i), Email: fmt.Sprintf("u%d@shop.io", i)})
		f.orders = append(f.orders, api.OrderDTO{ID: fmt.Sprint(i), Total: api.M(decimal.RequireFromString("10.50"))})
	}
	f.products = []domain.Product{{ID: "p1"}, {ID: "p2"}}
	return f
}

func TestStats(t *testing.T) {
	f := fixture()
	d := NewDashboard(f, sessionAs(t, "admin"))

	st, err := d.Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 7, st.TotalUsers)
	assert.Equal(t, 2, st.TotalProducts)
	assert.Equal(t, 7, st.TotalOrders)
	assert.Equal(t, "73.50", st.TotalRevenue.StringFixed(2))
	require.Len(t, st.RecentOrders, 5)
	assert.Equal(t, "0", st.RecentOrders[0].ID)
	assert.Len(t, st.RecentUsers, 5)
}

func TestStats_PropagatesError(t *testing.T) {
	f := fixture()
	f.ordersErr = errors.New("boom")
	_, err := NewDashboard(f, sessionAs(t, "admin")).Stats(context.Background())
	assert.EqualError(t, err, "boom")
}

func TestNotAdmin_NoNetworkCall(t *testing.T) {
	f := fixture()
	ctx := context.Background()
	for _, sess := range []*session.Session{sessionAs(t, "user"), session.New(nil)} {
		d := NewDashboard(f, sess)
		_, err := d.Stats(ctx)
		assert.ErrorIs(t, err, ErrNotAdmin)
		_, err = d.Users(ctx, "")
		assert.ErrorIs(t, err, ErrNotAdmin)
		assert.ErrorIs(t, d.DeleteUser(ctx, "1"), ErrNotAdmin)
		assert.ErrorIs(t, d.DeleteProduct(ctx, "p1"), ErrNotAdmin)
	}
	assert.Zero(t, f.calls.Load())
}

func TestFilterUsers(t *testing.T) {
	users := []api.UserDTO{
		{Username: "Alice", Email: "alice@shop.io"},
		{Username: "bob", Email: "BOB@example.com"},
		{Username: "carol", Email: "c@shop.io"},
	}

	assert.Len(t, FilterUsers(users, ""), 3)
	assert.Len(t, FilterUsers(users, "  "), 3)

	got := FilterUsers(users, "ALI")
	require.Len(t, got, 1)
	assert.Equal(t, "Alice", got[0].Username)

	got = FilterUsers(users, "example")
	require.Len(t, got, 1)
	assert.Equal(t, "bob", got[0].Username)

	assert.Len(t, FilterUsers(users, "shop.io"), 2)
	assert.Empty(t, FilterUsers(users, "zed"))
}

func TestDelete(t *testing.T) {
	f := fixture()
	d := NewDashboard(f, sessionAs(t, "admin"))
	require.NoError(t, d.DeleteUser(context.Background(), "3"))
	require.NoError(t, d.DeleteProduct(context.Background(), "p1"))
	assert.Equal(t, []string{"user:3", "product:p1"}, f.deleted)
}
