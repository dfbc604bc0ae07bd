package cart

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errCatalogNotFound = errors.New("product not found")

type stubCatalog map[string]domain.Product

func (c stubCatalog) Get(_ context.Context, id string) (domain.Product, error) {
	p, ok := c[id]
	if !ok {
		return domain.Product{}, errCatalogNotFound
	}
	return p, nil
}

var products = stubCatalog{
	"tee":    {ID: "tee", Name: "Tee", Price: decimal.RequireFromString("50.00")},
	"jacket": {ID: "jacket", Name: "Jacket", Price: decimal.RequireFromString("100.00")},
}

func newTestService(t *testing.T, cache Cache) (*Service, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	return NewService(repo, cache, products, pricing.DefaultPromotions(), nil), repo
}

func TestGet_EmptyCartForNewUser(t *testing.T) {
	svc, _ := newTestService(t, nil)

	c, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", c.OwnerID)
	assert.True(t, c.IsEmpty())
	assert.Equal(t, int64(0), c.Version)
}

func TestAddItem_CreatesAndMerges(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	c, err := svc.AddItem(ctx, "u1", "tee", 1, AnyVersion)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Version)
	assert.NotEmpty(t, c.ID)

	c, err = svc.AddItem(ctx, "u1", "tee", 2, c.Version)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Version)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 3, c.Items[0].Quantity)
	assert.Equal(t, "Tee", c.Items[0].Product.Name)
}

func TestAddItem_Validation(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "u1", "tee", 0, AnyVersion)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = svc.AddItem(ctx, "u1", "tee", 100, AnyVersion)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = svc.AddItem(ctx, "u1", "ghost", 1, AnyVersion)
	assert.ErrorIs(t, err, errCatalogNotFound)

	_, err = svc.AddItem(ctx, "u1", "tee", 98, AnyVersion)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "u1", "tee", 2, AnyVersion)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestStaleIfMatch_Conflicts(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	c, err := svc.AddItem(ctx, "u1", "tee", 1, 0)
	require.NoError(t, err)

	_, err = svc.UpdateItem(ctx, "u1", "tee", 5, c.Version-1)
	assert.ErrorIs(t, err, ErrVersionConflict)

	got, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Items[0].Quantity)
}

func TestUpdateItem_ZeroRemoves(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	_, err := svc.AddItem(ctx, "u1", "tee", 2, AnyVersion)
	require.NoError(t, err)

	c, err := svc.UpdateItem(ctx, "u1", "tee", 0, AnyVersion)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	_, err = svc.UpdateItem(ctx, "u1", "tee", 3, AnyVersion)
	assert.ErrorIs(t, err, ErrItemNotFound)
	_, err = svc.RemoveItem(ctx, "u1", "tee", AnyVersion)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestPromo_ServerComputesDiscount(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	_, err := svc.AddItem(ctx, "u1", "jacket", 2, AnyVersion)
	require.NoError(t, err)

	_, err = svc.ApplyPromo(ctx, "u1", "bogus", AnyVersion)
	assert.ErrorIs(t, err, pricing.ErrUnknownPromo)

	c, err := svc.ApplyPromo(ctx, "u1", " save10 ", AnyVersion)
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", c.PromoCode)
	assert.True(t, decimal.NewFromInt(20).Equal(c.Discount))

	// Discount tracks the subtotal.
	c, err = svc.UpdateItem(ctx, "u1", "jacket", 1, AnyVersion)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(c.Discount))

	c, err = svc.ClearPromo(ctx, "u1", AnyVersion)
	require.NoError(t, err)
	assert.Empty(t, c.PromoCode)
	assert.True(t, c.Discount.IsZero())
}

func TestClearAt(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	_, err := svc.AddItem(ctx, "u1", "tee", 1, AnyVersion)
	require.NoError(t, err)

	cleared, err := svc.ClearAt(ctx, "u1", 1)
	require.NoError(t, err)
	assert.True(t, cleared)

	cleared, err = svc.ClearAt(ctx, "u1", AnyVersion)
	require.NoError(t, err)
	assert.False(t, cleared, "already empty")

	c, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
	assert.Equal(t, int64(2), c.Version)
}

func TestClearAt_NewUserIsNoop(t *testing.T) {
	svc, repo := newTestService(t, nil)
	cleared, err := svc.ClearAt(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.False(t, cleared)
	_, err = repo.Get(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrCartNotFound)
}

func TestClearAt_LeavesNewerCart(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	_, err := svc.AddItem(ctx, "u1", "tee", 1, AnyVersion)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "u1", "jacket", 1, AnyVersion)
	require.NoError(t, err)

	cleared, err := svc.ClearAt(ctx, "u1", 1)
	require.NoError(t, err)
	assert.False(t, cleared)

	c, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, c.TotalItems())
}

func TestClear_OldVersionStillConflicts(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	_, err := svc.AddItem(ctx, "u1", "tee", 1, AnyVersion)
	require.NoError(t, err)

	_, err = svc.ClearAt(ctx, "u1", AnyVersion)
	require.NoError(t, err)
	c, err := svc.AddItem(ctx, "u1", "jacket", 1, AnyVersion)
	require.NoError(t, err)
	require.Equal(t, int64(3), c.Version)

	// A client that saw version 1 before the clear must not edit the
	// cart that replaced it.
	_, err = svc.RemoveItem(ctx, "u1", "jacket", 1)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestConcurrentAdds_NoLostUpdates(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddItem(ctx, "u1", "tee", 1, AnyVersion)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, c.TotalItems())
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCache_WrittenThroughOnMutation(t *testing.T) {
	mr, client := newTestRedis(t)
	svc, _ := newTestService(t, NewRedisCache(client))
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "u1", "tee", 1, AnyVersion)
	require.NoError(t, err)
	assert.Equal(t, "1", mr.HGet("cart:u1", "version"))

	_, err = svc.AddItem(ctx, "u1", "tee", 1, AnyVersion)
	require.NoError(t, err)
	assert.Equal(t, "2", mr.HGet("cart:u1", "version"))

	c, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, c.TotalItems())
}

func TestGet_ServedFromCache(t *testing.T) {
	mr, client := newTestRedis(t)
	svc, repo := newTestService(t, NewRedisCache(client))
	ctx := context.Background()
	_, err := svc.AddItem(ctx, "u1", "tee", 1, AnyVersion)
	require.NoError(t, err)
	require.True(t, mr.Exists("cart:u1"))

	// Bypass the service: the cached copy still answers.
	repo.mu.Lock()
	delete(repo.carts, "u1")
	repo.mu.Unlock()
	c, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, c.TotalItems())
}

func TestLoad_SkipsCache(t *testing.T) {
	mr, client := newTestRedis(t)
	svc, _ := newTestService(t, NewRedisCache(client))
	ctx := context.Background()
	_, err := svc.AddItem(ctx, "u1", "tee", 1, AnyVersion)
	require.NoError(t, err)
	_, err = svc.ApplyPromo(ctx, "u1", "SAVE10", AnyVersion)
	require.NoError(t, err)

	// A cache entry claiming a newer, emptier cart is ignored.
	mr.HSet("cart:u1", "version", "9", "data", `{"id":"x","owner_id":"u1","items":[],"version":9}`)

	c, err := svc.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Version)
	assert.Equal(t, 1, c.TotalItems())
	assert.True(t, c.Discount.IsPositive())
}

// racingRepository runs a mutation between the read and the return of the
// first Get after arm, the window where a cache fill used to go stale.
type racingRepository struct {
	*MemoryRepository
	armed  bool
	during func()
}

func (r *racingRepository) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	c, err := r.MemoryRepository.Get(ctx, userID)
	if r.armed {
		r.armed = false
		r.during()
	}
	return c, err
}

func TestGet_StaleFillDoesNotOverwriteNewerCart(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := &racingRepository{MemoryRepository: NewMemoryRepository()}
	svc := NewService(repo, NewRedisCache(client), products, pricing.DefaultPromotions(), nil)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "u1", "tee", 1, AnyVersion)
	require.NoError(t, err)
	mr.Del("cart:u1")

	repo.during = func() {
		_, err := svc.AddItem(ctx, "u1", "jacket", 1, AnyVersion)
		require.NoError(t, err)
	}
	repo.armed = true

	stale, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stale.Version)

	c, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Version)
	_, ok := c.Item("jacket")
	assert.True(t, ok)
}

func TestGet_CacheErrorFallsBackToRepo(t *testing.T) {
	mr, client := newTestRedis(t)

	svc, _ := newTestService(t, NewRedisCache(client))
	ctx := context.Background()
	_, err := svc.AddItem(ctx, "u1", "tee", 1, AnyVersion)
	require.NoError(t, err)

	mr.SetError("READONLY")
	c, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, c.TotalItems())
}
