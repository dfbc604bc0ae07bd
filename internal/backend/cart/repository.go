// Package cart is the server-side cart authority of the reference backend.
package cart

import (
	"context"
	"errors"
	"sync"

	"github.com/fjod/storefront/internal/domain"
)

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrItemNotFound    = errors.New("item not found in cart")
	ErrVersionConflict = errors.New("cart version mismatch")
)

// Repository stores carts, one per user. Save is a compare-and-swap on the
// cart version: it succeeds only if the stored version equals expected
// (zero for a cart that does not exist yet) and bumps cart.Version.
// Carts are never deleted, so versions only grow.
type Repository interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	Save(ctx context.Context, cart *domain.Cart, expected int64) error
}

type MemoryRepository struct {
	mu    sync.Mutex
	carts map[string]*domain.Cart
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{carts: make(map[string]*domain.Cart)}
}

func (m *MemoryRepository) Get(_ context.Context, userID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		return nil, ErrCartNotFound
	}
	return c.Clone(), nil
}

func (m *MemoryRepository) Save(_ context.Context, cart *domain.Cart, expected int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var current int64
	if c, ok := m.carts[cart.OwnerID]; ok {
		current = c.Version
	}
	if current != expected {
		return ErrVersionConflict
	}
	cart.Version = expected + 1
	m.carts[cart.OwnerID] = cart.Clone()
	return nil
}
