// Package orders places and stores orders for the reference backend and
// publishes order events through a transactional outbox.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrDuplicateOrder = errors.New("order with this idempotency key already exists")
)

const EventOrderPlaced = "order.placed"

type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

// Repository persists orders. Create stores the order and its outbox event
// atomically and returns ErrDuplicateOrder when the user already has an
// order with the same idempotency key.
type Repository interface {
	Create(ctx context.Context, order *domain.Order, event OutboxEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetByIdempotencyKey(ctx context.Context, userID, key string) (*domain.Order, error)
	List(ctx context.Context) ([]*domain.Order, error)
	OutboxRepository
}

type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

type idemKey struct{ user, key string }

type MemoryRepository struct {
	mu        sync.Mutex
	orders    map[uuid.UUID]*domain.Order
	byKey     map[idemKey]uuid.UUID
	events    []*OutboxEvent
	processed map[int64]bool
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders:    make(map[uuid.UUID]*domain.Order),
		byKey:     make(map[idemKey]uuid.UUID),
		processed: make(map[int64]bool),
	}
}

func (m *MemoryRepository) Create(_ context.Context, order *domain.Order, event OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if order.IdempotencyKey != "" {
		k := idemKey{order.UserID, order.IdempotencyKey}
		if _, ok := m.byKey[k]; ok {
			return ErrDuplicateOrder
		}
		m.byKey[k] = order.ID
	}
	cp := *order
	m.orders[order.ID] = &cp

	event.ID = int64(len(m.events) + 1)
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	m.events = append(m.events, &event)
	return nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryRepository) GetByIdempotencyKey(_ context.Context, userID, key string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byKey[idemKey{userID, key}]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *m.orders[id]
	return &cp, nil
}

func (m *MemoryRepository) List(_ context.Context) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Order, 0, len(m.orders))
	for _, o := range m.orders {
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryRepository) GetUnprocessedEvents(_ context.Context, limit int) ([]*OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*OutboxEvent
	for _, e := range m.events {
		if len(out) == limit {
			break
		}
		if !m.processed[e.ID] {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryRepository) MarkEventAsProcessed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[id] = true
	return nil
}
