package users

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/domain"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user with this email already exists")
)

// Account is a directory entry. PasswordHash never leaves the backend.
type Account struct {
	domain.User
	PasswordHash []byte
	CreatedAt    time.Time
}

type Store interface {
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	List(ctx context.Context) ([]*Account, error)
	Delete(ctx context.Context, id string) error
}

type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*Account
	byEmail map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Account), byEmail: make(map[string]string)}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *MemoryStore) Create(_ context.Context, a *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := emailKey(a.Email)
	if _, ok := s.byEmail[key]; ok {
		return ErrUserExists
	}
	cp := *a
	s.byID[a.ID] = &cp
	s.byEmail[key] = a.ID
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (*Account, error) {
	s.mu.RLock()
	id, ok := s.byEmail[emailKey(email)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrUserNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *MemoryStore) List(_ context.Context) ([]*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Account, 0, len(s.byID))
	for _, a := range s.byID {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	delete(s.byEmail, emailKey(a.Email))
	delete(s.byID, id)
	return nil
}
