// Package session holds the signed-in identity of the storefront user. It is
// passed explicitly to every component that needs the bearer token.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fjod/storefront/internal/domain"
)

// State is what a Store persists.
type State struct {
	Token string      `yaml:"token"`
	User  domain.User `yaml:"user"`
}

type Store interface {
	Load() (State, error)
	Save(State) error
	Clear() error
}

var ErrNoSession = errors.New("no stored session")

type Session struct {
	mu    sync.RWMutex
	state State
	store Store
}

// New returns an empty session backed by store. A nil store keeps the
// session in memory only.
func New(store Store) *Session {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Session{store: store}
}

// Restore loads a previously saved session. A missing session is not an error.
func Restore(store Store) (*Session, error) {
	s := New(store)
	st, err := s.store.Load()
	if errors.Is(err, ErrNoSession) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	st.User.Role = strings.ToLower(st.User.Role)
	s.state = st
	return s, nil
}

func (s *Session) Login(token string, user domain.User) error {
	if token == "" {
		return errors.New("empty token")
	}
	user.Role = strings.ToLower(user.Role)

	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{Token: token, User: user}
	if err := s.store.Save(st); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.state = st
	return nil
}

func (s *Session) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{}
	return s.store.Clear()
}

func (s *Session) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Token, s.state.Token != ""
}

func (s *Session) User() (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.User, s.state.Token != ""
}

// IsAdmin reports the cached role. The server still enforces it.
func (s *Session) IsAdmin() bool {
	u, ok := s.User()
	return ok && u.IsAdmin()
}
