// Package users is the reference backend's user directory: signup, login
// and the admin user list.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrDeleteSelf         = errors.New("cannot delete your own account")
)

type Service struct {
	store  Store
	tokens *Tokens
	log    *zap.Logger
	cost   int
	now    func() time.Time
}

func NewService(store Store, tokens *Tokens, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, tokens: tokens, log: log, cost: bcrypt.DefaultCost, now: time.Now}
}

// Signup creates a regular user and returns a token for it.
func (s *Service) Signup(ctx context.Context, username, email, password string) (string, *Account, error) {
	acc, err := s.create(ctx, username, email, password, domain.RoleUser)
	if err != nil {
		return "", nil, err
	}
	token, err := s.tokens.Issue(acc.User)
	if err != nil {
		return "", nil, err
	}
	s.log.Info("user signed up", zap.String("user_id", acc.ID))
	return token, acc, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (string, *Account, error) {
	acc, err := s.store.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword(acc.PasswordHash, []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(acc.User)
	if err != nil {
		return "", nil, err
	}
	return token, acc, nil
}

// Resolve returns the current directory entry for id, or ErrUserNotFound
// once the account has been deleted.
func (s *Service) Resolve(ctx context.Context, id string) (domain.User, error) {
	acc, err := s.store.GetByID(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	return acc.User, nil
}

// Lookup resolves a user id; unknown ids yield a bare user with that id.
func (s *Service) Lookup(ctx context.Context, id string) domain.User {
	acc, err := s.store.GetByID(ctx, id)
	if err != nil {
		return domain.User{ID: id}
	}
	return acc.User
}

func (s *Service) List(ctx context.Context) ([]*Account, error) {
	return s.store.List(ctx)
}

// Delete removes a user. An admin cannot delete their own account.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return ErrDeleteSelf
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("user deleted", zap.String("user_id", id), zap.String("by", actorID))
	return nil
}

// SeedAdmin makes sure an admin account exists for email.
func (s *Service) SeedAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	_, err := s.store.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return err
	}
	if _, err := s.create(ctx, "admin", email, password, domain.RoleAdmin); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	s.log.Info("admin account seeded", zap.String("email", email))
	return nil
}

func (s *Service) create(ctx context.Context, username, email, password, role string) (*Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	acc := &Account{
		User: domain.User{
			ID:       uuid.NewString(),
			Username: strings.TrimSpace(username),
			Email:    strings.TrimSpace(email),
			Role:     role,
		},
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.Create(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}
