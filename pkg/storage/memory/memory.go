// Package memory provides an in-memory implementation of storage.UserStore
// for tests and single-process deployments. Users are lost when the
// process restarts.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rhuss/chatserver/pkg/api"
	"github.com/rhuss/chatserver/pkg/storage"
)

// Store is an in-memory UserStore keyed by email.
type Store struct {
	mu     sync.RWMutex
	users  map[string]api.User
	nextID int64
	now    func() time.Time
}

// Ensure Store implements storage.UserStore at compile time.
var _ storage.UserStore = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		users:  make(map[string]api.User),
		nextID: 1,
		now:    time.Now,
	}
}

// FindByEmail returns a copy of the stored user so callers can redact it
// without touching the stored record.
func (s *Store) FindByEmail(ctx context.Context, email string) (*api.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[api.NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// CreateUser stores a new user. Returns ErrConflict if the email is taken.
func (s *Store) CreateUser(ctx context.Context, nu storage.NewUser) (*api.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := api.NormalizeEmail(nu.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[key]; exists {
		return nil, storage.ErrConflict
	}

	u := api.User{
		ID:           s.nextID,
		Fullname:     nu.Fullname,
		Email:        key,
		PasswordHash: nu.PasswordHash,
		CreatedAt:    s.now().UTC(),
	}
	s.users[key] = u
	s.nextID++

	return u.Redact(), nil
}

// HealthCheck always succeeds.
func (s *Store) HealthCheck(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Len returns the number of stored users.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
