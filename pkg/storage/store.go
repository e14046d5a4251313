package storage

import (
	"context"

	"github.com/rhuss/chatserver/pkg/api"
)

// NewUser is a registration that has already had its password hashed.
type NewUser struct {
	Fullname     string
	Email        string
	PasswordHash string
}

// UserStore is the persistence boundary for accounts.
type UserStore interface {
	// FindByEmail returns the user with the given (normalized) email,
	// including its password hash. A missing user is (nil, nil).
	FindByEmail(ctx context.Context, email string) (*api.User, error)

	// CreateUser inserts a new user and returns it with its assigned ID and
	// creation time. The returned record has no password hash. A duplicate
	// email is ErrConflict.
	CreateUser(ctx context.Context, u NewUser) (*api.User, error)

	// HealthCheck reports whether the store can serve requests.
	HealthCheck(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
