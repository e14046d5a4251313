package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrConflict is returned when a user with the given email already exists.
	ErrConflict = errors.New("user already exists")

	// ErrUnavailable is returned when no connection could be acquired in
	// time. Callers may retry.
	ErrUnavailable = errors.New("storage temporarily unavailable")
)
