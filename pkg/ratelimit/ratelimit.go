// Package ratelimit bounds how often a key (a normalized login email) may
// attempt an operation within a fixed window.
//
// Two backends are provided: [Memory] for a single process and [Redis] for
// a fleet of servers sharing one counter per key. Both use fixed windows
// that start at a key's first attempt.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrLimited is matched by every rejection.
var ErrLimited = errors.New("too many attempts")

// LimitError reports a rejection and when the window reopens.
type LimitError struct {
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s, retry after %s", ErrLimited, e.RetryAfter.Round(time.Second))
}

// Is reports whether target is ErrLimited.
func (e *LimitError) Is(target error) bool { return target == ErrLimited }

// Limiter decides whether another attempt for key is allowed.
type Limiter interface {
	// Allow records an attempt. It returns a *LimitError once the
	// attempts in the current window exceed the limit.
	Allow(ctx context.Context, key string) error

	// Reset forgets all attempts for key.
	Reset(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Unlimited allows everything.
type Unlimited struct{}

// Allow always succeeds.
func (Unlimited) Allow(context.Context, string) error { return nil }

// Reset is a no-op.
func (Unlimited) Reset(context.Context, string) error { return nil }

// Close is a no-op.
func (Unlimited) Close() error { return nil }
