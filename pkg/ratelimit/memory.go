package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepThreshold is the counter count above which expired windows are
// purged on the next attempt.
const sweepThreshold = 10000

// Memory is a fixed-window limiter that tracks counts per key in memory.
type Memory struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	counters map[string]*counter
}

type counter struct {
	count    int
	windowAt time.Time
}

// NewMemory creates a limiter allowing limit attempts per window.
func NewMemory(limit int, window time.Duration) *Memory {
	return &Memory{
		limit:    limit,
		window:   window,
		now:      time.Now,
		counters: make(map[string]*counter),
	}
}

// Allow checks if the attempt is within the limit.
func (l *Memory) Allow(_ context.Context, key string) error {
	if l.limit <= 0 {
		return nil // no limit
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.counters) > sweepThreshold {
		l.sweep(now)
	}

	c, ok := l.counters[key]
	if !ok || now.Sub(c.windowAt) >= l.window {
		// New window.
		l.counters[key] = &counter{count: 1, windowAt: now}
		return nil
	}

	c.count++
	if c.count > l.limit {
		return &LimitError{RetryAfter: c.windowAt.Add(l.window).Sub(now)}
	}

	return nil
}

// Reset forgets the attempts recorded for key.
func (l *Memory) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.counters, key)
	return nil
}

// Close is a no-op.
func (l *Memory) Close() error { return nil }

// sweep drops counters whose window has passed. Must be called with mu held.
func (l *Memory) sweep(now time.Time) {
	for k, c := range l.counters {
		if now.Sub(c.windowAt) >= l.window {
			delete(l.counters, k)
		}
	}
}
