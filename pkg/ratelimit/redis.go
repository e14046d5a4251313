package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript atomically counts an attempt and starts the window on
// the first one.
// KEYS[1] = key
// ARGV[1] = window in milliseconds
// Returns {count, remaining window in milliseconds}.
var incrementScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	local ttl = redis.call('PTTL', KEYS[1])
	if ttl < 0 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
		ttl = tonumber(ARGV[1])
	end
	return {current, ttl}
`)

// RedisConfig holds connection settings for the Redis limiter.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Redis is a fixed-window limiter whose counters live in Redis, so every
// server sharing the instance enforces one limit. It fails open: if
// Redis is unreachable the attempt is allowed and a warning is logged.
type Redis struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	logger *slog.Logger
}

// NewRedis connects to Redis and verifies the connection with PING.
func NewRedis(ctx context.Context, cfg RedisConfig, limit int, window time.Duration, logger *slog.Logger) (*Redis, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}

	return &Redis{
		client: client,
		prefix: cfg.Prefix,
		limit:  limit,
		window: window,
		logger: logger,
	}, nil
}

// Allow counts an attempt for key.
func (l *Redis) Allow(ctx context.Context, key string) error {
	if l.limit <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	res, err := incrementScript.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds()).Int64Slice()
	if err != nil || len(res) != 2 {
		l.logger.Warn("login limiter unavailable, allowing attempt", "error", err)
		return nil
	}

	if res[0] > int64(l.limit) {
		return &LimitError{RetryAfter: time.Duration(res[1]) * time.Millisecond}
	}
	return nil
}

// Reset deletes the counter for key.
func (l *Redis) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.prefix+key).Err(); err != nil {
		return fmt.Errorf("resetting limiter key: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (l *Redis) Close() error {
	return l.client.Close()
}
