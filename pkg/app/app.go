// Package app assembles the shared runtime state of the chat server: key
// material, hasher, credential store and login limiter. The State is
// built once at startup, never mutated afterwards, and shared by pointer
// with every request handler.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rhuss/chatserver/pkg/config"
	"github.com/rhuss/chatserver/pkg/password"
	"github.com/rhuss/chatserver/pkg/ratelimit"
	"github.com/rhuss/chatserver/pkg/storage"
	"github.com/rhuss/chatserver/pkg/storage/memory"
	"github.com/rhuss/chatserver/pkg/storage/postgres"
	"github.com/rhuss/chatserver/pkg/token"
)

// Startup stages reported in StartupError.
const (
	StageKeys      = "keys"
	StageHasher    = "hasher"
	StageStorage   = "storage"
	StageRateLimit = "ratelimit"
)

// loginWindow is the fixed window for auth.login_attempts_per_minute.
const loginWindow = time.Minute

// StartupError reports which construction stage failed.
type StartupError struct {
	Stage string
	Err   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("startup failed at %s: %v", e.Stage, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// Option customizes State construction.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	store   storage.UserStore
	limiter ratelimit.Limiter
	clock   func() time.Time
}

// WithLogger sets the logger handed to components that log.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStore uses an already-open credential store instead of the one
// named by storage.type. The State takes ownership and closes it.
func WithStore(s storage.UserStore) Option {
	return func(o *options) { o.store = s }
}

// WithLimiter uses the given login limiter instead of the one named by
// ratelimit.type. The State takes ownership and closes it.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

// WithClock sets the time source used for token issue and expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// State is the immutable runtime context shared by all requests.
type State struct {
	cfg      config.Config
	signer   *token.Signer
	verifier *token.Verifier
	hasher   *password.Hasher
	store    storage.UserStore
	limiter  ratelimit.Limiter
	logger   *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// New builds the State from a validated configuration. On failure every
// resource opened so far is closed and a *StartupError is returned.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*State, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	s := &State{cfg: *cfg, logger: o.logger}

	var tokenOpts []token.Option
	if o.clock != nil {
		tokenOpts = append(tokenOpts, token.WithClock(o.clock))
	}
	if err := s.loadKeys(tokenOpts); err != nil {
		return nil, s.fail(StageKeys, err, o)
	}

	hasher, err := password.New(hashParams(cfg.Auth.Hash))
	if err != nil {
		return nil, s.fail(StageHasher, err, o)
	}
	s.hasher = hasher

	s.store = o.store
	if s.store == nil {
		if s.store, err = openStore(ctx, cfg.Storage, o.logger); err != nil {
			return nil, s.fail(StageStorage, err, o)
		}
	}

	s.limiter = o.limiter
	if s.limiter == nil {
		if s.limiter, err = openLimiter(ctx, cfg, o.logger); err != nil {
			return nil, s.fail(StageRateLimit, err, o)
		}
	}

	o.logger.Info("runtime state ready",
		slog.String("storage", cfg.Storage.Type),
		slog.String("ratelimit", cfg.RateLimit.Type),
		slog.Int("login_attempts_per_minute", cfg.Auth.LoginAttemptsPerMinute),
	)
	return s, nil
}

func (s *State) loadKeys(opts []token.Option) error {
	signer, err := token.LoadSigner([]byte(s.cfg.Auth.SigningKey), opts...)
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}
	verifier, err := token.LoadVerifier([]byte(s.cfg.Auth.VerifyingKey), opts...)
	if err != nil {
		return fmt.Errorf("verifying key: %w", err)
	}
	if !signer.Pairs(verifier) {
		return errors.New("signing and verifying keys do not form a pair")
	}
	s.signer, s.verifier = signer, verifier
	return nil
}

// fail closes whatever was opened, including injected components, and
// wraps err.
func (s *State) fail(stage string, err error, o options) error {
	if s.store == nil {
		s.store = o.store
	}
	if s.limiter == nil {
		s.limiter = o.limiter
	}
	if cerr := s.Close(); cerr != nil {
		o.logger.Warn("closing partially built state", slog.String("error", cerr.Error()))
	}
	return &StartupError{Stage: stage, Err: err}
}

func hashParams(h config.HashConfig) password.Params {
	p := password.DefaultParams()
	p.Memory = h.Memory
	p.Iterations = h.Iterations
	p.Parallelism = h.Parallelism
	return p
}

func openStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (storage.UserStore, error) {
	switch cfg.Type {
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MinConns:       cfg.Postgres.MinConns,
			AcquireTimeout: cfg.Postgres.AcquireTimeout,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
			Logger:         logger,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "memory", "":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

func openLimiter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ratelimit.Limiter, error) {
	limit := cfg.Auth.LoginAttemptsPerMinute
	if limit == 0 {
		return ratelimit.Unlimited{}, nil
	}
	switch cfg.RateLimit.Type {
	case "redis":
		r := cfg.RateLimit.Redis
		limiter, err := ratelimit.NewRedis(ctx, ratelimit.RedisConfig{
			Addr:     r.Addr,
			Password: r.Password,
			DB:       r.DB,
			Prefix:   r.Prefix,
		}, limit, loginWindow, logger)
		if err != nil {
			return nil, err
		}
		return limiter, nil
	case "memory", "":
		return ratelimit.NewMemory(limit, loginWindow), nil
	default:
		return nil, fmt.Errorf("unknown ratelimit type %q", cfg.RateLimit.Type)
	}
}

// Config returns a copy of the configuration the State was built from.
func (s *State) Config() config.Config { return s.cfg }

// Signer issues session tokens.
func (s *State) Signer() *token.Signer { return s.signer }

// Verifier checks session tokens.
func (s *State) Verifier() *token.Verifier { return s.verifier }

// Hasher hashes and verifies passwords.
func (s *State) Hasher() *password.Hasher { return s.hasher }

// Store is the credential store.
func (s *State) Store() storage.UserStore { return s.store }

// Limiter throttles login attempts.
func (s *State) Limiter() ratelimit.Limiter { return s.limiter }

// Logger is the process logger.
func (s *State) Logger() *slog.Logger { return s.logger }

// Close releases the credential store and the login limiter. It is safe
// to call more than once.
func (s *State) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.limiter != nil {
			if err := s.limiter.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing limiter: %w", err))
			}
		}
		if s.store != nil {
			if err := s.store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing store: %w", err))
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
