package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration the chat server needs: listener,
// key pair, hashing, storage, limiter and observability.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	// server.port must be a valid TCP port.
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes must be > 0, got %d", c.Server.MaxBodyBytes))
	}

	// The key pair has no default.
	if c.Auth.SigningKey == "" {
		errs = append(errs, fmt.Errorf("auth.signing_key or auth.signing_key_file is required"))
	}
	if c.Auth.VerifyingKey == "" {
		errs = append(errs, fmt.Errorf("auth.verifying_key or auth.verifying_key_file is required"))
	}
	if c.Auth.Hash.Memory == 0 || c.Auth.Hash.Iterations == 0 || c.Auth.Hash.Parallelism == 0 {
		errs = append(errs, fmt.Errorf("auth.hash memory, iterations and parallelism must all be > 0"))
	}
	if c.Auth.LoginAttemptsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("auth.login_attempts_per_minute must be >= 0, got %d", c.Auth.LoginAttemptsPerMinute))
	}

	// storage.type must be a known value.
	switch c.Storage.Type {
	case "memory", "postgres":
		// valid
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	// If storage.type is "postgres", DSN or DSNFile must be set.
	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
		if c.Storage.Postgres.MinConns > c.Storage.Postgres.MaxConns {
			errs = append(errs, fmt.Errorf("storage.postgres.min_conns (%d) exceeds max_conns (%d)",
				c.Storage.Postgres.MinConns, c.Storage.Postgres.MaxConns))
		}
	}

	// ratelimit.type must be a known value.
	switch c.RateLimit.Type {
	case "memory":
	case "redis":
		if c.RateLimit.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("ratelimit.redis.addr is required when ratelimit.type is \"redis\""))
		}
	default:
		errs = append(errs, fmt.Errorf("ratelimit.type must be \"memory\" or \"redis\", got %q", c.RateLimit.Type))
	}

	errs = append(errs, c.validateObservability()...)

	return errors.Join(errs...)
}

// ValidateNotify checks the configuration the notify server needs. The key
// pair, storage and limiter are not required: that process never issues or
// verifies tokens.
func (c *Config) ValidateNotify() error {
	var errs []error

	if c.Notify.Port <= 0 || c.Notify.Port > 65535 {
		errs = append(errs, fmt.Errorf("notify.port must be in 1..65535, got %d", c.Notify.Port))
	}
	if c.Notify.KeepAlive <= 0 {
		errs = append(errs, fmt.Errorf("notify.keep_alive must be > 0, got %v", c.Notify.KeepAlive))
	}
	if c.Notify.Interval <= 0 {
		errs = append(errs, fmt.Errorf("notify.interval must be > 0, got %v", c.Notify.Interval))
	}

	errs = append(errs, c.validateObservability()...)

	return errors.Join(errs...)
}

func (c *Config) validateObservability() []error {
	var errs []error

	if !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("observability.metrics.path must start with \"/\", got %q", c.Observability.Metrics.Path))
	}

	tr := c.Observability.Tracing
	if tr.SamplingRate < 0 || tr.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("observability.tracing.sampling_rate must be in [0, 1], got %v", tr.SamplingRate))
	}
	if tr.Enabled && tr.Endpoint == "" {
		errs = append(errs, fmt.Errorf("observability.tracing.endpoint is required when tracing is enabled"))
	}

	switch strings.ToLower(c.Observability.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("observability.logging.level must be debug, info, warn or error, got %q", c.Observability.Logging.Level))
	}
	switch c.Observability.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("observability.logging.format must be \"text\" or \"json\", got %q", c.Observability.Logging.Format))
	}

	return errs
}
