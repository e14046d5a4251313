// Package config provides unified configuration for the chat servers.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (explicit path, ./app.yaml, /etc/config/app.yaml, $CHAT_APP_CONFIG)
//  3. Environment variable overrides (CHAT_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
//
// Unlike most settings, the key pair has no default: a missing config file
// is a startup error.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all configuration for the chat and notify servers.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Storage       StorageConfig       `yaml:"storage"`
	RateLimit     RateLimitConfig     `yaml:"ratelimit"`
	Observability ObservabilityConfig `yaml:"observability"`
	Notify        NotifyConfig        `yaml:"notify"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`             // default: "0.0.0.0"
	Port            int           `yaml:"port"`             // default: 6688
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 15s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 10s
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`   // default: 1 MiB
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// AuthConfig holds the token key pair and credential settings.
type AuthConfig struct {
	SigningKey       string     `yaml:"signing_key"`        // PEM, PKCS#8 Ed25519
	SigningKeyFile   string     `yaml:"signing_key_file"`   // _file variant for signing_key
	VerifyingKey     string     `yaml:"verifying_key"`      // PEM, PKIX Ed25519
	VerifyingKeyFile string     `yaml:"verifying_key_file"` // _file variant for verifying_key
	Hash             HashConfig `yaml:"hash"`

	// LoginAttemptsPerMinute limits login attempts per email. 0 disables the limiter.
	LoginAttemptsPerMinute int `yaml:"login_attempts_per_minute"` // default: 10
}

// HashConfig holds Argon2id cost parameters.
type HashConfig struct {
	Memory      uint32 `yaml:"memory"`      // KiB, default: 19456
	Iterations  uint32 `yaml:"iterations"`  // default: 2
	Parallelism uint8  `yaml:"parallelism"` // default: 1
}

// StorageConfig holds credential store settings.
type StorageConfig struct {
	Type     string         `yaml:"type"` // "memory" or "postgres", default: "memory"
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string        `yaml:"dsn"`
	DSNFile        string        `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32         `yaml:"max_conns"`        // default: 10
	MinConns       int32         `yaml:"min_conns"`        // default: 1
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`  // default: 3s
	MigrateOnStart bool          `yaml:"migrate_on_start"` // default: true
}

// RateLimitConfig selects the login limiter backend.
type RateLimitConfig struct {
	Type  string      `yaml:"type"` // "memory" or "redis", default: "memory"
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings for the shared limiter.
type RedisConfig struct {
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password"`
	PasswordFile string `yaml:"password_file"` // _file variant for password
	DB           int    `yaml:"db"`
	Prefix       string `yaml:"prefix"` // default: "chat:login:"
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
	Logging LoggingConfig `yaml:"logging"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// TracingConfig holds OpenTelemetry exporter settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`       // default: false
	Endpoint     string  `yaml:"endpoint"`      // OTLP gRPC endpoint, default: "localhost:4317"
	Insecure     bool    `yaml:"insecure"`      // default: true
	SamplingRate float64 `yaml:"sampling_rate"` // default: 1.0
	ServiceName  string  `yaml:"service_name"`  // default: "chat-server"
}

// LoggingConfig holds slog handler settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error; default: "info"
	Format string `yaml:"format"` // "text" or "json", default: "text"
}

// NotifyConfig holds notification stream settings.
type NotifyConfig struct {
	Host          string        `yaml:"host"`            // default: "0.0.0.0"
	Port          int           `yaml:"port"`            // default: 6687
	KeepAlive     time.Duration `yaml:"keep_alive"`      // default: 1s
	KeepAliveText string        `yaml:"keep_alive_text"` // default: "keep-alive_text"
	Interval      time.Duration `yaml:"interval"`        // heartbeat event period, default: 1s
	Message       string        `yaml:"message"`         // heartbeat event data, default: "hi"
}

// Addr returns the host:port listen address of the notify server.
func (n NotifyConfig) Addr() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            6688,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Auth: AuthConfig{
			Hash: HashConfig{
				Memory:      19456,
				Iterations:  2,
				Parallelism: 1,
			},
			LoginAttemptsPerMinute: 10,
		},
		Storage: StorageConfig{
			Type: "memory",
			Postgres: PostgresConfig{
				MaxConns:       10,
				MinConns:       1,
				AcquireTimeout: 3 * time.Second,
				MigrateOnStart: true,
			},
		},
		RateLimit: RateLimitConfig{
			Type: "memory",
			Redis: RedisConfig{
				Prefix: "chat:login:",
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
			Tracing: TracingConfig{
				Endpoint:     "localhost:4317",
				Insecure:     true,
				SamplingRate: 1.0,
				ServiceName:  "chat-server",
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
		},
		Notify: NotifyConfig{
			Host:          "0.0.0.0",
			Port:          6687,
			KeepAlive:     time.Second,
			KeepAliveText: "keep-alive_text",
			Interval:      time.Second,
			Message:       "hi",
		},
	}
}
