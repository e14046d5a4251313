package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoConfigFile is returned by Load when no config file can be found.
var ErrNoConfigFile = errors.New("no config file found")

// configEnv names the environment variable that points at a config file.
const configEnv = "CHAT_APP_CONFIG"

// Load loads the chat server configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, ./app.yaml, /etc/config/app.yaml, CHAT_APP_CONFIG env)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg, err := loadLayers(configPath)
	if err != nil {
		return nil, err
	}

	// Resolve _file references.
	if err := resolveFileReferences(cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// LoadNotify loads the notify server configuration. It reads the same file
// and environment as Load but never resolves secret files, and it clears
// the key pair and credentials so they do not stay resident in a process
// that has no use for them.
func LoadNotify(configPath string) (*Config, error) {
	cfg, err := loadLayers(configPath)
	if err != nil {
		return nil, err
	}
	cfg.Auth.SigningKey, cfg.Auth.SigningKeyFile = "", ""
	cfg.Auth.VerifyingKey, cfg.Auth.VerifyingKeyFile = "", ""
	cfg.Storage.Postgres.DSN, cfg.Storage.Postgres.DSNFile = "", ""
	cfg.RateLimit.Redis.Password, cfg.RateLimit.Redis.PasswordFile = "", ""

	if err := cfg.ValidateNotify(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// loadLayers applies defaults, the discovered YAML file and environment
// overrides.
func loadLayers(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath == "" {
		return nil, fmt.Errorf("%w (looked in ./app.yaml, /etc/config/app.yaml, $%s)", ErrNoConfigFile, configEnv)
	}
	if err := loadYAMLFile(filePath, &cfg); err != nil {
		return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. ./app.yaml in the current directory
// 3. /etc/config/app.yaml
// 4. CHAT_APP_CONFIG environment variable
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	// Explicit path takes priority, even if it does not exist, so the
	// caller gets a read error instead of a silently different file.
	if configPath != "" {
		return configPath
	}

	candidates := []string{
		"app.yaml",
		"/etc/config/app.yaml",
	}
	if envPath := os.Getenv(configEnv); envPath != "" {
		candidates = append(candidates, envPath)
	}
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps CHAT_* environment variables to config fields.
// Malformed numeric values are ignored and the file value is kept.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CHAT_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("CHAT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CHAT_SIGNING_KEY_FILE"); v != "" {
		cfg.Auth.SigningKeyFile = v
		cfg.Auth.SigningKey = ""
	}
	if v := os.Getenv("CHAT_VERIFYING_KEY_FILE"); v != "" {
		cfg.Auth.VerifyingKeyFile = v
		cfg.Auth.VerifyingKey = ""
	}
	if v := os.Getenv("CHAT_STORAGE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("CHAT_POSTGRES_DSN"); v != "" {
		cfg.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("CHAT_RATELIMIT"); v != "" {
		cfg.RateLimit.Type = v
	}
	if v := os.Getenv("CHAT_REDIS_ADDR"); v != "" {
		cfg.RateLimit.Redis.Addr = v
	}
	if v := os.Getenv("CHAT_LOG_LEVEL"); v != "" {
		cfg.Observability.Logging.Level = v
	}
	if v := os.Getenv("CHAT_LOG_FORMAT"); v != "" {
		cfg.Observability.Logging.Format = v
	}
	if v := os.Getenv("CHAT_TRACING_ENDPOINT"); v != "" {
		cfg.Observability.Tracing.Endpoint = v
		cfg.Observability.Tracing.Enabled = true
	}
	if v := os.Getenv("CHAT_NOTIFY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Notify.Port = port
		}
	}
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// auth.signing_key_file -> auth.signing_key
	if cfg.Auth.SigningKeyFile != "" && cfg.Auth.SigningKey == "" {
		val, err := readSecretFile(cfg.Auth.SigningKeyFile)
		if err != nil {
			return fmt.Errorf("auth.signing_key_file: %w", err)
		}
		cfg.Auth.SigningKey = val
	}

	// auth.verifying_key_file -> auth.verifying_key
	if cfg.Auth.VerifyingKeyFile != "" && cfg.Auth.VerifyingKey == "" {
		val, err := readSecretFile(cfg.Auth.VerifyingKeyFile)
		if err != nil {
			return fmt.Errorf("auth.verifying_key_file: %w", err)
		}
		cfg.Auth.VerifyingKey = val
	}

	// storage.postgres.dsn_file -> storage.postgres.dsn
	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}

	// ratelimit.redis.password_file -> ratelimit.redis.password
	if cfg.RateLimit.Redis.PasswordFile != "" && cfg.RateLimit.Redis.Password == "" {
		val, err := readSecretFile(cfg.RateLimit.Redis.PasswordFile)
		if err != nil {
			return fmt.Errorf("ratelimit.redis.password_file: %w", err)
		}
		cfg.RateLimit.Redis.Password = val
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
