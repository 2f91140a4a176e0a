// Package config loads the service configuration from YAML with
// environment overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Trust     TrustConfig     `yaml:"trust"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// PostgresConfig configures the durable store. An empty DSN selects the
// in-memory store.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig configures the optional latest-round read cache. An empty
// address disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TrustConfig holds the deployment's trust anchors and operator key.
type TrustConfig struct {
	// TrustedTransport is the only transport identity updates are
	// accepted from. Fixed for the lifetime of the process.
	TrustedTransport string `yaml:"trusted_transport"`

	// AuthorizedOrigin is the initial origin identity; changeable at
	// runtime through the admin surface.
	AuthorizedOrigin string `yaml:"authorized_origin"`

	// ExpectedOriginFeed constrains single-feed deployments to one feed
	// identifier. Empty for multi-feed deployments.
	ExpectedOriginFeed string `yaml:"expected_origin_feed"`

	// OperatorKey authenticates the administrative surface.
	OperatorKey string `yaml:"operator_key"`
}

// RateLimitConfig bounds per-identity request rates on the HTTP surface.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server:    ServerConfig{Addr: ":8080"},
		RateLimit: RateLimitConfig{RequestsPerSecond: 50, Burst: 100},
	}
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path when it exists, otherwise the defaults with
// environment overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		cfg := Default()
		cfg.applyEnv()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return Load(path)
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		c.Postgres.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		c.Redis.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("TRUSTED_TRANSPORT")); v != "" {
		c.Trust.TrustedTransport = v
	}
	if v := strings.TrimSpace(os.Getenv("AUTHORIZED_ORIGIN")); v != "" {
		c.Trust.AuthorizedOrigin = v
	}
	if v := strings.TrimSpace(os.Getenv("OPERATOR_KEY")); v != "" {
		c.Trust.OperatorKey = v
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("server.addr is required")
	}
	if strings.TrimSpace(c.Trust.TrustedTransport) == "" {
		return fmt.Errorf("trust.trusted_transport is required")
	}
	if strings.TrimSpace(c.Trust.AuthorizedOrigin) == "" {
		return fmt.Errorf("trust.authorized_origin is required")
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit values must be positive")
	}
	return nil
}
