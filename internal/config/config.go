// Package config loads gateway configuration from the environment.
//
// The two secret inputs (vault master key, session signing secret) arrive as
// opaque base64 buffers; where they are stored is the launcher's problem,
// never this process's. Validation failures here are fatal at startup.
package config

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/fitgate/fitgate/internal/auth"
	"github.com/fitgate/fitgate/internal/vault"
)

// Config is the full gateway configuration.
type Config struct {
	ListenAddr     string        `env:"FITGATE_LISTEN_ADDR" envDefault:":8765"`
	MetricsAddr    string        `env:"FITGATE_METRICS_ADDR" envDefault:":9090"`
	MetricsEnabled bool          `env:"FITGATE_METRICS_ENABLED" envDefault:"true"`
	LogLevel       string        `env:"FITGATE_LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"FITGATE_LOG_FORMAT" envDefault:"text"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	MasterKey      string        `env:"FITGATE_MASTER_KEY"`
	SigningSecret  string        `env:"FITGATE_SIGNING_SECRET"`
	TokenExpiry    time.Duration `env:"FITGATE_TOKEN_EXPIRY" envDefault:"24h"`
	IdleTimeout    time.Duration `env:"FITGATE_IDLE_TIMEOUT" envDefault:"60s"`
	MaxSessions    int           `env:"FITGATE_MAX_SESSIONS" envDefault:"1024"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the parts that would otherwise only fail at first use.
func (c *Config) Validate() error {
	if c.MasterKey == "" {
		return fmt.Errorf("FITGATE_MASTER_KEY is required")
	}
	if _, err := c.MasterKeyBytes(); err != nil {
		return fmt.Errorf("FITGATE_MASTER_KEY: %w", err)
	}

	if c.SigningSecret == "" {
		return fmt.Errorf("FITGATE_SIGNING_SECRET is required")
	}
	secret, err := c.SigningSecretBytes()
	if err != nil {
		return fmt.Errorf("FITGATE_SIGNING_SECRET: %w", err)
	}
	if len(secret) < auth.MinSecretSize {
		return fmt.Errorf("FITGATE_SIGNING_SECRET must decode to at least %d bytes, got %d", auth.MinSecretSize, len(secret))
	}

	if c.TokenExpiry <= 0 {
		return fmt.Errorf("FITGATE_TOKEN_EXPIRY must be positive")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("FITGATE_IDLE_TIMEOUT must be positive")
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("FITGATE_MAX_SESSIONS must be positive")
	}
	return nil
}

// MasterKeyBytes decodes the vault master key.
func (c *Config) MasterKeyBytes() ([]byte, error) {
	return vault.MasterKeyFromBase64(c.MasterKey)
}

// SigningSecretBytes decodes the session signing secret.
func (c *Config) SigningSecretBytes() ([]byte, error) {
	secret, err := base64.StdEncoding.DecodeString(c.SigningSecret)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	return secret, nil
}
