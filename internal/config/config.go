// Package config loads server settings from the environment.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	PublicURL string `env:"CONNECTKIDS_PUBLIC_URL" envDefault:"http://localhost:8080"`
	LogLevel  string `env:"CONNECTKIDS_LOG_LEVEL" envDefault:"info"`
	StaticDir string `env:"CONNECTKIDS_STATIC_DIR" envDefault:"./static"`

	// BackendURL selects the hosted data service. When empty the site runs
	// against the local SQLite backend.
	BackendURL     string        `env:"CONNECTKIDS_BACKEND_URL"`
	LoginURL       string        `env:"CONNECTKIDS_LOGIN_URL"`
	BackendTimeout time.Duration `env:"CONNECTKIDS_BACKEND_TIMEOUT" envDefault:"10s"`

	DatabasePath  string `env:"CONNECTKIDS_DB_PATH" envDefault:"./connectkids.db"`
	SessionSecret string `env:"CONNECTKIDS_SESSION_SECRET"`
	SeedPassword  string `env:"CONNECTKIDS_SEED_PASSWORD" envDefault:"connectkids"`

	CSRFKey       string `env:"CONNECTKIDS_CSRF_KEY"`
	SecureCookies bool   `env:"CONNECTKIDS_SECURE_COOKIES" envDefault:"false"`

	SessionTTL time.Duration `env:"CONNECTKIDS_SESSION_TTL" envDefault:"30s"`
	ListingTTL time.Duration `env:"CONNECTKIDS_LISTING_TTL" envDefault:"1m"`

	SubmitRate  float64 `env:"CONNECTKIDS_SUBMIT_RATE" envDefault:"1"`
	SubmitBurst int     `env:"CONNECTKIDS_SUBMIT_BURST" envDefault:"5"`
}

// Load parses the environment and fills in development secrets.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the settings that must agree with each other.
func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.PublicURL); err != nil {
		return fmt.Errorf("CONNECTKIDS_PUBLIC_URL: %w", err)
	}
	if c.Remote() && c.LoginURL == "" {
		return errors.New("CONNECTKIDS_LOGIN_URL is required with CONNECTKIDS_BACKEND_URL")
	}
	if c.CSRFKey != "" {
		key, err := hex.DecodeString(c.CSRFKey)
		if err != nil || len(key) != 32 {
			return errors.New("CONNECTKIDS_CSRF_KEY must be 64 hex characters")
		}
	}
	if c.SubmitRate <= 0 || c.SubmitBurst <= 0 {
		return errors.New("submit rate and burst must be positive")
	}
	return nil
}

// Remote reports whether the hosted data service is configured.
func (c *Config) Remote() bool {
	return strings.TrimSpace(c.BackendURL) != ""
}

// CSRFSecret returns the configured key, or a random one that lasts until
// restart.
func (c *Config) CSRFSecret() ([]byte, error) {
	if c.CSRFKey != "" {
		return hex.DecodeString(c.CSRFKey)
	}
	return randomKey()
}

// SessionKey returns the local backend's signing key, or a random one that
// lasts until restart.
func (c *Config) SessionKey() ([]byte, error) {
	if c.SessionSecret != "" {
		return []byte(c.SessionSecret), nil
	}
	return randomKey()
}

// Level maps LogLevel to a slog level, defaulting to info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func randomKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}
