// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration.
type Config struct {
	Port        string   `env:"PORT" envDefault:"8080"`
	FrontendURL string   `env:"FRONTEND_URL"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`
	DBPath      string   `env:"DB_PATH" envDefault:"./data/talent-manual.db"`

	Backend   BackendConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
}

// BackendConfig points at the assessment backend.
type BackendConfig struct {
	URL     string        `env:"BACKEND_URL" envDefault:"http://localhost:8000"`
	Timeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"90s"`
}

// SessionConfig controls controller lifetime and report pacing.
type SessionConfig struct {
	TTL             time.Duration `env:"SESSION_TTL" envDefault:"60m"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
	ReportRetention time.Duration `env:"REPORT_RETENTION" envDefault:"720h"`
	PaceSuccess     time.Duration `env:"PACE_SUCCESS" envDefault:"1s"`
	PaceFailure     time.Duration `env:"PACE_FAILURE" envDefault:"3s"`
}

// RateLimitConfig bounds answer submissions per client.
type RateLimitConfig struct {
	Requests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"30"`
	Window   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return load(env.Options{})
}

// LoadFrom reads configuration from the given variables instead of the
// process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return load(env.Options{Environment: vars})
}

func load(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = cfg.defaultOrigins()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return errors.New("DB_PATH cannot be empty")
	}
	u, err := url.Parse(c.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("BACKEND_URL must be an http(s) URL, got %q", c.Backend.URL)
	}
	if c.Backend.Timeout <= 0 {
		return errors.New("BACKEND_TIMEOUT must be > 0")
	}
	if c.Session.TTL <= 0 {
		return errors.New("SESSION_TTL must be > 0")
	}
	if c.Session.SweepInterval <= 0 {
		return errors.New("SWEEP_INTERVAL must be > 0")
	}
	if c.Session.PaceSuccess < 0 || c.Session.PaceFailure < 0 {
		return errors.New("PACE_SUCCESS and PACE_FAILURE must be >= 0")
	}
	if c.RateLimit.Requests <= 0 {
		return errors.New("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("RATE_LIMIT_WINDOW must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func (c *Config) defaultOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{c.FrontendURL}
}
