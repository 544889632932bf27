// Package config loads the admin console CLI settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aussiebroadwan/consoleauth/pkg/authz"
	"github.com/aussiebroadwan/consoleauth/pkg/guard"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for adminctl.
type Config struct {
	// APIURL is the backend origin. The refresh cookie is scoped to it.
	APIURL string `env:"ADMINCTL_API_URL" envDefault:"http://localhost:8080"`

	// StatePath is the bolt file holding the credential and the cookie jar.
	// Defaults to ~/.adminctl/session.db.
	StatePath string `env:"ADMINCTL_STATE_PATH"`

	RequestTimeout time.Duration `env:"ADMINCTL_REQUEST_TIMEOUT" envDefault:"10s"`
	RefreshTimeout time.Duration `env:"ADMINCTL_REFRESH_TIMEOUT" envDefault:"15s"`

	// Guard settings. An empty PublicRoutes keeps guard.DefaultPublicRoutes.
	PublicRoutes   []string      `env:"ADMINCTL_PUBLIC_ROUTES" envSeparator:","`
	LoginRoute     string        `env:"ADMINCTL_LOGIN_ROUTE" envDefault:"/login"`
	ForbiddenRoute string        `env:"ADMINCTL_FORBIDDEN_ROUTE" envDefault:"/403"`
	DevBypass      bool          `env:"ADMINCTL_DEV_BYPASS" envDefault:"false"`
	PollInterval   time.Duration `env:"ADMINCTL_POLL_INTERVAL" envDefault:"0s"`

	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"warn"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.StatePath == "" {
		p, err := DefaultStatePath()
		if err != nil {
			return nil, err
		}
		cfg.StatePath = p
	}
	cfg.APIURL = strings.TrimSuffix(cfg.APIURL, "/")
	cfg.PublicRoutes = trimAll(cfg.PublicRoutes)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// DefaultStatePath returns ~/.adminctl/session.db.
func DefaultStatePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}
	return filepath.Join(home, ".adminctl", "session.db"), nil
}

func (c *Config) validate() error {
	var errs []error

	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("ADMINCTL_API_URL must be an http(s) URL, got %q", c.APIURL))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("ADMINCTL_REQUEST_TIMEOUT must be positive"))
	}
	if c.RefreshTimeout <= 0 {
		errs = append(errs, errors.New("ADMINCTL_REFRESH_TIMEOUT must be positive"))
	}
	if c.PollInterval < 0 {
		errs = append(errs, errors.New("ADMINCTL_POLL_INTERVAL must not be negative"))
	}
	if !strings.HasPrefix(c.LoginRoute, "/") {
		errs = append(errs, errors.New("ADMINCTL_LOGIN_ROUTE must start with /"))
	}
	if c.DevBypass && c.IsProduction() {
		errs = append(errs, errors.New("ADMINCTL_DEV_BYPASS cannot be enabled when ENVIRONMENT=production"))
	}

	return errors.Join(errs...)
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Evaluator is the policy evaluator for this environment.
func (c *Config) Evaluator() authz.Evaluator {
	return authz.Evaluator{DevelopmentBypass: c.DevBypass}
}

// ProtectedRoutes are the console surfaces that need more than a session.
var ProtectedRoutes = []guard.Rule{
	{Pattern: "/admin/*", Policy: authz.Admin},
	{Pattern: "/challenges/*", Policy: authz.Policy{
		RequireRole:         authz.RoleAdmin,
		RequireAnyAuthority: []string{authz.ChallengeViewAll},
	}},
}

// GuardOptions builds the page guard settings.
func (c *Config) GuardOptions(logger *slog.Logger) guard.Options {
	return guard.Options{
		PublicRoutes:   c.PublicRoutes,
		LoginRoute:     c.LoginRoute,
		ForbiddenRoute: c.ForbiddenRoute,
		Protected:      ProtectedRoutes,
		Evaluator:      c.Evaluator(),
		PollInterval:   c.PollInterval,
		Logger:         logger,
	}
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
