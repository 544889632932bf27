package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the environment-based configuration of the reference backend.
type Config struct {
	Addr   string `env:"DEVAUTH_ADDR" envDefault:":8080"`
	DBPath string `env:"DEVAUTH_DB_PATH" envDefault:"devauth.db"`

	Issuer     string        `env:"DEVAUTH_ISSUER" envDefault:"devauth"`
	AccessTTL  time.Duration `env:"DEVAUTH_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL time.Duration `env:"DEVAUTH_REFRESH_TTL" envDefault:"168h"`
	NumKeys    int           `env:"DEVAUTH_NUM_KEYS" envDefault:"1"`

	// PepperFile is created on first start. Empty means an in-memory pepper,
	// so stored hashes stop verifying after a restart.
	PepperFile string `env:"DEVAUTH_PEPPER_FILE"`

	// Seeded into an empty database when AdminEmail is set. A blank password
	// is generated and logged once.
	AdminEmail    string `env:"DEVAUTH_ADMIN_EMAIL"`
	AdminPassword string `env:"DEVAUTH_ADMIN_PASSWORD"`
	AdminUsername string `env:"DEVAUTH_ADMIN_USERNAME" envDefault:"admin"`

	CookieSecure bool `env:"DEVAUTH_COOKIE_SECURE" envDefault:"false"`

	HousekeepingInterval time.Duration `env:"DEVAUTH_HOUSEKEEPING_INTERVAL" envDefault:"1h"`
	ShutdownGracePeriod  time.Duration `env:"DEVAUTH_SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`

	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`
}

// LoadConfig reads an optional .env file and then the environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	if c.Addr == "" {
		errs = append(errs, errors.New("DEVAUTH_ADDR is required"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("DEVAUTH_DB_PATH is required"))
	}
	if c.Issuer == "" {
		errs = append(errs, errors.New("DEVAUTH_ISSUER is required"))
	}
	if c.AccessTTL <= 0 {
		errs = append(errs, errors.New("DEVAUTH_ACCESS_TTL must be positive"))
	}
	if c.RefreshTTL <= c.AccessTTL {
		errs = append(errs, errors.New("DEVAUTH_REFRESH_TTL must exceed DEVAUTH_ACCESS_TTL"))
	}
	if c.AdminPassword != "" && c.AdminEmail == "" {
		errs = append(errs, errors.New("DEVAUTH_ADMIN_PASSWORD is set without DEVAUTH_ADMIN_EMAIL"))
	}
	if c.IsProduction() && !c.CookieSecure {
		errs = append(errs, errors.New("DEVAUTH_COOKIE_SECURE must be true when ENVIRONMENT=production"))
	}

	return errors.Join(errs...)
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
