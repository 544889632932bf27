package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/consoleauth/internal/devauth/http"
	"github.com/aussiebroadwan/consoleauth/internal/devauth/service"
	"github.com/aussiebroadwan/consoleauth/internal/devauth/store"
	"github.com/aussiebroadwan/consoleauth/internal/devauth/store/drivers/sqlite"
	"github.com/aussiebroadwan/consoleauth/pkg/cryptox"
	"github.com/aussiebroadwan/consoleauth/pkg/jwtx"
	"github.com/aussiebroadwan/consoleauth/pkg/slogx"
)

// BuildVersion is overridden at build time via -ldflags.
var BuildVersion = "v0.1.0"

// Application wires the reference backend together.
type Application struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
	hasher *cryptox.Hasher

	db         store.Store
	keyManager *jwtx.KeyManager

	authService         *service.AuthService
	userService         *service.UserService
	challengeService    *service.ChallengeService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

type Option func(*Application)

// WithClock replaces time.Now for token issue, verification and session
// expiry. Tests use it to expire tokens without sleeping.
func WithClock(now func() time.Time) Option {
	return func(a *Application) { a.now = now }
}

// WithLogger replaces the logger built from the config.
func WithLogger(l *slog.Logger) Option {
	return func(a *Application) { a.logger = l }
}

// WithHasher replaces the password hasher. Tests pass cheap parameters.
func WithHasher(h *cryptox.Hasher) Option {
	return func(a *Application) { a.hasher = h }
}

// New creates an Application with its database migrated and admin seeded.
func New(cfg Config, opts ...Option) (*Application, error) {
	app := &Application{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(app)
	}

	if app.logger == nil {
		app.logger = slogx.New(slogx.Config{
			Service: "devauth",
			Version: BuildVersion,
			Env:     cfg.Environment,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		})
	}

	if app.hasher == nil {
		pepper, err := cryptox.LoadOrCreatePepper(cfg.PepperFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load pepper: %w", err)
		}
		if cfg.PepperFile == "" {
			app.logger.Warn("no DEVAUTH_PEPPER_FILE configured, password hashes will not survive a restart")
		}
		app.hasher = cryptox.NewHasher(pepper)
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Issuer:  cfg.Issuer,
		NumKeys: cfg.NumKeys,
		Now:     app.now,
	})
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize JWT keys: %w", err)
	}
	app.keyManager = km
	app.logger.Info("signing keys generated", "count", km.NumSigners())

	app.initServices()

	ctx := slogx.WithContext(context.Background(), app.logger)
	if err := app.userService.EnsureAdmin(ctx, service.AdminSeed{
		Username: cfg.AdminUsername,
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
	}); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initHTTP()

	return app, nil
}

// Handler exposes the routed handler without starting a listener.
func (app *Application) Handler() http.Handler {
	return app.router
}

// Run serves until SIGINT or SIGTERM, then shuts down gracefully.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("devauth starting", "addr", app.cfg.Addr, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		app.housekeepingService.Stop()
		_ = app.db.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains the HTTP server, stops housekeeping and closes the store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down devauth...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	return app.Close()
}

// Close releases the database. Use it instead of Shutdown when Run was never
// called.
func (app *Application) Close() error {
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}
	app.logger.Info("devauth stopped")
	return nil
}

func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore(app.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "path", app.cfg.DBPath)
	return nil
}

func (app *Application) initServices() {
	app.authService = &service.AuthService{
		Store:      app.db,
		Keys:       app.keyManager,
		Hasher:     app.hasher,
		Issuer:     app.cfg.Issuer,
		AccessTTL:  app.cfg.AccessTTL,
		RefreshTTL: app.cfg.RefreshTTL,
		Now:        app.now,
	}
	app.userService = &service.UserService{Store: app.db, Hasher: app.hasher, Now: app.now}
	app.challengeService = &service.ChallengeService{Store: app.db}

	app.housekeepingService = service.NewHousekeepingService(app.db, app.logger, app.cfg.HousekeepingInterval)
	app.housekeepingService.Now = app.now
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager.KeySet,
		app.keyManager.Verifier,
		BuildVersion,
		app.logger,
	)

	router.AuthService = app.authService
	router.UserService = app.userService
	router.ChallengeService = app.challengeService
	router.CookieSecure = app.cfg.CookieSecure
	router.Limits = httpapi.LimitsFromEnv()
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              app.cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
