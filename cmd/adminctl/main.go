// Command adminctl drives the console session SDK from a terminal. Every
// invocation shares one state file, so several running adminctl processes
// behave like browser tabs of the same console.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aussiebroadwan/consoleauth/internal/console/config"
	"github.com/aussiebroadwan/consoleauth/pkg/authsdk"
	"github.com/aussiebroadwan/consoleauth/pkg/slogx"
	"github.com/aussiebroadwan/consoleauth/pkg/tokenstore"
)

var Version = "dev"

const usage = `usage: adminctl <command> [flags]

commands:
  login    -email E [-password P] [-next PATH]   sign in and open PATH
  logout                                         end the session
  whoami                                         show the signed-in account
  get      PATH                                  authenticated GET, body to stdout
  watch    [PATH]                                guard PATH until interrupted
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "-h", "--help", "help":
		fmt.Fprint(out, usage)
		return nil
	case "version":
		fmt.Fprintln(out, Version)
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slogx.New(slogx.Config{
		Service: "adminctl",
		Version: Version,
		Env:     cfg.Environment,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Output:  os.Stderr,
	})

	sess, err := openSession(cfg, logger)
	if err != nil {
		return err
	}

	switch cmd {
	case "login":
		return cmdLogin(ctx, sess, args, out)
	case "logout":
		return cmdLogout(ctx, sess, out)
	case "whoami":
		return cmdWhoami(ctx, sess, out)
	case "get":
		return cmdGet(ctx, sess, args, out)
	case "watch":
		return cmdWatch(ctx, sess, args, out)
	default:
		return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
	}
}

// session bundles what every command needs.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *tokenstore.BoltStore
	client *authsdk.SDKClient
}

func openSession(cfg *config.Config, logger *slog.Logger) (*session, error) {
	opts := tokenstore.BoltOptions{Logger: logger}

	store, err := tokenstore.OpenBolt(cfg.StatePath, opts)
	if err != nil {
		return nil, fmt.Errorf("opening state: %w", err)
	}

	// The refresh cookie lives in the same file as the credential.
	jar, err := tokenstore.OpenBoltJar(cfg.StatePath, opts)
	if err != nil {
		return nil, fmt.Errorf("opening cookie jar: %w", err)
	}

	client, err := authsdk.NewSDKClient(cfg.APIURL, store,
		authsdk.WithCookieJar(jar),
		authsdk.WithHTTPClientTimeout(cfg.RequestTimeout),
		authsdk.WithRefreshTimeout(cfg.RefreshTimeout),
		authsdk.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	return &session{cfg: cfg, logger: logger, store: store, client: client}, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
