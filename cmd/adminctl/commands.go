package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aussiebroadwan/consoleauth/pkg/authsdk"
	"github.com/aussiebroadwan/consoleauth/pkg/authz"
	"github.com/aussiebroadwan/consoleauth/pkg/guard"
	"golang.org/x/sync/errgroup"
)

func cmdLogin(ctx context.Context, s *session, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", os.Getenv("ADMINCTL_EMAIL"), "account email")
	password := fs.String("password", "", "account password (read from stdin when empty)")
	next := fs.String("next", "/dashboard", "route to open after signing in")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			return errors.New("no password given")
		}
		*password = scanner.Text()
	}

	resp, err := s.client.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "signed in as %s <%s> (%s)\n", resp.Username, resp.Email, resp.Role)

	// Login has already written the credential and signalled, so the guard
	// settles on the stored session without any delay.
	g := guard.New(s.store, printNavigator(out), s.cfg.GuardOptions(s.logger))
	st := g.Navigate(*next)
	fmt.Fprintf(out, "%s: %s\n", *next, st)
	return nil
}

func cmdLogout(ctx context.Context, s *session, out io.Writer) error {
	if err := s.client.Logout(ctx); err != nil {
		fmt.Fprintln(out, "signed out locally")
		return fmt.Errorf("backend logout failed: %w", err)
	}
	fmt.Fprintln(out, "signed out")
	return nil
}

func cmdWhoami(ctx context.Context, s *session, out io.Writer) error {
	sess, err := s.client.Session()
	if errors.Is(err, authsdk.ErrNoCredential) {
		return errors.New("not signed in")
	}
	if err != nil {
		return err
	}

	me, err := s.client.Me(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "id:          %d\n", me.ID)
	fmt.Fprintf(out, "username:    %s\n", me.Username)
	fmt.Fprintf(out, "email:       %s\n", me.Email)
	fmt.Fprintf(out, "role:        %s\n", me.Role)
	fmt.Fprintf(out, "authorities: %s\n", strings.Join(me.Authorities, " "))
	fmt.Fprintf(out, "admin:       %t\n", sess.Allows(s.cfg.Evaluator(), authz.Admin))
	return nil
}

func cmdGet(ctx context.Context, s *session, args []string, out io.Writer) error {
	if len(args) != 1 || !strings.HasPrefix(args[0], "/") {
		return errors.New("usage: adminctl get /path")
	}

	body, err := s.client.GetRaw(ctx, args[0])
	if err != nil {
		return err
	}
	_, err = out.Write(body)
	return err
}

// cmdWatch guards one route and reports every change, including ones
// caused by other adminctl processes signing in or out.
func cmdWatch(ctx context.Context, s *session, args []string, out io.Writer) error {
	path := "/dashboard"
	if len(args) > 0 {
		path = args[0]
	}

	g := guard.New(s.store, printNavigator(out), s.cfg.GuardOptions(s.logger))
	g.OnTransition(func(t guard.Transition) {
		fmt.Fprintf(out, "%s: %s -> %s (%s)\n", t.Path, t.From, t.To, t.Reason)
	})

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return ignoreCanceled(s.store.Watch(ctx)) })
	eg.Go(func() error { return ignoreCanceled(g.Run(ctx)) })

	g.Navigate(path)
	fmt.Fprintf(out, "watching %s, press Ctrl-C to stop\n", path)

	return eg.Wait()
}

func printNavigator(out io.Writer) guard.Navigator {
	return guard.NavigatorFunc(func(path string) {
		fmt.Fprintf(out, "redirect -> %s\n", path)
	})
}
