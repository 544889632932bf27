package authsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/consoleauth/pkg/tokenstore"
	"golang.org/x/sync/singleflight"
)

const (
	refreshKey = "refresh"

	// maxBodyBytes caps how much of any response the SDK buffers.
	maxBodyBytes = 1 << 20
)

// TokenRefresher renews the access token. *Refresher is the production
// implementation.
type TokenRefresher interface {
	Refresh(ctx context.Context) (string, error)
}

// RefresherOptions configures NewRefresher.
type RefresherOptions struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// Refresher collapses concurrent refresh demands into a single call to the
// backend. Everyone waiting on a flight receives that flight's token or
// error; a call made after the flight settles starts a new one.
type Refresher struct {
	client  *http.Client
	url     string
	store   tokenstore.Store
	timeout time.Duration
	logger  *slog.Logger

	group   singleflight.Group
	flights atomic.Int64
}

// NewRefresher returns a coordinator that POSTs to refreshURL with client.
// client must carry the cookie jar holding the refresh cookie and must not
// itself be intercepted.
func NewRefresher(client *http.Client, refreshURL string, store tokenstore.Store, opts RefresherOptions) *Refresher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRefreshTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Refresher{
		client:  client,
		url:     refreshURL,
		store:   store,
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}
}

// Refresh returns a fresh access token, joining the flight in progress if
// there is one. ctx only bounds this caller's wait; the flight itself keeps
// going for the others.
//
// On failure the store has already been cleared and the error wraps
// ErrRefreshFailed. It is never retried.
func (r *Refresher) Refresh(ctx context.Context) (string, error) {
	flight := context.WithoutCancel(ctx)
	ch := r.group.DoChan(refreshKey, func() (any, error) {
		return r.renew(flight)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Flights reports how many refresh calls have reached the network.
func (r *Refresher) Flights() int64 {
	return r.flights.Load()
}

// renew performs one refresh call and settles the store before returning,
// so waiters only ever see the post-refresh state.
func (r *Refresher) renew(ctx context.Context) (string, error) {
	r.flights.Add(1)
	log := r.logger.With("url", r.url)
	log.Debug("refreshing access token")

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, nil)
	if err != nil {
		return "", r.fail(log, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", r.fail(log, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", r.fail(log, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", r.fail(log, parseErrorResponse(resp, body, defaultMessage))
	}

	var out RefreshResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", r.fail(log, fmt.Errorf("failed to decode response: %w", err))
	}
	if out.AccessToken == "" {
		return "", r.fail(log, errors.New("refresh response carried no access token"))
	}

	cur, ok := r.store.Read()
	if !ok {
		// Logged out elsewhere mid-flight: hand the token to the waiters
		// for their replay but do not resurrect the session.
		log.Warn("session cleared during refresh, not storing new token")
		return out.AccessToken, nil
	}

	cur.AccessToken = out.AccessToken
	cur.ExpiresAt = expiresAt(time.Now(), out.ExpiresIn)
	if err := r.store.Write(cur); err != nil {
		log.Warn("storing refreshed token failed", "err", err)
	}

	log.Debug("access token refreshed", "expires_in", out.ExpiresIn)
	return out.AccessToken, nil
}

// fail clears the session and wraps cause for every waiter.
func (r *Refresher) fail(log *slog.Logger, cause error) error {
	log.Warn("refresh failed, clearing session", "err", cause)
	if err := r.store.Clear(); err != nil {
		log.Warn("clearing session failed", "err", err)
	}
	return &RefreshError{Err: cause}
}
