package authsdk

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/aussiebroadwan/consoleauth/pkg/tokenstore"
	"golang.org/x/net/publicsuffix"
)

// Backend endpoints the SDK talks to.
const (
	LoginPath      = "/api/auth/login"
	RefreshPath    = "/api/auth/refresh"
	LogoutPath     = "/api/auth/logout"
	RegisterPath   = "/api/auth/register"
	MePath         = "/api/auth/me"
	ChallengesPath = "/api/challenges"
)

const (
	DefaultTimeout        = 10 * time.Second
	DefaultRefreshTimeout = 15 * time.Second
)

// SDKClient talks to the admin backend. Every request made through
// HTTPClient carries the stored access token and transparently survives
// one access token expiry.
type SDKClient struct {
	BaseURL string

	// HTTPClient runs requests through the interceptor Transport. Use it
	// directly for endpoints the SDK does not wrap.
	HTTPClient *http.Client

	// Store is the single credential store shared with the guard and any
	// other consumer in this process.
	Store tokenstore.Store

	refresher *Refresher
	logger    *slog.Logger
}

type options struct {
	timeout        time.Duration
	refreshTimeout time.Duration
	jar            http.CookieJar
	base           http.RoundTripper
	logger         *slog.Logger
}

// Option customises NewSDKClient.
type Option func(*options)

// WithHTTPClientTimeout bounds each call, including any refresh and replay.
func WithHTTPClientTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRefreshTimeout bounds a single refresh flight.
func WithRefreshTimeout(d time.Duration) Option {
	return func(o *options) { o.refreshTimeout = d }
}

// WithCookieJar replaces the in-memory jar, e.g. with a tokenstore.BoltJar
// so the refresh cookie survives restarts.
func WithCookieJar(j http.CookieJar) Option {
	return func(o *options) { o.jar = j }
}

// WithBaseTransport sets the transport underneath the interceptor.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.base = rt }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewSDKClient wires the cookie jar, the refresh coordinator and the
// interceptor around store.
func NewSDKClient(baseURL string, store tokenstore.Store, opts ...Option) (*SDKClient, error) {
	if store == nil {
		return nil, fmt.Errorf("authsdk: token store is required")
	}

	o := options{
		timeout:        DefaultTimeout,
		refreshTimeout: DefaultRefreshTimeout,
		base:           http.DefaultTransport,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("authsdk: creating cookie jar: %w", err)
		}
		o.jar = jar
	}

	baseURL = strings.TrimSuffix(baseURL, "/")

	// The refresh call shares the jar (that is where the refresh cookie
	// lives) but not the interceptor. The flight is bounded by the refresh
	// timeout alone.
	raw := &http.Client{Transport: o.base, Jar: o.jar}
	refresher := NewRefresher(raw, baseURL+RefreshPath, store, RefresherOptions{
		Timeout: o.refreshTimeout,
		Logger:  o.logger,
	})

	return &SDKClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Transport: &Transport{
				Base:        o.base,
				Store:       store,
				Refresher:   refresher,
				RefreshPath: RefreshPath,
				Logger:      o.logger,
			},
			Jar:     o.jar,
			Timeout: o.timeout,
		},
		Store:     store,
		refresher: refresher,
		logger:    o.logger,
	}, nil
}

// Refresher exposes the client's refresh coordinator.
func (c *SDKClient) Refresher() *Refresher {
	return c.refresher
}
