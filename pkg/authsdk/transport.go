package authsdk

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/consoleauth/pkg/idx"
	"github.com/aussiebroadwan/consoleauth/pkg/slogx"
	"github.com/aussiebroadwan/consoleauth/pkg/tokenstore"
	"github.com/tidwall/gjson"
)

// maxErrorPeek is how much of a 401 body is inspected for the discriminator.
const maxErrorPeek = 64 << 10

type retriedKey struct{}

// WithRetried marks ctx so requests made with it are never refreshed and
// replayed. The interceptor sets it on its own replays.
func WithRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

func isRetried(ctx context.Context) bool {
	v, _ := ctx.Value(retriedKey{}).(bool)
	return v
}

// Transport attaches the stored access token to outgoing requests. When the
// backend answers 401 with errorCode TOKEN_EXPIRED it waits for a refresh and
// replays the request once with the new token. Every other response, and
// every transport error, is returned untouched.
type Transport struct {
	// Base performs the actual round trips. Defaults to http.DefaultTransport.
	Base http.RoundTripper

	Store     tokenstore.Store
	Refresher TokenRefresher

	// RefreshPath is never intercepted.
	RefreshPath string

	Logger *slog.Logger
}

var _ http.RoundTripper = (*Transport)(nil)

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	getBody, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	out := req.Clone(req.Context())
	if getBody != nil {
		if out.Body, err = getBody(); err != nil {
			return nil, err
		}
		out.GetBody = getBody
	}
	if cred, ok := t.Store.Read(); ok {
		out.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	}
	if out.Header.Get(slogx.RequestIDHeader) == "" {
		out.Header.Set(slogx.RequestIDHeader, idx.New().String())
	}

	resp, err := t.base().RoundTrip(out)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized || isRetried(req.Context()) || t.isRefreshCall(req) {
		return resp, nil
	}

	if !peekTokenExpired(resp) {
		return resp, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	log := t.logger().With("method", req.Method, "path", req.URL.Path,
		"req_id", out.Header.Get(slogx.RequestIDHeader))
	log.Debug("access token expired, waiting for refresh")

	token, err := t.Refresher.Refresh(req.Context())
	if err != nil {
		return nil, err
	}

	// Replay with the token this refresh produced, not whatever the store
	// holds by now.
	replay := out.Clone(WithRetried(req.Context()))
	if getBody != nil {
		if replay.Body, err = getBody(); err != nil {
			return nil, err
		}
	}
	replay.Header.Set("Authorization", "Bearer "+token)

	log.Debug("replaying request with refreshed token")
	return t.base().RoundTrip(replay)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

func (t *Transport) isRefreshCall(req *http.Request) bool {
	if t.RefreshPath == "" {
		return false
	}
	return strings.HasSuffix(strings.TrimSuffix(req.URL.Path, "/"), t.RefreshPath)
}

// replayableBody returns a way to reproduce req's body, buffering it when
// the caller did not provide GetBody. It returns nil for bodiless requests.
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		return req.GetBody, nil
	}

	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, errors.Join(errors.New("authsdk: buffering request body"), err)
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}

// peekTokenExpired reports whether resp carries the TOKEN_EXPIRED
// discriminator. The body stays readable for the caller either way.
func peekTokenExpired(resp *http.Response) bool {
	if resp.Body == nil {
		return false
	}

	head, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorPeek))
	resp.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), resp.Body), resp.Body}
	if err != nil {
		return false
	}

	return gjson.GetBytes(head, "errorCode").String() == ErrorCodeTokenExpired
}
