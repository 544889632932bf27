package authsdk

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/aussiebroadwan/consoleauth/pkg/slogx"
	"github.com/aussiebroadwan/consoleauth/pkg/tokenstore"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type stubRefresher struct {
	mu    sync.Mutex
	calls int
	fn    func() (string, error)
}

func (s *stubRefresher) Refresh(context.Context) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.fn()
}

func TestTransportAttachesBearer(t *testing.T) {
	t.Parallel()

	fb := newFakeBackend(t)
	c, _ := newTestClient(t, fb, "fresh")

	var out map[string]string
	require.NoError(t, c.Do(context.Background(), http.MethodGet, "/api/protected", nil, &out))
	require.Equal(t, []string{bearer("fresh")}, fb.auths())
}

func TestTransportSendsAnonymousWithoutCredential(t *testing.T) {
	t.Parallel()

	fb := newFakeBackend(t)
	c, _ := newTestClient(t, fb, "")

	err := c.Do(context.Background(), http.MethodGet, "/api/protected", nil, nil)
	require.ErrorIs(t, err, ErrMissingToken)
	require.Equal(t, []string{""}, fb.auths())
	require.Zero(t, fb.refreshCalls.Load())
}

func TestTransportConcurrentExpiryConvergesOnOneRefresh(t *testing.T) {
	t.Parallel()

	fb := newFakeBackend(t)
	fb.waitForExpired = 3
	c, store := newTestClient(t, fb, "stale")

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = c.Do(context.Background(), http.MethodGet, "/api/protected", nil, nil)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, fb.refreshCalls.Load())
	require.EqualValues(t, 6, fb.protectedHits.Load())

	var stale, fresh int
	for _, a := range fb.auths() {
		switch a {
		case bearer("stale"):
			stale++
		case bearer("fresh"):
			fresh++
		}
	}
	require.Equal(t, 3, stale)
	require.Equal(t, 3, fresh)

	cred, ok := store.Read()
	require.True(t, ok)
	require.Equal(t, "fresh", cred.AccessToken)
}

func TestTransportReplaysAtMostOnce(t *testing.T) {
	t.Parallel()

	fb := newFakeBackend(t)
	fb.alwaysExpired = true
	c, _ := newTestClient(t, fb, "stale")

	err := c.Do(context.Background(), http.MethodGet, "/api/protected", nil, nil)
	require.ErrorIs(t, err, ErrTokenExpired, "the replay's own 401 reaches the caller")
	require.EqualValues(t, 1, fb.refreshCalls.Load())
	require.EqualValues(t, 2, fb.protectedHits.Load())
}

func TestTransportNonExpiryFailuresPassThrough(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
		want *APIError
	}{
		{"401 without expiry discriminator", "/api/invalid", ErrInvalidToken},
		{"403", "/api/forbidden", ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fb := newFakeBackend(t)
			c, store := newTestClient(t, fb, "stale")

			err := c.Do(context.Background(), http.MethodGet, tt.path, nil, nil)
			require.ErrorIs(t, err, tt.want)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			require.Equal(t, tt.want.StatusCode, apiErr.StatusCode)
			require.Equal(t, tt.want.Message, apiErr.Message, "body must survive inspection")

			require.Zero(t, fb.refreshCalls.Load())
			require.EqualValues(t, 1, fb.protectedHits.Load())
			_, ok := store.Read()
			require.True(t, ok, "unrelated failures leave the session alone")
		})
	}
}

func TestTransportReplaysRequestBody(t *testing.T) {
	t.Parallel()

	fb := newFakeBackend(t)
	c, _ := newTestClient(t, fb, "stale")

	t.Run("with GetBody", func(t *testing.T) {
		var out map[string]string
		err := c.Do(context.Background(), http.MethodPost, "/api/protected", map[string]int{"reward": 5}, &out)
		require.NoError(t, err)
		require.JSONEq(t, `{"reward":5}`, out["echo"])
	})

	t.Run("without GetBody", func(t *testing.T) {
		require.NoError(t, c.Store.Write(credentialFor("stale")))

		// A bare io.Reader gives the request no GetBody.
		req, err := http.NewRequest(http.MethodPost, fb.srv.URL+"/api/protected",
			io.MultiReader(strings.NewReader("hello")))
		require.NoError(t, err)
		require.Nil(t, req.GetBody)

		resp, err := c.HTTPClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		bodies := fb.bodies()
		require.Equal(t, "hello", bodies[len(bodies)-1])
		require.Equal(t, "hello", bodies[len(bodies)-2])
	})
}

func TestTransportRefreshFailureSurfaces(t *testing.T) {
	t.Parallel()

	fb := newFakeBackend(t)
	fb.refreshStatus = 401
	c, store := newTestClient(t, fb, "stale")

	err := c.Do(context.Background(), http.MethodGet, "/api/protected", nil, nil)
	require.ErrorIs(t, err, ErrRefreshFailed)
	require.False(t, errors.Is(err, ErrTokenExpired), "caller sees the refresh failure, not the 401")

	_, ok := store.Read()
	require.False(t, ok)
	require.EqualValues(t, 1, fb.protectedHits.Load())
}

func TestTransportNeverInterceptsRefreshEndpoint(t *testing.T) {
	t.Parallel()

	refresher := &stubRefresher{fn: func() (string, error) { return "fresh", nil }}
	store := tokenstore.NewMemory()
	require.NoError(t, store.Write(credentialFor("stale")))

	tr := &Transport{
		Base: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusUnauthorized,
				Body:       io.NopCloser(strings.NewReader(`{"errorCode":"TOKEN_EXPIRED"}`)),
				Request:    r,
			}, nil
		}),
		Store:       store,
		Refresher:   refresher,
		RefreshPath: RefreshPath,
		Logger:      slogx.Discard(),
	}

	req, _ := http.NewRequest(http.MethodPost, "http://backend"+RefreshPath, nil)
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Zero(t, refresher.calls)

	// Requests already marked as retried are left alone too.
	req, _ = http.NewRequestWithContext(WithRetried(context.Background()), http.MethodGet, "http://backend/api/x", nil)
	resp, err = tr.RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Zero(t, refresher.calls)
}

func TestTransportReplaysWithResolvedTokenNotStoreValue(t *testing.T) {
	t.Parallel()

	store := tokenstore.NewMemory()
	require.NoError(t, store.Write(credentialFor("stale")))

	refresher := &stubRefresher{fn: func() (string, error) {
		// A later mutation lands before the replay goes out.
		_ = store.Write(credentialFor("later"))
		return "resolved", nil
	}}

	var seen []string
	tr := &Transport{
		Base: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			seen = append(seen, r.Header.Get("Authorization"))
			if len(seen) == 1 {
				return &http.Response{
					StatusCode: http.StatusUnauthorized,
					Body:       io.NopCloser(strings.NewReader(`{"success":false,"errorCode":"TOKEN_EXPIRED"}`)),
				}, nil
			}
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
		}),
		Store:     store,
		Refresher: refresher,
		Logger:    slogx.Discard(),
	}

	req, _ := http.NewRequest(http.MethodGet, "http://backend/api/x", nil)
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []string{bearer("stale"), bearer("resolved")}, seen)
}

func TestTransportNetworkErrorPassesThrough(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	refresher := &stubRefresher{fn: func() (string, error) { return "fresh", nil }}
	tr := &Transport{
		Base:      roundTripFunc(func(*http.Request) (*http.Response, error) { return nil, boom }),
		Store:     tokenstore.NewMemory(),
		Refresher: refresher,
		Logger:    slogx.Discard(),
	}

	req, _ := http.NewRequest(http.MethodGet, "http://backend/api/x", nil)
	_, err := tr.RoundTrip(req)
	require.ErrorIs(t, err, boom)
	require.Zero(t, refresher.calls)
}

func TestTransportSetsRequestID(t *testing.T) {
	t.Parallel()

	var got []string
	tr := &Transport{
		Base: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			got = append(got, r.Header.Get(slogx.RequestIDHeader))
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
		}),
		Store:     tokenstore.NewMemory(),
		Refresher: &stubRefresher{},
		Logger:    slogx.Discard(),
	}

	req, _ := http.NewRequest(http.MethodGet, "http://backend/api/x", nil)
	_, err := tr.RoundTrip(req)
	require.NoError(t, err)
	require.Empty(t, req.Header.Get(slogx.RequestIDHeader), "caller's request is not modified")

	req.Header.Set(slogx.RequestIDHeader, "mine")
	_, err = tr.RoundTrip(req)
	require.NoError(t, err)

	require.Len(t, got, 2)
	require.NotEmpty(t, got[0])
	require.Equal(t, "mine", got[1])
}
