package authsdk

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/consoleauth/pkg/slogx"
	"github.com/aussiebroadwan/consoleauth/pkg/tokenstore"
	"github.com/stretchr/testify/require"
)

// fakeBackend mimics the admin backend closely enough to drive the
// interceptor: "fresh" is the only token it accepts, "stale" is expired.
type fakeBackend struct {
	srv *httptest.Server

	refreshCalls  atomic.Int64
	expiredHits   atomic.Int64
	protectedHits atomic.Int64
	logoutCalls   atomic.Int64

	// waitForExpired holds the refresh response until this many requests
	// have been answered with TOKEN_EXPIRED.
	waitForExpired int64
	// refreshStatus overrides the refresh outcome when non-zero.
	refreshStatus int
	// alwaysExpired makes every protected call report TOKEN_EXPIRED.
	alwaysExpired bool
	// logoutStatus overrides the logout outcome when non-zero.
	logoutStatus int

	mu          sync.Mutex
	seenAuth    []string
	seenBodies  []string
	nextToken   string
	refreshGate chan struct{}
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()

	fb := &fakeBackend{nextToken: "fresh"}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Email != "user@example.com" || req.Password != "pw" {
			ErrInvalidCredentials.WriteError(w)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "rt", Path: "/api/auth", HttpOnly: true})
		writeJSON(w, http.StatusOK, LoginResponse{
			Message:     "login successful",
			Token:       "tok1",
			ID:          1,
			Username:    "user",
			Email:       req.Email,
			Role:        "USER",
			Authorities: []string{"CHALLENGE_VIEW_ALL"},
			ExpiresIn:   900,
		})
	})

	mux.HandleFunc("POST /api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		fb.refreshCalls.Add(1)

		deadline := time.Now().Add(2 * time.Second)
		for fb.expiredHits.Load() < fb.waitForExpired && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		if fb.refreshGate != nil {
			<-fb.refreshGate
		}

		if fb.refreshStatus != 0 {
			ErrInvalidRefreshToken.WriteError(w)
			return
		}
		if _, err := r.Cookie("refresh_token"); err != nil {
			ErrNoRefreshCookie.WriteError(w)
			return
		}
		fb.mu.Lock()
		tok := fb.nextToken
		fb.mu.Unlock()
		writeJSON(w, http.StatusOK, RefreshResponse{AccessToken: tok, ExpiresIn: 900})
	})

	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		fb.logoutCalls.Add(1)
		if fb.logoutStatus != 0 {
			ErrServerError.WriteError(w)
			return
		}
		writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "logged out"})
	})

	protected := func(w http.ResponseWriter, r *http.Request) {
		fb.protectedHits.Add(1)
		body, _ := io.ReadAll(r.Body)
		auth := r.Header.Get("Authorization")

		fb.mu.Lock()
		fb.seenAuth = append(fb.seenAuth, auth)
		fb.seenBodies = append(fb.seenBodies, string(body))
		fb.mu.Unlock()

		switch {
		case auth == "":
			ErrMissingToken.WriteError(w)
		case fb.alwaysExpired || auth == "Bearer stale" || auth == "Bearer tok1":
			fb.expiredHits.Add(1)
			ErrTokenExpired.WriteError(w)
		case auth == "Bearer fresh":
			writeJSON(w, http.StatusOK, map[string]string{"echo": string(body)})
		default:
			ErrInvalidToken.WriteError(w)
		}
	}
	mux.HandleFunc("/api/protected", protected)
	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			protected(w, r)
			return
		}
		writeJSON(w, http.StatusOK, User{ID: 1, Username: "user", Email: "user@example.com", Role: "USER"})
	})
	mux.HandleFunc("GET /api/forbidden", func(w http.ResponseWriter, r *http.Request) {
		fb.protectedHits.Add(1)
		ErrForbidden.WriteError(w)
	})
	mux.HandleFunc("GET /api/invalid", func(w http.ResponseWriter, r *http.Request) {
		fb.protectedHits.Add(1)
		ErrInvalidToken.WriteError(w)
	})

	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) auths() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]string(nil), fb.seenAuth...)
}

func (fb *fakeBackend) bodies() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]string(nil), fb.seenBodies...)
}

// newTestClient builds a client on a fresh memory store. When token is
// non-empty the store starts out logged in with it and the jar already
// holds the refresh cookie.
func newTestClient(t *testing.T, fb *fakeBackend, token string) (*SDKClient, *tokenstore.Tab) {
	t.Helper()

	store := tokenstore.NewMemory()
	c, err := NewSDKClient(fb.srv.URL, store, WithLogger(slogx.Discard()))
	require.NoError(t, err)

	if token != "" {
		require.NoError(t, store.Write(credentialFor(token)))
		u, err := http.NewRequest(http.MethodGet, fb.srv.URL+"/api/auth/refresh", nil)
		require.NoError(t, err)
		c.HTTPClient.Jar.SetCookies(u.URL, []*http.Cookie{{Name: "refresh_token", Value: "rt", Path: "/api/auth"}})
	}
	return c, store
}

func credentialFor(token string) tokenstore.Credential {
	return tokenstore.Credential{
		AccessToken: token,
		Profile:     tokenstore.UserProfile{ID: 1, Username: "user", Role: "USER"},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func bearer(tok string) string {
	return "Bearer " + strings.TrimSpace(tok)
}
