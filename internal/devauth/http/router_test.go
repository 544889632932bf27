package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/consoleauth/internal/devauth/app"
	"github.com/aussiebroadwan/consoleauth/pkg/authsdk"
	"github.com/aussiebroadwan/consoleauth/pkg/cryptox"
	"github.com/aussiebroadwan/consoleauth/pkg/jwtx"
	"github.com/aussiebroadwan/consoleauth/pkg/slogx"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const (
	adminEmail    = "root@example.com"
	adminPassword = "admin-password"
)

func newServer(t *testing.T) (http.Handler, *clock) {
	t.Helper()

	clk := &clock{now: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
	cfg := app.Config{
		Addr:                 "127.0.0.1:0",
		DBPath:               filepath.Join(t.TempDir(), "devauth.db"),
		Issuer:               "devauth-test",
		AccessTTL:            time.Minute,
		RefreshTTL:           time.Hour,
		AdminEmail:           adminEmail,
		AdminPassword:        adminPassword,
		AdminUsername:        "admin",
		HousekeepingInterval: time.Hour,
		ShutdownGracePeriod:  time.Second,
	}

	a, err := app.New(cfg,
		app.WithClock(clk.Now),
		app.WithLogger(slogx.Discard()),
		app.WithHasher(cryptox.NewHasher("test").WithParams(cryptox.Params{
			Memory: 64, Iterations: 1, Parallelism: 1, KeyLength: 32, SaltLength: 16,
		})),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	return a.Handler(), clk
}

func do(t *testing.T, h http.Handler, method, path string, body any, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mutate {
		m(req)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(c *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(c) }
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body authsdk.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.Success)
	return body.ErrorCode
}

func refreshCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "refresh_token" {
			return c
		}
	}
	t.Fatal("no refresh_token cookie set")
	return nil
}

func login(t *testing.T, h http.Handler, email, password string) (authsdk.LoginResponse, *http.Cookie) {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/auth/login", authsdk.LoginRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out authsdk.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out, refreshCookie(t, rec)
}

func TestLogin(t *testing.T) {
	t.Parallel()
	h, _ := newServer(t)

	t.Run("Success", func(t *testing.T) {
		out, cookie := login(t, h, adminEmail, adminPassword)
		require.NotEmpty(t, out.Token)
		require.Equal(t, "ADMIN", out.Role)
		require.Equal(t, 60, out.ExpiresIn)
		require.True(t, cookie.HttpOnly)
		require.Equal(t, "/api/auth", cookie.Path)
		require.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/auth/login", authsdk.LoginRequest{Email: adminEmail, Password: "nope"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "INVALID_CREDENTIALS", errorCode(t, rec))
	})

	t.Run("MalformedBody", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
	})
}

func TestBearerErrors(t *testing.T) {
	t.Parallel()
	h, clk := newServer(t)
	out, _ := login(t, h, adminEmail, adminPassword)

	rec := do(t, h, http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "MISSING_TOKEN", errorCode(t, rec))

	rec = do(t, h, http.MethodGet, "/api/auth/me", nil, bearer("garbage"))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "INVALID_TOKEN", errorCode(t, rec))

	rec = do(t, h, http.MethodGet, "/api/auth/me", nil, bearer(out.Token))
	require.Equal(t, http.StatusOK, rec.Code)
	var me authsdk.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	require.Equal(t, adminEmail, me.Email)

	clk.Advance(2 * time.Minute)
	rec = do(t, h, http.MethodGet, "/api/auth/me", nil, bearer(out.Token))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "TOKEN_EXPIRED", errorCode(t, rec))
}

func TestRefreshAndLogout(t *testing.T) {
	t.Parallel()
	h, clk := newServer(t)
	out, cookie := login(t, h, adminEmail, adminPassword)

	rec := do(t, h, http.MethodPost, "/api/auth/refresh", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "NO_REFRESH_COOKIE", errorCode(t, rec))

	clk.Advance(2 * time.Minute)
	rec = do(t, h, http.MethodPost, "/api/auth/refresh", nil, withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	var renewed authsdk.RefreshResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &renewed))
	require.NotEmpty(t, renewed.AccessToken)
	require.NotEqual(t, out.Token, renewed.AccessToken)

	rec = do(t, h, http.MethodPost, "/api/auth/logout", nil, bearer(renewed.AccessToken), withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := refreshCookie(t, rec)
	require.Negative(t, cleared.MaxAge)

	rec = do(t, h, http.MethodPost, "/api/auth/refresh", nil, withCookie(cookie))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "INVALID_REFRESH_TOKEN", errorCode(t, rec))
}

func TestRegisterAndChallengePolicy(t *testing.T) {
	t.Parallel()
	h, _ := newServer(t)

	rec := do(t, h, http.MethodPost, "/api/auth/register", authsdk.RegisterRequest{
		Username: "erin", Email: "erin@example.com", Password: "long enough",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var reg authsdk.RegisterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	require.True(t, reg.Success)
	require.Equal(t, "USER", reg.User.Role)

	rec = do(t, h, http.MethodPost, "/api/auth/register", authsdk.RegisterRequest{
		Username: "erin2", Email: "erin@example.com", Password: "long enough",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "EMAIL_TAKEN", errorCode(t, rec))

	user, _ := login(t, h, "erin@example.com", "long enough")
	rec = do(t, h, http.MethodGet, "/api/challenges", nil, bearer(user.Token))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "FORBIDDEN", errorCode(t, rec))

	admin, _ := login(t, h, adminEmail, adminPassword)
	rec = do(t, h, http.MethodGet, "/api/challenges", nil, bearer(admin.Token))
	require.Equal(t, http.StatusOK, rec.Code)
	var list authsdk.ChallengeList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Challenges, 3)

	rec = do(t, h, http.MethodGet, "/api/challenges?all=true", nil, bearer(admin.Token))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Challenges, 4)
}

func TestSystemEndpoints(t *testing.T) {
	t.Parallel()
	h, _ := newServer(t)

	rec := do(t, h, http.MethodGet, "/livez", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health authsdk.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	require.Equal(t, "ok", health.Status)

	rec = do(t, h, http.MethodGet, "/.well-known/jwks.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var jwks jwtx.JWKS
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jwks))
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, "OKP", jwks.Keys[0].Kty)

	rec = do(t, h, http.MethodGet, "/swagger/doc.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/api/auth/login")
}
