package tokenstore_test

import (
	"net/http"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/consoleauth/pkg/slogx"
	"github.com/aussiebroadwan/consoleauth/pkg/tokenstore"
	"github.com/stretchr/testify/require"
)

func TestBoltJarPersistsCookies(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.db")
	opts := tokenstore.BoltOptions{Logger: slogx.Discard()}
	login, err := url.Parse("http://localhost:8080/api/auth/login")
	require.NoError(t, err)
	refresh, err := url.Parse("http://localhost:8080/api/auth/refresh")
	require.NoError(t, err)

	jar, err := tokenstore.OpenBoltJar(path, opts)
	require.NoError(t, err)
	jar.SetCookies(login, []*http.Cookie{{
		Name:     "refresh_token",
		Value:    "opaque",
		Path:     "/api/auth",
		MaxAge:   3600,
		HttpOnly: true,
	}})
	require.Len(t, jar.Cookies(refresh), 1)

	reloaded, err := tokenstore.OpenBoltJar(path, opts)
	require.NoError(t, err)
	got := reloaded.Cookies(refresh)
	require.Len(t, got, 1)
	require.Equal(t, "refresh_token", got[0].Name)
	require.Equal(t, "opaque", got[0].Value)

	// The backend expires the cookie on logout.
	reloaded.SetCookies(refresh, []*http.Cookie{{Name: "refresh_token", Path: "/api/auth", MaxAge: -1}})
	require.Empty(t, reloaded.Cookies(refresh))

	again, err := tokenstore.OpenBoltJar(path, opts)
	require.NoError(t, err)
	require.Empty(t, again.Cookies(refresh))
}

func TestBoltJarSharesFileWithStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.db")
	opts := tokenstore.BoltOptions{Logger: slogx.Discard()}

	s, err := tokenstore.OpenBolt(path, opts)
	require.NoError(t, err)
	require.NoError(t, s.Write(sampleCredential("tok1")))

	jar, err := tokenstore.OpenBoltJar(path, opts)
	require.NoError(t, err)
	u, _ := url.Parse("http://localhost:8080/api/auth/login")
	jar.SetCookies(u, []*http.Cookie{{Name: "refresh_token", Value: "v", Path: "/api/auth", MaxAge: 60}})

	got, ok := s.Read()
	require.True(t, ok)
	require.Equal(t, "tok1", got.AccessToken)
}
