package jwtx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/consoleauth/pkg/cryptox"
	"github.com/aussiebroadwan/consoleauth/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testIssuer = "https://auth.example.test"

var alice = jwtx.Identity{
	UserID:      7,
	Username:    "alice",
	Email:       "alice@example.test",
	Role:        "USER",
	Authorities: []string{"CHALLENGE_VIEW_ALL"},
}

func newSigner(t *testing.T, kid string) *jwtx.EdDSASigner {
	t.Helper()
	pemKey, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)
	s, err := jwtx.NewSignerEdDSA(kid, pemKey)
	require.NoError(t, err)
	return s
}

// clock is a settable time source.
type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func TestSignAndVerify(t *testing.T) {
	t.Parallel()

	s := newSigner(t, "k1")
	ks := jwtx.NewKeySet()
	require.NoError(t, ks.AddSigner(s))

	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	v := jwtx.NewVerifierEdDSA(ks, jwtx.VerifyOptions{Issuer: testIssuer, Now: c.Now})

	claims := jwtx.NewAccessClaims(alice, testIssuer, 15*time.Minute, c.now)
	token, err := s.Sign(claims)
	require.NoError(t, err)

	got, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "7", got.Subject)
	require.Equal(t, "alice", got.Username)
	require.Equal(t, "alice@example.test", got.Email)
	require.Equal(t, "USER", got.Role)
	require.Equal(t, []string{"CHALLENGE_VIEW_ALL"}, got.Authorities)
	require.NotEmpty(t, got.ID)

	id, err := got.UserID()
	require.NoError(t, err)
	require.EqualValues(t, 7, id)

	t.Run("expired", func(t *testing.T) {
		late := &clock{now: c.now.Add(16 * time.Minute)}
		_, err := jwtx.NewVerifierEdDSA(ks, jwtx.VerifyOptions{Issuer: testIssuer, Now: late.Now}).Verify(token)
		require.ErrorIs(t, err, jwtx.ErrExpired)
	})

	t.Run("leeway", func(t *testing.T) {
		late := &clock{now: c.now.Add(15*time.Minute + 20*time.Second)}
		_, err := jwtx.NewVerifierEdDSA(ks, jwtx.VerifyOptions{Issuer: testIssuer, Now: late.Now, Leeway: 30 * time.Second}).Verify(token)
		require.NoError(t, err)
	})

	t.Run("not yet valid", func(t *testing.T) {
		early := &clock{now: c.now.Add(-time.Hour)}
		_, err := jwtx.NewVerifierEdDSA(ks, jwtx.VerifyOptions{Now: early.Now}).Verify(token)
		require.ErrorIs(t, err, jwtx.ErrNotYetValid)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		_, err := jwtx.NewVerifierEdDSA(ks, jwtx.VerifyOptions{Issuer: "other", Now: c.Now}).Verify(token)
		require.ErrorIs(t, err, jwtx.ErrIssuer)
	})

	t.Run("tampered payload", func(t *testing.T) {
		parts := strings.Split(token, ".")
		forged := jwtx.NewAccessClaims(jwtx.Identity{UserID: 1, Role: "ADMIN"}, testIssuer, time.Hour, c.now)
		other, err := newSigner(t, "k1").Sign(forged)
		require.NoError(t, err)
		parts[1] = strings.Split(other, ".")[1]

		_, err = v.Verify(strings.Join(parts, "."))
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})
}

func TestVerifyRejects(t *testing.T) {
	t.Parallel()

	s := newSigner(t, "k1")
	ks := jwtx.NewKeySet()
	require.NoError(t, ks.AddSigner(s))
	v := jwtx.NewVerifierEdDSA(ks, jwtx.VerifyOptions{})
	now := time.Now()

	unknown, err := newSigner(t, "k2").Sign(jwtx.NewAccessClaims(alice, testIssuer, time.Minute, now))
	require.NoError(t, err)

	hs := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtx.NewAccessClaims(alice, testIssuer, time.Minute, now))
	hs.Header["kid"] = "k1"
	hsToken, err := hs.SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"garbage", "not-a-jwt", jwtx.ErrMalformed},
		{"unknown kid", unknown, jwtx.ErrUnknownKID},
		{"hmac", hsToken, jwtx.ErrInvalidSig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			require.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("missing exp", func(t *testing.T) {
		tok, err := s.Sign(jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "7"}})
		require.NoError(t, err)
		_, err = v.Verify(tok)
		require.Error(t, err)
		require.NotErrorIs(t, err, jwtx.ErrExpired)
	})
}

func TestClaimsUserID(t *testing.T) {
	t.Parallel()

	_, err := jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "abc"}}.UserID()
	require.ErrorIs(t, err, jwtx.ErrInvalidClaim)
}
