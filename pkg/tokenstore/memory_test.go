package tokenstore_test

import (
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/consoleauth/pkg/tokenstore"
	"github.com/stretchr/testify/require"
)

func sampleCredential(token string) tokenstore.Credential {
	return tokenstore.Credential{
		AccessToken: token,
		Profile: tokenstore.UserProfile{
			ID:          7,
			Username:    "user",
			Email:       "user@example.com",
			Role:        "ADMIN",
			Authorities: []string{"CHALLENGE_VIEW_ALL"},
		},
	}
}

// recorder collects events and, for each one, what the observing store
// read at the moment it was notified.
type recorder struct {
	mu     sync.Mutex
	events []tokenstore.Event
	seen   []string
}

func record(s tokenstore.Store) *recorder {
	r := &recorder{}
	s.Subscribe(func(ev tokenstore.Event) {
		c, _ := s.Read()
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.seen = append(r.seen, c.AccessToken)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) snapshot() ([]tokenstore.Event, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tokenstore.Event(nil), r.events...), append([]string(nil), r.seen...)
}

func TestMemoryReadWriteClear(t *testing.T) {
	t.Parallel()

	s := tokenstore.NewMemory()

	_, ok := s.Read()
	require.False(t, ok, "fresh store must be absent")

	want := sampleCredential("tok1")
	require.NoError(t, s.Write(want))

	got, ok := s.Read()
	require.True(t, ok)
	require.Equal(t, want, got)

	require.NoError(t, s.Clear())
	_, ok = s.Read()
	require.False(t, ok)
}

func TestMemoryKeepsExpiryHint(t *testing.T) {
	t.Parallel()

	backend := tokenstore.NewBackend()
	a, b := backend.Tab(), backend.Tab()

	want := sampleCredential("tok1")
	want.ExpiresAt = time.Date(2026, 7, 1, 10, 15, 0, 0, time.UTC)
	require.NoError(t, a.Write(want))

	got, ok := b.Read()
	require.True(t, ok)
	require.Equal(t, want, got)

	want.ExpiresAt = time.Time{}
	require.NoError(t, a.Write(want))
	got, ok = b.Read()
	require.True(t, ok)
	require.True(t, got.ExpiresAt.IsZero())
}

func TestMemoryWriterDoesNotHearItself(t *testing.T) {
	t.Parallel()

	s := tokenstore.NewMemory()
	rec := record(s)

	require.NoError(t, s.Write(sampleCredential("tok1")))
	events, _ := rec.snapshot()
	require.Empty(t, events)

	s.Signal(tokenstore.EventLoginSucceeded)
	events, seen := rec.snapshot()
	require.Equal(t, []tokenstore.Event{{Kind: tokenstore.EventLoginSucceeded}}, events)
	require.Equal(t, []string{"tok1"}, seen)
}

func TestMemoryOtherTabsSeeNewValue(t *testing.T) {
	t.Parallel()

	backend := tokenstore.NewBackend()
	a, b := backend.Tab(), backend.Tab()
	rec := record(b)

	require.NoError(t, a.Write(sampleCredential("tok1")))

	events, seen := rec.snapshot()
	require.ElementsMatch(t, []tokenstore.Event{
		{Kind: tokenstore.EventStorage, Key: tokenstore.KeyAccessToken},
		{Kind: tokenstore.EventStorage, Key: tokenstore.KeyUserProfile},
	}, events)
	for _, tok := range seen {
		require.Equal(t, "tok1", tok, "observer must never see the pre-write value")
	}

	// Only the token changes on refresh.
	next := sampleCredential("tok2")
	require.NoError(t, a.Write(next))
	events, _ = rec.snapshot()
	require.Len(t, events, 3)
	require.Equal(t, tokenstore.KeyAccessToken, events[2].Key)

	require.NoError(t, a.Clear())
	_, ok := b.Read()
	require.False(t, ok)
	_, seen = rec.snapshot()
	require.Equal(t, "", seen[len(seen)-1])
}

func TestMemoryCloseAndCancel(t *testing.T) {
	t.Parallel()

	backend := tokenstore.NewBackend()
	a, b, c := backend.Tab(), backend.Tab(), backend.Tab()

	var hitsB, hitsC int
	cancel := b.Subscribe(func(tokenstore.Event) { hitsB++ })
	c.Subscribe(func(tokenstore.Event) { hitsC++ })

	cancel()
	cancel() // idempotent
	c.Close()

	require.NoError(t, a.Write(sampleCredential("tok1")))
	require.Zero(t, hitsB)
	require.Zero(t, hitsC)
}

func TestMemoryUnavailableReadsAbsent(t *testing.T) {
	t.Parallel()

	backend := tokenstore.NewBackend()
	s := backend.Tab()
	require.NoError(t, s.Write(sampleCredential("tok1")))

	backend.SetUnavailable(true)
	_, ok := s.Read()
	require.False(t, ok)
	require.ErrorIs(t, s.Write(sampleCredential("tok2")), tokenstore.ErrUnavailable)
	require.ErrorIs(t, s.Clear(), tokenstore.ErrUnavailable)

	backend.SetUnavailable(false)
	got, ok := s.Read()
	require.True(t, ok)
	require.Equal(t, "tok1", got.AccessToken)
}

func TestKeyIsCredential(t *testing.T) {
	require.True(t, tokenstore.KeyAccessToken.IsCredential())
	require.True(t, tokenstore.KeyUserProfile.IsCredential())
	require.False(t, tokenstore.Key("theme").IsCredential())
	require.Equal(t, "storage", tokenstore.EventStorage.String())
	require.Equal(t, "login_succeeded", tokenstore.EventLoginSucceeded.String())
}
