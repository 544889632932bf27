// Package tokenstore persists the current session credential and tells
// interested parties when it changes.
//
// A Store holds exactly two keys: the access token and the serialized user
// profile. Writes are durable before any observer hears about them. Stores
// that share a backing (tabs on one Backend, processes on one bolt file) see
// each other's writes as EventStorage; the writer itself never does, so the
// login flow announces itself with Signal(EventLoginSucceeded).
package tokenstore

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// Key names one persisted entry.
type Key string

const (
	KeyAccessToken Key = "authToken"
	KeyUserProfile Key = "userInfo"
)

// CredentialKeys lists every key a credential occupies.
var CredentialKeys = []Key{KeyAccessToken, KeyUserProfile}

// IsCredential reports whether k belongs to the session credential.
func (k Key) IsCredential() bool {
	return k == KeyAccessToken || k == KeyUserProfile
}

// ErrUnavailable means the backing storage could not be opened or written.
var ErrUnavailable = errors.New("tokenstore: storage unavailable")

type EventKind int

const (
	// EventStorage is a change made through another store on the same backing.
	EventStorage EventKind = iota + 1
	// EventLoginSucceeded is raised explicitly by the login flow in this process.
	EventLoginSucceeded
)

func (k EventKind) String() string {
	switch k {
	case EventStorage:
		return "storage"
	case EventLoginSucceeded:
		return "login_succeeded"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers. Key is only set for EventStorage.
type Event struct {
	Kind EventKind
	Key  Key
}

// UserProfile is cached next to the token for display and authorization
// hints. The backend re-validates everything.
type UserProfile struct {
	ID          int64    `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Authorities []string `json:"authorities"`
}

// Credential is the current session as seen by the client. The refresh
// token is deliberately absent: it only ever lives in the cookie jar.
type Credential struct {
	AccessToken string
	Profile     UserProfile

	// ExpiresAt is when the backend said the access token lapses. It is a
	// hint only; zero means unknown.
	ExpiresAt time.Time
}

// storedProfile is the userInfo value: the profile with the expiry hint
// folded in, so a credential still occupies exactly two keys.
type storedProfile struct {
	UserProfile
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

// Store is the session credential surface shared by the interceptor, the
// refresh coordinator, the guard and the login/logout flows.
type Store interface {
	// Read returns the current credential. Storage failures read as absent.
	Read() (Credential, bool)
	// Write replaces the credential and notifies other stores on the same
	// backing once it is durable.
	Write(Credential) error
	// Clear removes the credential.
	Clear() error
	// Signal delivers an in-process event to this store's subscribers.
	Signal(EventKind)
	// Subscribe registers fn for events; the returned func unregisters it.
	Subscribe(fn func(Event)) (cancel func())
}

// encode turns a credential into its raw key values.
func encode(c Credential) (map[Key][]byte, error) {
	sp := storedProfile{UserProfile: c.Profile}
	if !c.ExpiresAt.IsZero() {
		sp.ExpiresAt = c.ExpiresAt.UTC()
	}
	profile, err := json.Marshal(sp)
	if err != nil {
		return nil, err
	}
	return map[Key][]byte{
		KeyAccessToken: []byte(c.AccessToken),
		KeyUserProfile: profile,
	}, nil
}

// decode is the inverse of encode. A credential is present only when the
// token is non-empty and the profile parses.
func decode(raw map[Key][]byte) (Credential, bool) {
	token := raw[KeyAccessToken]
	profile := raw[KeyUserProfile]
	if len(token) == 0 || len(profile) == 0 {
		return Credential{}, false
	}

	var sp storedProfile
	if err := json.Unmarshal(profile, &sp); err != nil {
		return Credential{}, false
	}
	return Credential{
		AccessToken: string(token),
		Profile:     sp.UserProfile,
		ExpiresAt:   sp.ExpiresAt,
	}, true
}

// changedKeys returns the credential keys whose values differ.
func changedKeys(before, after map[Key][]byte) []Key {
	var out []Key
	for _, k := range CredentialKeys {
		if string(before[k]) != string(after[k]) {
			out = append(out, k)
		}
	}
	return out
}

// hub fans events out to subscribers. Callbacks run on the emitting
// goroutine without the hub lock held, so they may read the store.
type hub struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Event)
}

func (h *hub) subscribe(fn func(Event)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs == nil {
		h.subs = make(map[int]func(Event))
	}
	id := h.next
	h.next++
	h.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

func (h *hub) emit(ev Event) {
	h.mu.Lock()
	fns := make([]func(Event), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
