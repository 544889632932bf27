package tokenstore

import "sync"

// Backend is an in-memory key/value surface shared by any number of tabs,
// the way one browser origin shares localStorage.
type Backend struct {
	mu          sync.Mutex
	data        map[Key][]byte
	tabs        map[*Tab]struct{}
	unavailable bool
}

// NewBackend returns an empty backend.
func NewBackend() *Backend {
	return &Backend{
		data: make(map[Key][]byte),
		tabs: make(map[*Tab]struct{}),
	}
}

// NewMemory returns a single tab on a private backend.
func NewMemory() *Tab {
	return NewBackend().Tab()
}

// SetUnavailable makes every later operation fail as if storage had been
// disabled. Reads then report absent.
func (b *Backend) SetUnavailable(v bool) {
	b.mu.Lock()
	b.unavailable = v
	b.mu.Unlock()
}

// Tab attaches a new store to the backend.
func (b *Backend) Tab() *Tab {
	t := &Tab{backend: b}
	b.mu.Lock()
	b.tabs[t] = struct{}{}
	b.mu.Unlock()
	return t
}

// Tab is a Store view of a Backend. Changes made through one tab are
// reported to every other tab as EventStorage.
type Tab struct {
	backend *Backend
	hub     hub
}

var _ Store = (*Tab)(nil)

func (t *Tab) Read() (Credential, bool) {
	b := t.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.unavailable {
		return Credential{}, false
	}
	return decode(b.data)
}

func (t *Tab) Write(c Credential) error {
	raw, err := encode(c)
	if err != nil {
		return err
	}
	return t.apply(raw)
}

func (t *Tab) Clear() error {
	return t.apply(map[Key][]byte{})
}

func (t *Tab) Signal(kind EventKind) {
	t.hub.emit(Event{Kind: kind})
}

func (t *Tab) Subscribe(fn func(Event)) func() {
	return t.hub.subscribe(fn)
}

// Close detaches the tab; it stops receiving storage events.
func (t *Tab) Close() {
	b := t.backend
	b.mu.Lock()
	delete(b.tabs, t)
	b.mu.Unlock()
}

// apply stores raw as the complete credential and then notifies other tabs.
func (t *Tab) apply(raw map[Key][]byte) error {
	b := t.backend

	b.mu.Lock()
	if b.unavailable {
		b.mu.Unlock()
		return ErrUnavailable
	}
	changed := changedKeys(b.data, raw)
	b.data = raw
	others := make([]*Tab, 0, len(b.tabs))
	for other := range b.tabs {
		if other != t {
			others = append(others, other)
		}
	}
	b.mu.Unlock()

	for _, other := range others {
		for _, k := range changed {
			other.hub.emit(Event{Kind: EventStorage, Key: k})
		}
	}
	return nil
}
