package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	bolt "go.etcd.io/bbolt"
)

const (
	dirPerm  = fs.FileMode(0o700)
	filePerm = fs.FileMode(0o600)

	// DefaultLockTimeout bounds how long an operation waits for another
	// process holding the database.
	DefaultLockTimeout = time.Second
)

var sessionBucket = []byte("session")

// BoltOptions configures the file-backed stores.
type BoltOptions struct {
	LockTimeout time.Duration
	Logger      *slog.Logger
}

func (o BoltOptions) withDefaults() BoltOptions {
	if o.LockTimeout <= 0 {
		o.LockTimeout = DefaultLockTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// BoltStore keeps the credential in a bbolt file. The file is opened for the
// duration of each operation only, so any number of processes can share it;
// Watch turns their writes into EventStorage.
type BoltStore struct {
	path string
	opts BoltOptions
	hub  hub

	// mu serializes this store's own operations with the watcher so the
	// snapshot always reflects the last committed write from this process.
	mu   sync.Mutex
	last map[Key][]byte
}

var _ Store = (*BoltStore)(nil)

// OpenBolt prepares the database file at path, creating the directory and
// bucket if needed, and loads the current snapshot.
func OpenBolt(path string, opts BoltOptions) (*BoltStore, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, fmt.Errorf("tokenstore: creating state directory: %w", err)
	}

	s := &BoltStore{path: path, opts: opts.withDefaults()}

	err := s.update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionBucket)
		return err
	})
	if err != nil {
		return nil, err
	}

	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	s.last = snap
	return s, nil
}

// Path returns the database file location.
func (s *BoltStore) Path() string { return s.path }

func (s *BoltStore) Read() (Credential, bool) {
	snap, err := s.snapshot()
	if err != nil {
		s.opts.Logger.Debug("tokenstore read failed, treating as absent", "path", s.path, "err", err)
		return Credential{}, false
	}
	return decode(snap)
}

func (s *BoltStore) Write(c Credential) error {
	raw, err := encode(c)
	if err != nil {
		return err
	}
	return s.replace(raw)
}

func (s *BoltStore) Clear() error {
	return s.replace(map[Key][]byte{})
}

func (s *BoltStore) Signal(kind EventKind) {
	s.hub.emit(Event{Kind: kind})
}

func (s *BoltStore) Subscribe(fn func(Event)) func() {
	return s.hub.subscribe(fn)
}

// replace writes raw as the full credential in one transaction. Other
// processes learn about it through their own Watch; this store emits nothing.
func (s *BoltStore) replace(raw map[Key][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionBucket)
		if b == nil {
			var err error
			if b, err = tx.CreateBucket(sessionBucket); err != nil {
				return err
			}
		}
		for _, k := range CredentialKeys {
			v, ok := raw[k]
			if !ok || len(v) == 0 {
				if err := b.Delete([]byte(k)); err != nil {
					return err
				}
				continue
			}
			if err := b.Put([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.last = raw
	return nil
}

// Watch observes the database file and emits EventStorage for every
// credential key another process changed. It blocks until ctx is done.
func (s *BoltStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tokenstore: creating fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory rather than the file so replacement by rename
	// is still seen.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("tokenstore: watching %s: %w", filepath.Dir(s.path), err)
	}

	// Anything written between OpenBolt and now.
	s.sync()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("tokenstore: fsnotify events channel closed")
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				s.sync()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("tokenstore: fsnotify errors channel closed")
			}
			s.opts.Logger.Warn("tokenstore watch error", "path", s.path, "err", err)
		}
	}
}

// sync diffs the file against the last known snapshot and emits the
// differences. A missing or locked file reads as empty.
func (s *BoltStore) sync() {
	s.mu.Lock()
	snap, err := s.snapshot()
	if err != nil {
		s.opts.Logger.Debug("tokenstore snapshot failed", "path", s.path, "err", err)
		snap = map[Key][]byte{}
	}
	changed := changedKeys(s.last, snap)
	s.last = snap
	s.mu.Unlock()

	for _, k := range changed {
		s.hub.emit(Event{Kind: EventStorage, Key: k})
	}
}

// snapshot reads the credential keys as raw bytes.
func (s *BoltStore) snapshot() (map[Key][]byte, error) {
	out := make(map[Key][]byte, len(CredentialKeys))
	err := s.view(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionBucket)
		if b == nil {
			return nil
		}
		for _, k := range CredentialKeys {
			if v := b.Get([]byte(k)); v != nil {
				out[k] = append([]byte(nil), v...)
			}
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) update(fn func(*bolt.Tx) error) error {
	return withDB(s.path, s.opts.LockTimeout, false, func(db *bolt.DB) error {
		return db.Update(fn)
	})
}

func (s *BoltStore) view(fn func(*bolt.Tx) error) error {
	return withDB(s.path, s.opts.LockTimeout, true, func(db *bolt.DB) error {
		return db.View(fn)
	})
}

// withDB opens the database for a single operation.
func withDB(path string, timeout time.Duration, readOnly bool, fn func(*bolt.DB) error) error {
	if readOnly {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}

	db, err := bolt.Open(path, filePerm, &bolt.Options{Timeout: timeout, ReadOnly: readOnly})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer db.Close()

	return fn(db)
}
