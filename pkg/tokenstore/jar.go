package tokenstore

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/net/publicsuffix"
)

var cookieBucket = []byte("cookies")

// BoltJar is an http.CookieJar that survives restarts. It keeps the
// HttpOnly refresh cookie for the transport; nothing in the SDK reads
// cookie values back out of it.
type BoltJar struct {
	jar  *cookiejar.Jar
	path string
	opts BoltOptions
	now  func() time.Time

	mu sync.Mutex
}

var _ http.CookieJar = (*BoltJar)(nil)

// storedCookie is the persisted form of one Set-Cookie, with MaxAge folded
// into an absolute expiry.
type storedCookie struct {
	URL      string        `json:"url"`
	Name     string        `json:"name"`
	Value    string        `json:"value"`
	Path     string        `json:"path,omitempty"`
	Domain   string        `json:"domain,omitempty"`
	Expires  time.Time     `json:"expires,omitzero"`
	Secure   bool          `json:"secure,omitempty"`
	HttpOnly bool          `json:"http_only,omitempty"`
	SameSite http.SameSite `json:"same_site,omitempty"`
}

// OpenBoltJar loads persisted cookies from path into a fresh jar.
func OpenBoltJar(path string, opts BoltOptions) (*BoltJar, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, fmt.Errorf("tokenstore: creating state directory: %w", err)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	j := &BoltJar{jar: jar, path: path, opts: opts.withDefaults(), now: time.Now}

	var stored []storedCookie
	err = withDB(path, j.opts.LockTimeout, false, func(db *bolt.DB) error {
		return db.Update(func(tx *bolt.Tx) error {
			b, err := tx.CreateBucketIfNotExists(cookieBucket)
			if err != nil {
				return err
			}
			return b.ForEach(func(_, v []byte) error {
				var sc storedCookie
				if err := json.Unmarshal(v, &sc); err != nil {
					j.opts.Logger.Debug("skipping unreadable cookie record", "err", err)
					return nil
				}
				stored = append(stored, sc)
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}

	now := j.now()
	for _, sc := range stored {
		if !sc.Expires.IsZero() && !sc.Expires.After(now) {
			continue
		}
		u, err := url.Parse(sc.URL)
		if err != nil {
			continue
		}
		jar.SetCookies(u, []*http.Cookie{{
			Name:     sc.Name,
			Value:    sc.Value,
			Path:     sc.Path,
			Domain:   sc.Domain,
			Expires:  sc.Expires,
			Secure:   sc.Secure,
			HttpOnly: sc.HttpOnly,
			SameSite: sc.SameSite,
		}})
	}
	return j, nil
}

func (j *BoltJar) Cookies(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

// SetCookies updates the in-memory jar and mirrors the change to disk.
// Persistence failures are logged; the in-memory jar stays authoritative
// for this process.
func (j *BoltJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.jar.SetCookies(u, cookies)

	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	origin := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}).String()

	err := withDB(j.path, j.opts.LockTimeout, false, func(db *bolt.DB) error {
		return db.Update(func(tx *bolt.Tx) error {
			b, err := tx.CreateBucketIfNotExists(cookieBucket)
			if err != nil {
				return err
			}
			for _, c := range cookies {
				key := []byte(u.Hostname() + "|" + c.Domain + "|" + c.Path + "|" + c.Name)

				expires := c.Expires
				if c.MaxAge > 0 {
					expires = now.Add(time.Duration(c.MaxAge) * time.Second)
				}
				if c.MaxAge < 0 || (!expires.IsZero() && !expires.After(now)) {
					if err := b.Delete(key); err != nil {
						return err
					}
					continue
				}

				v, err := json.Marshal(storedCookie{
					URL:      origin,
					Name:     c.Name,
					Value:    c.Value,
					Path:     c.Path,
					Domain:   c.Domain,
					Expires:  expires,
					Secure:   c.Secure,
					HttpOnly: c.HttpOnly,
					SameSite: c.SameSite,
				})
				if err != nil {
					return err
				}
				if err := b.Put(key, v); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		j.opts.Logger.Warn("persisting cookies failed", "path", j.path, "err", err)
	}
}
