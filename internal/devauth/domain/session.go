package domain

import "time"

// RefreshSession backs one refresh cookie. Only the token's fingerprint is
// stored.
type RefreshSession struct {
	ID          string // ULID
	UserID      int64
	Fingerprint string
	ExpiresAt   time.Time
	RevokedAt   *time.Time
	CreatedAt   time.Time
}

// Usable reports whether the session may mint access tokens at now.
func (s RefreshSession) Usable(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// TokenGrant is what login and refresh hand back to the transport layer.
type TokenGrant struct {
	AccessToken  string
	ExpiresIn    time.Duration
	RefreshToken string // empty on refresh; there is no rotation
	RefreshTTL   time.Duration
	User         User
}
