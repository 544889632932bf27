package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/consoleauth/internal/devauth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Drivers expose sub-repositories
// so a transaction can hand out the same repos bound to itself.
type Store interface {
	Users() Users
	RefreshSessions() RefreshSessions
	Challenges() Challenges

	ApplyMigrations() error

	// WithTx runs fn in a transaction, committing when it returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transaction-scoped view of the repositories.
type Tx interface {
	Users() Users
	RefreshSessions() RefreshSessions
	Challenges() Challenges
}

type Users interface {
	GetUserByID(ctx context.Context, id int64) (domain.User, error)

	// GetUserByEmail matches case-insensitively.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser returns the new id, or ErrAlreadyExists when the email or
	// username is taken.
	CreateUser(ctx context.Context, u domain.User) (int64, error)

	CountUsers(ctx context.Context) (int, error)
}

type RefreshSessions interface {
	CreateRefreshSession(ctx context.Context, s domain.RefreshSession) error
	GetRefreshSessionByFingerprint(ctx context.Context, fingerprint string) (domain.RefreshSession, error)
	RevokeRefreshSession(ctx context.Context, id string, at time.Time) error

	// DeleteExpiredRefreshSessions removes sessions that expired or were
	// revoked before now and reports how many.
	DeleteExpiredRefreshSessions(ctx context.Context, now time.Time) (int64, error)
}

type Challenges interface {
	ListChallenges(ctx context.Context, activeOnly bool) ([]domain.Challenge, error)
}
