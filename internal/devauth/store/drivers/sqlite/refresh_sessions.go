package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/consoleauth/internal/devauth/domain"
	"github.com/aussiebroadwan/consoleauth/internal/devauth/store"
)

type refreshSessionsRepo struct {
	q DBTX
}

func (r *refreshSessionsRepo) CreateRefreshSession(ctx context.Context, s domain.RefreshSession) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO refresh_sessions (id, user_id, fingerprint, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		s.ID,
		s.UserID,
		s.Fingerprint,
		toMillis(s.ExpiresAt),
		toMillis(s.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *refreshSessionsRepo) GetRefreshSessionByFingerprint(
	ctx context.Context,
	fingerprint string,
) (domain.RefreshSession, error) {
	var (
		s                    domain.RefreshSession
		expiresAt, createdAt int64
		revokedAt            sql.NullInt64
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT id, user_id, fingerprint, expires_at, revoked_at, created_at
		 FROM refresh_sessions WHERE fingerprint = ?`,
		fingerprint,
	).Scan(&s.ID, &s.UserID, &s.Fingerprint, &expiresAt, &revokedAt, &createdAt)
	if err != nil {
		return domain.RefreshSession{}, mapNotFound(err)
	}

	s.ExpiresAt = fromMillis(expiresAt)
	s.CreatedAt = fromMillis(createdAt)
	s.RevokedAt = mapNullMillis(revokedAt)
	return s, nil
}

func (r *refreshSessionsRepo) RevokeRefreshSession(ctx context.Context, id string, at time.Time) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE refresh_sessions SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		toMillis(at), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *refreshSessionsRepo) DeleteExpiredRefreshSessions(ctx context.Context, now time.Time) (int64, error) {
	ms := toMillis(now)
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM refresh_sessions WHERE expires_at <= ? OR (revoked_at IS NOT NULL AND revoked_at <= ?)`,
		ms, ms,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
