package sqlite

import (
	"context"

	"github.com/aussiebroadwan/consoleauth/internal/devauth/domain"
)

type challengesRepo struct {
	q DBTX
}

func (r *challengesRepo) ListChallenges(ctx context.Context, activeOnly bool) ([]domain.Challenge, error) {
	query := `SELECT id, title, description, reward, active FROM challenges`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY id`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Challenge
	for rows.Next() {
		var c domain.Challenge
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.Reward, &c.Active); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
