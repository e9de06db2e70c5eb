package limiter

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/anonmatch/internal/model"
)

// PG is a PostgreSQL-backed fixed-window limiter over the match_limiter table.
type PG struct {
	pool   pgxQuerier
	window time.Duration
	max    int
	now    func() time.Time
}

type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter allowing max searches per window.
// q is usually the shared *pgxpool.Pool.
func NewPG(q pgxQuerier, window time.Duration, max int) *PG {
	return &PG{pool: q, window: window, max: max, now: time.Now}
}

// Allow bumps the participant's counter, starting a new window when the old one expired.
func (l *PG) Allow(ctx context.Context, id model.ParticipantID) (bool, time.Duration, error) {
	const q = `
INSERT INTO match_limiter (user_id, req_count, window_start)
VALUES ($1, 1, now())
ON CONFLICT (user_id) DO UPDATE
SET
  req_count = CASE WHEN now() - match_limiter.window_start > $2::interval THEN 1 ELSE match_limiter.req_count + 1 END,
  window_start = CASE WHEN now() - match_limiter.window_start > $2::interval THEN now() ELSE match_limiter.window_start END
RETURNING req_count, window_start`
	var (
		count int
		start time.Time
	)
	if err := l.pool.QueryRow(ctx, q, id, l.window).Scan(&count, &start); err != nil {
		return false, 0, err
	}
	if count > l.max {
		return false, start.Add(l.window).Sub(l.now()), nil
	}
	return true, 0, nil
}
