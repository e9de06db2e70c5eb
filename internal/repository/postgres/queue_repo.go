package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/anonmatch/internal/errs"
	"github.com/and161185/anonmatch/internal/model"
)

// QueueRepo implements QueueRepository using PostgreSQL.
type QueueRepo struct{ db *DB }

// NewQueueRepo constructs a queue repository.
func NewQueueRepo(db *DB) *QueueRepo { return &QueueRepo{db: db} }

const queueCols = `user_id, gender_pref, hobby_pref, age_min, age_max, is_pro, queued_at`

// Enqueue inserts the entry or replaces the participant's previous one.
func (r *QueueRepo) Enqueue(ctx context.Context, e model.QueueEntry) error {
	const q = `
INSERT INTO chat_queue (user_id, gender_pref, hobby_pref, age_min, age_max, is_pro, queued_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (user_id) DO UPDATE SET
  gender_pref=EXCLUDED.gender_pref, hobby_pref=EXCLUDED.hobby_pref,
  age_min=EXCLUDED.age_min, age_max=EXCLUDED.age_max,
  is_pro=EXCLUDED.is_pro, queued_at=EXCLUDED.queued_at`
	_, err := r.db.Pool.Exec(ctx, q,
		e.ParticipantID, nullString(string(e.Filters.Gender)), nullString(e.Filters.Hobby),
		e.Filters.AgeMin, e.Filters.AgeMax, e.IsPro, e.EnqueuedAt)
	return err
}

// Dequeue deletes the participant's entry.
func (r *QueueRepo) Dequeue(ctx context.Context, id model.ParticipantID) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM chat_queue WHERE user_id=$1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Get loads the participant's entry.
func (r *QueueRepo) Get(ctx context.Context, id model.ParticipantID) (model.QueueEntry, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+queueCols+` FROM chat_queue WHERE user_id=$1`, id)
	e, err := scanQueueEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.QueueEntry{}, errs.ErrNotFound
	}
	return e, err
}

// List returns all entries ordered by enqueue time.
func (r *QueueRepo) List(ctx context.Context) ([]model.QueueEntry, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+queueCols+` FROM chat_queue ORDER BY queued_at ASC, user_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EvictOlderThan deletes stale entries and returns their owners.
func (r *QueueRepo) EvictOlderThan(ctx context.Context, cutoff time.Time) ([]model.ParticipantID, error) {
	rows, err := r.db.Pool.Query(ctx, `DELETE FROM chat_queue WHERE queued_at < $1 RETURNING user_id`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ParticipantID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Stats counts queue rows split by pro flag.
func (r *QueueRepo) Stats(ctx context.Context) (model.QueueStats, error) {
	const q = `SELECT COUNT(*), COUNT(*) FILTER (WHERE is_pro) FROM chat_queue`
	var total, pro int
	if err := r.db.Pool.QueryRow(ctx, q).Scan(&total, &pro); err != nil {
		return model.QueueStats{}, err
	}
	return model.QueueStats{Total: total, Pro: pro, Regular: total - pro}, nil
}

func scanQueueEntry(row pgx.Row) (model.QueueEntry, error) {
	var (
		e              model.QueueEntry
		gender         *string
		hobby          *string
		ageMin, ageMax *int
	)
	if err := row.Scan(&e.ParticipantID, &gender, &hobby, &ageMin, &ageMax, &e.IsPro, &e.EnqueuedAt); err != nil {
		return model.QueueEntry{}, err
	}
	if gender != nil {
		e.Filters.Gender = model.Gender(*gender)
	}
	if hobby != nil {
		e.Filters.Hobby = *hobby
	}
	e.Filters.AgeMin, e.Filters.AgeMax = ageMin, ageMax
	return e, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
