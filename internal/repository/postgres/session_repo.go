package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/anonmatch/internal/errs"
	"github.com/and161185/anonmatch/internal/model"
)

// SessionRepo implements SessionRepository using PostgreSQL.
// The sessions primary key (and the unique partner_id) make CreatePairing a compare-and-swap.
type SessionRepo struct{ db *DB }

// NewSessionRepo constructs a session repository.
func NewSessionRepo(db *DB) *SessionRepo { return &SessionRepo{db: db} }

// CreatePairing inserts both session rows and removes both queue rows in one transaction.
func (r *SessionRepo) CreatePairing(ctx context.Context, a, b model.Session) error {
	const ins = `INSERT INTO sessions (user_id, partner_id, pair_id, started_at, secret_mode) VALUES ($1,$2,$3,$4,$5)`
	const delQ = `DELETE FROM chat_queue WHERE user_id IN ($1, $2)`

	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		for _, s := range []model.Session{a, b} {
			if _, err := tx.Exec(ctx, ins, s.ParticipantID, s.PartnerID, s.PairID, s.StartedAt, s.SecretMode); err != nil {
				if isUniqueViolation(err) {
					return errs.ErrAlreadyPaired
				}
				return err
			}
		}
		_, err := tx.Exec(ctx, delQ, a.ParticipantID, b.ParticipantID)
		return err
	})
}

// GetPartner returns the partner of the participant.
func (r *SessionRepo) GetPartner(ctx context.Context, id model.ParticipantID) (model.ParticipantID, error) {
	var partner int64
	err := r.db.Pool.QueryRow(ctx, `SELECT partner_id FROM sessions WHERE user_id=$1`, id).Scan(&partner)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, errs.ErrNotFound
	}
	return partner, err
}

// Get returns the participant's session row.
func (r *SessionRepo) Get(ctx context.Context, id model.ParticipantID) (model.Session, error) {
	const q = `SELECT user_id, partner_id, pair_id, started_at, secret_mode FROM sessions WHERE user_id=$1`
	var s model.Session
	err := r.db.Pool.QueryRow(ctx, q, id).Scan(&s.ParticipantID, &s.PartnerID, &s.PairID, &s.StartedAt, &s.SecretMode)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Session{}, errs.ErrNotFound
	}
	return s, err
}

// EndSession deletes both rows of the participant's pair and returns the partner.
func (r *SessionRepo) EndSession(ctx context.Context, id model.ParticipantID) (partner model.ParticipantID, err error) {
	const sel = `SELECT partner_id FROM sessions WHERE user_id=$1 FOR UPDATE`
	const del = `DELETE FROM sessions WHERE user_id IN ($1, $2)`

	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, sel, id).Scan(&partner); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		_, err := tx.Exec(ctx, del, id, partner)
		return err
	})
	if err != nil {
		return 0, err
	}
	return partner, nil
}

// EndPair deletes the rows of one pairing only, so a stale rollback cannot touch a newer session.
func (r *SessionRepo) EndPair(ctx context.Context, pairID uuid.UUID) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM sessions WHERE pair_id=$1`, pairID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetSecretMode flips the flag on both rows of the pair.
func (r *SessionRepo) SetSecretMode(ctx context.Context, id model.ParticipantID, on bool) error {
	const q = `
UPDATE sessions SET secret_mode=$2
WHERE pair_id = (SELECT pair_id FROM sessions WHERE user_id=$1)`
	tag, err := r.db.Pool.Exec(ctx, q, id, on)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ListPaired returns the set of participants with a session.
func (r *SessionRepo) ListPaired(ctx context.Context) (map[model.ParticipantID]struct{}, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT user_id FROM sessions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[model.ParticipantID]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// CountActive returns the number of active pairs.
func (r *SessionRepo) CountActive(ctx context.Context) (int, error) {
	var rowsN int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&rowsN); err != nil {
		return 0, err
	}
	return rowsN / 2, nil
}
