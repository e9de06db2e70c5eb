package postgres

import (
	"context"

	"github.com/and161185/anonmatch/internal/model"
)

// BlockRepo implements BlockRepository over the block_list table (user_id blocked blocked_id).
type BlockRepo struct{ db *DB }

// NewBlockRepo constructs a block repository.
func NewBlockRepo(db *DB) *BlockRepo { return &BlockRepo{db: db} }

// IsBlocked reports whether a has blocked b.
func (r *BlockRepo) IsBlocked(ctx context.Context, a, b model.ParticipantID) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM block_list WHERE user_id=$1 AND blocked_id=$2)`
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, q, a, b).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// Relations loads every edge touching id.
func (r *BlockRepo) Relations(ctx context.Context, id model.ParticipantID) (model.BlockSet, error) {
	const q = `SELECT user_id, blocked_id FROM block_list WHERE user_id=$1 OR blocked_id=$1`
	rows, err := r.db.Pool.Query(ctx, q, id)
	if err != nil {
		return model.BlockSet{}, err
	}
	defer rows.Close()

	set := model.BlockSet{
		Blocked:   map[model.ParticipantID]struct{}{},
		BlockedBy: map[model.ParticipantID]struct{}{},
	}
	for rows.Next() {
		var from, to int64
		if err := rows.Scan(&from, &to); err != nil {
			return model.BlockSet{}, err
		}
		if from == id {
			set.Blocked[to] = struct{}{}
		}
		if to == id {
			set.BlockedBy[from] = struct{}{}
		}
	}
	return set, rows.Err()
}
