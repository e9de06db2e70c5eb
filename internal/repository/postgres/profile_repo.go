package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/anonmatch/internal/errs"
	"github.com/and161185/anonmatch/internal/model"
)

// ProfileRepo implements ProfileRepository over the user_profiles table.
// Pro and ban flags are evaluated against now() so expired subscriptions and bans read as false.
type ProfileRepo struct{ db *DB }

// NewProfileRepo constructs a profile repository.
func NewProfileRepo(db *DB) *ProfileRepo { return &ProfileRepo{db: db} }

const profileCols = `
user_id, gender, age, hobbies,
COALESCE(pro_expires_at > now(), false) AS is_pro,
COALESCE(is_banned AND banned_until > now(), false) AS banned`

// GetProfile selects a single profile.
func (r *ProfileRepo) GetProfile(ctx context.Context, id model.ParticipantID) (model.Profile, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+profileCols+` FROM user_profiles WHERE user_id=$1`, id)
	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Profile{}, errs.ErrNotFound
	}
	return p, err
}

// ListEligible returns every non-banned profile except the given participant, ordered by id.
func (r *ProfileRepo) ListEligible(ctx context.Context, except model.ParticipantID) ([]model.Profile, error) {
	const q = `SELECT ` + profileCols + ` FROM user_profiles
WHERE user_id <> $1 AND NOT COALESCE(is_banned AND banned_until > now(), false)
ORDER BY user_id ASC`
	rows, err := r.db.Pool.Query(ctx, q, except)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProfile(row pgx.Row) (model.Profile, error) {
	var (
		p      model.Profile
		gender *string
	)
	if err := row.Scan(&p.ID, &gender, &p.Age, &p.Hobbies, &p.IsPro, &p.IsBanned); err != nil {
		return model.Profile{}, err
	}
	if gender != nil {
		p.Gender = model.Gender(*gender)
	}
	return p, nil
}
