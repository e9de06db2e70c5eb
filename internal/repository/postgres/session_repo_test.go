package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/anonmatch/internal/errs"
	"github.com/and161185/anonmatch/internal/model"
)

const insertSession = `INSERT INTO sessions \(user_id, partner_id, pair_id, started_at, secret_mode\) VALUES \(\$1,\$2,\$3,\$4,\$5\)`

func pair(a, b model.ParticipantID, at time.Time) (model.Session, model.Session) {
	id := uuid.Must(uuid.NewV4())
	return model.Session{ParticipantID: a, PartnerID: b, PairID: id, StartedAt: at},
		model.Session{ParticipantID: b, PartnerID: a, PairID: id, StartedAt: at}
}

func TestSessionRepo_CreatePairing_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)

	now := time.Now().UTC()
	a, b := pair(1, 2, now)

	mock.ExpectBegin()
	mock.ExpectExec(insertSession).
		WithArgs(int64(1), int64(2), a.PairID, now, false).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(insertSession).
		WithArgs(int64(2), int64(1), a.PairID, now, false).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM chat_queue WHERE user_id IN \(\$1, \$2\)`).
		WithArgs(int64(1), int64(2)).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCommit()

	require.NoError(t, r.CreatePairing(context.Background(), a, b))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepo_CreatePairing_ConflictRollsBack(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)

	now := time.Now().UTC()
	a, b := pair(1, 2, now)

	mock.ExpectBegin()
	mock.ExpectExec(insertSession).
		WithArgs(int64(1), int64(2), a.PairID, now, false).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(insertSession).
		WithArgs(int64(2), int64(1), a.PairID, now, false).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := r.CreatePairing(context.Background(), a, b)
	require.ErrorIs(t, err, errs.ErrAlreadyPaired)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepo_GetPartner(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT partner_id FROM sessions WHERE user_id=\$1`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"partner_id"}).AddRow(int64(2)))
	p, err := r.GetPartner(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, model.ParticipantID(2), p)

	mock.ExpectQuery(`SELECT partner_id FROM sessions WHERE user_id=\$1`).
		WithArgs(int64(3)).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetPartner(ctx, 3)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestSessionRepo_Get(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)

	id := uuid.Must(uuid.NewV4())
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT user_id, partner_id, pair_id, started_at, secret_mode FROM sessions WHERE user_id=\$1`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "partner_id", "pair_id", "started_at", "secret_mode"}).
			AddRow(int64(1), int64(2), id, now, true))

	s, err := r.Get(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, model.Session{ParticipantID: 1, PartnerID: 2, PairID: id, StartedAt: now, SecretMode: true}, s)
}

func TestSessionRepo_EndSession(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT partner_id FROM sessions WHERE user_id=\$1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"partner_id"}).AddRow(int64(2)))
	mock.ExpectExec(`DELETE FROM sessions WHERE user_id IN \(\$1, \$2\)`).
		WithArgs(int64(1), int64(2)).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCommit()

	p, err := r.EndSession(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, model.ParticipantID(2), p)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepo_EndSession_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT partner_id FROM sessions WHERE user_id=\$1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := r.EndSession(context.Background(), 1)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestSessionRepo_EndPair(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectExec(`DELETE FROM sessions WHERE pair_id=\$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	ended, err := r.EndPair(ctx, id)
	require.NoError(t, err)
	require.True(t, ended)

	mock.ExpectExec(`DELETE FROM sessions WHERE pair_id=\$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	ended, err = r.EndPair(ctx, id)
	require.NoError(t, err)
	require.False(t, ended, "pair already ended")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepo_SetSecretMode(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE sessions SET secret_mode=\$2`).
		WithArgs(int64(1), true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	require.NoError(t, r.SetSecretMode(ctx, 1, true))

	mock.ExpectExec(`UPDATE sessions SET secret_mode=\$2`).
		WithArgs(int64(9), true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.SetSecretMode(ctx, 9, true), errs.ErrNotFound)
}

func TestSessionRepo_ListPairedAndCount(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT user_id FROM sessions`).
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow(int64(1)).AddRow(int64(2)))
	paired, err := r.ListPaired(ctx)
	require.NoError(t, err)
	require.Len(t, paired, 2)
	require.Contains(t, paired, model.ParticipantID(1))

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sessions`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(4))
	n, err := r.CountActive(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
