package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/anonmatch/internal/errs"
	"github.com/and161185/anonmatch/internal/model"
)

var profileColNames = []string{"user_id", "gender", "age", "hobbies", "is_pro", "banned"}

func TestProfileRepo_GetProfile(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewProfileRepo(db)
	ctx := context.Background()

	mock.ExpectQuery(`FROM user_profiles WHERE user_id=\$1`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(profileColNames).
			AddRow(int64(1), strp("Female"), intp(22), []string{"Music"}, true, false))

	p, err := r.GetProfile(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, model.GenderFemale, p.Gender)
	require.Equal(t, 22, *p.Age)
	require.True(t, p.IsPro)
	require.True(t, p.HasHobby("Music"))

	mock.ExpectQuery(`FROM user_profiles WHERE user_id=\$1`).
		WithArgs(int64(2)).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetProfile(ctx, 2)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestProfileRepo_ListEligible(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewProfileRepo(db)

	mock.ExpectQuery(`(?s)FROM user_profiles\s+WHERE user_id <> \$1 .*ORDER BY user_id ASC`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(profileColNames).
			AddRow(int64(2), (*string)(nil), (*int)(nil), []string(nil), false, false).
			AddRow(int64(3), strp("Male"), intp(40), []string{"Sports"}, false, false))

	list, err := r.ListEligible(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Empty(t, list[0].Gender)
	require.Nil(t, list[0].Age)
	require.Equal(t, model.GenderMale, list[1].Gender)
}
