package memory

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/anonmatch/internal/errs"
	"github.com/and161185/anonmatch/internal/model"
)

func TestQueueRepo_UpsertAndEvict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewQueueRepo()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, q.Enqueue(ctx, model.QueueEntry{ParticipantID: 1, EnqueuedAt: t0}))
	require.NoError(t, q.Enqueue(ctx, model.QueueEntry{ParticipantID: 1, Filters: model.Filters{Hobby: "Music"}, EnqueuedAt: t0.Add(time.Minute)}))
	require.NoError(t, q.Enqueue(ctx, model.QueueEntry{ParticipantID: 2, IsPro: true, EnqueuedAt: t0}))

	list, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2, "re-enqueue replaces the entry")
	require.Equal(t, model.ParticipantID(2), list[0].ParticipantID)
	require.Equal(t, "Music", list[1].Filters.Hobby)

	st, err := q.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, model.QueueStats{Total: 2, Pro: 1, Regular: 1}, st)

	evicted, err := q.EvictOlderThan(ctx, t0.Add(30*time.Second))
	require.NoError(t, err)
	require.Equal(t, []model.ParticipantID{2}, evicted)

	_, err = q.Get(ctx, 2)
	require.ErrorIs(t, err, errs.ErrNotFound)

	ok, err := q.Dequeue(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = q.Dequeue(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSessionRepo_PairingIsSymmetricAndExclusive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewQueueRepo()
	s := NewSessionRepo(q)
	now := time.Now()

	require.NoError(t, q.Enqueue(ctx, model.QueueEntry{ParticipantID: 1, EnqueuedAt: now}))
	require.NoError(t, q.Enqueue(ctx, model.QueueEntry{ParticipantID: 2, EnqueuedAt: now}))

	pid := uuid.Must(uuid.NewV4())
	a := model.Session{ParticipantID: 1, PartnerID: 2, PairID: pid, StartedAt: now}
	b := model.Session{ParticipantID: 2, PartnerID: 1, PairID: pid, StartedAt: now}
	require.NoError(t, s.CreatePairing(ctx, a, b))

	st, _ := q.Stats(ctx)
	require.Zero(t, st.Total, "pairing drops both queue rows")

	p, err := s.GetPartner(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, model.ParticipantID(1), p)

	c := model.Session{ParticipantID: 3, PartnerID: 1}
	d := model.Session{ParticipantID: 1, PartnerID: 3}
	require.ErrorIs(t, s.CreatePairing(ctx, c, d), errs.ErrAlreadyPaired)
	_, err = s.Get(ctx, 3)
	require.ErrorIs(t, err, errs.ErrNotFound, "failed pairing leaves no half row")

	require.NoError(t, s.SetSecretMode(ctx, 1, true))
	row, err := s.Get(ctx, 2)
	require.NoError(t, err)
	require.True(t, row.SecretMode, "secret mode is shared by the pair")

	n, _ := s.CountActive(ctx)
	require.Equal(t, 1, n)

	p, err = s.EndSession(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, model.ParticipantID(2), p)
	_, err = s.GetPartner(ctx, 2)
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = s.EndSession(ctx, 1)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.ErrorIs(t, s.SetSecretMode(ctx, 1, true), errs.ErrNotFound)
}

func TestSessionRepo_EndPairOnlyTouchesThatPair(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewSessionRepo(nil)
	now := time.Now()

	old := uuid.Must(uuid.NewV4())
	require.NoError(t, s.CreatePairing(ctx,
		model.Session{ParticipantID: 1, PartnerID: 2, PairID: old, StartedAt: now},
		model.Session{ParticipantID: 2, PartnerID: 1, PairID: old, StartedAt: now}))
	_, err := s.EndSession(ctx, 1)
	require.NoError(t, err)

	cur := uuid.Must(uuid.NewV4())
	require.NoError(t, s.CreatePairing(ctx,
		model.Session{ParticipantID: 1, PartnerID: 3, PairID: cur, StartedAt: now},
		model.Session{ParticipantID: 3, PartnerID: 1, PairID: cur, StartedAt: now}))

	ended, err := s.EndPair(ctx, old)
	require.NoError(t, err)
	require.False(t, ended)
	p, err := s.GetPartner(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, model.ParticipantID(1), p)

	ended, err = s.EndPair(ctx, cur)
	require.NoError(t, err)
	require.True(t, ended)
	n, _ := s.CountActive(ctx)
	require.Zero(t, n)
}

func TestProfileRepo_EligibleAndBlocks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := NewProfileRepo(model.Profile{ID: 3}, model.Profile{ID: 1}, model.Profile{ID: 2, IsBanned: true})
	r.Put(model.Profile{ID: 4})
	r.Block(1, 3)
	r.Block(4, 1)

	list, err := r.ListEligible(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, model.ParticipantID(3), list[0].ID)
	require.Equal(t, model.ParticipantID(4), list[1].ID)

	ok, _ := r.IsBlocked(ctx, 1, 3)
	require.True(t, ok)
	ok, _ = r.IsBlocked(ctx, 3, 1)
	require.False(t, ok)

	set, err := r.Relations(ctx, 1)
	require.NoError(t, err)
	require.True(t, set.Excludes(3))
	require.True(t, set.Excludes(4))
	require.False(t, set.Excludes(2))

	_, err = r.GetProfile(ctx, 99)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestOpenProfileRepo_RegistersOnFirstSight(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := NewOpenProfileRepo()

	p, err := r.GetProfile(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, model.ParticipantID(42), p.ID)

	list, err := r.ListEligible(ctx, 7)
	require.NoError(t, err)
	require.Len(t, list, 1, "a registered participant becomes a candidate")
}
