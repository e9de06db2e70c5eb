package matcher

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/anonmatch/internal/model"
)

func intp(v int) *int { return &v }

func set(ids ...model.ParticipantID) map[model.ParticipantID]struct{} {
	m := make(map[model.ParticipantID]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func TestFindCandidate_EmptyPool(t *testing.T) {
	t.Parallel()

	_, ok := FindCandidate(1, model.Filters{}, Pool{})
	require.False(t, ok)

	_, ok = FindCandidate(1, model.Filters{}, Pool{Profiles: []model.Profile{{ID: 1}}})
	require.False(t, ok, "requester must never match itself")
}

func TestFindCandidate_StableAscendingOrder(t *testing.T) {
	t.Parallel()

	pool := Pool{Profiles: []model.Profile{{ID: 9}, {ID: 4}, {ID: 7}}}
	id, ok := FindCandidate(1, model.Filters{}, pool)
	require.True(t, ok)
	require.Equal(t, model.ParticipantID(4), id)
}

func TestFindCandidate_ExcludesBannedAndPaired(t *testing.T) {
	t.Parallel()

	pool := Pool{
		Profiles: []model.Profile{{ID: 2, IsBanned: true}, {ID: 3}, {ID: 5}},
		Paired:   set(3),
	}
	id, ok := FindCandidate(1, model.Filters{}, pool)
	require.True(t, ok)
	require.Equal(t, model.ParticipantID(5), id)
}

func TestFindCandidate_GenderFilterIsSoft(t *testing.T) {
	t.Parallel()

	f := model.Filters{Gender: model.GenderFemale}

	id, ok := FindCandidate(1, f, Pool{Profiles: []model.Profile{
		{ID: 2, Gender: model.GenderMale},
		{ID: 3, Gender: model.GenderFemale},
	}})
	require.True(t, ok)
	require.Equal(t, model.ParticipantID(3), id)

	id, ok = FindCandidate(1, f, Pool{Profiles: []model.Profile{
		{ID: 2, Gender: model.GenderMale},
		{ID: 4},
	}})
	require.True(t, ok, "unset gender qualifies")
	require.Equal(t, model.ParticipantID(4), id)

	_, ok = FindCandidate(1, f, Pool{Profiles: []model.Profile{{ID: 2, Gender: model.GenderMale}}})
	require.False(t, ok)

	id, ok = FindCandidate(1, model.Filters{Gender: model.Any}, Pool{Profiles: []model.Profile{{ID: 2, Gender: model.GenderMale}}})
	require.True(t, ok, "wildcard disables the filter")
	require.Equal(t, model.ParticipantID(2), id)
}

func TestFindCandidate_AgeRange(t *testing.T) {
	t.Parallel()

	f := model.Filters{AgeMin: intp(18), AgeMax: intp(25)}
	pool := Pool{Profiles: []model.Profile{
		{ID: 2, Age: intp(30)},
		{ID: 3, Age: intp(17)},
		{ID: 4, Age: intp(25)},
	}}
	id, ok := FindCandidate(1, f, pool)
	require.True(t, ok)
	require.Equal(t, model.ParticipantID(4), id)

	id, ok = FindCandidate(1, f, Pool{Profiles: []model.Profile{{ID: 2, Age: intp(30)}, {ID: 6}}})
	require.True(t, ok, "unset age qualifies")
	require.Equal(t, model.ParticipantID(6), id)

	id, ok = FindCandidate(1, model.Filters{AgeMin: intp(18)}, Pool{Profiles: []model.Profile{{ID: 2, Age: intp(40)}}})
	require.True(t, ok, "half-open range is ignored")
	require.Equal(t, model.ParticipantID(2), id)
}

func TestFindCandidate_BlockExclusionBothDirections(t *testing.T) {
	t.Parallel()

	pool := Pool{
		Profiles: []model.Profile{{ID: 2}, {ID: 3}, {ID: 4}},
		Blocks:   model.BlockSet{Blocked: set(2), BlockedBy: set(3)},
	}
	id, ok := FindCandidate(1, model.Filters{}, pool)
	require.True(t, ok)
	require.Equal(t, model.ParticipantID(4), id)

	pool.Profiles = pool.Profiles[:2]
	_, ok = FindCandidate(1, model.Filters{}, pool)
	require.False(t, ok)
}

func TestFindCandidate_HobbyPriorityThenFallthrough(t *testing.T) {
	t.Parallel()

	pool := Pool{Profiles: []model.Profile{
		{ID: 2, Hobbies: []string{"Sports"}},
		{ID: 3, Hobbies: []string{"Music", "Coding"}},
	}}
	id, ok := FindCandidate(1, model.Filters{Hobby: "Coding"}, pool)
	require.True(t, ok)
	require.Equal(t, model.ParticipantID(3), id)

	id, ok = FindCandidate(1, model.Filters{Hobby: "Travel"}, pool)
	require.True(t, ok, "no hobby match falls through to first available")
	require.Equal(t, model.ParticipantID(2), id)

	id, ok = FindCandidate(1, model.Filters{Hobby: model.Any}, pool)
	require.True(t, ok)
	require.Equal(t, model.ParticipantID(2), id)
}

func TestFindCandidate_CombinedFilters(t *testing.T) {
	t.Parallel()

	f := model.Filters{Gender: model.GenderFemale, Hobby: "Music", AgeMin: intp(20), AgeMax: intp(30)}
	pool := Pool{
		Profiles: []model.Profile{
			{ID: 2, Gender: model.GenderFemale, Age: intp(22)},
			{ID: 3, Gender: model.GenderFemale, Age: intp(35), Hobbies: []string{"Music"}},
			{ID: 4, Gender: model.GenderMale, Age: intp(22), Hobbies: []string{"Music"}},
			{ID: 5, Gender: model.GenderFemale, Age: intp(28), Hobbies: []string{"Music"}},
			{ID: 6, Gender: model.GenderFemale, Age: intp(28), Hobbies: []string{"Music"}},
		},
		Blocks: model.BlockSet{BlockedBy: set(5)},
	}
	id, ok := FindCandidate(1, f, pool)
	require.True(t, ok)
	require.Equal(t, model.ParticipantID(6), id)
}
