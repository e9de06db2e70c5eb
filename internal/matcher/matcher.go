// Package matcher selects a chat partner from a snapshot of eligible profiles.
package matcher

import (
	"slices"

	"github.com/and161185/anonmatch/internal/model"
)

// Pool is the snapshot a matching attempt runs against.
type Pool struct {
	Profiles []model.Profile                  // candidate profiles, any order
	Paired   map[model.ParticipantID]struct{} // participants with an active session
	Blocks   model.BlockSet                   // requester's block relations
}

// FindCandidate returns the first acceptable partner for requester.
//
// Filters are soft: a candidate with an unset gender or age passes the corresponding
// filter. A hobby filter only reorders preference; when no candidate shares the hobby
// the first acceptable candidate is returned. Iteration is by ascending participant id.
func FindCandidate(requester model.ParticipantID, f model.Filters, pool Pool) (model.ParticipantID, bool) {
	eligible := make([]model.Profile, 0, len(pool.Profiles))
	for _, p := range pool.Profiles {
		if accept(requester, f, pool, p) {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return 0, false
	}
	slices.SortFunc(eligible, func(a, b model.Profile) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	if f.HasHobby() {
		for _, p := range eligible {
			if p.HasHobby(f.Hobby) {
				return p.ID, true
			}
		}
	}
	return eligible[0].ID, true
}

func accept(requester model.ParticipantID, f model.Filters, pool Pool, p model.Profile) bool {
	if p.ID == requester || p.IsBanned {
		return false
	}
	if _, busy := pool.Paired[p.ID]; busy {
		return false
	}
	if f.HasGender() && p.Gender != "" && p.Gender != f.Gender {
		return false
	}
	if f.HasAgeRange() && p.Age != nil && (*p.Age < *f.AgeMin || *p.Age > *f.AgeMax) {
		return false
	}
	return !pool.Blocks.Excludes(p.ID)
}
