package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/and161185/anonmatch/internal/errs"
	"github.com/and161185/anonmatch/internal/model"
)

// ProfileRepo is a map-backed ProfileRepository that also serves as a BlockRepository.
type ProfileRepo struct {
	mu       sync.RWMutex
	profiles map[model.ParticipantID]model.Profile
	blocks   map[model.ParticipantID]map[model.ParticipantID]struct{}
	open     bool
}

// NewProfileRepo constructs a repository seeded with the given profiles.
func NewProfileRepo(profiles ...model.Profile) *ProfileRepo {
	r := &ProfileRepo{
		profiles: make(map[model.ParticipantID]model.Profile, len(profiles)),
		blocks:   make(map[model.ParticipantID]map[model.ParticipantID]struct{}),
	}
	for _, p := range profiles {
		r.profiles[p.ID] = p
	}
	return r
}

// NewOpenProfileRepo constructs an empty repository that registers a blank profile
// for every participant it is asked about. Used by the memory store of the server.
func NewOpenProfileRepo() *ProfileRepo {
	r := NewProfileRepo()
	r.open = true
	return r
}

// Put inserts or replaces a profile.
func (r *ProfileRepo) Put(p model.Profile) {
	r.mu.Lock()
	r.profiles[p.ID] = p
	r.mu.Unlock()
}

// Block records that a blocked b.
func (r *ProfileRepo) Block(a, b model.ParticipantID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.blocks[a] == nil {
		r.blocks[a] = make(map[model.ParticipantID]struct{})
	}
	r.blocks[a][b] = struct{}{}
}

func (r *ProfileRepo) GetProfile(_ context.Context, id model.ParticipantID) (model.Profile, error) {
	r.mu.RLock()
	p, ok := r.profiles[id]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}
	if !r.open {
		return model.Profile{}, errs.ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.profiles[id]; ok {
		return p, nil
	}
	p = model.Profile{ID: id}
	r.profiles[id] = p
	return p, nil
}

func (r *ProfileRepo) ListEligible(_ context.Context, except model.ParticipantID) ([]model.Profile, error) {
	r.mu.RLock()
	out := make([]model.Profile, 0, len(r.profiles))
	for id, p := range r.profiles {
		if id != except && !p.IsBanned {
			out = append(out, p)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b model.Profile) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}

func (r *ProfileRepo) IsBlocked(_ context.Context, a, b model.ParticipantID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.blocks[a][b]
	return ok, nil
}

func (r *ProfileRepo) Relations(_ context.Context, id model.ParticipantID) (model.BlockSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := model.BlockSet{
		Blocked:   make(map[model.ParticipantID]struct{}, len(r.blocks[id])),
		BlockedBy: make(map[model.ParticipantID]struct{}),
	}
	for b := range r.blocks[id] {
		set.Blocked[b] = struct{}{}
	}
	for a, targets := range r.blocks {
		if _, ok := targets[id]; ok {
			set.BlockedBy[a] = struct{}{}
		}
	}
	return set, nil
}
