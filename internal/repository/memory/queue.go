// Package memory holds in-process repository implementations for single-instance
// deployments and tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/and161185/anonmatch/internal/errs"
	"github.com/and161185/anonmatch/internal/model"
)

// QueueRepo is a map-backed QueueRepository.
type QueueRepo struct {
	mu      sync.Mutex
	entries map[model.ParticipantID]model.QueueEntry
}

// NewQueueRepo constructs an empty queue.
func NewQueueRepo() *QueueRepo {
	return &QueueRepo{entries: make(map[model.ParticipantID]model.QueueEntry)}
}

func (r *QueueRepo) Enqueue(_ context.Context, e model.QueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.ParticipantID] = e
	return nil
}

func (r *QueueRepo) Dequeue(_ context.Context, id model.ParticipantID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remove(id), nil
}

func (r *QueueRepo) remove(id model.ParticipantID) bool {
	_, ok := r.entries[id]
	delete(r.entries, id)
	return ok
}

func (r *QueueRepo) Get(_ context.Context, id model.ParticipantID) (model.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return model.QueueEntry{}, errs.ErrNotFound
	}
	return e, nil
}

func (r *QueueRepo) List(_ context.Context) ([]model.QueueEntry, error) {
	r.mu.Lock()
	out := make([]model.QueueEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b model.QueueEntry) int {
		if c := a.EnqueuedAt.Compare(b.EnqueuedAt); c != 0 {
			return c
		}
		switch {
		case a.ParticipantID < b.ParticipantID:
			return -1
		case a.ParticipantID > b.ParticipantID:
			return 1
		}
		return 0
	})
	return out, nil
}

func (r *QueueRepo) EvictOlderThan(_ context.Context, cutoff time.Time) ([]model.ParticipantID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.ParticipantID
	for id, e := range r.entries {
		if e.EnqueuedAt.Before(cutoff) {
			out = append(out, id)
			delete(r.entries, id)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (r *QueueRepo) Stats(_ context.Context) (model.QueueStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var st model.QueueStats
	for _, e := range r.entries {
		st.Total++
		if e.IsPro {
			st.Pro++
		}
	}
	st.Regular = st.Total - st.Pro
	return st, nil
}
