package repository

import (
	"context"
	"time"

	"github.com/and161185/anonmatch/internal/model"
)

// QueueRepository stores outstanding search requests, one per participant.
type QueueRepository interface {
	// Enqueue inserts or replaces the participant's entry.
	Enqueue(ctx context.Context, e model.QueueEntry) error
	// Dequeue removes the participant's entry and reports whether one existed.
	Dequeue(ctx context.Context, id model.ParticipantID) (bool, error)
	// Get returns the participant's entry or errs.ErrNotFound.
	Get(ctx context.Context, id model.ParticipantID) (model.QueueEntry, error)
	// List returns all entries, oldest first.
	List(ctx context.Context) ([]model.QueueEntry, error)
	// EvictOlderThan removes entries enqueued before cutoff and returns their owners.
	EvictOlderThan(ctx context.Context, cutoff time.Time) ([]model.ParticipantID, error)
	// Stats counts queued participants.
	Stats(ctx context.Context) (model.QueueStats, error)
}
