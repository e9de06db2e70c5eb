// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/anonmatch/internal/model"
)

// ProfileRepository provides read-only access to participant profiles.
type ProfileRepository interface {
	// GetProfile loads a single profile; errs.ErrNotFound if the participant is unknown.
	GetProfile(ctx context.Context, id model.ParticipantID) (model.Profile, error)
	// ListEligible returns all non-banned profiles except the given one.
	ListEligible(ctx context.Context, except model.ParticipantID) ([]model.Profile, error)
}

// BlockRepository provides read-only access to block relations.
type BlockRepository interface {
	// IsBlocked reports whether a has blocked b.
	IsBlocked(ctx context.Context, a, b model.ParticipantID) (bool, error)
	// Relations returns the block edges touching id in both directions.
	Relations(ctx context.Context, id model.ParticipantID) (model.BlockSet, error)
}
