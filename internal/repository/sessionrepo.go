package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/anonmatch/internal/model"
)

// SessionRepository stores active pairings as two mirrored rows.
type SessionRepository interface {
	// CreatePairing writes both rows and drops both queue entries atomically.
	// Returns errs.ErrAlreadyPaired if either side already has a session.
	CreatePairing(ctx context.Context, a, b model.Session) error
	// GetPartner returns the partner id or errs.ErrNotFound.
	GetPartner(ctx context.Context, id model.ParticipantID) (model.ParticipantID, error)
	// Get returns the participant's session row or errs.ErrNotFound.
	Get(ctx context.Context, id model.ParticipantID) (model.Session, error)
	// EndSession removes both rows and returns the partner, or errs.ErrNotFound.
	EndSession(ctx context.Context, id model.ParticipantID) (model.ParticipantID, error)
	// EndPair removes both rows of the given pairing and reports whether they still existed.
	EndPair(ctx context.Context, pairID uuid.UUID) (bool, error)
	// SetSecretMode updates the flag on both rows of the participant's pair.
	SetSecretMode(ctx context.Context, id model.ParticipantID, on bool) error
	// ListPaired returns every participant that currently has a session.
	ListPaired(ctx context.Context) (map[model.ParticipantID]struct{}, error)
	// CountActive returns the number of active pairs.
	CountActive(ctx context.Context) (int, error)
}
