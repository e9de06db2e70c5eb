package grpcserver

import (
	"context"

	"github.com/and161185/anonmatch/internal/model"
)

type ctxKey string

const participantKey ctxKey = "am.participant"

// WithParticipant stores the authenticated participant id in context.
func WithParticipant(ctx context.Context, id model.ParticipantID) context.Context {
	return context.WithValue(ctx, participantKey, id)
}

// ParticipantFromCtx fetches the participant id from context.
func ParticipantFromCtx(ctx context.Context) (model.ParticipantID, bool) {
	id, ok := ctx.Value(participantKey).(model.ParticipantID)
	return id, ok
}
