// Package notify delivers engine events to participants.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/and161185/anonmatch/internal/crypto"
	"github.com/and161185/anonmatch/internal/model"
)

// Notifier delivers a single event to a single participant. A returned error means the
// participant could not be reached; the engine treats it as a delivery failure.
type Notifier interface {
	Notify(ctx context.Context, to model.ParticipantID, ev model.Event) error
}

// Func adapts a plain function to Notifier.
type Func func(ctx context.Context, to model.ParticipantID, ev model.Event) error

func (f Func) Notify(ctx context.Context, to model.ParticipantID, ev model.Event) error {
	return f(ctx, to, ev)
}

// Log is a Notifier that only writes events to the logger. It never fails.
type Log struct {
	log *zap.Logger
	ids *crypto.Pseudonym
}

// NewLog constructs a logging notifier. ids may be nil, in which case raw ids are logged.
func NewLog(log *zap.Logger, ids *crypto.Pseudonym) *Log {
	return &Log{log: log, ids: ids}
}

func (l *Log) Notify(_ context.Context, to model.ParticipantID, ev model.Event) error {
	fields := []zap.Field{zap.String("kind", string(ev.Kind)), zap.Time("at", ev.At)}
	if l.ids != nil {
		fields = append(fields, l.ids.Field("to", to))
		if ev.Kind == model.EventPartnerFound {
			fields = append(fields, l.ids.Field("partner", ev.PartnerID))
		}
	} else {
		fields = append(fields, zap.Int64("to", to))
	}
	if ev.Reason != "" {
		fields = append(fields, zap.String("reason", string(ev.Reason)))
	}
	l.log.Info("event", fields...)
	return nil
}
