// Package limiter throttles how often a participant may start a search.
package limiter

import (
	"context"
	"time"

	"github.com/and161185/anonmatch/internal/model"
)

// Limiter decides whether a participant may start another search.
type Limiter interface {
	// Allow records a search attempt and reports whether it is within the budget,
	// with a retry-after when it is not.
	Allow(ctx context.Context, id model.ParticipantID) (bool, time.Duration, error)
}
