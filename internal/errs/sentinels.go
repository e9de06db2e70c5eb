// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyPaired indicates a pairing was attempted for a participant that already has a session.
	// With a single matchmaking instance this is a logic bug; across instances it is a lost race.
	ErrAlreadyPaired = errors.New("already paired")

	// ErrNoCandidate is the normal "keep searching" outcome of a matching attempt, not a failure.
	ErrNoCandidate = errors.New("no candidate")

	// ErrDeliveryFailed indicates a notification could not be delivered to a participant.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrQueueEvicted is the cancel cause of a search whose queue entry outlived the eviction ceiling.
	ErrQueueEvicted = errors.New("queue entry evicted")

	// ErrAlreadyInChat indicates the participant already has an active session.
	ErrAlreadyInChat = errors.New("already in chat")

	// ErrNotInChat indicates the participant has no active session.
	ErrNotInChat = errors.New("not in chat")

	// ErrBanned indicates the participant is currently banned.
	ErrBanned = errors.New("banned")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates too many search requests in the current window.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidFilters indicates malformed search filters.
	ErrInvalidFilters = errors.New("invalid filters")

	// ErrClosed indicates the matchmaker is shutting down.
	ErrClosed = errors.New("matchmaker closed")
)
