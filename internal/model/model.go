// Package model defines domain entities used by services and repositories.
package model

import (
	"fmt"
	"slices"
	"time"

	"github.com/gofrs/uuid/v5"
)

// ParticipantID is an opaque participant identity (a Telegram chat id in the bot deployment).
type ParticipantID = int64

// Gender is a self-reported profile gender. The empty value means "unset".
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

// Any is the wildcard accepted by gender and hobby filters.
const Any = "Any"

// Age bounds accepted by search filters.
const (
	MinAge = 13
	MaxAge = 100
)

// Valid reports whether g is a known gender or unset.
func (g Gender) Valid() bool {
	switch g {
	case "", GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// Profile is the read-only snapshot of a participant the engine matches on.
type Profile struct {
	ID       ParticipantID
	Gender   Gender   // "" if never filled in
	Age      *int     // nil if never filled in
	Hobbies  []string // may be empty
	IsPro    bool     // pro subscription not yet expired
	IsBanned bool     // ban active right now
}

// HasHobby reports whether the profile lists the hobby.
func (p Profile) HasHobby(h string) bool { return slices.Contains(p.Hobbies, h) }

// Filters are soft matching constraints attached to a search request.
type Filters struct {
	Gender Gender // "" or "Any" means no constraint
	Hobby  string // "" or "Any" means no constraint
	AgeMin *int   // range applies only when both bounds are set
	AgeMax *int
}

// HasGender reports whether the gender filter constrains the pool.
func (f Filters) HasGender() bool { return f.Gender != "" && string(f.Gender) != Any }

// HasHobby reports whether the hobby filter constrains the pool.
func (f Filters) HasHobby() bool { return f.Hobby != "" && f.Hobby != Any }

// HasAgeRange reports whether both age bounds are present.
func (f Filters) HasAgeRange() bool { return f.AgeMin != nil && f.AgeMax != nil }

// Validate checks gender and age bounds. A lone bound is accepted and ignored by matching.
func (f Filters) Validate() error {
	if string(f.Gender) != Any && !f.Gender.Valid() {
		return fmt.Errorf("unknown gender %q", f.Gender)
	}
	for _, b := range []*int{f.AgeMin, f.AgeMax} {
		if b != nil && (*b < MinAge || *b > MaxAge) {
			return fmt.Errorf("age %d outside %d-%d", *b, MinAge, MaxAge)
		}
	}
	if f.HasAgeRange() && *f.AgeMin > *f.AgeMax {
		return fmt.Errorf("age range %d-%d is inverted", *f.AgeMin, *f.AgeMax)
	}
	return nil
}

// QueueEntry is a participant's outstanding, unmatched search request.
type QueueEntry struct {
	ParticipantID ParticipantID
	Filters       Filters
	IsPro         bool
	EnqueuedAt    time.Time
}

// Session is one direction of an active pairing; the partner holds the mirror row.
type Session struct {
	ParticipantID ParticipantID
	PartnerID     ParticipantID
	PairID        uuid.UUID // shared by both rows
	StartedAt     time.Time
	SecretMode    bool
}

// BlockSet holds a participant's block relations in both directions.
type BlockSet struct {
	Blocked   map[ParticipantID]struct{} // participants this one blocked
	BlockedBy map[ParticipantID]struct{} // participants that blocked this one
}

// Excludes reports whether id is blocked in either direction.
func (b BlockSet) Excludes(id ParticipantID) bool {
	if _, ok := b.Blocked[id]; ok {
		return true
	}
	_, ok := b.BlockedBy[id]
	return ok
}

// QueueStats summarizes the waiting queue.
type QueueStats struct {
	Total   int
	Pro     int
	Regular int
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	Queue       QueueStats
	ActiveChats int
}
