package model

import "time"

// EventKind enumerates notifications emitted to participants.
type EventKind string

const (
	EventPartnerFound    EventKind = "partner_found"
	EventPartnerLeft     EventKind = "partner_left"
	EventChatEnded       EventKind = "chat_ended"
	EventSearchTimedOut  EventKind = "search_timed_out"
	EventSearchCancelled EventKind = "search_cancelled"
	EventDeliveryFailed  EventKind = "delivery_failed"
)

// LeaveReason tells a participant why the partner left.
type LeaveReason string

const (
	LeaveStop LeaveReason = "stop"
	LeaveNext LeaveReason = "next"
)

// Event is a notification addressed to a single participant.
type Event struct {
	Kind      EventKind
	PartnerID ParticipantID // set for PartnerFound
	Reason    LeaveReason   // set for PartnerLeft
	At        time.Time
}

// PartnerFound builds the pairing notification.
func PartnerFound(partner ParticipantID, at time.Time) Event {
	return Event{Kind: EventPartnerFound, PartnerID: partner, At: at}
}

// PartnerLeft builds the notification for the displaced partner.
func PartnerLeft(reason LeaveReason, at time.Time) Event {
	return Event{Kind: EventPartnerLeft, Reason: reason, At: at}
}

// Simple builds an event without payload.
func Simple(kind EventKind, at time.Time) Event {
	return Event{Kind: kind, At: at}
}
