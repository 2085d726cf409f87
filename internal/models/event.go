package models

import "time"

// RelationshipEventType enumerates the transitions that produce an event.
type RelationshipEventType string

const (
	EventRequested RelationshipEventType = "requested"
	EventAccepted  RelationshipEventType = "accepted"
	EventRejected  RelationshipEventType = "rejected"
	EventRemoved   RelationshipEventType = "removed"
)

// RelationshipEvent is the transient record of one committed transition.
// It is published to the notifications topic after the transaction commits;
// delivery is best effort and never feeds back into relationship state.
type RelationshipEvent struct {
	Type          RelationshipEventType `json:"type"`
	ActorID       string                `json:"actorId"`
	CounterpartID string                `json:"counterpartId"`
	Timestamp     time.Time             `json:"timestamp"`
}
