package models

import "time"

// PendingDirection marks which side of a pending request the snapshot owner is on.
type PendingDirection string

const (
	PendingReceived PendingDirection = "received"
	PendingSent     PendingDirection = "sent"
)

// PendingEntry is one pending request as seen from the snapshot owner's side.
type PendingEntry struct {
	RequestID   string           `json:"requestId"`
	Direction   PendingDirection `json:"direction"`
	Counterpart *UserBasicInfo   `json:"counterpart"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// PendingSnapshot is the complete current pending-request list for one user.
// The live feed always delivers whole snapshots, never diffs: a client must
// replace its prior state with each one, which keeps delivery safe under
// duplication and reordering.
type PendingSnapshot struct {
	UserID      string         `json:"userId"`
	Requests    []PendingEntry `json:"requests"`
	GeneratedAt time.Time      `json:"generatedAt"`
}
