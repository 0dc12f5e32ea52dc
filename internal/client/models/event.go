package models

import (
	"encoding/json"
	"time"
)

// ExternalEvent is an immutable, backbone-ordered record of something another
// device or peer did. Index is the resumption cursor.
type ExternalEvent struct {
	ID             string          `json:"id"`
	Index          int64           `json:"index"`
	CreatedAt      time.Time       `json:"createdAt"`
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	SyncErrorCount int             `json:"syncErrorCount"`
}

// EventFailure is the local bookkeeping of an event that failed to process.
// A permanent failure needs explicit resolution before the cursor may pass it
// (unless the skip policy is in effect).
type EventFailure struct {
	EventID    string
	EventIndex int64
	Type       string
	ErrorCount int
	LastError  string
	Permanent  bool
	UpdatedAt  time.Time
}
