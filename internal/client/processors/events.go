// Package processors turns external events into state transitions. Each
// event type has a typed payload, validated against an embedded schema
// before it is decoded, and one handler that drives the owning controller.
package processors

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/datawallet/internal/client/models"
	"github.com/dmitrijs2005/datawallet/internal/common"
)

// EventType discriminates external event payloads.
type EventType string

const (
	MessageReceived                      EventType = "MessageReceived"
	MessageDelivered                     EventType = "MessageDelivered"
	RelationshipStatusChanged            EventType = "RelationshipStatusChanged"
	RelationshipReactivationRequested    EventType = "RelationshipReactivationRequested"
	RelationshipReactivationCompleted    EventType = "RelationshipReactivationCompleted"
	PeerToBeDeleted                      EventType = "PeerToBeDeleted"
	PeerDeletionCancelled                EventType = "PeerDeletionCancelled"
	PeerDeleted                          EventType = "PeerDeleted"
	IdentityDeletionProcessStarted       EventType = "IdentityDeletionProcessStarted"
	IdentityDeletionProcessStatusChanged EventType = "IdentityDeletionProcessStatusChanged"
	FileOwnershipClaimed                 EventType = "FileOwnershipClaimed"
	FileOwnershipLocked                  EventType = "FileOwnershipLocked"
)

var eventTypes = []EventType{
	MessageReceived,
	MessageDelivered,
	RelationshipStatusChanged,
	RelationshipReactivationRequested,
	RelationshipReactivationCompleted,
	PeerToBeDeleted,
	PeerDeletionCancelled,
	PeerDeleted,
	IdentityDeletionProcessStarted,
	IdentityDeletionProcessStatusChanged,
	FileOwnershipClaimed,
	FileOwnershipLocked,
}

// Known reports whether t is an event type this client handles.
func (t EventType) Known() bool {
	for _, k := range eventTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Payload is implemented only by the payload types of this package.
type Payload interface {
	Type() EventType
	isPayload()
}

type MessageReceivedPayload struct {
	ID         string          `json:"id"`
	CreatedBy  string          `json:"createdBy"`
	Recipients []string        `json:"recipients"`
	Content    json.RawMessage `json:"content"`
	CreatedAt  time.Time       `json:"createdAt"`
}

type MessageDeliveredPayload struct {
	ID          string    `json:"id"`
	Recipient   string    `json:"recipient"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

type RelationshipStatusChangedPayload struct {
	RelationshipID  string                    `json:"relationshipId"`
	Peer            string                    `json:"peer"`
	Status          models.RelationshipStatus `json:"status"`
	CreationContent json.RawMessage           `json:"creationContent,omitempty"`
}

type RelationshipReactivationRequestedPayload struct {
	RelationshipID string `json:"relationshipId"`
	RequestedBy    string `json:"requestedBy"`
}

type RelationshipReactivationCompletedPayload struct {
	RelationshipID string `json:"relationshipId"`
	Peer           string `json:"peer"`
}

type PeerToBeDeletedPayload struct {
	RelationshipID string `json:"relationshipId"`
	DeletionDate   string `json:"deletionDate"`
}

type PeerDeletionCancelledPayload struct {
	RelationshipID string `json:"relationshipId"`
}

type PeerDeletedPayload struct {
	RelationshipID string `json:"relationshipId"`
	DeletionDate   string `json:"deletionDate"`
}

type IdentityDeletionProcessStartedPayload struct {
	DeletionProcessID string                        `json:"deletionProcessId"`
	Status            models.IdentityDeletionStatus `json:"status,omitempty"`
	GracePeriodEndsAt string                        `json:"gracePeriodEndsAt,omitempty"`
}

type IdentityDeletionProcessStatusChangedPayload struct {
	DeletionProcessID string                        `json:"deletionProcessId"`
	Status            models.IdentityDeletionStatus `json:"status"`
	GracePeriodEndsAt string                        `json:"gracePeriodEndsAt,omitempty"`
}

type FileOwnershipClaimedPayload struct {
	FileID   string `json:"fileId"`
	NewOwner string `json:"newOwner"`
}

type FileOwnershipLockedPayload struct {
	FileID string `json:"fileId"`
}

func (*MessageReceivedPayload) Type() EventType           { return MessageReceived }
func (*MessageDeliveredPayload) Type() EventType          { return MessageDelivered }
func (*RelationshipStatusChangedPayload) Type() EventType { return RelationshipStatusChanged }
func (*RelationshipReactivationRequestedPayload) Type() EventType {
	return RelationshipReactivationRequested
}
func (*RelationshipReactivationCompletedPayload) Type() EventType {
	return RelationshipReactivationCompleted
}
func (*PeerToBeDeletedPayload) Type() EventType                { return PeerToBeDeleted }
func (*PeerDeletionCancelledPayload) Type() EventType          { return PeerDeletionCancelled }
func (*PeerDeletedPayload) Type() EventType                    { return PeerDeleted }
func (*IdentityDeletionProcessStartedPayload) Type() EventType { return IdentityDeletionProcessStarted }
func (*IdentityDeletionProcessStatusChangedPayload) Type() EventType {
	return IdentityDeletionProcessStatusChanged
}
func (*FileOwnershipClaimedPayload) Type() EventType { return FileOwnershipClaimed }
func (*FileOwnershipLockedPayload) Type() EventType  { return FileOwnershipLocked }

func (*MessageReceivedPayload) isPayload()                      {}
func (*MessageDeliveredPayload) isPayload()                     {}
func (*RelationshipStatusChangedPayload) isPayload()            {}
func (*RelationshipReactivationRequestedPayload) isPayload()    {}
func (*RelationshipReactivationCompletedPayload) isPayload()    {}
func (*PeerToBeDeletedPayload) isPayload()                      {}
func (*PeerDeletionCancelledPayload) isPayload()                {}
func (*PeerDeletedPayload) isPayload()                          {}
func (*IdentityDeletionProcessStartedPayload) isPayload()       {}
func (*IdentityDeletionProcessStatusChangedPayload) isPayload() {}
func (*FileOwnershipClaimedPayload) isPayload()                 {}
func (*FileOwnershipLockedPayload) isPayload()                  {}

func newPayload(t EventType) Payload {
	switch t {
	case MessageReceived:
		return &MessageReceivedPayload{}
	case MessageDelivered:
		return &MessageDeliveredPayload{}
	case RelationshipStatusChanged:
		return &RelationshipStatusChangedPayload{}
	case RelationshipReactivationRequested:
		return &RelationshipReactivationRequestedPayload{}
	case RelationshipReactivationCompleted:
		return &RelationshipReactivationCompletedPayload{}
	case PeerToBeDeleted:
		return &PeerToBeDeletedPayload{}
	case PeerDeletionCancelled:
		return &PeerDeletionCancelledPayload{}
	case PeerDeleted:
		return &PeerDeletedPayload{}
	case IdentityDeletionProcessStarted:
		return &IdentityDeletionProcessStartedPayload{}
	case IdentityDeletionProcessStatusChanged:
		return &IdentityDeletionProcessStatusChangedPayload{}
	case FileOwnershipClaimed:
		return &FileOwnershipClaimedPayload{}
	case FileOwnershipLocked:
		return &FileOwnershipLockedPayload{}
	}
	return nil
}

// Decode validates the payload of ev against the schema of its type and
// returns it typed. Unknown types yield common.ErrUnknownEventType and
// malformed payloads common.ErrValidation.
func Decode(ev *models.ExternalEvent) (Payload, error) {
	t := EventType(ev.Type)
	p := newPayload(t)
	if p == nil {
		return nil, fmt.Errorf("event %s type %q: %w", ev.ID, ev.Type, common.ErrUnknownEventType)
	}

	s, err := loadSchema()
	if err != nil {
		return nil, err
	}
	if err := s.validate(t, ev.Payload); err != nil {
		return nil, fmt.Errorf("event %s: %w", ev.ID, err)
	}
	if err := json.Unmarshal(ev.Payload, p); err != nil {
		return nil, fmt.Errorf("event %s: decode %s: %w: %v", ev.ID, t, common.ErrValidation, err)
	}
	return p, nil
}
