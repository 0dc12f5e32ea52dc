package models

import (
	"encoding/json"
	"time"
)

type RelationshipStatus string

const (
	RelationshipPending               RelationshipStatus = "Pending"
	RelationshipActive                RelationshipStatus = "Active"
	RelationshipRejected              RelationshipStatus = "Rejected"
	RelationshipRevoked               RelationshipStatus = "Revoked"
	RelationshipTerminated            RelationshipStatus = "Terminated"
	RelationshipReactivationRequested RelationshipStatus = "ReactivationRequested"
	RelationshipDeletionProposed      RelationshipStatus = "DeletionProposed"
)

// relationshipTransitions is the status lattice. Decomposition is not a
// status: a decomposed relationship is removed and leaves a tombstone.
var relationshipTransitions = map[RelationshipStatus][]RelationshipStatus{
	RelationshipPending:               {RelationshipActive, RelationshipRejected, RelationshipRevoked},
	RelationshipActive:                {RelationshipTerminated},
	RelationshipTerminated:            {RelationshipReactivationRequested, RelationshipDeletionProposed},
	RelationshipReactivationRequested: {RelationshipActive, RelationshipTerminated},
}

// CanTransition reports whether a relationship may move directly from s to to.
func (s RelationshipStatus) CanTransition(to RelationshipStatus) bool {
	for _, next := range relationshipTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Decomposable reports whether a relationship in this status may be decomposed.
func (s RelationshipStatus) Decomposable() bool {
	switch s {
	case RelationshipTerminated, RelationshipDeletionProposed, RelationshipRejected, RelationshipRevoked:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s RelationshipStatus) Valid() bool {
	switch s {
	case RelationshipPending, RelationshipActive, RelationshipRejected, RelationshipRevoked,
		RelationshipTerminated, RelationshipReactivationRequested, RelationshipDeletionProposed:
		return true
	}
	return false
}

type PeerDeletionStatus string

const (
	PeerToBeDeleted PeerDeletionStatus = "ToBeDeleted"
	PeerDeleted     PeerDeletionStatus = "Deleted"
)

// PeerDeletionInfo records that the peer's identity is scheduled for, or has
// completed, deletion. DeletionDate is kept verbatim as received.
type PeerDeletionInfo struct {
	DeletionStatus PeerDeletionStatus `json:"deletionStatus"`
	DeletionDate   string             `json:"deletionDate"`
}

type AuditEntry struct {
	CreatedAt time.Time          `json:"createdAt"`
	CreatedBy string             `json:"createdBy"`
	Reason    string             `json:"reason"`
	OldStatus RelationshipStatus `json:"oldStatus,omitempty"`
	NewStatus RelationshipStatus `json:"newStatus"`
}

type Relationship struct {
	Base
	Peer                    string             `json:"peer"`
	IsOwn                   bool               `json:"isOwn"`
	Status                  RelationshipStatus `json:"status"`
	CreationContent         json.RawMessage    `json:"creationContent,omitempty"`
	AuditLog                []AuditEntry       `json:"auditLog"`
	PeerDeletionInfo        *PeerDeletionInfo  `json:"peerDeletionInfo,omitempty"`
	ReactivationRequestedBy string             `json:"reactivationRequestedBy,omitempty"`
	CreatedAt               time.Time          `json:"createdAt"`
	WasViewedAt             *time.Time         `json:"wasViewedAt,omitempty"`
}

func (r *Relationship) Collection() Collection { return CollectionRelationships }

// MessagingAllowed reports whether messages may still be exchanged with the peer.
func (r *Relationship) MessagingAllowed() bool {
	if r.PeerDeletionInfo != nil && r.PeerDeletionInfo.DeletionStatus == PeerDeleted {
		return false
	}
	return r.Status == RelationshipActive
}
