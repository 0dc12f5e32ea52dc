package models

import "time"

type ModificationType string

const (
	ModificationCreate       ModificationType = "Create"
	ModificationUpdate       ModificationType = "Update"
	ModificationDelete       ModificationType = "Delete"
	ModificationCacheChanged ModificationType = "CacheChanged"
)

// Valid reports whether t is a known modification type.
func (t ModificationType) Valid() bool {
	switch t {
	case ModificationCreate, ModificationUpdate, ModificationDelete, ModificationCacheChanged:
		return true
	}
	return false
}

// Modification is one pending local mutation in the modification log.
// Payload is the sealed Groups document (empty for Delete and CacheChanged).
type Modification struct {
	Seq               int64
	IdempotencyKey    string
	ObjectID          string
	Collection        Collection
	Type              ModificationType
	Payload           []byte
	LocalCreatedAt    time.Time
	DatawalletVersion int
}

// RemoteModification is a modification as stored by the backbone, possibly
// created by another device of the same identity.
type RemoteModification struct {
	Index             int64            `json:"index"`
	ObjectID          string           `json:"objectIdentifier"`
	Collection        Collection       `json:"collection"`
	Type              ModificationType `json:"type"`
	Payload           []byte           `json:"encryptedPayload,omitempty"`
	DatawalletVersion int              `json:"datawalletVersion"`
	CreatedByDevice   string           `json:"createdByDevice"`
	CreatedAt         time.Time        `json:"createdAt"`
}
