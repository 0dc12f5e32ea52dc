package models

import "time"

// Modification is one entry of an identity's datawallet. Index is assigned
// by the backbone and grows by one per identity.
type Modification struct {
	Index             int64
	IdentityID        string
	IdempotencyKey    string
	ObjectID          string
	Collection        string
	Type              string
	Payload           []byte
	DatawalletVersion int
	CreatedByDevice   string
	CreatedAt         time.Time
}

// Modification types understood by clients.
const (
	ModificationCreate       = "Create"
	ModificationUpdate       = "Update"
	ModificationDelete       = "Delete"
	ModificationCacheChanged = "CacheChanged"
)

// ExternalEvent is a change caused by someone other than the identity
// itself. Index grows by one per identity.
type ExternalEvent struct {
	ID             string
	IdentityID     string
	Index          int64
	Type           string
	Payload        []byte
	SyncErrorCount int
	CreatedAt      time.Time
}
