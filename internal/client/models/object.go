package models

// Collection names the local collection an object type is stored in. It is
// also the objectType of datawallet modifications.
type Collection string

const (
	CollectionAttributes                Collection = "Attributes"
	CollectionRelationships             Collection = "Relationships"
	CollectionRequests                  Collection = "Requests"
	CollectionNotifications             Collection = "Notifications"
	CollectionSettings                  Collection = "Settings"
	CollectionMessages                  Collection = "Messages"
	CollectionFiles                     Collection = "Files"
	CollectionDevices                   Collection = "Devices"
	CollectionIdentityDeletionProcesses Collection = "IdentityDeletionProcesses"
)

// Collections lists every synchronized collection.
var Collections = []Collection{
	CollectionAttributes,
	CollectionRelationships,
	CollectionRequests,
	CollectionNotifications,
	CollectionSettings,
	CollectionMessages,
	CollectionFiles,
	CollectionDevices,
	CollectionIdentityDeletionProcesses,
}

// Known reports whether c is one of Collections.
func (c Collection) Known() bool {
	for _, k := range Collections {
		if k == c {
			return true
		}
	}
	return false
}

// Object is implemented by every synchronizable domain type.
type Object interface {
	ObjectID() string
	ObjectVersion() int64
	SetObjectVersion(v int64)
	Collection() Collection
}

// Base carries the identity and version every synchronizable object has.
// Relations to other objects are always stored as ids.
type Base struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
}

func (b *Base) ObjectID() string         { return b.ID }
func (b *Base) ObjectVersion() int64     { return b.Version }
func (b *Base) SetObjectVersion(v int64) { b.Version = v }
