// Package models defines the datawallet's client-side data model: the
// synchronizable domain objects, their property groups, datawallet
// modifications and external events.
package models

import "time"

// ObjectRecord is one encrypted object row in the local store.
// Ciphertext holds the AEAD-sealed JSON of the whole object.
type ObjectRecord struct {
	// Collection is the object type, e.g. "Attributes".
	Collection Collection

	// ID is the object's global identifier.
	ID string

	// Version is the object version at the last local or remote write.
	Version int64

	// Deleted marks the row as a tombstone. Ciphertext is empty then.
	Deleted bool

	Ciphertext []byte
	Nonce      []byte

	// UpdatedAt is the last modification time in UTC.
	UpdatedAt time.Time
}
