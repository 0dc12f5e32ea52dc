package models

import "time"

// File describes the object storage location of an encrypted file body.
// The file metadata itself travels in the owner's datawallet.
type File struct {
	ID         string
	IdentityID string
	StorageKey string
	Size       int64
	CreatedAt  time.Time
}
