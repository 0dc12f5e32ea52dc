package models

import "time"

// File is a file whose encrypted content lives in backbone object storage.
// SecretKey and Nonce open the content; they never leave the owner's devices.
type File struct {
	Base
	Owner             string     `json:"owner"`
	Title             string     `json:"title"`
	Mimetype          string     `json:"mimetype"`
	Size              int64      `json:"size"`
	SecretKey         []byte     `json:"secretKey"`
	Nonce             []byte     `json:"nonce"`
	OwnershipIsLocked bool       `json:"ownershipIsLocked"`
	CreatedAt         time.Time  `json:"createdAt"`
	CachedAt          *time.Time `json:"cachedAt,omitempty"`
}

func (f *File) Collection() Collection { return CollectionFiles }
