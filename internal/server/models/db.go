// Package models defines server-side data models persisted in the database.
package models

import "time"

// Identity is a registered account. The backbone stores the key
// derivation salt and the verifier, never the passphrase or master key.
type Identity struct {
	ID        string
	Username  string
	Address   string
	Salt      []byte
	Verifier  []byte
	CreatedAt time.Time
}

// Device is one client installation that pushed on behalf of an identity.
type Device struct {
	ID         string
	IdentityID string
	LastSeenAt time.Time
}

type RefreshToken struct {
	IdentityID string
	Token      string
	Expires    time.Time
}
