package models

import (
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ID prefixes per object type.
const (
	PrefixAttribute        = "ATT"
	PrefixRelationship     = "REL"
	PrefixRequest          = "REQ"
	PrefixNotification     = "NOK"
	PrefixSetting          = "SET"
	PrefixMessage          = "MSG"
	PrefixFile             = "FIL"
	PrefixDevice           = "DVC"
	PrefixIdentityDeletion = "IDP"
)

const idBodyLen = 17

var idPattern = regexp.MustCompile(`^[A-Z]{3}[A-Za-z0-9]{17}$`)

// NewID returns prefix followed by 17 random uppercase alphanumerics.
func NewID(prefix string) string {
	u := uuid.New()
	body := strings.ToUpper(hex.EncodeToString(u[:]))
	return prefix + body[:idBodyLen]
}

// ValidID reports whether id is well formed and carries prefix.
func ValidID(prefix, id string) bool {
	return strings.HasPrefix(id, prefix) && idPattern.MatchString(id)
}
