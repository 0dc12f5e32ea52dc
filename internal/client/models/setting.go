package models

import (
	"encoding/json"
	"time"
)

type SettingScope string

const (
	SettingScopeIdentity     SettingScope = "Identity"
	SettingScopeDevice       SettingScope = "Device"
	SettingScopeRelationship SettingScope = "Relationship"
)

type Setting struct {
	Base
	Key          string          `json:"key"`
	Value        json.RawMessage `json:"value"`
	Scope        SettingScope    `json:"scope"`
	Reference    string          `json:"reference,omitempty"`
	SucceedsItem string          `json:"succeedsItem,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

func (s *Setting) Collection() Collection { return CollectionSettings }

// NewerThan orders settings sharing a key: later CreatedAt wins and equal
// timestamps fall back to the larger id, so every device picks the same one.
func (s *Setting) NewerThan(o *Setting) bool {
	if !s.CreatedAt.Equal(o.CreatedAt) {
		return s.CreatedAt.After(o.CreatedAt)
	}
	return s.ID > o.ID
}
