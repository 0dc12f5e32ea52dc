package models

import (
	"encoding/json"
	"time"
)

// AttributeValue is an opaque, already validated value object. Type names
// the root value type (e.g. "GivenName"); successors must keep it.
type AttributeValue struct {
	Type  string          `json:"@type"`
	Value json.RawMessage `json:"value"`
}

// ShareInfo marks an attribute as the copy shared with, or received from, a peer.
type ShareInfo struct {
	Peer              string `json:"peer"`
	SourceAttributeID string `json:"sourceAttribute,omitempty"`
	RequestReference  string `json:"requestReference,omitempty"`
}

// Attribute is an identity attribute. Attributes form append-only
// succession chains through PredecessorID and SucceededBy.
type Attribute struct {
	Base
	Owner         string         `json:"owner"`
	Value         AttributeValue `json:"value"`
	PredecessorID string         `json:"predecessorId,omitempty"`
	SucceededBy   string         `json:"succeededBy,omitempty"`
	ShareInfo     *ShareInfo     `json:"shareInfo,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	WasViewedAt   *time.Time     `json:"wasViewedAt,omitempty"`
}

func (a *Attribute) Collection() Collection { return CollectionAttributes }

// IsHead reports whether a is the current end of its chain.
func (a *Attribute) IsHead() bool { return a.SucceededBy == "" }
