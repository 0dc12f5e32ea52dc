package models

import (
	"encoding/json"
	"time"
)

type Recipient struct {
	Address        string     `json:"address"`
	RelationshipID string     `json:"relationshipId,omitempty"`
	ReceivedAt     *time.Time `json:"receivedAt,omitempty"`
}

type Message struct {
	Base
	IsOwn       bool            `json:"isOwn"`
	CreatedBy   string          `json:"createdBy"`
	Recipients  []Recipient     `json:"recipients"`
	Content     json.RawMessage `json:"content"`
	CreatedAt   time.Time       `json:"createdAt"`
	WasViewedAt *time.Time      `json:"wasViewedAt,omitempty"`
}

func (m *Message) Collection() Collection { return CollectionMessages }
