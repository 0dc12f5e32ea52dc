package models

import (
	"encoding/json"
	"time"
)

type NotificationStatus string

const (
	NotificationOpen      NotificationStatus = "Open"
	NotificationCompleted NotificationStatus = "Completed"
	NotificationError     NotificationStatus = "Error"
)

type NotificationSource struct {
	Type      string `json:"type"`
	Reference string `json:"reference"`
}

type Notification struct {
	Base
	IsOwn       bool               `json:"isOwn"`
	Peer        string             `json:"peer"`
	Status      NotificationStatus `json:"status"`
	Content     json.RawMessage    `json:"content"`
	Source      NotificationSource `json:"source"`
	CreatedAt   time.Time          `json:"createdAt"`
	WasViewedAt *time.Time         `json:"wasViewedAt,omitempty"`
}

func (n *Notification) Collection() Collection { return CollectionNotifications }
