package models

import "time"

type Device struct {
	Base
	Name        string     `json:"name"`
	IsAdmin     bool       `json:"isAdmin"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

func (d *Device) Collection() Collection { return CollectionDevices }
