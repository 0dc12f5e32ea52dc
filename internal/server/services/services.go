// Package services contains the backbone's business logic on top of the
// repositories: identities and tokens, datawallets, external events and
// file content locations.
package services

import (
	"context"
	"regexp"
)

// Notification announces new data to the connected devices of an identity.
type Notification struct {
	Type  string `json:"type"`
	Index int64  `json:"index,omitempty"`
}

// Notification types.
const (
	ExternalEventCreated           = "ExternalEventCreated"
	DatawalletModificationsCreated = "DatawalletModificationsCreated"
)

// Notifier delivers notifications to an identity's devices. Delivery is
// best effort.
type Notifier interface {
	Notify(ctx context.Context, identityID string, n Notification)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, Notification) {}

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

func clampPageSize(n int) int {
	switch {
	case n <= 0:
		return defaultPageSize
	case n > maxPageSize:
		return maxPageSize
	}
	return n
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)
