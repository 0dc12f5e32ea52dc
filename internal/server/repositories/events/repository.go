package events

import (
	"context"

	"github.com/dmitrijs2005/datawallet/internal/server/models"
)

type Repository interface {
	// Insert stores ev, whose ID and Index must already be assigned.
	Insert(ctx context.Context, ev *models.ExternalEvent) error
	// ListAfter returns up to limit events with index greater than after,
	// in index order.
	ListAfter(ctx context.Context, identityID string, after int64, limit int) ([]*models.ExternalEvent, error)
	// IncrementSyncErrorCount bumps the error counter of an event owned by
	// identityID. Unknown events yield common.ErrorNotFound.
	IncrementSyncErrorCount(ctx context.Context, identityID, eventID string) error
}
