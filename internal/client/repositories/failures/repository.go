// Package failures keeps per-event processing failure bookkeeping.
package failures

import (
	"context"

	"github.com/dmitrijs2005/datawallet/internal/client/models"
)

type Repository interface {
	Get(ctx context.Context, eventID string) (*models.EventFailure, error)
	Upsert(ctx context.Context, f *models.EventFailure) error
	Delete(ctx context.Context, eventID string) error
	List(ctx context.Context) ([]*models.EventFailure, error)
}
