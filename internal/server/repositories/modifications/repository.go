package modifications

import (
	"context"

	"github.com/dmitrijs2005/datawallet/internal/server/models"
)

type Repository interface {
	// GetByIdempotencyKey returns the modification stored under key, or
	// common.ErrorNotFound.
	GetByIdempotencyKey(ctx context.Context, identityID, key string) (*models.Modification, error)
	// Insert stores m, whose Index must already be assigned. A second
	// insert with the same idempotency key yields common.ErrorAlreadyExists.
	Insert(ctx context.Context, m *models.Modification) error
	// ListAfter returns up to limit modifications with index greater than
	// after, in index order.
	ListAfter(ctx context.Context, identityID string, after int64, limit int) ([]*models.Modification, error)
}
