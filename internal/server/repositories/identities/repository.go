package identities

import (
	"context"

	"github.com/dmitrijs2005/datawallet/internal/server/models"
)

type Repository interface {
	// Create inserts identity and fills in its ID and CreatedAt. A taken
	// username or address yields common.ErrorAlreadyExists.
	Create(ctx context.Context, identity *models.Identity) (*models.Identity, error)
	GetByUsername(ctx context.Context, username string) (*models.Identity, error)
	GetByID(ctx context.Context, id string) (*models.Identity, error)
	// NextDatawalletIndex and NextEventIndex reserve the next index of the
	// identity's datawallet and external event streams. Call them inside
	// the transaction that writes the row, so indexes stay gapless.
	NextDatawalletIndex(ctx context.Context, id string) (int64, error)
	NextEventIndex(ctx context.Context, id string) (int64, error)
}
