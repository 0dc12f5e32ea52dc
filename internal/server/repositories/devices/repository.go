package devices

import (
	"context"
	"time"

	"github.com/dmitrijs2005/datawallet/internal/server/models"
)

type Repository interface {
	// Touch records that deviceID acted for identityID at at.
	Touch(ctx context.Context, identityID, deviceID string, at time.Time) error
	List(ctx context.Context, identityID string) ([]*models.Device, error)
}
