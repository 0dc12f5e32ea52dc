// Package files declares the server-side repository for file content
// locations.
package files

import (
	"context"

	"github.com/dmitrijs2005/datawallet/internal/server/models"
)

type Repository interface {
	// Upsert records where the content of file.ID lives. A file id owned by
	// another identity yields common.ErrVersionConflict.
	Upsert(ctx context.Context, file *models.File) error
	// Get returns the file of identityID, or common.ErrorNotFound.
	Get(ctx context.Context, identityID, id string) (*models.File, error)
}
