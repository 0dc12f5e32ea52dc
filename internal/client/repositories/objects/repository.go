// Package objects is the persistence layer of the encrypted object store.
//
// Every synchronizable object is one row keyed by (collection, id) holding
// the AEAD-sealed JSON document and its version. Deleting an object keeps a
// tombstone row (deleted=1, no ciphertext) so later references to the id can
// be told apart from ids that were never seen.
//
// Typical Usage
//
//	repo := objects.NewSQLiteRepository(tx)
//	_ = repo.Upsert(ctx, rec)
//	rec, _ := repo.Get(ctx, models.CollectionAttributes, id)
//	_ = repo.MarkDeleted(ctx, models.CollectionAttributes, id, now)
package objects

import (
	"context"
	"time"

	"github.com/dmitrijs2005/datawallet/internal/client/models"
)

type Repository interface {
	Get(ctx context.Context, c models.Collection, id string) (*models.ObjectRecord, error)
	Upsert(ctx context.Context, rec *models.ObjectRecord) error
	UpdateIfVersion(ctx context.Context, rec *models.ObjectRecord, expected int64) error
	MarkDeleted(ctx context.Context, c models.Collection, id string, at time.Time) error
	List(ctx context.Context, c models.Collection) ([]*models.ObjectRecord, error)
	Count(ctx context.Context, c models.Collection) (int, error)
}
