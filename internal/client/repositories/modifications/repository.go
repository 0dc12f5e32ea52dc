// Package modifications persists the datawallet modification log: a FIFO of
// pending local mutations ordered by seq.
package modifications

import (
	"context"

	"github.com/dmitrijs2005/datawallet/internal/client/models"
)

type Repository interface {
	Insert(ctx context.Context, m *models.Modification) (int64, error)
	Replace(ctx context.Context, m *models.Modification) error
	DeleteSeqs(ctx context.Context, seqs []int64) error
	DeleteObjectAfter(ctx context.Context, objectID string, afterSeq int64) error
	ListAfter(ctx context.Context, afterSeq int64, limit int) ([]*models.Modification, error)
	ListForObject(ctx context.Context, objectID string, afterSeq int64) ([]*models.Modification, error)
	MaxSeq(ctx context.Context) (int64, error)
	Count(ctx context.Context) (int, error)
}
