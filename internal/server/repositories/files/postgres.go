package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/dbx"
	"github.com/dmitrijs2005/datawallet/internal/server/models"
)

// PostgresRepository implements file storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert inserts or replaces the storage location of a file. On conflict the
// row is only updated when it belongs to the same identity.
func (r *PostgresRepository) Upsert(ctx context.Context, file *models.File) error {
	query := `
		INSERT INTO files (id, identity_id, storage_key, size, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id)
		DO UPDATE SET
			storage_key = EXCLUDED.storage_key,
			size = EXCLUDED.size
			WHERE files.identity_id = EXCLUDED.identity_id;
	`
	res, err := r.db.ExecContext(ctx, query,
		file.ID, file.IdentityID, file.StorageKey, file.Size, file.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrVersionConflict
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) Get(ctx context.Context, identityID, id string) (*models.File, error) {
	query := ` SELECT id, identity_id, storage_key, size, created_at from files
		WHERE id=$1 AND identity_id=$2
		`

	result := &models.File{}
	err := r.db.QueryRowContext(ctx, query, id, identityID).
		Scan(&result.ID, &result.IdentityID, &result.StorageKey, &result.Size, &result.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	return result, nil
}
