package objects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/datawallet/internal/client/models"
	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/dbx"
)

// SQLiteRepository implements Repository over a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get returns the row for (c, id), tombstones included. It returns
// common.ErrorNotFound when the id was never stored.
func (r *SQLiteRepository) Get(ctx context.Context, c models.Collection, id string) (*models.ObjectRecord, error) {
	query := `SELECT version, ciphertext, nonce, deleted, updated_at FROM objects WHERE collection = ? AND id = ?`

	rec := &models.ObjectRecord{Collection: c, ID: id}
	var updatedAt int64
	err := r.db.QueryRowContext(ctx, query, string(c), id).
		Scan(&rec.Version, &rec.Ciphertext, &rec.Nonce, &rec.Deleted, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s/%s: %w", c, id, err)
	}
	rec.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return rec, nil
}

// Upsert writes rec, reviving a tombstone if one exists.
func (r *SQLiteRepository) Upsert(ctx context.Context, rec *models.ObjectRecord) error {
	query := `INSERT INTO objects (collection, id, version, ciphertext, nonce, deleted, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			version = excluded.version,
			ciphertext = excluded.ciphertext,
			nonce = excluded.nonce,
			deleted = 0,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		string(rec.Collection), rec.ID, rec.Version, rec.Ciphertext, rec.Nonce, rec.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to upsert object %s/%s: %w", rec.Collection, rec.ID, err)
	}
	return nil
}

// UpdateIfVersion overwrites a live row only while its version is still
// expected; otherwise it returns common.ErrVersionConflict.
func (r *SQLiteRepository) UpdateIfVersion(ctx context.Context, rec *models.ObjectRecord, expected int64) error {
	query := `UPDATE objects SET version = ?, ciphertext = ?, nonce = ?, updated_at = ?
		WHERE collection = ? AND id = ? AND version = ? AND deleted = 0`

	res, err := r.db.ExecContext(ctx, query,
		rec.Version, rec.Ciphertext, rec.Nonce, rec.UpdatedAt.UnixNano(), string(rec.Collection), rec.ID, expected)
	if err != nil {
		return fmt.Errorf("failed to update object %s/%s: %w", rec.Collection, rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n != 1 {
		return common.ErrVersionConflict
	}
	return nil
}

// MarkDeleted turns the row into a tombstone, creating one if the id is
// unknown locally. Marking a tombstone again is a no-op.
func (r *SQLiteRepository) MarkDeleted(ctx context.Context, c models.Collection, id string, at time.Time) error {
	query := `INSERT INTO objects (collection, id, version, ciphertext, nonce, deleted, updated_at)
		VALUES (?, ?, 0, NULL, NULL, 1, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			version = objects.version + 1,
			ciphertext = NULL,
			nonce = NULL,
			deleted = 1,
			updated_at = excluded.updated_at
		WHERE objects.deleted = 0`

	if _, err := r.db.ExecContext(ctx, query, string(c), id, at.UnixNano()); err != nil {
		return fmt.Errorf("failed to delete object %s/%s: %w", c, id, err)
	}
	return nil
}

// List returns the live rows of collection c ordered by id.
func (r *SQLiteRepository) List(ctx context.Context, c models.Collection) ([]*models.ObjectRecord, error) {
	query := `SELECT id, version, ciphertext, nonce, updated_at FROM objects
		WHERE collection = ? AND deleted = 0 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, string(c))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c, err)
	}
	defer rows.Close()

	var result []*models.ObjectRecord
	for rows.Next() {
		rec := &models.ObjectRecord{Collection: c}
		var updatedAt int64
		if err := rows.Scan(&rec.ID, &rec.Version, &rec.Ciphertext, &rec.Nonce, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan object row: %w", err)
		}
		rec.UpdatedAt = time.Unix(0, updatedAt).UTC()
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate object rows: %w", err)
	}
	return result, nil
}

// Count returns the number of live rows in collection c.
func (r *SQLiteRepository) Count(ctx context.Context, c models.Collection) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM objects WHERE collection = ? AND deleted = 0`, string(c)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", c, err)
	}
	return n, nil
}
