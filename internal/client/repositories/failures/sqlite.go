package failures

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

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func scan(row interface{ Scan(...any) error }) (*models.EventFailure, error) {
	f := &models.EventFailure{}
	var permanent int
	var updated int64
	if err := row.Scan(&f.EventID, &f.EventIndex, &f.Type, &f.ErrorCount, &f.LastError, &permanent, &updated); err != nil {
		return nil, err
	}
	f.Permanent = permanent != 0
	f.UpdatedAt = time.Unix(0, updated).UTC()
	return f, nil
}

// Get returns common.ErrorNotFound when the event has no recorded failure.
func (r *SQLiteRepository) Get(ctx context.Context, eventID string) (*models.EventFailure, error) {
	row := r.db.QueryRowContext(ctx, `SELECT event_id, event_index, type, error_count, last_error, permanent, updated_at
		FROM event_failures WHERE event_id = ?`, eventID)

	f, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get failure of event %s: %w", eventID, err)
	}
	return f, nil
}

func (r *SQLiteRepository) Upsert(ctx context.Context, f *models.EventFailure) error {
	permanent := 0
	if f.Permanent {
		permanent = 1
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO event_failures
		(event_id, event_index, type, error_count, last_error, permanent, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			error_count = excluded.error_count,
			last_error  = excluded.last_error,
			permanent   = excluded.permanent,
			updated_at  = excluded.updated_at`,
		f.EventID, f.EventIndex, f.Type, f.ErrorCount, f.LastError, permanent, f.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to upsert failure of event %s: %w", f.EventID, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, eventID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM event_failures WHERE event_id = ?`, eventID); err != nil {
		return fmt.Errorf("failed to delete failure of event %s: %w", eventID, err)
	}
	return nil
}

// List returns all failures ordered by event index.
func (r *SQLiteRepository) List(ctx context.Context) ([]*models.EventFailure, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT event_id, event_index, type, error_count, last_error, permanent, updated_at
		FROM event_failures ORDER BY event_index`)
	if err != nil {
		return nil, fmt.Errorf("failed to list failures: %w", err)
	}
	defer rows.Close()

	var result []*models.EventFailure
	for rows.Next() {
		f, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan failure row: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate failure rows: %w", err)
	}
	return result, nil
}
