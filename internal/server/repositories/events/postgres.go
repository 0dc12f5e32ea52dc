// Package events stores the external events delivered to identities.
package events

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/dbx"
	"github.com/dmitrijs2005/datawallet/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, ev *models.ExternalEvent) error {
	query := `
		INSERT INTO external_events (id, identity_id, idx, type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.ExecContext(ctx, query, ev.ID, ev.IdentityID, ev.Index, ev.Type, ev.Payload, ev.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListAfter(ctx context.Context, identityID string, after int64, limit int) ([]*models.ExternalEvent, error) {
	query := `SELECT id, identity_id, idx, type, payload, sync_error_count, created_at FROM external_events
		WHERE identity_id = $1 AND idx > $2
		ORDER BY idx
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, identityID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select events: %w", err)
	}
	defer rows.Close()

	var result []*models.ExternalEvent
	for rows.Next() {
		var ev models.ExternalEvent
		if err := rows.Scan(&ev.ID, &ev.IdentityID, &ev.Index, &ev.Type, &ev.Payload, &ev.SyncErrorCount, &ev.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) IncrementSyncErrorCount(ctx context.Context, identityID, eventID string) error {
	query := `UPDATE external_events SET sync_error_count = sync_error_count + 1
		WHERE identity_id = $1 AND id = $2
	`
	res, err := r.db.ExecContext(ctx, query, identityID, eventID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("event %s: %w", eventID, common.ErrorNotFound)
	}
	return nil
}
