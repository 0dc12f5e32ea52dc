// Package devices tracks the client installations of each identity.
package devices

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/datawallet/internal/dbx"
	"github.com/dmitrijs2005/datawallet/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Touch(ctx context.Context, identityID, deviceID string, at time.Time) error {
	query := `
		INSERT INTO devices (id, identity_id, last_seen_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (identity_id, id)
		DO UPDATE SET last_seen_at = GREATEST(devices.last_seen_at, EXCLUDED.last_seen_at)
	`
	if _, err := r.db.ExecContext(ctx, query, deviceID, identityID, at); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, identityID string) ([]*models.Device, error) {
	query := `SELECT id, identity_id, last_seen_at FROM devices
		WHERE identity_id = $1
		ORDER BY last_seen_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to select devices: %w", err)
	}
	defer rows.Close()

	var result []*models.Device
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.ID, &d.IdentityID, &d.LastSeenAt); err != nil {
			return nil, err
		}
		result = append(result, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
