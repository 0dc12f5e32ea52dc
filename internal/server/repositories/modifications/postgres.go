// Package modifications stores the datawallet of every identity.
package modifications

import (
	"context"
	"database/sql"
	"errors"
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

const columns = `idx, identity_id, idempotency_key, object_id, collection, type, payload, datawallet_version, created_by_device, created_at`

func (r *PostgresRepository) GetByIdempotencyKey(ctx context.Context, identityID, key string) (*models.Modification, error) {
	query := `SELECT ` + columns + ` FROM datawallet_modifications
		WHERE identity_id = $1 AND idempotency_key = $2
	`
	m, err := scan(r.db.QueryRowContext(ctx, query, identityID, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, m *models.Modification) error {
	query := `
		INSERT INTO datawallet_modifications (` + columns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (identity_id, idempotency_key) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, m.Index, m.IdentityID, m.IdempotencyKey, m.ObjectID,
		m.Collection, m.Type, m.Payload, m.DatawalletVersion, m.CreatedByDevice, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("modification %s: %w", m.IdempotencyKey, common.ErrorAlreadyExists)
	}
	return nil
}

func (r *PostgresRepository) ListAfter(ctx context.Context, identityID string, after int64, limit int) ([]*models.Modification, error) {
	query := `SELECT ` + columns + ` FROM datawallet_modifications
		WHERE identity_id = $1 AND idx > $2
		ORDER BY idx
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, identityID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select modifications: %w", err)
	}
	defer rows.Close()

	var result []*models.Modification
	for rows.Next() {
		m, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.Modification, error) {
	var m models.Modification
	err := s.Scan(&m.Index, &m.IdentityID, &m.IdempotencyKey, &m.ObjectID, &m.Collection, &m.Type,
		&m.Payload, &m.DatawalletVersion, &m.CreatedByDevice, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
