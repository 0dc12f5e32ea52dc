package modifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/datawallet/internal/client/models"
	"github.com/dmitrijs2005/datawallet/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `SELECT seq, idempotency_key, object_id, collection, type, payload, local_created_at, datawallet_version
	FROM datawallet_modifications`

// Insert appends m and returns its seq.
func (r *SQLiteRepository) Insert(ctx context.Context, m *models.Modification) (int64, error) {
	query := `INSERT INTO datawallet_modifications
		(idempotency_key, object_id, collection, type, payload, local_created_at, datawallet_version)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query,
		m.IdempotencyKey, m.ObjectID, string(m.Collection), string(m.Type), m.Payload,
		m.LocalCreatedAt.UnixNano(), m.DatawalletVersion)
	if err != nil {
		return 0, fmt.Errorf("failed to insert modification for %s: %w", m.ObjectID, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read modification seq: %w", err)
	}
	return seq, nil
}

// Replace rewrites the entry at m.Seq in place, keeping its queue position.
func (r *SQLiteRepository) Replace(ctx context.Context, m *models.Modification) error {
	query := `UPDATE datawallet_modifications
		SET idempotency_key = ?, type = ?, payload = ?, local_created_at = ?
		WHERE seq = ?`

	res, err := r.db.ExecContext(ctx, query,
		m.IdempotencyKey, string(m.Type), m.Payload, m.LocalCreatedAt.UnixNano(), m.Seq)
	if err != nil {
		return fmt.Errorf("failed to replace modification %d: %w", m.Seq, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("wrong rows affected count: %d", n)
	}
	return nil
}

// DeleteSeqs removes the given entries. Unknown seqs are ignored.
func (r *SQLiteRepository) DeleteSeqs(ctx context.Context, seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(seqs)), ",")
	args := make([]any, len(seqs))
	for i, s := range seqs {
		args[i] = s
	}

	query := `DELETE FROM datawallet_modifications WHERE seq IN (` + placeholders + `)`
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete modifications: %w", err)
	}
	return nil
}

// DeleteObjectAfter removes every entry of objectID with seq > afterSeq.
func (r *SQLiteRepository) DeleteObjectAfter(ctx context.Context, objectID string, afterSeq int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM datawallet_modifications WHERE object_id = ? AND seq > ?`, objectID, afterSeq)
	if err != nil {
		return fmt.Errorf("failed to delete modifications of %s: %w", objectID, err)
	}
	return nil
}

// ListAfter returns up to limit entries with seq > afterSeq in FIFO order.
func (r *SQLiteRepository) ListAfter(ctx context.Context, afterSeq int64, limit int) ([]*models.Modification, error) {
	return r.query(ctx, selectColumns+` WHERE seq > ? ORDER BY seq LIMIT ?`, afterSeq, limit)
}

// ListForObject returns the entries of objectID with seq > afterSeq in FIFO order.
func (r *SQLiteRepository) ListForObject(ctx context.Context, objectID string, afterSeq int64) ([]*models.Modification, error) {
	return r.query(ctx, selectColumns+` WHERE object_id = ? AND seq > ? ORDER BY seq`, objectID, afterSeq)
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]*models.Modification, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select modifications: %w", err)
	}
	defer rows.Close()

	var result []*models.Modification
	for rows.Next() {
		m := &models.Modification{}
		var coll, typ string
		var created int64
		if err := rows.Scan(&m.Seq, &m.IdempotencyKey, &m.ObjectID, &coll, &typ, &m.Payload,
			&created, &m.DatawalletVersion); err != nil {
			return nil, fmt.Errorf("failed to scan modification row: %w", err)
		}
		m.Collection = models.Collection(coll)
		m.Type = models.ModificationType(typ)
		m.LocalCreatedAt = time.Unix(0, created).UTC()
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate modification rows: %w", err)
	}
	return result, nil
}

// MaxSeq returns the highest queued seq, or 0 for an empty log.
func (r *SQLiteRepository) MaxSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM datawallet_modifications`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to read max seq: %w", err)
	}
	return seq, nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM datawallet_modifications`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count modifications: %w", err)
	}
	return n, nil
}
