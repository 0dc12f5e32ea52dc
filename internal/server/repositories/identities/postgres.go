package identities

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/dbx"
	"github.com/dmitrijs2005/datawallet/internal/server/models"
)

const uniqueViolation = "23505"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, identity *models.Identity) (*models.Identity, error) {

	query :=
		`INSERT INTO identities (username, address, salt, master_key_verifier)
         VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		identity.Username, identity.Address, identity.Salt, identity.Verifier).Scan(&identity.ID, &identity.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("identity %s: %w", identity.Username, common.ErrorAlreadyExists)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return identity, nil
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.Identity, error) {
	query :=
		`SELECT id, username, address, master_key_verifier, salt, created_at FROM identities
		 WHERE username = $1
		 `
	return r.getOne(ctx, query, username)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Identity, error) {
	query :=
		`SELECT id, username, address, master_key_verifier, salt, created_at FROM identities
		 WHERE id = $1
		 `
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*models.Identity, error) {
	identity := &models.Identity{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&identity.ID, &identity.Username, &identity.Address,
		&identity.Verifier, &identity.Salt, &identity.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return identity, nil
}

func (r *PostgresRepository) NextDatawalletIndex(ctx context.Context, id string) (int64, error) {
	query :=
		`UPDATE identities SET datawallet_index = datawallet_index + 1
		 WHERE id = $1
		 RETURNING datawallet_index
		 `
	return r.next(ctx, query, id)
}

func (r *PostgresRepository) NextEventIndex(ctx context.Context, id string) (int64, error) {
	query :=
		`UPDATE identities SET event_index = event_index + 1
		 WHERE id = $1
		 RETURNING event_index
		 `
	return r.next(ctx, query, id)
}

func (r *PostgresRepository) next(ctx context.Context, query, id string) (int64, error) {
	var index int64
	err := r.db.QueryRowContext(ctx, query, id).Scan(&index)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}

	return index, nil
}
