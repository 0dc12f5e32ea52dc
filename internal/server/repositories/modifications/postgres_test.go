package modifications

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/server/models"
)

var cols = []string{"idx", "identity_id", "idempotency_key", "object_id", "collection", "type", "payload", "datawallet_version", "created_by_device", "created_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

func TestInsert(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := &models.Modification{
		Index: 1, IdentityID: "id-1", IdempotencyKey: "k1", ObjectID: "ATT1", Collection: "Attributes",
		Type: models.ModificationCreate, Payload: []byte{1}, DatawalletVersion: 1, CreatedByDevice: "dev", CreatedAt: at,
	}

	q := `(?s)INSERT\s+INTO\s+datawallet_modifications.*ON\s+CONFLICT\s+\(identity_id,\s*idempotency_key\)\s+DO\s+NOTHING`
	mock.ExpectExec(q).
		WithArgs(int64(1), "id-1", "k1", "ATT1", "Attributes", "Create", []byte{1}, 1, "dev", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q).WillReturnError(errors.New("db down"))

	require.NoError(t, repo.Insert(context.Background(), m))
	require.ErrorIs(t, repo.Insert(context.Background(), m), common.ErrorAlreadyExists)
	require.ErrorContains(t, repo.Insert(context.Background(), m), "db error: db down")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIdempotencyKey(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	q := `(?s)^SELECT\s+idx,.*FROM\s+datawallet_modifications\s+WHERE\s+identity_id\s*=\s*\$1\s+AND\s+idempotency_key\s*=\s*\$2`

	mock.ExpectQuery(q).WithArgs("id-1", "k1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(4), "id-1", "k1", "ATT1", "Attributes", "Update", nil, 1, "dev", time.Now()))
	mock.ExpectQuery(q).WithArgs("id-1", "k2").WillReturnError(sql.ErrNoRows)

	got, err := repo.GetByIdempotencyKey(context.Background(), "id-1", "k1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Index)
	assert.Equal(t, "Update", got.Type)

	_, err = repo.GetByIdempotencyKey(context.Background(), "id-1", "k2")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestListAfter(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	q := `(?s)^SELECT\s+idx,.*WHERE\s+identity_id\s*=\s*\$1\s+AND\s+idx\s*>\s*\$2\s+ORDER\s+BY\s+idx\s+LIMIT\s+\$3`

	mock.ExpectQuery(q).WithArgs("id-1", int64(2), 10).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(3), "id-1", "a", "ATT1", "Attributes", "Create", []byte{1}, 1, "dev", time.Now()).
			AddRow(int64(4), "id-1", "b", "ATT1", "Attributes", "Delete", nil, 1, "dev", time.Now()))

	got, err := repo.ListAfter(context.Background(), "id-1", 2, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []int64{3, 4}, []int64{got[0].Index, got[1].Index})
	assert.Nil(t, got[1].Payload)
}
