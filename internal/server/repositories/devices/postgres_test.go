package devices

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTouch(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresRepository(db)

	at := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`(?s)^\s*INSERT\s+INTO\s+devices.*ON\s+CONFLICT\s+\(identity_id,\s*id\)`).
		WithArgs("dev-1", "id-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT\s+INTO\s+devices`).
		WillReturnError(errors.New("db down"))

	require.NoError(t, repo.Touch(context.Background(), "id-1", "dev-1", at))
	require.ErrorContains(t, repo.Touch(context.Background(), "id-1", "dev-1", at), "db down")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestList(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresRepository(db)

	t1 := time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC)
	t0 := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*identity_id,\s*last_seen_at\s+FROM\s+devices\s+WHERE\s+identity_id\s*=\s*\$1`).
		WithArgs("id-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "identity_id", "last_seen_at"}).
			AddRow("dev-2", "id-1", t1).
			AddRow("dev-1", "id-1", t0))

	got, err := repo.List(context.Background(), "id-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "dev-2", got[0].ID)
	assert.True(t, got[1].LastSeenAt.Equal(t0))
}
