package files

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

const upsertQ = `(?s)^INSERT\s+INTO\s+files\b.*ON\s+CONFLICT\s*\(id\)\s*DO\s+UPDATE\s+SET\b.*WHERE\s+files\.identity_id\s*=\s*EXCLUDED\.identity_id;?$`

var created = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newFile() *models.File {
	return &models.File{ID: "FIL1", IdentityID: "id-1", StorageKey: "skey", Size: 12, CreatedAt: created}
}

func TestUpsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(upsertQ).
		WithArgs("FIL1", "id-1", "skey", int64(12), created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Upsert(context.Background(), newFile()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpsert_OwnedByOther(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(upsertQ).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Upsert(context.Background(), newFile()); !errors.Is(err, common.ErrVersionConflict) {
		t.Fatalf("want ErrVersionConflict, got %v", err)
	}
}

func TestUpsert_Errors(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(upsertQ).WillReturnError(errors.New("db down"))
	mock.ExpectExec(upsertQ).WillReturnResult(sqlmock.NewErrorResult(errors.New("ra fail")))
	mock.ExpectExec(upsertQ).WillReturnResult(sqlmock.NewResult(0, 2))

	err := repo.Upsert(context.Background(), newFile())
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
	err = repo.Upsert(context.Background(), newFile())
	if err == nil || !regexp.MustCompile(`rows affected error: .*ra fail`).MatchString(err.Error()) {
		t.Fatalf("expected rows affected error, got %v", err)
	}
	err = repo.Upsert(context.Background(), newFile())
	if err == nil || err.Error() != "unexpected rows affected: 2" {
		t.Fatalf("expected unexpected rows error, got %v", err)
	}
}

func TestGet(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+id,\s*identity_id,\s*storage_key,\s*size,\s*created_at\s+from\s+files\s+WHERE\s+id=\$1\s+AND\s+identity_id=\$2$`

	mock.ExpectQuery(q).
		WithArgs("FIL1", "id-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "identity_id", "storage_key", "size", "created_at"}).
			AddRow("FIL1", "id-1", "skey", int64(12), created))
	mock.ExpectQuery(q).
		WithArgs("FIL1", "id-2").
		WillReturnError(sql.ErrNoRows)

	got, err := repo.Get(context.Background(), "id-1", "FIL1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.StorageKey != "skey" || got.Size != 12 {
		t.Fatalf("unexpected row: %+v", got)
	}

	if _, err := repo.Get(context.Background(), "id-2", "FIL1"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}
