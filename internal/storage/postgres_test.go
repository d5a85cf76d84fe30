package storage

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/haasonsaas/chatagent/pkg/models"
)

func newMockStore(t *testing.T) (*sqlStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return newSQLStores(db, true).Memory.(*sqlStore), mock
}

func TestSQLStore_NumberedPlaceholders(t *testing.T) {
	s := &sqlStore{numbered: true}
	got := s.q("SELECT a FROM t WHERE x = ? AND y = ?")
	want := "SELECT a FROM t WHERE x = $1 AND y = $2"
	if got != want {
		t.Fatalf("q() = %q, want %q", got, want)
	}
	s.numbered = false
	if got := s.q("x = ?"); got != "x = ?" {
		t.Fatalf("q() rewrote sqlite query: %q", got)
	}
}

func TestPostgresStore_GetMemoryNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT mem_key, value, created_at, updated_at FROM memory_entries WHERE session_id = $1 AND mem_key = $2")).
		WithArgs("s1", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"mem_key", "value", "created_at", "updated_at"}))

	if _, err := store.GetMemory(context.Background(), "s1", "missing"); err != ErrNotFound {
		t.Fatalf("GetMemory() error = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStore_DeleteMemory(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM memory_entries WHERE session_id = $1 AND mem_key = $2")).
		WithArgs("s1", "color").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM memory_entries WHERE session_id = $1 AND mem_key = $2")).
		WithArgs("s1", "color").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.DeleteMemory(context.Background(), "s1", "color"); err != nil {
		t.Fatalf("first DeleteMemory() error = %v", err)
	}
	if err := store.DeleteMemory(context.Background(), "s1", "color"); err != ErrNotFound {
		t.Fatalf("second DeleteMemory() error = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStore_ListMemoryOrdersRows(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"mem_key", "value", "created_at", "updated_at"}).
		AddRow("a", "1", created.UnixNano(), created.UnixNano()).
		AddRow("b", "2", created.Add(time.Second).UnixNano(), created.Add(time.Hour).UnixNano())
	mock.ExpectQuery(regexp.QuoteMeta("FROM memory_entries")).
		WithArgs("s1").
		WillReturnRows(rows)

	entries, err := store.ListMemory(context.Background(), "s1")
	if err != nil {
		t.Fatalf("ListMemory() error = %v", err)
	}
	if len(entries) != 2 || entries[0].Key != "a" || entries[1].Value != "2" {
		t.Fatalf("ListMemory() = %+v", entries)
	}
	if !entries[1].UpdatedAt.Equal(created.Add(time.Hour)) {
		t.Errorf("updated_at = %v", entries[1].UpdatedAt)
	}
}

func TestPostgresStore_SaveHistoryUpserts(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO session_history (session_id, messages, updated_at) VALUES ($1, $2, $3)")).
		WithArgs("s1", "[]", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SaveHistory(context.Background(), "s1", []models.Message{}); err != nil {
		t.Fatalf("SaveHistory() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMigrate_RunsEveryStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	for range schemaStatements {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	if err := migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
