package kvstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

// newMockStore wires a SQLiteStore around a sqlmock database so the SQL
// surface can be exercised without touching a real file.
func newMockStore(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &SQLiteStore{db: db}, mock
}

func TestSQLiteGetMissingKey(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT value, expires_at FROM kv").
		WithArgs("absent").
		WillReturnRows(sqlmock.NewRows([]string{"value", "expires_at"}))

	_, err := s.Get(context.Background(), "absent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLiteGetExpiredKeyIsDeleted(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT value, expires_at FROM kv").
		WithArgs("stale").
		WillReturnRows(sqlmock.NewRows([]string{"value", "expires_at"}).
			AddRow([]byte("v"), time.Now().Add(-time.Minute)))
	mock.ExpectExec("DELETE FROM kv").
		WithArgs("stale").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := s.Get(context.Background(), "stale")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLiteGetLiveKey(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT value, expires_at FROM kv").
		WithArgs("fresh").
		WillReturnRows(sqlmock.NewRows([]string{"value", "expires_at"}).
			AddRow([]byte("payload"), time.Now().Add(time.Hour)))

	value, err := s.Get(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(value) != "payload" {
		t.Fatalf("value = %q, want payload", value)
	}
}

func TestSQLiteSetWithoutTTLStoresNullExpiry(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO kv").
		WithArgs("k", []byte("v"), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.Set(context.Background(), "k", []byte("v"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLiteSetWithTTLStoresExpiry(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO kv").
		WithArgs("k", []byte("v"), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.Set(context.Background(), "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLiteCompareAndSwapMismatch(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT value, expires_at FROM kv").
		WithArgs("task:1").
		WillReturnRows(sqlmock.NewRows([]string{"value", "expires_at"}).
			AddRow([]byte("processing"), nil))
	mock.ExpectRollback()

	err := s.CompareAndSwap(context.Background(), "task:1", []byte("pending"), []byte("processing"), 0)
	if !errors.Is(err, ErrCASMismatch) {
		t.Fatalf("err = %v, want ErrCASMismatch", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLiteCompareAndSwapSuccess(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT value, expires_at FROM kv").
		WithArgs("task:1").
		WillReturnRows(sqlmock.NewRows([]string{"value", "expires_at"}).
			AddRow([]byte("pending"), nil))
	mock.ExpectExec("INSERT INTO kv").
		WithArgs("task:1", []byte("processing"), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := s.CompareAndSwap(context.Background(), "task:1", []byte("pending"), []byte("processing"), 0)
	if err != nil {
		t.Fatalf("cas: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLiteCompareAndSwapCreateWhenAbsent(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT value, expires_at FROM kv").
		WithArgs("nonce:abc").
		WillReturnRows(sqlmock.NewRows([]string{"value", "expires_at"}))
	mock.ExpectExec("INSERT INTO kv").
		WithArgs("nonce:abc", []byte("used"), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := s.CompareAndSwap(context.Background(), "nonce:abc", nil, []byte("used"), 0)
	if err != nil {
		t.Fatalf("cas-create: %v", err)
	}
}
