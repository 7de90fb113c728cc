package kvstore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, no cgo
)

// SQLiteStore is a durable Store backed by a single-table sqlite database,
// for deployments that need state to survive a process restart (task-queue
// records, nonce marks). The configured default backend is memory.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) a sqlite database at path. Pass
// ":memory:" for an ephemeral, non-shared database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			expires_at DATETIME
		)
	`)
	if err != nil {
		return fmt.Errorf("kvstore: create table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	var expiresAt sql.NullTime
	row := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM kv WHERE key = ?`, key)
	if err := row.Scan(&value, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("kvstore: get: %w", err)
	}
	if expiresAt.Valid && time.Now().After(expiresAt.Time) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
		return nil, ErrNotFound
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	expiresAt := expiryColumn(ttl)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("kvstore: set: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("kvstore: delete: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CompareAndSwap(ctx context.Context, key string, expected, newValue []byte, ttl time.Duration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("kvstore: begin tx: %w", err)
	}
	defer tx.Rollback()

	var current []byte
	var expiresAt sql.NullTime
	row := tx.QueryRowContext(ctx, `SELECT value, expires_at FROM kv WHERE key = ?`, key)
	switch err := row.Scan(&current, &expiresAt); {
	case errors.Is(err, sql.ErrNoRows):
		current = nil
	case err != nil:
		return fmt.Errorf("kvstore: cas read: %w", err)
	default:
		if expiresAt.Valid && time.Now().After(expiresAt.Time) {
			current = nil
		}
	}

	if !bytes.Equal(current, expected) {
		return ErrCASMismatch
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, key, newValue, expiryColumn(ttl))
	if err != nil {
		return fmt.Errorf("kvstore: cas write: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func expiryColumn(ttl time.Duration) any {
	if ttl <= 0 {
		return nil
	}
	return time.Now().Add(ttl)
}
