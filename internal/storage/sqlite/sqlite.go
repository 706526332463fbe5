// Package sqlite implements skillmeat storage on SQLite via the pure-Go
// ncruces driver (wazero-compiled, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/skillmeat/skillmeat/internal/storage"
	"github.com/skillmeat/skillmeat/internal/types"
)

// SQLiteStorage implements storage.Storage backed by a SQLite database file.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// compile-time interface checks
var (
	_ storage.Storage     = (*SQLiteStorage)(nil)
	_ storage.Transaction = (*Tx)(nil)
)

// New opens (creating if needed) the database at dbPath, applies the schema,
// and runs pending migrations.
//
// Connection settings:
//   - _txlock=immediate: write transactions take the write lock at BEGIN,
//     serializing concurrent writers without deadlock
//   - journal_mode=WAL: readers do not block the writer
//   - busy_timeout=10s: writers wait rather than failing fast
//   - foreign_keys=on: cascades are enforced by the engine
func New(ctx context.Context, dbPath string) (*SQLiteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := "file:" + dbPath +
		"?_txlock=immediate" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(10000)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &types.StoreUnavailableError{Err: err}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &types.StoreUnavailableError{Err: err}
	}

	s := &SQLiteStorage{db: db, path: dbPath}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.path
}

// UnderlyingDB returns the underlying *sql.DB connection.
func (s *SQLiteStorage) UnderlyingDB() *sql.DB {
	return s.db
}

// dbtx is satisfied by both *sql.DB and *sql.Tx, letting repository
// functions serve plain and transactional callers identically.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx implements storage.Transaction over an open *sql.Tx.
type Tx struct {
	tx *sql.Tx
}

// RunInTransaction executes fn within a single database transaction. The
// transaction commits when fn returns nil, rolls back when fn returns an
// error, and rolls back and re-panics when fn panics.
func (s *SQLiteStorage) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &types.StoreUnavailableError{Err: err}
	}

	t := &Tx{tx: tx}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(t); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
