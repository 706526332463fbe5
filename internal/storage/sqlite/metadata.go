package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

func setMetadata(ctx context.Context, q dbtx, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}

// getMetadata returns "" with no error for missing keys; callers treat the
// empty string as unset.
func getMetadata(ctx context.Context, q dbtx, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStorage) SetMetadata(ctx context.Context, key, value string) error {
	return setMetadata(ctx, s.db, key, value)
}

func (s *SQLiteStorage) GetMetadata(ctx context.Context, key string) (string, error) {
	return getMetadata(ctx, s.db, key)
}

func (t *Tx) SetMetadata(ctx context.Context, key, value string) error {
	return setMetadata(ctx, t.tx, key, value)
}

func (t *Tx) GetMetadata(ctx context.Context, key string) (string, error) {
	return getMetadata(ctx, t.tx, key)
}
