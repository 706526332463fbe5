package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/skillmeat/skillmeat/internal/types"
)

const snapshotColumns = `id, scope, content_hash_root, tree, reason, created_by, created_at`

func createSnapshot(ctx context.Context, q dbtx, snap *types.Snapshot) error {
	if snap.Scope == "" {
		return &types.ValidationError{Field: "scope", Reason: "scope is required"}
	}
	if snap.ID == "" {
		snap.ID = types.NewID(types.PrefixSnapshot)
	}
	if snap.Reason == "" {
		snap.Reason = types.SnapshotManual
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	tree, err := json.Marshal(snap.Tree)
	if err != nil {
		return fmt.Errorf("encode snapshot tree: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO snapshots (id, scope, content_hash_root, tree, reason, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, snap.ID, snap.Scope, snap.ContentHashRoot, string(tree), snap.Reason, snap.By, snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) CreateSnapshot(ctx context.Context, snap *types.Snapshot) error {
	return createSnapshot(ctx, s.db, snap)
}

func (s *SQLiteStorage) GetSnapshot(ctx context.Context, id string) (*types.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+snapshotColumns+` FROM snapshots WHERE id = ?`, id)
	snap, err := scanSnapshot(row.Scan)
	if err == sql.ErrNoRows {
		return nil, &types.NotFoundError{Entity: "snapshot", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns snapshots for a scope, newest first. An empty scope
// lists all scopes.
func (s *SQLiteStorage) ListSnapshots(ctx context.Context, scope string, page types.Page) ([]*types.Snapshot, error) {
	var conds []string
	var args []any

	if scope != "" {
		conds = append(conds, "scope = ?")
		args = append(args, scope)
	}
	if key, ok := decodeCursor(page.Cursor); ok {
		conds = append(conds, "(created_at, id) < (?, ?)")
		args = append(args, key.CreatedAt, key.ID)
	}

	query := `SELECT ` + snapshotColumns + ` FROM snapshots`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if page.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", page.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// ListSnapshotsBefore returns all snapshots older than cutoff, for retention
// sweeps.
func (s *SQLiteStorage) ListSnapshotsBefore(ctx context.Context, cutoff time.Time) ([]*types.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+` FROM snapshots
		WHERE created_at < ? ORDER BY created_at, id
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list snapshots before: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) DeleteSnapshot(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &types.NotFoundError{Entity: "snapshot", ID: id}
	}
	return nil
}

func (t *Tx) CreateSnapshot(ctx context.Context, snap *types.Snapshot) error {
	return createSnapshot(ctx, t.tx, snap)
}

func scanSnapshot(scan func(dest ...any) error) (*types.Snapshot, error) {
	var snap types.Snapshot
	var tree string
	err := scan(&snap.ID, &snap.Scope, &snap.ContentHashRoot, &tree, &snap.Reason, &snap.By, &snap.CreatedAt)
	if err != nil {
		return nil, err
	}
	if tree != "" && tree != "{}" {
		if err := json.Unmarshal([]byte(tree), &snap.Tree); err != nil {
			return nil, fmt.Errorf("decode snapshot tree: %w", err)
		}
	}
	return &snap, nil
}
