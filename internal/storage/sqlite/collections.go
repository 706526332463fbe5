package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/skillmeat/skillmeat/internal/types"
)

func (s *SQLiteStorage) CreateCollection(ctx context.Context, c *types.Collection) error {
	if c.ID == "" {
		c.ID = types.NewID(types.PrefixCollection)
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	active := 0
	if c.IsActive {
		active = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collections (id, name, root, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, c.Name, c.Root, active, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			existing, lookupErr := s.GetCollectionByName(ctx, c.Name)
			if lookupErr == nil {
				return &types.ConflictError{Entity: "collection", ExistingID: existing.ID}
			}
			return &types.ConflictError{Entity: "collection", ExistingID: c.Name}
		}
		return fmt.Errorf("insert collection: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetCollection(ctx context.Context, id string) (*types.Collection, error) {
	return scanCollection(s.db.QueryRowContext(ctx, `
		SELECT id, name, root, is_active, created_at, updated_at
		FROM collections WHERE id = ?
	`, id), id)
}

func (s *SQLiteStorage) GetCollectionByName(ctx context.Context, name string) (*types.Collection, error) {
	return scanCollection(s.db.QueryRowContext(ctx, `
		SELECT id, name, root, is_active, created_at, updated_at
		FROM collections WHERE name = ?
	`, name), name)
}

// GetActiveCollection returns the collection marked active. When none is
// marked, NotFoundError is returned and the CLI prompts for init.
func (s *SQLiteStorage) GetActiveCollection(ctx context.Context) (*types.Collection, error) {
	return scanCollection(s.db.QueryRowContext(ctx, `
		SELECT id, name, root, is_active, created_at, updated_at
		FROM collections WHERE is_active = 1 LIMIT 1
	`), "active")
}

// SetActiveCollection marks id active and clears the flag everywhere else,
// preserving the single-active invariant.
func (s *SQLiteStorage) SetActiveCollection(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE collections SET is_active = CASE WHEN id = ? THEN 1 ELSE 0 END
	`, id)
	if err != nil {
		return fmt.Errorf("set active collection: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &types.NotFoundError{Entity: "collection", ID: id}
	}
	return nil
}

func (s *SQLiteStorage) ListCollections(ctx context.Context) ([]*types.Collection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, root, is_active, created_at, updated_at
		FROM collections ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Collection
	for rows.Next() {
		c, err := scanCollectionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) DeleteCollection(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &types.NotFoundError{Entity: "collection", ID: id}
	}
	return nil
}

func scanCollection(row *sql.Row, key string) (*types.Collection, error) {
	var c types.Collection
	var active int
	err := row.Scan(&c.ID, &c.Name, &c.Root, &active, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &types.NotFoundError{Entity: "collection", ID: key}
	}
	if err != nil {
		return nil, fmt.Errorf("scan collection: %w", err)
	}
	c.IsActive = active == 1
	return &c, nil
}

func scanCollectionRow(rows *sql.Rows) (*types.Collection, error) {
	var c types.Collection
	var active int
	if err := rows.Scan(&c.ID, &c.Name, &c.Root, &active, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan collection: %w", err)
	}
	c.IsActive = active == 1
	return &c, nil
}
