package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/skillmeat/skillmeat/internal/types"
)

const moduleColumns = `id, project_id, name, memory_types, min_confidence,
	anchors, stages, priority, member_ids, created_at`

func (s *SQLiteStorage) CreateContextModule(ctx context.Context, m *types.ContextModule) error {
	if m.Name == "" {
		return &types.ValidationError{Field: "name", Reason: "name is required"}
	}
	if m.ID == "" {
		m.ID = types.NewID(types.PrefixModule)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	memTypes := make([]string, len(m.MemoryTypes))
	for i, mt := range m.MemoryTypes {
		if !mt.IsValid() {
			return &types.ValidationError{Field: "memory_types", Reason: fmt.Sprintf("unknown memory type %q", mt)}
		}
		memTypes[i] = string(mt)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO context_modules (id, project_id, name, memory_types, min_confidence,
			anchors, stages, priority, member_ids, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.ProjectID, m.Name, encodeStringSlice(memTypes), m.MinConfidence,
		encodeStringSlice(m.Anchors), encodeStringSlice(m.Stages), m.Priority,
		encodeStringSlice(m.MemberIDs), m.CreatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			var existing string
			lookupErr := s.db.QueryRowContext(ctx, `
				SELECT id FROM context_modules WHERE project_id = ? AND name = ?
			`, m.ProjectID, m.Name).Scan(&existing)
			if lookupErr == nil {
				return &types.ConflictError{Entity: "context module", ExistingID: existing}
			}
			return &types.ConflictError{Entity: "context module", ExistingID: m.Name}
		}
		return fmt.Errorf("insert context module: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetContextModule(ctx context.Context, id string) (*types.ContextModule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+moduleColumns+` FROM context_modules WHERE id = ?`, id)
	m, err := scanContextModule(row.Scan)
	if err == sql.ErrNoRows {
		return nil, &types.NotFoundError{Entity: "context module", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get context module: %w", err)
	}
	return m, nil
}

func (s *SQLiteStorage) ListContextModules(ctx context.Context, projectID string) ([]*types.ContextModule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+moduleColumns+` FROM context_modules
		WHERE project_id = ? ORDER BY priority DESC, name
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list context modules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.ContextModule
	for rows.Next() {
		m, err := scanContextModule(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan context module: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) DeleteContextModule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM context_modules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete context module: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &types.NotFoundError{Entity: "context module", ID: id}
	}
	return nil
}

func scanContextModule(scan func(dest ...any) error) (*types.ContextModule, error) {
	var m types.ContextModule
	var memTypes, anchors, stages, members string
	err := scan(&m.ID, &m.ProjectID, &m.Name, &memTypes, &m.MinConfidence,
		&anchors, &stages, &m.Priority, &members, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	for _, s := range decodeStringSlice(memTypes) {
		m.MemoryTypes = append(m.MemoryTypes, types.MemoryType(s))
	}
	m.Anchors = decodeStringSlice(anchors)
	m.Stages = decodeStringSlice(stages)
	m.MemberIDs = decodeStringSlice(members)
	return &m, nil
}
