package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/skillmeat/skillmeat/internal/types"
)

const memoryColumns = `id, project_id, type, content, confidence, status,
	provenance, anchors, ttl_policy, content_hash, created_at, updated_at, deprecated_at`

func createMemoryItem(ctx context.Context, q dbtx, m *types.MemoryItem) error {
	if m.ProjectID == "" {
		return &types.ValidationError{Field: "project_id", Reason: "project is required"}
	}
	if !m.Type.IsValid() {
		return &types.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown memory type %q", m.Type)}
	}
	if m.Content == "" {
		return &types.ValidationError{Field: "content", Reason: "content is required"}
	}
	if len(m.Content) > types.MaxMemoryContentLen {
		return &types.ValidationError{
			Field:  "content",
			Reason: fmt.Sprintf("content is %d bytes; max is %d", len(m.Content), types.MaxMemoryContentLen),
		}
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return &types.ValidationError{Field: "confidence", Reason: "confidence must be in [0, 1]"}
	}
	if m.Status == "" {
		m.Status = types.MemoryCandidate
	}
	if !m.Status.IsValid() {
		return &types.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", m.Status)}
	}
	if m.ID == "" {
		m.ID = types.NewID(types.PrefixMemory)
	}
	if m.ContentHash == "" {
		m.ContentHash = HashMemoryContent(m.Content)
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = now
	}

	prov, err := json.Marshal(m.Provenance)
	if err != nil {
		return fmt.Errorf("encode provenance: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO memory_items (id, project_id, type, content, confidence, status,
			provenance, anchors, ttl_policy, content_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.ProjectID, m.Type, m.Content, m.Confidence, m.Status,
		string(prov), encodeStringSlice(m.Anchors), m.TTLPolicy, m.ContentHash,
		m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			var existing string
			lookupErr := q.QueryRowContext(ctx, `
				SELECT id FROM memory_items WHERE project_id = ? AND content_hash = ?
			`, m.ProjectID, m.ContentHash).Scan(&existing)
			if lookupErr == nil {
				return &types.ConflictError{Entity: "memory item", ExistingID: existing}
			}
			return &types.ConflictError{Entity: "memory item", ExistingID: m.ContentHash}
		}
		return fmt.Errorf("insert memory item: %w", err)
	}
	return nil
}

// updateMemoryStatus moves an item along the promotion ladder. Illegal
// transitions are rejected before any write.
func updateMemoryStatus(ctx context.Context, q dbtx, id string, next types.MemoryStatus) error {
	if !next.IsValid() {
		return &types.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", next)}
	}

	var current types.MemoryStatus
	err := q.QueryRowContext(ctx, `SELECT status FROM memory_items WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return &types.NotFoundError{Entity: "memory item", ID: id}
	}
	if err != nil {
		return fmt.Errorf("get memory status: %w", err)
	}
	if !current.CanTransition(next) {
		return &types.ValidationError{
			Field:  "status",
			Reason: fmt.Sprintf("cannot transition %s from %s to %s", id, current, next),
		}
	}

	now := time.Now().UTC()
	if next == types.MemoryDeprecated {
		_, err = q.ExecContext(ctx, `
			UPDATE memory_items SET status = ?, updated_at = ?, deprecated_at = ? WHERE id = ?
		`, next, now, now, id)
	} else {
		_, err = q.ExecContext(ctx, `
			UPDATE memory_items SET status = ?, updated_at = ? WHERE id = ?
		`, next, now, id)
	}
	if err != nil {
		return fmt.Errorf("update memory status: %w", err)
	}
	return nil
}

func updateMemoryAnchors(ctx context.Context, q dbtx, id string, anchors []string) error {
	res, err := q.ExecContext(ctx, `
		UPDATE memory_items SET anchors = ?, updated_at = ? WHERE id = ?
	`, encodeStringSlice(anchors), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update memory anchors: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &types.NotFoundError{Entity: "memory item", ID: id}
	}
	return nil
}

func (s *SQLiteStorage) CreateMemoryItem(ctx context.Context, m *types.MemoryItem) error {
	return createMemoryItem(ctx, s.db, m)
}

func (s *SQLiteStorage) GetMemoryItem(ctx context.Context, id string) (*types.MemoryItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memory_items WHERE id = ?`, id)
	m, err := scanMemoryItem(row.Scan)
	if err == sql.ErrNoRows {
		return nil, &types.NotFoundError{Entity: "memory item", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get memory item: %w", err)
	}
	return m, nil
}

func (s *SQLiteStorage) ListMemoryItems(ctx context.Context, filter types.MemoryFilter, page types.Page) (*types.MemoryPage, error) {
	var conds []string
	var args []any

	if filter.ProjectID != "" {
		conds = append(conds, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Type != nil {
		conds = append(conds, "type = ?")
		args = append(args, string(*filter.Type))
	}
	if filter.MinConfidence != nil {
		conds = append(conds, "confidence >= ?")
		args = append(args, *filter.MinConfidence)
	}
	if filter.Since != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *filter.Since)
	}
	if key, ok := decodeCursor(page.Cursor); ok {
		conds = append(conds, "(created_at, id) > (?, ?)")
		args = append(args, key.CreatedAt, key.ID)
	}

	query := `SELECT ` + memoryColumns + ` FROM memory_items`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, id"
	if page.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", page.Limit+1)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list memory items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.MemoryItem
	for rows.Next() {
		m, err := scanMemoryItem(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan memory item: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &types.MemoryPage{Items: out}
	if page.Limit > 0 && len(out) > page.Limit {
		result.Items = out[:page.Limit]
		last := result.Items[len(result.Items)-1]
		result.NextCursor = encodeCursor(last.CreatedAt, last.ID)
	}
	return result, nil
}

func (s *SQLiteStorage) UpdateMemoryStatus(ctx context.Context, id string, next types.MemoryStatus) error {
	return updateMemoryStatus(ctx, s.db, id, next)
}

func (s *SQLiteStorage) UpdateMemoryAnchors(ctx context.Context, id string, anchors []string) error {
	return updateMemoryAnchors(ctx, s.db, id, anchors)
}

func (s *SQLiteStorage) DeleteMemoryItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memory_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete memory item: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &types.NotFoundError{Entity: "memory item", ID: id}
	}
	return nil
}

func (t *Tx) CreateMemoryItem(ctx context.Context, m *types.MemoryItem) error {
	return createMemoryItem(ctx, t.tx, m)
}

func (t *Tx) UpdateMemoryStatus(ctx context.Context, id string, next types.MemoryStatus) error {
	return updateMemoryStatus(ctx, t.tx, id, next)
}

func (t *Tx) UpdateMemoryAnchors(ctx context.Context, id string, anchors []string) error {
	return updateMemoryAnchors(ctx, t.tx, id, anchors)
}

func scanMemoryItem(scan func(dest ...any) error) (*types.MemoryItem, error) {
	var m types.MemoryItem
	var prov, anchors string
	var deprecated sql.NullTime
	err := scan(&m.ID, &m.ProjectID, &m.Type, &m.Content, &m.Confidence, &m.Status,
		&prov, &anchors, &m.TTLPolicy, &m.ContentHash, &m.CreatedAt, &m.UpdatedAt, &deprecated)
	if err != nil {
		return nil, err
	}
	if prov != "" && prov != "{}" {
		if err := json.Unmarshal([]byte(prov), &m.Provenance); err != nil {
			return nil, fmt.Errorf("decode provenance: %w", err)
		}
	}
	m.Anchors = decodeStringSlice(anchors)
	if deprecated.Valid {
		t := deprecated.Time
		m.DeprecatedAt = &t
	}
	return &m, nil
}

// HashMemoryContent returns the exact-duplicate key for memory content:
// SHA-256 over the whitespace-trimmed text.
func HashMemoryContent(content string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(sum[:])
}
