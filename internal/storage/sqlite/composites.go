package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/skillmeat/skillmeat/internal/types"
)

func createComposite(ctx context.Context, q dbtx, c *types.CompositeArtifact) error {
	if c.ID == "" {
		c.ID = types.NewID(types.PrefixComposite)
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := q.ExecContext(ctx, `
		INSERT INTO composite_artifacts (id, collection_id, composite_type, name, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.CollectionID, string(c.CompositeType), c.Name, encodeStringMap(c.Metadata), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isCheckConstraintError(err) {
			return &types.ValidationError{Field: "composite_type", Reason: fmt.Sprintf("unknown value %q", c.CompositeType)}
		}
		return fmt.Errorf("insert composite: %w", err)
	}
	return nil
}

// addCompositeMember is idempotent: re-importing the same parent/child pair
// is a no-op.
func addCompositeMember(ctx context.Context, q dbtx, m *types.CompositeMembership) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO composite_memberships (composite_id, child_artifact_uuid, position)
		VALUES (?, ?, ?)
		ON CONFLICT (composite_id, child_artifact_uuid) DO NOTHING
	`, m.CompositeID, m.ChildUUID, m.Position)
	if err != nil {
		return fmt.Errorf("add composite member: %w", err)
	}
	return nil
}

func listCompositeMembers(ctx context.Context, q dbtx, compositeID string) ([]*types.CompositeMembership, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT composite_id, child_artifact_uuid, position
		FROM composite_memberships WHERE composite_id = ?
		ORDER BY position, child_artifact_uuid
	`, compositeID)
	if err != nil {
		return nil, fmt.Errorf("list composite members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.CompositeMembership
	for rows.Next() {
		var m types.CompositeMembership
		if err := rows.Scan(&m.CompositeID, &m.ChildUUID, &m.Position); err != nil {
			return nil, fmt.Errorf("scan composite membership: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) CreateComposite(ctx context.Context, c *types.CompositeArtifact) error {
	return createComposite(ctx, s.db, c)
}

func (s *SQLiteStorage) GetComposite(ctx context.Context, id string) (*types.CompositeArtifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, collection_id, composite_type, name, metadata, created_at, updated_at
		FROM composite_artifacts WHERE id = ?
	`, id)
	c, err := scanComposite(row.Scan)
	if err == sql.ErrNoRows {
		return nil, &types.NotFoundError{Entity: "composite", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get composite: %w", err)
	}
	return c, nil
}

// findCompositeForArtifact locates the companion composite row for a
// skill-with-embedded artifact via the metadata back-reference.
func findCompositeForArtifact(ctx context.Context, q dbtx, artifactUUID string) (*types.CompositeArtifact, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, collection_id, composite_type, name, metadata, created_at, updated_at
		FROM composite_artifacts
		WHERE json_extract(metadata, '$.artifact_uuid') = ?
		LIMIT 1
	`, artifactUUID)
	c, err := scanComposite(row.Scan)
	if err == sql.ErrNoRows {
		return nil, &types.NotFoundError{Entity: "composite", ID: artifactUUID}
	}
	if err != nil {
		return nil, fmt.Errorf("find composite for artifact: %w", err)
	}
	return c, nil
}

func (s *SQLiteStorage) FindCompositeForArtifact(ctx context.Context, artifactUUID string) (*types.CompositeArtifact, error) {
	return findCompositeForArtifact(ctx, s.db, artifactUUID)
}

func (s *SQLiteStorage) ListComposites(ctx context.Context, collectionID string) ([]*types.CompositeArtifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, collection_id, composite_type, name, metadata, created_at, updated_at
		FROM composite_artifacts WHERE collection_id = ? ORDER BY name
	`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list composites: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.CompositeArtifact
	for rows.Next() {
		c, err := scanComposite(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan composite: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) AddCompositeMember(ctx context.Context, m *types.CompositeMembership) error {
	return addCompositeMember(ctx, s.db, m)
}

func (s *SQLiteStorage) ListCompositeMembers(ctx context.Context, compositeID string) ([]*types.CompositeMembership, error) {
	return listCompositeMembers(ctx, s.db, compositeID)
}

// DeleteComposite removes the composite row; memberships cascade.
func (s *SQLiteStorage) DeleteComposite(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM composite_artifacts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete composite: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &types.NotFoundError{Entity: "composite", ID: id}
	}
	return nil
}

func (t *Tx) CreateComposite(ctx context.Context, c *types.CompositeArtifact) error {
	return createComposite(ctx, t.tx, c)
}

func (t *Tx) FindCompositeForArtifact(ctx context.Context, artifactUUID string) (*types.CompositeArtifact, error) {
	return findCompositeForArtifact(ctx, t.tx, artifactUUID)
}

func (t *Tx) AddCompositeMember(ctx context.Context, m *types.CompositeMembership) error {
	return addCompositeMember(ctx, t.tx, m)
}

func (t *Tx) ListCompositeMembers(ctx context.Context, compositeID string) ([]*types.CompositeMembership, error) {
	return listCompositeMembers(ctx, t.tx, compositeID)
}

func scanComposite(scan func(dest ...any) error) (*types.CompositeArtifact, error) {
	var c types.CompositeArtifact
	var typ, metadata string
	err := scan(&c.ID, &c.CollectionID, &typ, &c.Name, &metadata, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.CompositeType = types.CompositeType(typ)
	c.Metadata = decodeStringMap(metadata)
	return &c, nil
}
