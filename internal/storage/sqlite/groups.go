package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/skillmeat/skillmeat/internal/types"
)

func createGroup(ctx context.Context, q dbtx, g *types.Group) error {
	if g.ID == "" {
		g.ID = types.NewID(types.PrefixGroup)
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO artifact_groups (id, collection_id, name, description, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, g.ID, g.CollectionID, g.Name, g.Description, g.CreatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			var existing string
			lookupErr := q.QueryRowContext(ctx, `
				SELECT id FROM artifact_groups WHERE collection_id = ? AND name = ?
			`, g.CollectionID, g.Name).Scan(&existing)
			if lookupErr == nil {
				return &types.ConflictError{Entity: "group", ExistingID: existing}
			}
			return &types.ConflictError{Entity: "group", ExistingID: g.Name}
		}
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

func addGroupMember(ctx context.Context, q dbtx, m *types.GroupMembership) error {
	// Idempotent on re-import: a duplicate membership is a no-op
	_, err := q.ExecContext(ctx, `
		INSERT INTO group_memberships (group_id, artifact_uuid, position)
		VALUES (?, ?, ?)
		ON CONFLICT (group_id, artifact_uuid) DO NOTHING
	`, m.GroupID, m.ArtifactUUID, m.Position)
	if err != nil {
		return fmt.Errorf("add group member: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) CreateGroup(ctx context.Context, g *types.Group) error {
	return createGroup(ctx, s.db, g)
}

func (s *SQLiteStorage) GetGroup(ctx context.Context, id string) (*types.Group, error) {
	var g types.Group
	err := s.db.QueryRowContext(ctx, `
		SELECT id, collection_id, name, description, created_at
		FROM artifact_groups WHERE id = ?
	`, id).Scan(&g.ID, &g.CollectionID, &g.Name, &g.Description, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, &types.NotFoundError{Entity: "group", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return &g, nil
}

func (s *SQLiteStorage) ListGroups(ctx context.Context, collectionID string) ([]*types.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, collection_id, name, description, created_at
		FROM artifact_groups WHERE collection_id = ? ORDER BY name
	`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Group
	for rows.Next() {
		var g types.Group
		if err := rows.Scan(&g.ID, &g.CollectionID, &g.Name, &g.Description, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) DeleteGroup(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM artifact_groups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &types.NotFoundError{Entity: "group", ID: id}
	}
	return nil
}

func (s *SQLiteStorage) AddGroupMember(ctx context.Context, m *types.GroupMembership) error {
	return addGroupMember(ctx, s.db, m)
}

func (s *SQLiteStorage) RemoveGroupMember(ctx context.Context, groupID, artifactUUID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM group_memberships WHERE group_id = ? AND artifact_uuid = ?
	`, groupID, artifactUUID)
	if err != nil {
		return fmt.Errorf("remove group member: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &types.NotFoundError{Entity: "group membership", ID: groupID + "/" + artifactUUID}
	}
	return nil
}

func (s *SQLiteStorage) ListGroupMembers(ctx context.Context, groupID string) ([]*types.GroupMembership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT group_id, artifact_uuid, position
		FROM group_memberships WHERE group_id = ?
		ORDER BY position, artifact_uuid
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.GroupMembership
	for rows.Next() {
		var m types.GroupMembership
		if err := rows.Scan(&m.GroupID, &m.ArtifactUUID, &m.Position); err != nil {
			return nil, fmt.Errorf("scan group membership: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (t *Tx) CreateGroup(ctx context.Context, g *types.Group) error {
	return createGroup(ctx, t.tx, g)
}

func (t *Tx) AddGroupMember(ctx context.Context, m *types.GroupMembership) error {
	return addGroupMember(ctx, t.tx, m)
}
