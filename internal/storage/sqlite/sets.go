package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/skillmeat/skillmeat/internal/types"
)

func createSet(ctx context.Context, q dbtx, set *types.DeploymentSet) error {
	if set.ID == "" {
		set.ID = types.NewID(types.PrefixSet)
	}
	if set.OwnerID == "" {
		set.OwnerID = types.LocalOwner
	}
	now := time.Now().UTC()
	if set.CreatedAt.IsZero() {
		set.CreatedAt = now
	}
	set.UpdatedAt = now

	_, err := q.ExecContext(ctx, `
		INSERT INTO deployment_sets (id, owner_id, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, set.ID, set.OwnerID, set.Name, set.Description, set.CreatedAt, set.UpdatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			var existing string
			lookupErr := q.QueryRowContext(ctx, `
				SELECT id FROM deployment_sets WHERE owner_id = ? AND name = ?
			`, set.OwnerID, set.Name).Scan(&existing)
			if lookupErr == nil {
				return &types.ConflictError{Entity: "deployment set", ExistingID: existing}
			}
			return &types.ConflictError{Entity: "deployment set", ExistingID: set.Name}
		}
		return fmt.Errorf("insert deployment set: %w", err)
	}
	return nil
}

// memberRefs maps a SetMember to its nullable column values after checking
// the exactly-one-reference rule.
func memberRefs(m *types.SetMember) (artifact, group, memberSet any, err error) {
	count := 0
	if m.ArtifactUUID != "" {
		count++
	}
	if m.GroupID != "" {
		count++
	}
	if m.MemberSetID != "" {
		count++
	}
	if count != 1 {
		return nil, nil, nil, &types.ValidationError{
			Field:  "member",
			Reason: "exactly one of artifact_uuid, group_id, member_set_id must be set",
		}
	}

	switch {
	case m.ArtifactUUID != "":
		m.Kind = types.MemberArtifact
		return m.ArtifactUUID, nil, nil, nil
	case m.GroupID != "":
		m.Kind = types.MemberGroup
		return nil, m.GroupID, nil, nil
	default:
		m.Kind = types.MemberSet
		return nil, nil, m.MemberSetID, nil
	}
}

func addSetMember(ctx context.Context, q dbtx, m *types.SetMember) error {
	artifact, group, memberSet, err := memberRefs(m)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO set_members (set_id, artifact_uuid, group_id, member_set_id, position)
		VALUES (?, ?, ?, ?, ?)
	`, m.SetID, artifact, group, memberSet, m.Position)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &types.ConflictError{Entity: "set member", ExistingID: m.SetID}
		}
		return fmt.Errorf("add set member: %w", err)
	}
	return nil
}

func removeSetMember(ctx context.Context, q dbtx, m *types.SetMember) error {
	artifact, group, memberSet, err := memberRefs(m)
	if err != nil {
		return err
	}

	res, err := q.ExecContext(ctx, `
		DELETE FROM set_members
		WHERE set_id = ?
		  AND (artifact_uuid IS ? AND group_id IS ? AND member_set_id IS ?)
	`, m.SetID, artifact, group, memberSet)
	if err != nil {
		return fmt.Errorf("remove set member: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &types.NotFoundError{Entity: "set member", ID: m.SetID}
	}
	return nil
}

// deleteSet removes the set row. FK cascades clear both its own member rows
// and inbound member rows in parent sets, so no dangling references survive.
func deleteSet(ctx context.Context, q dbtx, id string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM deployment_sets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete deployment set: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &types.NotFoundError{Entity: "deployment set", ID: id}
	}
	return nil
}

func listSetMembers(ctx context.Context, q dbtx, setID string) ([]*types.SetMember, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT set_id, artifact_uuid, group_id, member_set_id, position
		FROM set_members WHERE set_id = ?
		ORDER BY position, artifact_uuid, group_id, member_set_id
	`, setID)
	if err != nil {
		return nil, fmt.Errorf("list set members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.SetMember
	for rows.Next() {
		var m types.SetMember
		var artifact, group, memberSet sql.NullString
		if err := rows.Scan(&m.SetID, &artifact, &group, &memberSet, &m.Position); err != nil {
			return nil, fmt.Errorf("scan set member: %w", err)
		}
		switch {
		case artifact.Valid:
			m.Kind = types.MemberArtifact
			m.ArtifactUUID = artifact.String
		case group.Valid:
			m.Kind = types.MemberGroup
			m.GroupID = group.String
		case memberSet.Valid:
			m.Kind = types.MemberSet
			m.MemberSetID = memberSet.String
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) CreateSet(ctx context.Context, set *types.DeploymentSet) error {
	return createSet(ctx, s.db, set)
}

func (s *SQLiteStorage) GetSet(ctx context.Context, id string) (*types.DeploymentSet, error) {
	return scanSet(s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, description, created_at, updated_at
		FROM deployment_sets WHERE id = ?
	`, id), id)
}

func (s *SQLiteStorage) GetSetByName(ctx context.Context, ownerID, name string) (*types.DeploymentSet, error) {
	if ownerID == "" {
		ownerID = types.LocalOwner
	}
	return scanSet(s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, description, created_at, updated_at
		FROM deployment_sets WHERE owner_id = ? AND name = ?
	`, ownerID, name), name)
}

func (s *SQLiteStorage) ListSets(ctx context.Context, ownerID string) ([]*types.DeploymentSet, error) {
	if ownerID == "" {
		ownerID = types.LocalOwner
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, description, created_at, updated_at
		FROM deployment_sets WHERE owner_id = ? ORDER BY name
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list deployment sets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.DeploymentSet
	for rows.Next() {
		var set types.DeploymentSet
		if err := rows.Scan(&set.ID, &set.OwnerID, &set.Name, &set.Description, &set.CreatedAt, &set.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan deployment set: %w", err)
		}
		out = append(out, &set)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) AddSetMember(ctx context.Context, m *types.SetMember) error {
	return addSetMember(ctx, s.db, m)
}

func (s *SQLiteStorage) RemoveSetMember(ctx context.Context, m *types.SetMember) error {
	return removeSetMember(ctx, s.db, m)
}

func (s *SQLiteStorage) ListSetMembers(ctx context.Context, setID string) ([]*types.SetMember, error) {
	return listSetMembers(ctx, s.db, setID)
}

func (s *SQLiteStorage) DeleteSet(ctx context.Context, id string) error {
	return deleteSet(ctx, s.db, id)
}

func (t *Tx) CreateSet(ctx context.Context, set *types.DeploymentSet) error {
	return createSet(ctx, t.tx, set)
}

func (t *Tx) AddSetMember(ctx context.Context, m *types.SetMember) error {
	return addSetMember(ctx, t.tx, m)
}

func (t *Tx) RemoveSetMember(ctx context.Context, m *types.SetMember) error {
	return removeSetMember(ctx, t.tx, m)
}

func (t *Tx) DeleteSet(ctx context.Context, id string) error {
	return deleteSet(ctx, t.tx, id)
}

func (t *Tx) ListSetMembers(ctx context.Context, setID string) ([]*types.SetMember, error) {
	return listSetMembers(ctx, t.tx, setID)
}

func scanSet(row *sql.Row, key string) (*types.DeploymentSet, error) {
	var set types.DeploymentSet
	err := row.Scan(&set.ID, &set.OwnerID, &set.Name, &set.Description, &set.CreatedAt, &set.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &types.NotFoundError{Entity: "deployment set", ID: key}
	}
	if err != nil {
		return nil, fmt.Errorf("scan deployment set: %w", err)
	}
	return &set, nil
}
