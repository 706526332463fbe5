package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/skillmeat/skillmeat/internal/types"
)

// upsertDeployment records a deployment, replacing the row for the same
// (artifact, project, profile) identity. Re-deploying is an update, not a
// conflict.
func upsertDeployment(ctx context.Context, q dbtx, d *types.Deployment) error {
	if d.ProfileID == "" {
		d.ProfileID = "claude"
	}
	if d.DeployedAt.IsZero() {
		d.DeployedAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO deployments (artifact_uuid, project_id, profile_id, source_content_hash, deployed_path, deployed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (artifact_uuid, project_id, profile_id) DO UPDATE SET
			source_content_hash = excluded.source_content_hash,
			deployed_path = excluded.deployed_path,
			deployed_at = excluded.deployed_at
	`, d.ArtifactUUID, d.ProjectID, d.ProfileID, d.SourceContentHash, d.DeployedPath, d.DeployedAt)
	if err != nil {
		return fmt.Errorf("upsert deployment: %w", err)
	}
	return nil
}

func deleteDeployment(ctx context.Context, q dbtx, artifactUUID, projectID, profileID string) error {
	if profileID == "" {
		profileID = "claude"
	}
	res, err := q.ExecContext(ctx, `
		DELETE FROM deployments
		WHERE artifact_uuid = ? AND project_id = ? AND profile_id = ?
	`, artifactUUID, projectID, profileID)
	if err != nil {
		return fmt.Errorf("delete deployment: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &types.NotFoundError{Entity: "deployment", ID: artifactUUID + "@" + projectID}
	}
	return nil
}

func (s *SQLiteStorage) UpsertDeployment(ctx context.Context, d *types.Deployment) error {
	return upsertDeployment(ctx, s.db, d)
}

func (s *SQLiteStorage) GetDeployment(ctx context.Context, artifactUUID, projectID, profileID string) (*types.Deployment, error) {
	if profileID == "" {
		profileID = "claude"
	}
	var d types.Deployment
	err := s.db.QueryRowContext(ctx, `
		SELECT artifact_uuid, project_id, profile_id, source_content_hash, deployed_path, deployed_at
		FROM deployments
		WHERE artifact_uuid = ? AND project_id = ? AND profile_id = ?
	`, artifactUUID, projectID, profileID).Scan(
		&d.ArtifactUUID, &d.ProjectID, &d.ProfileID, &d.SourceContentHash, &d.DeployedPath, &d.DeployedAt)
	if err == sql.ErrNoRows {
		return nil, &types.NotFoundError{Entity: "deployment", ID: artifactUUID + "@" + projectID}
	}
	if err != nil {
		return nil, fmt.Errorf("get deployment: %w", err)
	}
	return &d, nil
}

func (s *SQLiteStorage) ListDeploymentsByProject(ctx context.Context, projectID string) ([]*types.Deployment, error) {
	return s.listDeployments(ctx, `WHERE project_id = ?`, projectID)
}

func (s *SQLiteStorage) ListDeploymentsByArtifact(ctx context.Context, artifactUUID string) ([]*types.Deployment, error) {
	return s.listDeployments(ctx, `WHERE artifact_uuid = ?`, artifactUUID)
}

func (s *SQLiteStorage) listDeployments(ctx context.Context, where string, arg any) ([]*types.Deployment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT artifact_uuid, project_id, profile_id, source_content_hash, deployed_path, deployed_at
		FROM deployments `+where+` ORDER BY deployed_at DESC, artifact_uuid
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Deployment
	for rows.Next() {
		var d types.Deployment
		if err := rows.Scan(&d.ArtifactUUID, &d.ProjectID, &d.ProfileID,
			&d.SourceContentHash, &d.DeployedPath, &d.DeployedAt); err != nil {
			return nil, fmt.Errorf("scan deployment: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) DeleteDeployment(ctx context.Context, artifactUUID, projectID, profileID string) error {
	return deleteDeployment(ctx, s.db, artifactUUID, projectID, profileID)
}

func (t *Tx) UpsertDeployment(ctx context.Context, d *types.Deployment) error {
	return upsertDeployment(ctx, t.tx, d)
}

func (t *Tx) DeleteDeployment(ctx context.Context, artifactUUID, projectID, profileID string) error {
	return deleteDeployment(ctx, t.tx, artifactUUID, projectID, profileID)
}
