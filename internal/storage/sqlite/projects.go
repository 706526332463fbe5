package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/skillmeat/skillmeat/internal/types"
)

func createProject(ctx context.Context, q dbtx, p *types.Project) error {
	if p.ID == "" {
		p.ID = types.NewID(types.PrefixProject)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO projects (id, name, path, last_deployment, deployment_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Path, p.LastDeployment, p.DeploymentCount, p.CreatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			var existing string
			lookupErr := q.QueryRowContext(ctx, `
				SELECT id FROM projects WHERE path = ?
			`, p.Path).Scan(&existing)
			if lookupErr == nil {
				return &types.ConflictError{Entity: "project", ExistingID: existing}
			}
			return &types.ConflictError{Entity: "project", ExistingID: p.Path}
		}
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// refreshProjectStats recomputes the materialized deployment_count and
// last_deployment from the deployments table. Called inside the same
// transaction as any deployment mutation so readers never see stale counts.
func refreshProjectStats(ctx context.Context, q dbtx, projectID string) error {
	res, err := q.ExecContext(ctx, `
		UPDATE projects SET
			deployment_count = (SELECT COUNT(*) FROM deployments WHERE project_id = ?),
			last_deployment = (SELECT MAX(deployed_at) FROM deployments WHERE project_id = ?)
		WHERE id = ?
	`, projectID, projectID, projectID)
	if err != nil {
		return fmt.Errorf("refresh project stats: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &types.NotFoundError{Entity: "project", ID: projectID}
	}
	return nil
}

func (s *SQLiteStorage) CreateProject(ctx context.Context, p *types.Project) error {
	return createProject(ctx, s.db, p)
}

func (s *SQLiteStorage) GetProject(ctx context.Context, id string) (*types.Project, error) {
	return scanProject(s.db.QueryRowContext(ctx, `
		SELECT id, name, path, last_deployment, deployment_count, created_at
		FROM projects WHERE id = ?
	`, id), id)
}

func (s *SQLiteStorage) GetProjectByPath(ctx context.Context, path string) (*types.Project, error) {
	return scanProject(s.db.QueryRowContext(ctx, `
		SELECT id, name, path, last_deployment, deployment_count, created_at
		FROM projects WHERE path = ?
	`, path), path)
}

func (s *SQLiteStorage) ListProjects(ctx context.Context) ([]*types.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, path, last_deployment, deployment_count, created_at
		FROM projects ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Project
	for rows.Next() {
		var p types.Project
		var last sql.NullTime
		if err := rows.Scan(&p.ID, &p.Name, &p.Path, &last, &p.DeploymentCount, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		if last.Valid {
			t := last.Time
			p.LastDeployment = &t
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// DeleteProject removes the project row; deployments and memory items
// cascade.
func (s *SQLiteStorage) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &types.NotFoundError{Entity: "project", ID: id}
	}
	return nil
}

func (s *SQLiteStorage) RefreshProjectStats(ctx context.Context, projectID string) error {
	return refreshProjectStats(ctx, s.db, projectID)
}

func (t *Tx) CreateProject(ctx context.Context, p *types.Project) error {
	return createProject(ctx, t.tx, p)
}

func (t *Tx) RefreshProjectStats(ctx context.Context, projectID string) error {
	return refreshProjectStats(ctx, t.tx, projectID)
}

func scanProject(row *sql.Row, key string) (*types.Project, error) {
	var p types.Project
	var last sql.NullTime
	err := row.Scan(&p.ID, &p.Name, &p.Path, &last, &p.DeploymentCount, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, &types.NotFoundError{Entity: "project", ID: key}
	}
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}
	if last.Valid {
		t := last.Time
		p.LastDeployment = &t
	}
	return &p, nil
}
