package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
)

// Migration is a named, idempotent schema upgrade. Migrations run in order
// on every open; each one inspects the live schema and becomes a no-op when
// the database is already current, so fresh databases (created from the
// schema constant) pass straight through.
type Migration struct {
	Name string
	Func func(tx *sql.Tx) error
}

var migrationsList = []Migration{
	{Name: "widen_composite_type_check", Func: migrateWidenCompositeTypeCheck},
	{Name: "add_deployment_profile", Func: migrateAddDeploymentProfile},
	{Name: "add_memory_anchor_columns", Func: migrateAddMemoryAnchorColumns},
}

// runMigrations applies all pending migrations inside a single exclusive
// transaction. Foreign keys are switched off for the duration because
// rebuild-style migrations recreate tables in place.
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("disable foreign keys: %w", err)
	}
	defer func() { _, _ = db.Exec("PRAGMA foreign_keys = ON") }()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, m := range migrationsList {
		if err := m.Func(tx); err != nil {
			return fmt.Errorf("migration %s: %w", m.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	committed = true
	return nil
}

// migrateWidenCompositeTypeCheck rebuilds composite_artifacts when its CHECK
// constraint predates the 'suite' and 'skill' composite types. SQLite cannot
// alter a CHECK in place, so the table is recreated and data copied over.
func migrateWidenCompositeTypeCheck(tx *sql.Tx) error {
	ddl, err := tableSQL(tx, "composite_artifacts")
	if err != nil || ddl == "" {
		return err
	}
	if strings.Contains(ddl, "'suite'") && strings.Contains(ddl, "'skill'") {
		return nil
	}

	stmts := []string{
		`ALTER TABLE composite_artifacts RENAME TO composite_artifacts_old`,
		`CREATE TABLE composite_artifacts (
			id TEXT PRIMARY KEY,
			collection_id TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
			composite_type TEXT NOT NULL CHECK(composite_type IN ('plugin', 'stack', 'suite', 'skill')),
			name TEXT NOT NULL CHECK(length(name) <= 200),
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`INSERT INTO composite_artifacts SELECT * FROM composite_artifacts_old`,
		`DROP TABLE composite_artifacts_old`,
		`CREATE INDEX IF NOT EXISTS idx_composites_collection ON composite_artifacts(collection_id)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// migrateAddDeploymentProfile adds the profile_id column for databases that
// predate multi-profile deployments and folds it into the primary key.
func migrateAddDeploymentProfile(tx *sql.Tx) error {
	has, err := columnExists(tx, "deployments", "profile_id")
	if err != nil || has {
		return err
	}

	stmts := []string{
		`ALTER TABLE deployments RENAME TO deployments_old`,
		`CREATE TABLE deployments (
			artifact_uuid TEXT NOT NULL REFERENCES artifacts(uuid) ON DELETE CASCADE,
			project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			profile_id TEXT NOT NULL DEFAULT 'claude',
			source_content_hash TEXT NOT NULL,
			deployed_path TEXT NOT NULL,
			deployed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (artifact_uuid, project_id, profile_id)
		)`,
		`INSERT INTO deployments (artifact_uuid, project_id, source_content_hash, deployed_path, deployed_at)
			SELECT artifact_uuid, project_id, source_content_hash, deployed_path, deployed_at FROM deployments_old`,
		`DROP TABLE deployments_old`,
		`CREATE INDEX IF NOT EXISTS idx_deployments_project ON deployments(project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_deployments_artifact ON deployments(artifact_uuid)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// migrateAddMemoryAnchorColumns adds anchors and ttl_policy to memory_items
// for databases created before context packing landed.
func migrateAddMemoryAnchorColumns(tx *sql.Tx) error {
	for col, ddl := range map[string]string{
		"anchors":    `ALTER TABLE memory_items ADD COLUMN anchors TEXT NOT NULL DEFAULT '[]'`,
		"ttl_policy": `ALTER TABLE memory_items ADD COLUMN ttl_policy TEXT NOT NULL DEFAULT ''`,
	} {
		has, err := columnExists(tx, "memory_items", col)
		if err != nil {
			return err
		}
		if !has {
			if _, err := tx.Exec(ddl); err != nil {
				return err
			}
		}
	}
	return nil
}

func columnExists(tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func tableSQL(tx *sql.Tx, table string) (string, error) {
	var ddl sql.NullString
	err := tx.QueryRow(`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&ddl)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return ddl.String, nil
}
