package sqlite

const schema = `
-- Collections table
CREATE TABLE IF NOT EXISTS collections (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE CHECK(length(name) <= 200),
    root TEXT NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Artifacts table
CREATE TABLE IF NOT EXISTS artifacts (
    uuid TEXT PRIMARY KEY,
    collection_id TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
    name TEXT NOT NULL CHECK(length(name) <= 200),
    type TEXT NOT NULL,
    origin TEXT NOT NULL DEFAULT 'local',
    upstream TEXT NOT NULL DEFAULT '',
    version_spec TEXT NOT NULL DEFAULT '',
    resolved_version TEXT NOT NULL DEFAULT '',
    content_hash TEXT NOT NULL,
    path_pattern TEXT NOT NULL,
    tags TEXT NOT NULL DEFAULT '[]',        -- JSON string array
    metadata TEXT NOT NULL DEFAULT '{}',    -- JSON string map
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (collection_id, type, name)
);

CREATE INDEX IF NOT EXISTS idx_artifacts_collection_type_name ON artifacts(collection_id, type, name);
CREATE INDEX IF NOT EXISTS idx_artifacts_content_hash ON artifacts(content_hash);
CREATE INDEX IF NOT EXISTS idx_artifacts_upstream ON artifacts(origin, upstream, type, name);

-- Groups (named artifact_groups; GROUPS is a window-frame keyword)
CREATE TABLE IF NOT EXISTS artifact_groups (
    id TEXT PRIMARY KEY,
    collection_id TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
    name TEXT NOT NULL CHECK(length(name) <= 200),
    description TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (collection_id, name)
);

CREATE TABLE IF NOT EXISTS group_memberships (
    group_id TEXT NOT NULL REFERENCES artifact_groups(id) ON DELETE CASCADE,
    artifact_uuid TEXT NOT NULL REFERENCES artifacts(uuid) ON DELETE CASCADE,
    position REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (group_id, artifact_uuid)
);

CREATE INDEX IF NOT EXISTS idx_group_memberships_artifact ON group_memberships(artifact_uuid);

-- Composite artifacts (plugins, stacks, suites, skill-with-embedded)
CREATE TABLE IF NOT EXISTS composite_artifacts (
    id TEXT PRIMARY KEY,
    collection_id TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
    composite_type TEXT NOT NULL CHECK(composite_type IN ('plugin', 'stack', 'suite', 'skill')),
    name TEXT NOT NULL CHECK(length(name) <= 200),
    metadata TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS composite_memberships (
    composite_id TEXT NOT NULL REFERENCES composite_artifacts(id) ON DELETE CASCADE,
    child_artifact_uuid TEXT NOT NULL REFERENCES artifacts(uuid) ON DELETE CASCADE,
    position REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (composite_id, child_artifact_uuid)
);

CREATE INDEX IF NOT EXISTS idx_composite_memberships_composite ON composite_memberships(composite_id);
CREATE INDEX IF NOT EXISTS idx_composite_memberships_child ON composite_memberships(child_artifact_uuid);

-- Deployment sets: user-scoped nestable bundles
CREATE TABLE IF NOT EXISTS deployment_sets (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL DEFAULT 'local',
    name TEXT NOT NULL CHECK(length(name) <= 200),
    description TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (owner_id, name)
);

-- Polymorphic members: exactly one of artifact_uuid, group_id, member_set_id
CREATE TABLE IF NOT EXISTS set_members (
    set_id TEXT NOT NULL REFERENCES deployment_sets(id) ON DELETE CASCADE,
    artifact_uuid TEXT REFERENCES artifacts(uuid) ON DELETE CASCADE,
    group_id TEXT REFERENCES artifact_groups(id) ON DELETE CASCADE,
    member_set_id TEXT REFERENCES deployment_sets(id) ON DELETE CASCADE,
    position REAL NOT NULL DEFAULT 0,
    CHECK (
        (artifact_uuid IS NOT NULL AND group_id IS NULL AND member_set_id IS NULL) OR
        (artifact_uuid IS NULL AND group_id IS NOT NULL AND member_set_id IS NULL) OR
        (artifact_uuid IS NULL AND group_id IS NULL AND member_set_id IS NOT NULL)
    )
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_set_members_artifact ON set_members(set_id, artifact_uuid) WHERE artifact_uuid IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_set_members_group ON set_members(set_id, group_id) WHERE group_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_set_members_set ON set_members(set_id, member_set_id) WHERE member_set_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_set_members_member_set ON set_members(member_set_id) WHERE member_set_id IS NOT NULL;

-- Projects table
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL CHECK(length(name) <= 200),
    path TEXT NOT NULL UNIQUE,
    last_deployment DATETIME,
    deployment_count INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Deployments: (artifact, project, profile) is the identity
CREATE TABLE IF NOT EXISTS deployments (
    artifact_uuid TEXT NOT NULL REFERENCES artifacts(uuid) ON DELETE CASCADE,
    project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    profile_id TEXT NOT NULL DEFAULT 'claude',
    source_content_hash TEXT NOT NULL,
    deployed_path TEXT NOT NULL,
    deployed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (artifact_uuid, project_id, profile_id)
);

CREATE INDEX IF NOT EXISTS idx_deployments_project ON deployments(project_id);
CREATE INDEX IF NOT EXISTS idx_deployments_artifact ON deployments(artifact_uuid);

-- Memory items
CREATE TABLE IF NOT EXISTS memory_items (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    type TEXT NOT NULL CHECK(type IN ('decision', 'constraint', 'gotcha', 'style_rule', 'learning')),
    content TEXT NOT NULL CHECK(length(content) <= 2000),
    confidence REAL NOT NULL DEFAULT 0 CHECK(confidence >= 0 AND confidence <= 1),
    status TEXT NOT NULL DEFAULT 'candidate' CHECK(status IN ('candidate', 'active', 'stable', 'deprecated')),
    provenance TEXT NOT NULL DEFAULT '{}',
    anchors TEXT NOT NULL DEFAULT '[]',
    ttl_policy TEXT NOT NULL DEFAULT '',
    content_hash TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deprecated_at DATETIME,
    UNIQUE (project_id, content_hash)
);

CREATE INDEX IF NOT EXISTS idx_memory_items_project_status ON memory_items(project_id, status);
CREATE INDEX IF NOT EXISTS idx_memory_items_project_type ON memory_items(project_id, type);
CREATE INDEX IF NOT EXISTS idx_memory_items_content_hash ON memory_items(content_hash);

-- Context modules
CREATE TABLE IF NOT EXISTS context_modules (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    name TEXT NOT NULL CHECK(length(name) <= 200),
    memory_types TEXT NOT NULL DEFAULT '[]',
    min_confidence REAL NOT NULL DEFAULT 0,
    anchors TEXT NOT NULL DEFAULT '[]',
    stages TEXT NOT NULL DEFAULT '[]',
    priority INTEGER NOT NULL DEFAULT 0,
    member_ids TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (project_id, name)
);

-- Snapshot metadata (blob contents live in the content-addressed store)
CREATE TABLE IF NOT EXISTS snapshots (
    id TEXT PRIMARY KEY,
    scope TEXT NOT NULL,
    content_hash_root TEXT NOT NULL,
    tree TEXT NOT NULL DEFAULT '{}',
    reason TEXT NOT NULL DEFAULT 'manual',
    created_by TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_snapshots_scope_created ON snapshots(scope, created_at);

-- Internal key/value state (schema info, ledger hashes)
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
