// Package types defines the core data structures shared across skillmeat.
package types

import (
	"time"
)

// ArtifactType identifies the kind of agent configuration an artifact carries.
type ArtifactType string

const (
	TypeSkill     ArtifactType = "skill"
	TypeCommand   ArtifactType = "command"
	TypeAgent     ArtifactType = "agent"
	TypeHook      ArtifactType = "hook"
	TypeMCPServer ArtifactType = "mcp-server"
	TypeContext   ArtifactType = "context"
	TypeRule      ArtifactType = "rule"
	TypeSpec      ArtifactType = "spec"
)

// ValidArtifactTypes lists every accepted artifact type in display order.
var ValidArtifactTypes = []ArtifactType{
	TypeSkill, TypeCommand, TypeAgent, TypeHook,
	TypeMCPServer, TypeContext, TypeRule, TypeSpec,
}

// IsValid reports whether t is a known artifact type.
func (t ArtifactType) IsValid() bool {
	switch t {
	case TypeSkill, TypeCommand, TypeAgent, TypeHook,
		TypeMCPServer, TypeContext, TypeRule, TypeSpec:
		return true
	}
	return false
}

// Plural returns the directory name used for this type under
// <collection_root>/artifacts/ and <project>/.claude/.
func (t ArtifactType) Plural() string {
	switch t {
	case TypeSkill:
		return "skills"
	case TypeCommand:
		return "commands"
	case TypeAgent:
		return "agents"
	case TypeHook:
		return "hooks"
	case TypeMCPServer:
		return "mcp-servers"
	case TypeContext:
		return "context"
	case TypeRule:
		return "rules"
	case TypeSpec:
		return "specs"
	}
	return string(t) + "s"
}

// Origin identifies where an artifact was sourced from.
type Origin string

const (
	OriginLocal       Origin = "local"
	OriginGitHub      Origin = "github"
	OriginMarketplace Origin = "marketplace"
)

// IsValid reports whether o is a known origin.
func (o Origin) IsValid() bool {
	switch o {
	case OriginLocal, OriginGitHub, OriginMarketplace:
		return true
	}
	return false
}

// Artifact is a named, typed unit of agent configuration with stable identity.
//
// UUID is assigned once and survives renames and re-imports as long as the
// (origin, upstream, type, name) tuple matches. ContentHash is the SHA-256
// Merkle root over the artifact's canonicalized file contents.
type Artifact struct {
	UUID            string            `json:"uuid"`
	CollectionID    string            `json:"collection_id"`
	Name            string            `json:"name"`
	Type            ArtifactType      `json:"type"`
	Origin          Origin            `json:"origin"`
	Upstream        string            `json:"upstream,omitempty"`
	VersionSpec     string            `json:"version_spec,omitempty"`
	ResolvedVersion string            `json:"resolved_version,omitempty"`
	ContentHash     string            `json:"content_hash"`
	PathPattern     string            `json:"path_pattern"`
	Tags            []string          `json:"tags,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Collection is a curated local library of artifacts rooted at a directory.
type Collection struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Root      string    `json:"root"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Group is a collection-scoped organizational container for artifacts.
type Group struct {
	ID           string    `json:"id"`
	CollectionID string    `json:"collection_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// GroupMembership links an artifact into a group at a sortable position.
type GroupMembership struct {
	GroupID      string  `json:"group_id"`
	ArtifactUUID string  `json:"artifact_uuid"`
	Position     float64 `json:"position"`
}

// CompositeType identifies the shape of a composite artifact.
type CompositeType string

const (
	CompositePlugin CompositeType = "plugin"
	CompositeStack  CompositeType = "stack"
	CompositeSuite  CompositeType = "suite"
	CompositeSkill  CompositeType = "skill"
)

// IsValid reports whether c is a known composite type.
func (c CompositeType) IsValid() bool {
	switch c {
	case CompositePlugin, CompositeStack, CompositeSuite, CompositeSkill:
		return true
	}
	return false
}

// CompositeArtifact represents a bundle of child artifacts. For
// skill-with-embedded composites, Metadata["artifact_uuid"] back-references
// the skill Artifact row the composite belongs to.
type CompositeArtifact struct {
	ID            string            `json:"id"`
	CollectionID  string            `json:"collection_id"`
	CompositeType CompositeType     `json:"composite_type"`
	Name          string            `json:"name"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// CompositeMembership links a child artifact into a composite.
type CompositeMembership struct {
	CompositeID  string  `json:"composite_id"`
	ChildUUID    string  `json:"child_artifact_uuid"`
	Position     float64 `json:"position"`
}

// SetMemberKind discriminates the polymorphic DeploymentSet member variant.
type SetMemberKind string

const (
	MemberArtifact SetMemberKind = "artifact"
	MemberGroup    SetMemberKind = "group"
	MemberSet      SetMemberKind = "set"
)

// SetMember is one entry of a DeploymentSet. Exactly one of ArtifactUUID,
// GroupID, MemberSetID is set, matching Kind; the store mirrors this with a
// CHECK constraint.
type SetMember struct {
	SetID        string        `json:"set_id"`
	Kind         SetMemberKind `json:"kind"`
	ArtifactUUID string        `json:"artifact_uuid,omitempty"`
	GroupID      string        `json:"group_id,omitempty"`
	MemberSetID  string        `json:"member_set_id,omitempty"`
	Position     float64       `json:"position"`
}

// DeploymentSet is a user-scoped, nestable bundle of artifacts, groups, and
// other sets, resolved to a flat deduplicated list for batch deploy.
type DeploymentSet struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Deployment records an artifact deployed into a project under a profile.
// The (ArtifactUUID, ProjectID, ProfileID) triple is the identity.
type Deployment struct {
	ArtifactUUID      string    `json:"artifact_uuid"`
	ProjectID         string    `json:"project_id"`
	ProfileID         string    `json:"profile_id"`
	SourceContentHash string    `json:"source_content_hash"`
	DeployedPath      string    `json:"deployed_path"`
	DeployedAt        time.Time `json:"deployed_at"`
	// IsModified is derived from on-disk state at read time, never stored.
	IsModified bool `json:"is_modified,omitempty"`
}

// Project is a destination directory with a .claude/ subtree.
type Project struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Path            string     `json:"path"`
	LastDeployment  *time.Time `json:"last_deployment,omitempty"`
	DeploymentCount int        `json:"deployment_count"`
	CreatedAt       time.Time  `json:"created_at"`
}

// MemoryType classifies a memory item.
type MemoryType string

const (
	MemoryDecision   MemoryType = "decision"
	MemoryConstraint MemoryType = "constraint"
	MemoryGotcha     MemoryType = "gotcha"
	MemoryStyleRule  MemoryType = "style_rule"
	MemoryLearning   MemoryType = "learning"
)

// IsValid reports whether m is a known memory type.
func (m MemoryType) IsValid() bool {
	switch m {
	case MemoryDecision, MemoryConstraint, MemoryGotcha, MemoryStyleRule, MemoryLearning:
		return true
	}
	return false
}

// MemoryStatus is the lifecycle state of a memory item.
type MemoryStatus string

const (
	MemoryCandidate  MemoryStatus = "candidate"
	MemoryActive     MemoryStatus = "active"
	MemoryStable     MemoryStatus = "stable"
	MemoryDeprecated MemoryStatus = "deprecated"
)

// IsValid reports whether s is a known memory status.
func (s MemoryStatus) IsValid() bool {
	switch s {
	case MemoryCandidate, MemoryActive, MemoryStable, MemoryDeprecated:
		return true
	}
	return false
}

// CanTransition reports whether a memory item may move from s to next.
// Forward promotion is candidate → active → stable; any state may move to
// deprecated. Everything else is rejected.
func (s MemoryStatus) CanTransition(next MemoryStatus) bool {
	if next == MemoryDeprecated {
		return s != MemoryDeprecated
	}
	switch s {
	case MemoryCandidate:
		return next == MemoryActive
	case MemoryActive:
		return next == MemoryStable
	}
	return false
}

// Provenance records where a memory item came from.
type Provenance struct {
	SourceType  string    `json:"source_type"`
	SessionID   string    `json:"session_id,omitempty"`
	MessageUUID string    `json:"message_uuid,omitempty"`
	RunID       string    `json:"run_id,omitempty"`
	CommitSHA   string    `json:"commit_sha,omitempty"`
	GitBranch   string    `json:"git_branch,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
}

// MaxMemoryContentLen caps MemoryItem.Content.
const MaxMemoryContentLen = 2000

// MemoryItem is an atomic project-scoped learning captured from an agent
// session. ContentHash is unique per project and blocks exact duplicates.
type MemoryItem struct {
	ID           string       `json:"id"`
	ProjectID    string       `json:"project_id"`
	Type         MemoryType   `json:"type"`
	Content      string       `json:"content"`
	Confidence   float64      `json:"confidence"`
	Status       MemoryStatus `json:"status"`
	Provenance   Provenance   `json:"provenance"`
	Anchors      []string     `json:"anchors,omitempty"`
	TTLPolicy    string       `json:"ttl_policy,omitempty"`
	ContentHash  string       `json:"content_hash"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	DeprecatedAt *time.Time   `json:"deprecated_at,omitempty"`
}

// ContextModule selects memory items for packing.
type ContextModule struct {
	ID            string       `json:"id"`
	ProjectID     string       `json:"project_id"`
	Name          string       `json:"name"`
	MemoryTypes   []MemoryType `json:"memory_types,omitempty"`
	MinConfidence float64      `json:"min_confidence,omitempty"`
	Anchors       []string     `json:"anchors,omitempty"`
	Stages        []string     `json:"stages,omitempty"`
	Priority      int          `json:"priority,omitempty"`
	MemberIDs     []string     `json:"member_ids,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// SnapshotReason records why a snapshot was taken.
type SnapshotReason string

const (
	SnapshotAuto        SnapshotReason = "auto"
	SnapshotManual      SnapshotReason = "manual"
	SnapshotPreSync     SnapshotReason = "pre-sync"
	SnapshotPostSync    SnapshotReason = "post-sync"
	SnapshotPreDeploy   SnapshotReason = "pre-deploy"
	SnapshotPostDeploy  SnapshotReason = "post-deploy"
	SnapshotPreRollback SnapshotReason = "pre-rollback"
)

// Snapshot is a content-addressed capture of a file tree. Tree maps relative
// paths to blob hashes; ContentHashRoot is the Merkle root over the sorted
// tree entries. Snapshots are independent of artifacts after creation.
type Snapshot struct {
	ID              string            `json:"id"`
	Scope           string            `json:"scope"`
	ContentHashRoot string            `json:"content_hash_root"`
	Tree            map[string]string `json:"tree"`
	Reason          SnapshotReason    `json:"reason"`
	By              string            `json:"by"`
	CreatedAt       time.Time         `json:"created_at"`
}

// ArtifactScope, ProjectScope, and CollectionScope build Snapshot.Scope
// values.
func ArtifactScope(uuid string) string { return "artifact:" + uuid }
func ProjectScope(id string) string    { return "project:" + id }
func CollectionScope(id string) string { return "collection:" + id }

// ArtifactFilter narrows artifact listings. Nil pointer fields are
// unconstrained.
type ArtifactFilter struct {
	CollectionID string
	Type         *ArtifactType
	Origin       *Origin
	Tag          string
	NameContains string
}

// MemoryFilter narrows memory item listings.
type MemoryFilter struct {
	ProjectID     string
	Status        *MemoryStatus
	Type          *MemoryType
	MinConfidence *float64
	Since         *time.Time
}

// Page is a cursor-paginated request. Cursor is opaque to callers; an empty
// cursor starts from the beginning. Limit <= 0 means no limit.
type Page struct {
	Cursor string
	Limit  int
}

// ArtifactPage is one page of artifacts plus the cursor for the next page.
// NextCursor is empty when the listing is exhausted.
type ArtifactPage struct {
	Artifacts  []*Artifact
	NextCursor string
}

// MemoryPage is one page of memory items.
type MemoryPage struct {
	Items      []*MemoryItem
	NextCursor string
}

// LocalOwner is the single-user fallback for DeploymentSet.OwnerID when no
// identity is configured.
const LocalOwner = "local"
