// Package storage defines the interface for skillmeat storage backends.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/skillmeat/skillmeat/internal/types"
)

// ErrDBNotInitialized is returned when attempting to use the store before the
// database has been initialized.
var ErrDBNotInitialized = errors.New("database not initialized")

// ArtifactUpdate carries the mutable artifact fields for partial updates.
// Nil pointer fields are left untouched. UUID, CollectionID, and CreatedAt
// are read-only; the store rejects attempts to change them.
type ArtifactUpdate struct {
	Name            *string
	Upstream        *string
	VersionSpec     *string
	ResolvedVersion *string
	ContentHash     *string
	PathPattern     *string
	Tags            *[]string
	Metadata        *map[string]string
}

// Transaction provides atomic multi-operation support within a single
// database transaction.
//
// The Transaction interface exposes the subset of Storage methods that can
// execute within one transaction. This enables atomic workflows where
// multiple operations must either all succeed or all fail (e.g., importing a
// skill with its embedded children and memberships).
//
// # Transaction Semantics
//
//   - All operations within the transaction share the same connection
//   - Changes are not visible to other connections until commit
//   - If any operation returns an error, the transaction is rolled back
//   - If the callback function panics, the transaction is rolled back
//   - On successful return from the callback, the transaction is committed
//
// # SQLite Specifics
//
//   - Connections open with _txlock=immediate so write transactions take
//     the write lock up front, serializing concurrent writers cleanly
type Transaction interface {
	// Artifacts
	CreateArtifact(ctx context.Context, a *types.Artifact) error
	GetArtifact(ctx context.Context, uuid string) (*types.Artifact, error)
	UpdateArtifact(ctx context.Context, uuid string, upd ArtifactUpdate) error
	DeleteArtifact(ctx context.Context, uuid string) error
	FindArtifactByContentHash(ctx context.Context, collectionID, hash string) (*types.Artifact, error)
	FindArtifactByUpstream(ctx context.Context, origin types.Origin, upstream string, typ types.ArtifactType, name string) (*types.Artifact, error)

	// Composites
	CreateComposite(ctx context.Context, c *types.CompositeArtifact) error
	FindCompositeForArtifact(ctx context.Context, artifactUUID string) (*types.CompositeArtifact, error)
	AddCompositeMember(ctx context.Context, m *types.CompositeMembership) error
	ListCompositeMembers(ctx context.Context, compositeID string) ([]*types.CompositeMembership, error)

	// Groups
	CreateGroup(ctx context.Context, g *types.Group) error
	AddGroupMember(ctx context.Context, m *types.GroupMembership) error

	// Deployment sets
	CreateSet(ctx context.Context, s *types.DeploymentSet) error
	AddSetMember(ctx context.Context, m *types.SetMember) error
	RemoveSetMember(ctx context.Context, m *types.SetMember) error
	DeleteSet(ctx context.Context, id string) error
	ListSetMembers(ctx context.Context, setID string) ([]*types.SetMember, error)

	// Projects and deployments
	CreateProject(ctx context.Context, p *types.Project) error
	UpsertDeployment(ctx context.Context, d *types.Deployment) error
	DeleteDeployment(ctx context.Context, artifactUUID, projectID, profileID string) error
	RefreshProjectStats(ctx context.Context, projectID string) error

	// Memory
	CreateMemoryItem(ctx context.Context, m *types.MemoryItem) error
	UpdateMemoryStatus(ctx context.Context, id string, next types.MemoryStatus) error
	UpdateMemoryAnchors(ctx context.Context, id string, anchors []string) error

	// Snapshots
	CreateSnapshot(ctx context.Context, s *types.Snapshot) error

	// Metadata (internal state like ledger hashes and schema info)
	SetMetadata(ctx context.Context, key, value string) error
	GetMetadata(ctx context.Context, key string) (string, error)
}

// Storage defines the interface for skillmeat storage backends.
type Storage interface {
	// Collections
	CreateCollection(ctx context.Context, c *types.Collection) error
	GetCollection(ctx context.Context, id string) (*types.Collection, error)
	GetCollectionByName(ctx context.Context, name string) (*types.Collection, error)
	GetActiveCollection(ctx context.Context) (*types.Collection, error)
	SetActiveCollection(ctx context.Context, id string) error
	ListCollections(ctx context.Context) ([]*types.Collection, error)
	DeleteCollection(ctx context.Context, id string) error

	// Artifacts
	CreateArtifact(ctx context.Context, a *types.Artifact) error
	GetArtifact(ctx context.Context, uuid string) (*types.Artifact, error)
	UpdateArtifact(ctx context.Context, uuid string, upd ArtifactUpdate) error
	DeleteArtifact(ctx context.Context, uuid string) error
	ListArtifacts(ctx context.Context, filter types.ArtifactFilter, page types.Page) (*types.ArtifactPage, error)
	FindArtifactByContentHash(ctx context.Context, collectionID, hash string) (*types.Artifact, error)
	FindArtifactByUpstream(ctx context.Context, origin types.Origin, upstream string, typ types.ArtifactType, name string) (*types.Artifact, error)

	// Groups
	CreateGroup(ctx context.Context, g *types.Group) error
	GetGroup(ctx context.Context, id string) (*types.Group, error)
	ListGroups(ctx context.Context, collectionID string) ([]*types.Group, error)
	DeleteGroup(ctx context.Context, id string) error
	AddGroupMember(ctx context.Context, m *types.GroupMembership) error
	RemoveGroupMember(ctx context.Context, groupID, artifactUUID string) error
	ListGroupMembers(ctx context.Context, groupID string) ([]*types.GroupMembership, error)

	// Composites
	CreateComposite(ctx context.Context, c *types.CompositeArtifact) error
	GetComposite(ctx context.Context, id string) (*types.CompositeArtifact, error)
	FindCompositeForArtifact(ctx context.Context, artifactUUID string) (*types.CompositeArtifact, error)
	ListComposites(ctx context.Context, collectionID string) ([]*types.CompositeArtifact, error)
	AddCompositeMember(ctx context.Context, m *types.CompositeMembership) error
	ListCompositeMembers(ctx context.Context, compositeID string) ([]*types.CompositeMembership, error)
	DeleteComposite(ctx context.Context, id string) error

	// Deployment sets
	CreateSet(ctx context.Context, s *types.DeploymentSet) error
	GetSet(ctx context.Context, id string) (*types.DeploymentSet, error)
	GetSetByName(ctx context.Context, ownerID, name string) (*types.DeploymentSet, error)
	ListSets(ctx context.Context, ownerID string) ([]*types.DeploymentSet, error)
	AddSetMember(ctx context.Context, m *types.SetMember) error
	RemoveSetMember(ctx context.Context, m *types.SetMember) error
	ListSetMembers(ctx context.Context, setID string) ([]*types.SetMember, error)
	DeleteSet(ctx context.Context, id string) error

	// Projects
	CreateProject(ctx context.Context, p *types.Project) error
	GetProject(ctx context.Context, id string) (*types.Project, error)
	GetProjectByPath(ctx context.Context, path string) (*types.Project, error)
	ListProjects(ctx context.Context) ([]*types.Project, error)
	DeleteProject(ctx context.Context, id string) error
	RefreshProjectStats(ctx context.Context, projectID string) error

	// Deployments
	UpsertDeployment(ctx context.Context, d *types.Deployment) error
	GetDeployment(ctx context.Context, artifactUUID, projectID, profileID string) (*types.Deployment, error)
	ListDeploymentsByProject(ctx context.Context, projectID string) ([]*types.Deployment, error)
	ListDeploymentsByArtifact(ctx context.Context, artifactUUID string) ([]*types.Deployment, error)
	DeleteDeployment(ctx context.Context, artifactUUID, projectID, profileID string) error

	// Memory items
	CreateMemoryItem(ctx context.Context, m *types.MemoryItem) error
	GetMemoryItem(ctx context.Context, id string) (*types.MemoryItem, error)
	ListMemoryItems(ctx context.Context, filter types.MemoryFilter, page types.Page) (*types.MemoryPage, error)
	UpdateMemoryStatus(ctx context.Context, id string, next types.MemoryStatus) error
	UpdateMemoryAnchors(ctx context.Context, id string, anchors []string) error
	DeleteMemoryItem(ctx context.Context, id string) error

	// Context modules
	CreateContextModule(ctx context.Context, m *types.ContextModule) error
	GetContextModule(ctx context.Context, id string) (*types.ContextModule, error)
	ListContextModules(ctx context.Context, projectID string) ([]*types.ContextModule, error)
	DeleteContextModule(ctx context.Context, id string) error

	// Snapshots (metadata rows; blob contents live in the snapshot store)
	CreateSnapshot(ctx context.Context, s *types.Snapshot) error
	GetSnapshot(ctx context.Context, id string) (*types.Snapshot, error)
	ListSnapshots(ctx context.Context, scope string, page types.Page) ([]*types.Snapshot, error)
	ListSnapshotsBefore(ctx context.Context, cutoff time.Time) ([]*types.Snapshot, error)
	DeleteSnapshot(ctx context.Context, id string) error

	// Metadata
	SetMetadata(ctx context.Context, key, value string) error
	GetMetadata(ctx context.Context, key string) (string, error)

	// RunInTransaction executes fn within a database transaction.
	//
	//   - If fn returns nil, the transaction is committed
	//   - If fn returns an error, the transaction is rolled back
	//   - If fn panics, the transaction is rolled back and the panic re-raised
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	// Lifecycle
	Close() error

	// Path returns the database file path.
	Path() string

	// UnderlyingDB returns the underlying *sql.DB connection. Provided for
	// diagnostics; direct access bypasses the storage layer.
	UnderlyingDB() *sql.DB
}
