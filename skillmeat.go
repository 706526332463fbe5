// Package skillmeat provides a minimal public API for building custom tooling
// on top of skillmeat's storage layer.
//
// Most integrations should drive the skillmeat CLI (everything takes --json).
// This package exports only the essential types and functions for Go programs
// that want to read or extend the database and project ledgers directly.
package skillmeat

import (
	"context"

	"github.com/skillmeat/skillmeat/internal/config"
	"github.com/skillmeat/skillmeat/internal/deploy"
	"github.com/skillmeat/skillmeat/internal/storage"
	"github.com/skillmeat/skillmeat/internal/storage/sqlite"
	"github.com/skillmeat/skillmeat/internal/types"
)

// Storage is the interface for skillmeat storage operations
type Storage = storage.Storage

// Transaction provides atomic multi-operation support within a database
// transaction. Use Storage.RunInTransaction() to obtain one.
type Transaction = storage.Transaction

// NewSQLiteStorage opens (creating if needed) a SQLite storage instance at
// the given path.
func NewSQLiteStorage(ctx context.Context, dbPath string) (Storage, error) {
	return sqlite.New(ctx, dbPath)
}

// StateDir resolves the skillmeat state directory (SKILLMEAT_STATE_DIR or
// ~/.skillmeat).
func StateDir() string {
	return config.StateDir()
}

// DatabasePath resolves the database file path within the state directory.
func DatabasePath() string {
	return config.DatabasePath()
}

// CollectionRoot resolves where the default collection's canonical artifact
// files live.
func CollectionRoot() string {
	return config.CollectionRoot()
}

// LedgerName is the deployment ledger file written at each project root.
const LedgerName = deploy.LedgerName

// Ledger is the project-local projection of the deployments table. It lets
// tooling answer "what is deployed here" without the database.
type Ledger = deploy.Ledger

// LedgerEntry records one deployed artifact in a project ledger.
type LedgerEntry = deploy.LedgerEntry

// ReadLedger loads the deployment ledger at projectRoot. A missing file
// returns an empty ledger, not an error.
func ReadLedger(projectRoot string) (*Ledger, error) {
	return deploy.ReadLedger(projectRoot)
}

// Core types from internal/types
type (
	Artifact        = types.Artifact
	ArtifactType    = types.ArtifactType
	Origin          = types.Origin
	Collection      = types.Collection
	Group           = types.Group
	GroupMembership = types.GroupMembership
	DeploymentSet   = types.DeploymentSet
	SetMember       = types.SetMember
	SetMemberKind   = types.SetMemberKind
	Deployment      = types.Deployment
	Project         = types.Project
	MemoryItem      = types.MemoryItem
	MemoryType      = types.MemoryType
	MemoryStatus    = types.MemoryStatus
	ContextModule   = types.ContextModule
	Snapshot        = types.Snapshot
	SnapshotReason  = types.SnapshotReason
	Provenance      = types.Provenance
	ArtifactFilter  = types.ArtifactFilter
	MemoryFilter    = types.MemoryFilter
	Page            = types.Page
	ArtifactPage    = types.ArtifactPage
	MemoryPage      = types.MemoryPage
)

// ArtifactType constants
const (
	TypeSkill     = types.TypeSkill
	TypeCommand   = types.TypeCommand
	TypeAgent     = types.TypeAgent
	TypeHook      = types.TypeHook
	TypeMCPServer = types.TypeMCPServer
	TypeContext   = types.TypeContext
	TypeRule      = types.TypeRule
	TypeSpec      = types.TypeSpec
)

// Origin constants
const (
	OriginLocal       = types.OriginLocal
	OriginGitHub      = types.OriginGitHub
	OriginMarketplace = types.OriginMarketplace
)

// SetMemberKind constants
const (
	MemberArtifact = types.MemberArtifact
	MemberGroup    = types.MemberGroup
	MemberSet      = types.MemberSet
)

// MemoryType constants
const (
	MemoryDecision   = types.MemoryDecision
	MemoryConstraint = types.MemoryConstraint
	MemoryGotcha     = types.MemoryGotcha
	MemoryStyleRule  = types.MemoryStyleRule
	MemoryLearning   = types.MemoryLearning
)

// MemoryStatus constants
const (
	MemoryCandidate  = types.MemoryCandidate
	MemoryActive     = types.MemoryActive
	MemoryStable     = types.MemoryStable
	MemoryDeprecated = types.MemoryDeprecated
)

// SnapshotReason constants
const (
	SnapshotAuto        = types.SnapshotAuto
	SnapshotManual      = types.SnapshotManual
	SnapshotPreSync     = types.SnapshotPreSync
	SnapshotPostSync    = types.SnapshotPostSync
	SnapshotPreDeploy   = types.SnapshotPreDeploy
	SnapshotPostDeploy  = types.SnapshotPostDeploy
	SnapshotPreRollback = types.SnapshotPreRollback
)
