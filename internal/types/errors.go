package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind labels a failure class for structured rendering. The CLI and API
// surface errors as {kind, message, detail} envelopes keyed by these values.
type ErrorKind string

const (
	KindValidation             ErrorKind = "validation"
	KindPathOutsideRoot        ErrorKind = "path_outside_root"
	KindUnknownEntity          ErrorKind = "unknown_entity"
	KindCyclicComposite        ErrorKind = "cyclic_composite"
	KindDepthExceeded          ErrorKind = "depth_exceeded"
	KindConflict               ErrorKind = "conflict"
	KindNotFound               ErrorKind = "not_found"
	KindLocalModification      ErrorKind = "local_modification_present"
	KindConcurrentModification ErrorKind = "concurrent_modification"
	KindStaleSnapshot          ErrorKind = "stale_snapshot"
	KindStoreUnavailable       ErrorKind = "store_unavailable"
	KindFilesystem             ErrorKind = "filesystem"
	KindAtomicReplace          ErrorKind = "atomic_replace_failed"
	KindChecksumMismatch       ErrorKind = "checksum_mismatch"
	KindReadOnlyField          ErrorKind = "read_only_field"
	KindReadOnlyArtifact       ErrorKind = "read_only_artifact"
	KindPermissionDenied       ErrorKind = "permission_denied"
	KindFeatureDisabled        ErrorKind = "feature_disabled"
	KindPartialDeploy          ErrorKind = "partial_deploy"
	KindPartialSync            ErrorKind = "partial_sync"
	KindInternal               ErrorKind = "internal"
)

// ValidationError reports a bad input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PathOutsideRootError reports an attempted path escape.
type PathOutsideRootError struct {
	Path string
	Root string
}

func (e *PathOutsideRootError) Error() string {
	return fmt.Sprintf("path %q escapes root %q", e.Path, e.Root)
}

// UnknownEntityError reports a reference to an entity kind or id the store
// does not recognize.
type UnknownEntityError struct {
	Entity string
	ID     string
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("unknown %s: %s", e.Entity, e.ID)
}

// CyclicCompositeError reports a membership edge that would close a cycle.
type CyclicCompositeError struct {
	SetID    string
	MemberID string
}

func (e *CyclicCompositeError) Error() string {
	return fmt.Sprintf("adding %s to %s would create a cycle", e.MemberID, e.SetID)
}

// DepthExceededError reports composite nesting past the resolution limit.
type DepthExceededError struct {
	Limit int
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("composite nesting exceeds depth limit %d", e.Limit)
}

// ConflictError reports a unique-key violation. ExistingID identifies the row
// that already holds the key, so importers can reuse it.
type ConflictError struct {
	Entity     string
	ExistingID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Entity, e.ExistingID)
}

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// LocalModificationError reports a deploy target modified outside skillmeat.
type LocalModificationError struct {
	Path string
}

func (e *LocalModificationError) Error() string {
	return fmt.Sprintf("local modification present at %s (use overwrite to replace)", e.Path)
}

// ConcurrentModificationError reports a plan invalidated by a concurrent edit.
type ConcurrentModificationError struct {
	Aggregate string
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("concurrent modification on %s, re-plan required", e.Aggregate)
}

// StaleSnapshotError reports a rollback against a snapshot whose blobs are
// no longer resolvable.
type StaleSnapshotError struct {
	SnapshotID string
}

func (e *StaleSnapshotError) Error() string {
	return fmt.Sprintf("snapshot %s is stale or incomplete", e.SnapshotID)
}

// StoreUnavailableError wraps a failure to reach the store.
type StoreUnavailableError struct {
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable: %v", e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// FilesystemError wraps a filesystem failure with the operation and path.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// AtomicReplaceError reports a failed staging-dir rename.
type AtomicReplaceError struct {
	Target string
	Err    error
}

func (e *AtomicReplaceError) Error() string {
	return fmt.Sprintf("atomic replace of %s failed: %v", e.Target, e.Err)
}

func (e *AtomicReplaceError) Unwrap() error { return e.Err }

// ChecksumMismatchError reports content whose hash differs from the expected
// value.
type ChecksumMismatchError struct {
	Path string
	Want string
	Got  string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch at %s: want %s, got %s", e.Path, short(e.Want), short(e.Got))
}

// ReadOnlyFieldError reports an update to an immutable field.
type ReadOnlyFieldError struct {
	Field string
}

func (e *ReadOnlyFieldError) Error() string {
	return fmt.Sprintf("field %s is read-only", e.Field)
}

// ReadOnlyArtifactError reports a mutation of a read-only artifact.
type ReadOnlyArtifactError struct {
	UUID string
}

func (e *ReadOnlyArtifactError) Error() string {
	return fmt.Sprintf("artifact %s is read-only", e.UUID)
}

// PermissionDeniedError reports an operation the caller may not perform.
type PermissionDeniedError struct {
	Op string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: %s", e.Op)
}

// FeatureDisabledError reports use of a feature behind a disabled flag.
type FeatureDisabledError struct {
	Feature string
}

func (e *FeatureDisabledError) Error() string {
	return fmt.Sprintf("feature disabled: %s", e.Feature)
}

// MemberOutcome is one member's result inside a partial deploy or sync.
type MemberOutcome struct {
	ArtifactUUID string `json:"artifact_uuid"`
	Path         string `json:"path,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// PartialDeployError reports a coordinated deploy that applied some members
// and failed on others. Applied and Failed together cover every attempted
// member; neither set is ever truncated.
type PartialDeployError struct {
	Applied []MemberOutcome
	Failed  []MemberOutcome
}

func (e *PartialDeployError) Error() string {
	return fmt.Sprintf("partial deploy: %d applied, %d failed", len(e.Applied), len(e.Failed))
}

// PartialSyncError reports a sync that applied some paths, left some in
// conflict, and failed on others.
type PartialSyncError struct {
	Applied   []string
	Conflicts []string
	Failed    []MemberOutcome
}

func (e *PartialSyncError) Error() string {
	return fmt.Sprintf("partial sync: %d applied, %d conflicts, %d failed",
		len(e.Applied), len(e.Conflicts), len(e.Failed))
}

// Kind classifies err into the taxonomy for envelope rendering. Unrecognized
// errors map to KindInternal.
func Kind(err error) ErrorKind {
	switch {
	case errors.As(err, new(*ValidationError)):
		return KindValidation
	case errors.As(err, new(*PathOutsideRootError)):
		return KindPathOutsideRoot
	case errors.As(err, new(*UnknownEntityError)):
		return KindUnknownEntity
	case errors.As(err, new(*CyclicCompositeError)):
		return KindCyclicComposite
	case errors.As(err, new(*DepthExceededError)):
		return KindDepthExceeded
	case errors.As(err, new(*ConflictError)):
		return KindConflict
	case errors.As(err, new(*NotFoundError)):
		return KindNotFound
	case errors.As(err, new(*LocalModificationError)):
		return KindLocalModification
	case errors.As(err, new(*ConcurrentModificationError)):
		return KindConcurrentModification
	case errors.As(err, new(*StaleSnapshotError)):
		return KindStaleSnapshot
	case errors.As(err, new(*StoreUnavailableError)):
		return KindStoreUnavailable
	case errors.As(err, new(*AtomicReplaceError)):
		return KindAtomicReplace
	case errors.As(err, new(*ChecksumMismatchError)):
		return KindChecksumMismatch
	case errors.As(err, new(*FilesystemError)):
		return KindFilesystem
	case errors.As(err, new(*ReadOnlyFieldError)):
		return KindReadOnlyField
	case errors.As(err, new(*ReadOnlyArtifactError)):
		return KindReadOnlyArtifact
	case errors.As(err, new(*PermissionDeniedError)):
		return KindPermissionDenied
	case errors.As(err, new(*FeatureDisabledError)):
		return KindFeatureDisabled
	case errors.As(err, new(*PartialDeployError)):
		return KindPartialDeploy
	case errors.As(err, new(*PartialSyncError)):
		return KindPartialSync
	}
	return KindInternal
}

// IsNotFound reports whether err is a NotFoundError anywhere in its chain.
func IsNotFound(err error) bool {
	return errors.As(err, new(*NotFoundError))
}

// IsConflict reports whether err is a ConflictError anywhere in its chain.
func IsConflict(err error) bool {
	return errors.As(err, new(*ConflictError))
}

func short(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// Retryable reports whether the orchestrator may re-execute the operation
// with a fresh plan.
func Retryable(err error) bool {
	return errors.As(err, new(*ConcurrentModificationError))
}

// Summary renders the one-line CLI summary for err.
func Summary(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return fmt.Sprintf("[%s] %s", Kind(err), msg)
}

// Detail extracts the structured payload carried by err. Partial outcomes
// expose their full applied and failed sets; other kinds carry none.
func Detail(err error) interface{} {
	var pd *PartialDeployError
	if errors.As(err, &pd) {
		return map[string]interface{}{
			"applied": pd.Applied,
			"failed":  pd.Failed,
		}
	}
	var ps *PartialSyncError
	if errors.As(err, &ps) {
		return map[string]interface{}{
			"applied":   ps.Applied,
			"conflicts": ps.Conflicts,
			"failed":    ps.Failed,
		}
	}
	return nil
}
