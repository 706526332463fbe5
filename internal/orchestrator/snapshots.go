package orchestrator

import (
	"context"
	"time"

	"github.com/skillmeat/skillmeat/internal/deploy"
	"github.com/skillmeat/skillmeat/internal/events"
	"github.com/skillmeat/skillmeat/internal/fsio"
	"github.com/skillmeat/skillmeat/internal/locks"
	"github.com/skillmeat/skillmeat/internal/snapshot"
	"github.com/skillmeat/skillmeat/internal/storage"
	"github.com/skillmeat/skillmeat/internal/types"
)

// CreateSnapshot captures the current file tree of a collection or project
// scope. Scope strings follow types.CollectionScope / types.ProjectScope.
func (o *Orchestrator) CreateSnapshot(ctx context.Context, scope string, reason types.SnapshotReason) (*types.Snapshot, error) {
	dir, lockKey, err := o.scopeTarget(ctx, scope)
	if err != nil {
		return nil, err
	}
	release, err := o.locks.Acquire(ctx, lockKey)
	if err != nil {
		return nil, err
	}
	defer release()

	if reason == "" {
		reason = types.SnapshotManual
	}
	snap, err := o.snaps.Create(ctx, scope, dir, reason, o.by)
	if err != nil {
		return nil, err
	}
	o.emit(events.EntitySnapshot, snap.ID, events.KindSnapshot, map[string]string{"scope": scope})
	return snap, nil
}

// ListSnapshots pages through a scope's snapshots, newest first.
func (o *Orchestrator) ListSnapshots(ctx context.Context, scope string, page types.Page) ([]*types.Snapshot, error) {
	return o.store.ListSnapshots(ctx, scope, page)
}

// Rollback restores a scope's files to a snapshot. A compensating snapshot
// of the pre-rollback state is taken first, so rollbacks are reversible;
// rolling back to the tree already on disk is a no-op. Store rows re-align
// with the restored bytes afterwards: project rollbacks recompute deployment
// hashes and rewrite the ledger, collection rollbacks recompute artifact
// content hashes.
func (o *Orchestrator) Rollback(ctx context.Context, snapshotID string) (*types.Snapshot, error) {
	snap, err := o.store.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	dir, lockKey, err := o.scopeTarget(ctx, snap.Scope)
	if err != nil {
		return nil, err
	}
	release, err := o.locks.Acquire(ctx, lockKey)
	if err != nil {
		return nil, err
	}
	defer release()

	compensating, err := o.snaps.Rollback(ctx, snapshotID, dir, o.by)
	if err != nil {
		return nil, err
	}
	if err := o.reconcileScope(ctx, snap.Scope); err != nil {
		return nil, err
	}
	o.emit(events.EntitySnapshot, snapshotID, events.KindRolledBack, map[string]string{"scope": snap.Scope})
	return compensating, nil
}

func (o *Orchestrator) reconcileScope(ctx context.Context, scope string) error {
	kind, id := splitScope(scope)
	switch kind {
	case "project":
		return o.reconcileProject(ctx, id)
	case "collection":
		return o.reconcileCollection(ctx, id)
	}
	return nil
}

// reconcileProject recomputes each deployment's hash from the restored files
// and rewrites the ledger. Rows whose deployed path disappeared keep their
// last hash and surface as missing in status; rolling the compensating
// snapshot back restores them, so the rows stay resurrectable. Undeploy and
// doctor remain the explicit cleanup paths.
func (o *Orchestrator) reconcileProject(ctx context.Context, projectID string) error {
	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	deps, err := o.store.ListDeploymentsByProject(ctx, projectID)
	if err != nil {
		return err
	}
	for _, d := range deps {
		if !fsio.Exists(d.DeployedPath) {
			continue
		}
		hash, err := fsio.HashPath(d.DeployedPath)
		if err != nil {
			return err
		}
		if hash == d.SourceContentHash {
			continue
		}
		d.SourceContentHash = hash
		if err := o.store.UpsertDeployment(ctx, d); err != nil {
			return err
		}
	}
	return o.depl.RewriteLedger(ctx, project)
}

// reconcileCollection refreshes artifact content hashes from the restored
// canonical files. Rows whose files are gone keep their last hash; removal
// stays an explicit operation.
func (o *Orchestrator) reconcileCollection(ctx context.Context, collectionID string) error {
	col, err := o.store.GetCollection(ctx, collectionID)
	if err != nil {
		return err
	}
	page, err := o.store.ListArtifacts(ctx, types.ArtifactFilter{CollectionID: collectionID}, types.Page{})
	if err != nil {
		return err
	}
	for _, a := range page.Artifacts {
		src, err := deploy.SourcePath(col, a)
		if err != nil || !fsio.Exists(src) {
			continue
		}
		hash, err := fsio.HashPath(src)
		if err != nil {
			return err
		}
		if hash == a.ContentHash {
			continue
		}
		if err := o.store.UpdateArtifact(ctx, a.UUID, storage.ArtifactUpdate{ContentHash: &hash}); err != nil {
			return err
		}
	}
	return nil
}

// PruneSnapshots applies a retention policy and collects unreferenced
// blobs. Runs under the GC lock so concurrent invocations cannot race the
// blob sweep.
func (o *Orchestrator) PruneSnapshots(ctx context.Context, keep int, maxAge time.Duration) (*snapshot.PruneResult, error) {
	release, err := o.locks.Acquire(ctx, locks.GCKey)
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := o.snaps.Prune(ctx, snapshot.RetentionPolicy{MaxPerScope: keep, MaxAge: maxAge})
	if err != nil {
		return nil, err
	}
	if res.SnapshotsDeleted > 0 || res.BlobsDeleted > 0 {
		o.emit(events.EntitySnapshot, "", events.KindPruned, map[string]string{"scope": "all"})
	}
	return res, nil
}

// GC removes blobs no snapshot references without touching snapshot rows.
func (o *Orchestrator) GC(ctx context.Context) (*snapshot.PruneResult, error) {
	release, err := o.locks.Acquire(ctx, locks.GCKey)
	if err != nil {
		return nil, err
	}
	defer release()
	return o.snaps.GC(ctx)
}
