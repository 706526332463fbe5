package orchestrator

import (
	"context"

	"github.com/skillmeat/skillmeat/internal/events"
	"github.com/skillmeat/skillmeat/internal/locks"
	"github.com/skillmeat/skillmeat/internal/syncer"
	"github.com/skillmeat/skillmeat/internal/types"
)

// SyncRequest identifies one deployment and how to resolve its drift.
type SyncRequest struct {
	ArtifactUUID string
	ProjectPath  string
	ProfileID    string
	Strategy     syncer.Strategy
	// Manual supplies per-path content under the manual strategy.
	Manual map[string][]byte
	// Source substitutes upstream content for the collection as the
	// incoming side.
	Source        syncer.Tree
	SourceVersion string
}

// SyncPreview reports a deployment's drift without changing anything.
func (o *Orchestrator) SyncPreview(ctx context.Context, req SyncRequest) (*syncer.Preview, error) {
	project, err := o.projectByPath(ctx, req.ProjectPath)
	if err != nil {
		return nil, err
	}
	return o.sync.Preview(ctx, req.ArtifactUUID, project.ID, profileOrDefault(req.ProfileID), req.Source)
}

// SyncPull reconciles the incoming side into the project (and, for merge
// results, into the collection), honoring the request strategy. Both
// aggregates lock for the duration: a pull can write either side.
func (o *Orchestrator) SyncPull(ctx context.Context, req SyncRequest) (*syncer.Result, error) {
	project, err := o.projectByPath(ctx, req.ProjectPath)
	if err != nil {
		return nil, err
	}
	a, err := o.store.GetArtifact(ctx, req.ArtifactUUID)
	if err != nil {
		return nil, err
	}

	var res *syncer.Result
	err = withRetry(ctx, func() error {
		release, lerr := o.locks.AcquireMany(ctx, locks.Collection(a.CollectionID), locks.Project(project.ID))
		if lerr != nil {
			return lerr
		}
		defer release()
		var runErr error
		res, runErr = o.sync.Pull(ctx, req.ArtifactUUID, project.ID, profileOrDefault(req.ProfileID), syncer.Options{
			Strategy:      req.Strategy,
			Manual:        req.Manual,
			Source:        req.Source,
			SourceVersion: req.SourceVersion,
			By:            o.by,
		})
		return runErr
	})
	if err != nil {
		return nil, err
	}
	o.emitSync(req.ArtifactUUID, project.ID, "pull", res)
	return res, nil
}

// SyncPush publishes the project's local edits back into the collection.
func (o *Orchestrator) SyncPush(ctx context.Context, req SyncRequest) (*syncer.Result, error) {
	project, err := o.projectByPath(ctx, req.ProjectPath)
	if err != nil {
		return nil, err
	}
	a, err := o.store.GetArtifact(ctx, req.ArtifactUUID)
	if err != nil {
		return nil, err
	}

	var res *syncer.Result
	err = withRetry(ctx, func() error {
		release, lerr := o.locks.AcquireMany(ctx, locks.Collection(a.CollectionID), locks.Project(project.ID))
		if lerr != nil {
			return lerr
		}
		defer release()
		var runErr error
		res, runErr = o.sync.Push(ctx, req.ArtifactUUID, project.ID, profileOrDefault(req.ProfileID), o.by)
		return runErr
	})
	if err != nil {
		return nil, err
	}
	o.emitSync(req.ArtifactUUID, project.ID, "push", res)
	return res, nil
}

func (o *Orchestrator) emitSync(artifactUUID, projectID, direction string, res *syncer.Result) {
	detail := map[string]string{"project": projectID, "direction": direction}
	if res != nil && res.Preview != nil {
		detail["state"] = string(res.Preview.State)
	}
	o.emit(events.EntityArtifact, artifactUUID, events.KindSynced, detail)
}

// OutdatedPin reports whether a pinned artifact trails the given upstream
// version, per semver comparison.
func OutdatedPin(a *types.Artifact, latest string) bool {
	_, pin := syncer.SplitPin(a.Upstream)
	if pin == "" {
		pin = a.ResolvedVersion
	}
	return syncer.PinOutdated(pin, latest)
}
