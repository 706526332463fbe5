// Package deploy applies collection artifacts into project directories.
//
// Deploys follow a plan → apply split. Planning is read-only: it computes
// target paths from the artifact's path_pattern and the profile mapping,
// detects foreign modifications, and flags up-to-date targets. Apply stages
// every file first, commits the deployment rows in one transaction, then
// renames staged trees into place one artifact at a time. Coordinated
// deploys (skills with embedded children, plugins, deployment sets) are
// bracketed by pre- and post-snapshots so a failed apply can restore the
// project byte-exactly.
package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/skillmeat/skillmeat/internal/composite"
	"github.com/skillmeat/skillmeat/internal/debug"
	"github.com/skillmeat/skillmeat/internal/fsio"
	"github.com/skillmeat/skillmeat/internal/index"
	"github.com/skillmeat/skillmeat/internal/snapshot"
	"github.com/skillmeat/skillmeat/internal/storage"
	"github.com/skillmeat/skillmeat/internal/types"
)

// Engine deploys artifacts into projects and tracks the resulting rows.
type Engine struct {
	store      storage.Storage
	snapshots  *snapshot.Store
	composites *composite.Engine
}

// NewEngine creates a deployment engine.
func NewEngine(store storage.Storage, snaps *snapshot.Store, composites *composite.Engine) *Engine {
	return &Engine{store: store, snapshots: snaps, composites: composites}
}

// Options adjust deploy behavior.
type Options struct {
	// Overwrite replaces foreign modifications at the target instead of
	// failing with LocalModificationError.
	Overwrite bool
	// By is recorded on pre/post snapshots.
	By string
}

// Target is one artifact's planned placement in a project.
type Target struct {
	Artifact   *types.Artifact
	SourcePath string // absolute path in the collection
	TargetPath string // absolute path in the project
	RelPath    string // project-relative, slash-separated
	IsDir      bool
	UpToDate   bool // on-disk content already matches the source
	Foreign    bool // target exists with content the deployment table can't account for

	// filled during staging
	sourceHash string
	staging    string
	fileData   []byte
}

// Plan is the computed set of targets for one deploy operation.
type Plan struct {
	Project *types.Project
	Profile *Profile
	Targets []*Target
}

// Result reports a completed deploy.
type Result struct {
	Plan         *Plan
	Applied      []*Target
	Skipped      []*Target // up-to-date targets; rows refreshed, no file writes
	PreSnapshot  *types.Snapshot
	PostSnapshot *types.Snapshot
}

// Deploy places one artifact into a project. Skills with a companion
// composite expand to a coordinated deploy of the skill plus its embedded
// children.
func (e *Engine) Deploy(ctx context.Context, artifactUUID, projectID, profileID string, opts Options) (*Result, error) {
	a, err := e.store.GetArtifact(ctx, artifactUUID)
	if err != nil {
		return nil, err
	}
	units, err := e.ExpandUnits(ctx, []*types.Artifact{a})
	if err != nil {
		return nil, err
	}
	return e.deployUnits(ctx, units, projectID, profileID, opts)
}

// DeployComposite places a manifest composite (plugin, stack, suite) or a
// skill composite into a project: the companion artifact first when there is
// one, then each member in membership order.
func (e *Engine) DeployComposite(ctx context.Context, compositeID, projectID, profileID string, opts Options) (*Result, error) {
	comp, err := e.store.GetComposite(ctx, compositeID)
	if err != nil {
		return nil, err
	}

	var units []*types.Artifact
	if uuid := comp.Metadata["artifact_uuid"]; uuid != "" {
		parent, err := e.store.GetArtifact(ctx, uuid)
		if err != nil {
			return nil, err
		}
		units = append(units, parent)
	}
	children, err := e.composites.ResolveComposite(ctx, compositeID)
	if err != nil {
		return nil, err
	}
	units = append(units, children...)
	return e.deployUnits(ctx, dedupUnits(units), projectID, profileID, opts)
}

// DeploySet resolves a deployment set and deploys every artifact in
// resolution order. Skill members expand to include their embedded children.
func (e *Engine) DeploySet(ctx context.Context, setID, projectID, profileID string, opts Options) (*Result, error) {
	arts, err := e.composites.Resolve(ctx, setID)
	if err != nil {
		return nil, err
	}
	units, err := e.ExpandUnits(ctx, arts)
	if err != nil {
		return nil, err
	}
	return e.deployUnits(ctx, units, projectID, profileID, opts)
}

// Undeploy removes a deployed artifact's files and its deployment row.
func (e *Engine) Undeploy(ctx context.Context, artifactUUID, projectID, profileID string) error {
	if profileID == "" {
		profileID = DefaultProfile
	}
	dep, err := e.store.GetDeployment(ctx, artifactUUID, projectID, profileID)
	if err != nil {
		return err
	}
	project, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(project.Path, dep.DeployedPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return &types.PathOutsideRootError{Path: dep.DeployedPath, Root: project.Path}
	}
	if err := fsio.RemoveDir(project.Path, rel); err != nil {
		return err
	}

	if err := e.store.DeleteDeployment(ctx, artifactUUID, projectID, profileID); err != nil {
		return err
	}
	if err := e.store.RefreshProjectStats(ctx, projectID); err != nil {
		return err
	}
	if err := e.RewriteLedger(ctx, project); err != nil {
		debug.Logf("ledger rewrite after undeploy failed: %v", err)
	}
	return nil
}

// Status returns a project's deployments with drift computed from disk.
func (e *Engine) Status(ctx context.Context, projectID string) ([]*types.Deployment, error) {
	deps, err := e.store.ListDeploymentsByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for _, d := range deps {
		d.IsModified = fsio.DetectTreeChanges(d.SourceContentHash, d.DeployedPath)
	}
	return deps, nil
}

// IsModified reports whether a deployment's on-disk state drifted from the
// content recorded at deploy time. Missing paths count as not modified.
func IsModified(d *types.Deployment) bool {
	return fsio.DetectTreeChanges(d.SourceContentHash, d.DeployedPath)
}

// PlanArtifacts computes targets without touching anything. Foreign
// modifications fail the plan unless opts.Overwrite is set.
func (e *Engine) PlanArtifacts(ctx context.Context, units []*types.Artifact, projectID, profileID string, opts Options) (*Plan, error) {
	project, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	profile, err := LookupProfile(profileID)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Project: project, Profile: profile}
	for _, a := range units {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := e.planTarget(ctx, a, project, profile)
		if err != nil {
			return nil, err
		}
		if t.Foreign && !opts.Overwrite {
			return nil, &types.LocalModificationError{Path: t.TargetPath}
		}
		plan.Targets = append(plan.Targets, t)
	}
	return plan, nil
}

func (e *Engine) planTarget(ctx context.Context, a *types.Artifact, project *types.Project, profile *Profile) (*Target, error) {
	col, err := e.store.GetCollection(ctx, a.CollectionID)
	if err != nil {
		return nil, err
	}
	source, err := SourcePath(col, a)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(source)
	if err != nil {
		return nil, &types.FilesystemError{Op: "stat", Path: source, Err: err}
	}

	rel, err := profile.TargetRel(a)
	if err != nil {
		return nil, err
	}
	target, err := fsio.ResolveDeployPath(project.Path, filepath.FromSlash(rel))
	if err != nil {
		return nil, err
	}

	t := &Target{
		Artifact:   a,
		SourcePath: source,
		TargetPath: target,
		RelPath:    rel,
		IsDir:      info.IsDir(),
	}

	if !fsio.Exists(target) {
		return t, nil
	}
	if !fsio.DetectTreeChanges(a.ContentHash, target) {
		t.UpToDate = true
		return t, nil
	}

	// Target content differs from the source. If it still matches what we
	// last deployed, this is a normal upgrade; otherwise someone else wrote
	// there.
	dep, err := e.store.GetDeployment(ctx, a.UUID, project.ID, profile.ID)
	if types.IsNotFound(err) {
		t.Foreign = true
		return t, nil
	}
	if err != nil {
		return nil, err
	}
	if fsio.DetectTreeChanges(dep.SourceContentHash, target) {
		t.Foreign = true
	}
	return t, nil
}

// deployUnits runs the shared plan → stage → record → commit sequence.
// Multi-unit deploys are bracketed with pre/post snapshots of the project's
// .claude tree; on a commit failure the pre-snapshot is restored so the
// project ends byte-identical to its pre-deploy state.
func (e *Engine) deployUnits(ctx context.Context, units []*types.Artifact, projectID, profileID string, opts Options) (*Result, error) {
	if profileID == "" {
		profileID = DefaultProfile
	}
	plan, err := e.PlanArtifacts(ctx, units, projectID, profileID, opts)
	if err != nil {
		return nil, err
	}
	return e.Apply(ctx, plan, opts)
}

// Apply executes a plan: stage everything, record rows, rename into place.
func (e *Engine) Apply(ctx context.Context, plan *Plan, opts Options) (*Result, error) {
	res := &Result{Plan: plan}
	coordinated := len(plan.Targets) > 1
	claudeDir := filepath.Join(plan.Project.Path, fsio.ClaudeDir)

	if coordinated {
		pre, err := e.snapshots.Create(ctx, types.ProjectScope(plan.Project.ID), claudeDir, types.SnapshotPreDeploy, opts.By)
		if err != nil {
			return nil, err
		}
		res.PreSnapshot = pre
	}

	// Stage phase: all reads and staging writes happen before any target is
	// touched, so any failure here is a clean abort.
	var pending []*Target
	defer func() {
		for _, t := range pending {
			if t.staging != "" {
				os.RemoveAll(t.staging)
			}
		}
	}()
	for _, t := range plan.Targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if t.UpToDate {
			t.sourceHash = t.Artifact.ContentHash
			res.Skipped = append(res.Skipped, t)
			continue
		}
		if err := e.stageTarget(t); err != nil {
			return nil, err
		}
		pending = append(pending, t)
	}

	// Record phase: one transaction covers every deployment row, so the
	// database never shows a half-recorded coordinated deploy.
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		for _, t := range plan.Targets {
			if err := tx.UpsertDeployment(ctx, &types.Deployment{
				ArtifactUUID:      t.Artifact.UUID,
				ProjectID:         plan.Project.ID,
				ProfileID:         plan.Profile.ID,
				SourceContentHash: t.sourceHash,
				DeployedPath:      t.TargetPath,
			}); err != nil {
				return err
			}
		}
		return tx.RefreshProjectStats(ctx, plan.Project.ID)
	})
	if err != nil {
		return nil, err
	}

	// Commit phase: rename staged trees into place in plan order. The
	// journal marks progress so an interrupted apply is detectable.
	if err := e.commitTargets(ctx, plan, pending, res, opts); err != nil {
		return nil, err
	}
	pending = nil

	if coordinated {
		post, err := e.snapshots.Create(ctx, types.ProjectScope(plan.Project.ID), claudeDir, types.SnapshotPostDeploy, opts.By)
		if err != nil {
			return nil, err
		}
		res.PostSnapshot = post
	}

	if err := e.RewriteLedger(ctx, plan.Project); err != nil {
		debug.Logf("ledger rewrite after deploy failed: %v", err)
	}
	return res, nil
}

func (e *Engine) commitTargets(ctx context.Context, plan *Plan, pending []*Target, res *Result, opts Options) error {
	if len(pending) == 0 {
		return nil
	}

	journal := fsio.NewJournal(plan.Project.Path, "deploy")
	for _, t := range pending {
		journal.Add(t.TargetPath, t.staging)
	}
	if err := journal.Begin(); err != nil {
		return err
	}

	for i, t := range pending {
		var err error
		if cerr := ctx.Err(); cerr != nil {
			err = cerr
		} else if t.IsDir {
			err = fsio.AtomicReplaceDir(t.TargetPath, t.staging)
		} else {
			err = fsio.WriteFileAtomic(t.TargetPath, t.fileData, 0644)
		}
		if err != nil {
			return e.recoverCommit(ctx, plan, pending, i, res, journal, opts, err)
		}
		t.staging = ""
		if jerr := journal.MarkDone(i); jerr != nil {
			debug.Logf("journal update failed: %v", jerr)
		}
		res.Applied = append(res.Applied, t)
	}
	return journal.Finish()
}

// recoverCommit handles a rename failure at pending[i]. If the pre-snapshot
// can be restored the project is returned to its pre-deploy bytes and the
// original error surfaces; otherwise the caller gets a partial-deploy error
// listing exactly what landed.
func (e *Engine) recoverCommit(ctx context.Context, plan *Plan, pending []*Target, i int, res *Result, journal *fsio.Journal, opts Options, cause error) error {
	if res.PreSnapshot != nil {
		claudeDir := filepath.Join(plan.Project.Path, fsio.ClaudeDir)
		if _, rerr := e.snapshots.Rollback(ctx, res.PreSnapshot.ID, claudeDir, opts.By); rerr == nil {
			_ = journal.Finish()
			res.Applied = nil
			return fmt.Errorf("deploy of %s failed, project restored to pre-deploy state: %w", pending[i].Artifact.Name, cause)
		}
		debug.Logf("pre-deploy snapshot restore failed after %v", cause)
	}

	perr := &types.PartialDeployError{}
	for j, t := range pending {
		out := types.MemberOutcome{ArtifactUUID: t.Artifact.UUID, Path: t.RelPath}
		switch {
		case j < i:
			perr.Applied = append(perr.Applied, out)
		case j == i:
			out.Reason = cause.Error()
			perr.Failed = append(perr.Failed, out)
		default:
			out.Reason = "not attempted"
			perr.Failed = append(perr.Failed, out)
		}
	}
	return perr
}

// stageTarget prepares one artifact's bytes: directory artifacts are copied
// into a staging dir next to the target, single files are read into memory.
// The staged content hash becomes the deployment's source_content_hash.
func (e *Engine) stageTarget(t *Target) error {
	if t.IsDir {
		entries, err := fsio.LsTree(t.SourcePath)
		if err != nil {
			return err
		}
		if t.Artifact.Type == types.TypeSkill {
			entries = index.FilterEmbedded(entries)
		}
		if len(entries) == 0 {
			return &types.ValidationError{Field: "source", Reason: "artifact directory " + t.SourcePath + " has no files"}
		}
		staging, err := fsio.NewStagingDir(t.TargetPath)
		if err != nil {
			return err
		}
		if err := fsio.CopyEntries(t.SourcePath, staging, entries); err != nil {
			os.RemoveAll(staging)
			return err
		}
		t.staging = staging
		t.sourceHash = fsio.MerkleRoot(entries)
		return nil
	}

	data, hash, err := fsio.ReadFileWithHash(t.SourcePath)
	if err != nil {
		return err
	}
	t.fileData = data
	t.sourceHash = hash
	return nil
}

// SourcePath locates an artifact's files in the collection. Canonical rows
// live at artifacts/<type_plural>/<name>, mirroring the deploy target
// template; embedded children live inside their parent skill's directory and
// record that location in source_path metadata at import time.
func SourcePath(col *types.Collection, a *types.Artifact) (string, error) {
	rel := a.Metadata["source_path"]
	if rel == "" {
		rel = strings.TrimPrefix(a.PathPattern, fsio.ClaudeDir+"/")
	}
	if rel == "" {
		return "", &types.ValidationError{Field: "path_pattern", Reason: "artifact " + a.UUID + " has no source location"}
	}
	return fsio.ResolvePath(filepath.Join(col.Root, "artifacts"), filepath.FromSlash(rel))
}

// ExpandUnits appends embedded children for skill artifacts and drops
// duplicates while keeping first-seen order. Dry-run planning uses it to
// build the same unit list a real deploy would apply.
func (e *Engine) ExpandUnits(ctx context.Context, arts []*types.Artifact) ([]*types.Artifact, error) {
	var units []*types.Artifact
	for _, a := range arts {
		units = append(units, a)
		if a.Type != types.TypeSkill {
			continue
		}
		comp, err := e.store.FindCompositeForArtifact(ctx, a.UUID)
		if types.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		children, err := e.composites.ResolveComposite(ctx, comp.ID)
		if err != nil {
			return nil, err
		}
		units = append(units, children...)
	}
	return dedupUnits(units), nil
}

func dedupUnits(units []*types.Artifact) []*types.Artifact {
	seen := make(map[string]bool, len(units))
	out := units[:0]
	for _, a := range units {
		if seen[a.UUID] {
			continue
		}
		seen[a.UUID] = true
		out = append(out, a)
	}
	return out
}
