// Package syncer reconciles a deployed artifact copy with its collection
// source. Every sync is a three-way merge: the common ancestor is the
// content recorded at deploy time, recovered from whichever side still
// matches the deployment row or from a project snapshot. Both legs converge
// on the resolved tree, so a completed sync always leaves the collection,
// the deployment row, and the project copy agreeing on one content hash.
package syncer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/skillmeat/skillmeat/internal/debug"
	"github.com/skillmeat/skillmeat/internal/deploy"
	"github.com/skillmeat/skillmeat/internal/fsio"
	"github.com/skillmeat/skillmeat/internal/index"
	"github.com/skillmeat/skillmeat/internal/snapshot"
	"github.com/skillmeat/skillmeat/internal/storage"
	"github.com/skillmeat/skillmeat/internal/types"
)

// Tree is a file set keyed by slash-separated relative path. Values are
// canonicalized content; an absent key means the file does not exist on
// that side. Single-file artifacts use their base name as the only key.
type Tree map[string][]byte

// SyncState classifies which side of a deployment moved since deploy time.
type SyncState string

const (
	StateInSync       SyncState = "in-sync"
	StateSourceDrift  SyncState = "source-drift"
	StateProjectDrift SyncState = "project-drift"
	StateConflict     SyncState = "conflict"
)

// Resolution records which side supplied a path's final content.
type Resolution string

const (
	TakeSource     Resolution = "take_source"
	TakeCollection Resolution = "take_collection"
	TakeProject    Resolution = "take_project"
	ManualMerge    Resolution = "manual_merge"
)

// Strategy selects how differing paths resolve.
type Strategy string

const (
	// StrategyTheirs takes the incoming side (upstream source when given,
	// otherwise the collection) for every path.
	StrategyTheirs Strategy = "theirs"
	// StrategyOurs keeps the project's content for every path.
	StrategyOurs Strategy = "ours"
	// StrategyMerge auto-merges non-overlapping edits and refuses to apply
	// anything when a hard conflict is present.
	StrategyMerge Strategy = "merge"
	// StrategyManual requires caller-supplied content for every conflicted
	// path.
	StrategyManual Strategy = "manual"
)

// PathDiff describes one differing path between the incoming and project
// sides. Resolution and Merged are filled in when a sync applies.
type PathDiff struct {
	Path       string
	Class      ConflictClass
	Base       []byte
	Source     []byte
	Collection []byte
	Project    []byte
	Resolution Resolution
	Merged     []byte

	incoming []byte
	merge    fileMerge
}

// Preview is the read-only drift report for one deployment.
type Preview struct {
	Artifact   *types.Artifact
	Deployment *types.Deployment
	State      SyncState
	Paths      []PathDiff
	Hard       int
	Soft       int
	SourcePath string
}

// Options controls how a sync resolves and is attributed.
type Options struct {
	// Strategy defaults to StrategyMerge, which fails closed on hard
	// conflicts.
	Strategy Strategy
	// Manual supplies resolved content per conflicted path under
	// StrategyManual. A nil value deletes the path.
	Manual map[string][]byte
	// Source, when set, is upstream content that replaces the collection as
	// the incoming side.
	Source Tree
	// SourceVersion is recorded as the artifact's resolved version when the
	// sync applies.
	SourceVersion string
	By            string
}

// Result reports an applied sync.
type Result struct {
	Preview        *Preview
	Applied        []string
	PreCollection  *types.Snapshot
	PostCollection *types.Snapshot
	PreProject     *types.Snapshot
	PostProject    *types.Snapshot
}

// Engine performs sync previews and applies.
type Engine struct {
	store     storage.Storage
	snapshots *snapshot.Store
}

func NewEngine(store storage.Storage, snaps *snapshot.Store) *Engine {
	return &Engine{store: store, snapshots: snaps}
}

// Preview computes the drift state of one deployment without writing
// anything. source, when non-nil, stands in for the collection as the
// incoming side (a pull from upstream).
func (e *Engine) Preview(ctx context.Context, artifactUUID, projectID, profileID string, source Tree) (*Preview, error) {
	pv, _, err := e.preview(ctx, artifactUUID, projectID, profileID, canonTree(source))
	return pv, err
}

// Pull reconciles the deployment with its incoming side and applies the
// resolution to both the collection and the project. The write order
// follows the write-through protocol: stage both legs, commit the database,
// then rename into place under a journal. A rename failure restores both
// pre-sync snapshots.
func (e *Engine) Pull(ctx context.Context, artifactUUID, projectID, profileID string, opts Options) (*Result, error) {
	if opts.Strategy == "" {
		opts.Strategy = StrategyMerge
	}
	opts.Source = canonTree(opts.Source)

	pv, lg, err := e.preview(ctx, artifactUUID, projectID, profileID, opts.Source)
	if err != nil {
		return nil, err
	}
	res := &Result{Preview: pv}

	resolved, err := resolve(pv, lg, opts)
	if err != nil {
		return nil, err
	}
	applied := changedPaths(resolved, lg.collTree, lg.projTree)
	if len(applied) == 0 {
		return res, nil
	}
	if len(resolved) == 0 {
		return nil, &types.ValidationError{Field: "resolution", Reason: "sync would leave " + pv.Artifact.Name + " with no files; use undeploy to remove it"}
	}
	if err := e.apply(ctx, lg, resolved, opts, res); err != nil {
		return nil, err
	}
	res.Applied = applied
	return res, nil
}

// Push takes the project's local edits back into the collection. It is a
// pull that resolves every path in the project's favor.
func (e *Engine) Push(ctx context.Context, artifactUUID, projectID, profileID string, by string) (*Result, error) {
	return e.Pull(ctx, artifactUUID, projectID, profileID, Options{Strategy: StrategyOurs, By: by})
}

// legs carries the loaded context a preview shares with an apply.
type legs struct {
	artifact   *types.Artifact
	deployment *types.Deployment
	collection *types.Collection
	project    *types.Project
	profile    *deploy.Profile
	sourcePath string
	collTree   Tree
	projTree   Tree
	baseTree   Tree
	incoming   Tree
	isDir      bool
}

func (e *Engine) preview(ctx context.Context, artifactUUID, projectID, profileID string, source Tree) (*Preview, *legs, error) {
	prof, err := deploy.LookupProfile(profileID)
	if err != nil {
		return nil, nil, err
	}
	a, err := e.store.GetArtifact(ctx, artifactUUID)
	if err != nil {
		return nil, nil, err
	}
	dep, err := e.store.GetDeployment(ctx, artifactUUID, projectID, prof.ID)
	if err != nil {
		return nil, nil, err
	}
	col, err := e.store.GetCollection(ctx, a.CollectionID)
	if err != nil {
		return nil, nil, err
	}
	project, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	srcPath, err := deploy.SourcePath(col, a)
	if err != nil {
		return nil, nil, err
	}

	collTree, err := readTreeAt(srcPath, a.Type)
	if err != nil {
		return nil, nil, err
	}
	projTree, err := readTreeAt(dep.DeployedPath, a.Type)
	if err != nil {
		return nil, nil, err
	}
	base := e.baseTree(ctx, dep, project, srcPath, collTree, projTree)
	incoming := collTree
	if source != nil {
		incoming = source
	}

	lg := &legs{
		artifact:   a,
		deployment: dep,
		collection: col,
		project:    project,
		profile:    prof,
		sourcePath: srcPath,
		collTree:   collTree,
		projTree:   projTree,
		baseTree:   base,
		incoming:   incoming,
		isDir:      legIsDir(srcPath, dep.DeployedPath, a.Type),
	}

	pv := &Preview{Artifact: a, Deployment: dep, SourcePath: srcPath, State: StateInSync}
	for _, p := range unionPaths(incoming, projTree) {
		in := incoming[p]
		pj := projTree[p]
		if bytes.Equal(in, pj) {
			continue
		}
		var b []byte
		haveBase := base != nil
		if haveBase {
			b = base[p]
		}
		m := threeWay(b, haveBase, in, pj)
		d := PathDiff{
			Path:       p,
			Class:      m.Class,
			Base:       b,
			Collection: collTree[p],
			Project:    pj,
			incoming:   in,
			merge:      m,
		}
		if source != nil {
			d.Source = source[p]
		}
		switch m.Class {
		case ConflictHard:
			pv.Hard++
		case ConflictSoft:
			pv.Soft++
		}
		pv.Paths = append(pv.Paths, d)
	}

	if len(pv.Paths) > 0 {
		switch {
		case base == nil:
			pv.State = StateConflict
		default:
			inMoved := !treesEqual(incoming, base)
			pjMoved := !treesEqual(projTree, base)
			switch {
			case inMoved && pjMoved:
				pv.State = StateConflict
			case inMoved:
				pv.State = StateSourceDrift
			case pjMoved:
				pv.State = StateProjectDrift
			}
		}
	}
	return pv, lg, nil
}

// baseTree recovers the common ancestor: the tree whose hash the deployment
// row recorded. Whichever side is still unmodified serves directly;
// otherwise project snapshots are searched newest-first. A nil return means
// no ancestor is known and differing paths cannot be auto-merged.
func (e *Engine) baseTree(ctx context.Context, dep *types.Deployment, project *types.Project, srcPath string, collTree, projTree Tree) Tree {
	if fsio.Exists(dep.DeployedPath) && !fsio.DetectTreeChanges(dep.SourceContentHash, dep.DeployedPath) {
		return projTree
	}
	if fsio.Exists(srcPath) && !fsio.DetectTreeChanges(dep.SourceContentHash, srcPath) {
		return collTree
	}

	claudeDir := filepath.Join(project.Path, fsio.ClaudeDir)
	rel, err := filepath.Rel(claudeDir, dep.DeployedPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil
	}
	rel = filepath.ToSlash(rel)

	snaps, err := e.store.ListSnapshots(ctx, types.ProjectScope(project.ID), types.Page{})
	if err != nil {
		debug.Logf("snapshot scan for sync base failed: %v", err)
		return nil
	}
	for _, snap := range snaps {
		if tree, ok := e.snapshotSubtree(snap, rel, dep.SourceContentHash); ok {
			return tree
		}
	}
	return nil
}

// snapshotSubtree extracts the subtree of a project snapshot under rel and
// materializes it when its root hash matches want.
func (e *Engine) snapshotSubtree(snap *types.Snapshot, rel, want string) (Tree, bool) {
	if h, ok := snap.Tree[rel]; ok && h == want {
		data, err := e.snapshots.Object(h)
		if err != nil {
			return nil, false
		}
		return Tree{path.Base(rel): fsio.Canonicalize(data)}, true
	}

	prefix := rel + "/"
	var entries []fsio.TreeEntry
	for p, h := range snap.Tree {
		if strings.HasPrefix(p, prefix) {
			entries = append(entries, fsio.TreeEntry{Path: strings.TrimPrefix(p, prefix), Hash: h})
		}
	}
	if len(entries) == 0 {
		return nil, false
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	if fsio.MerkleRoot(entries) != want {
		return nil, false
	}

	tree := make(Tree, len(entries))
	for _, en := range entries {
		data, err := e.snapshots.Object(en.Hash)
		if err != nil {
			return nil, false
		}
		tree[en.Path] = fsio.Canonicalize(data)
	}
	return tree, true
}

// resolve builds the tree both legs converge on: the incoming side, with
// every differing path replaced by its strategy resolution. Hard conflicts
// under StrategyMerge refuse the whole sync before anything is written.
func resolve(pv *Preview, lg *legs, opts Options) (Tree, error) {
	resolved := make(Tree, len(lg.incoming))
	for p, data := range lg.incoming {
		resolved[p] = data
	}
	for _, d := range pv.Paths {
		delete(resolved, d.Path)
	}

	if opts.Strategy == StrategyMerge {
		var hard []string
		for _, d := range pv.Paths {
			if d.Class == ConflictHard {
				hard = append(hard, d.Path)
			}
		}
		if len(hard) > 0 {
			return nil, &types.PartialSyncError{Conflicts: hard}
		}
	}

	for i := range pv.Paths {
		d := &pv.Paths[i]
		data, err := resolvePath(d, lg, opts)
		if err != nil {
			return nil, err
		}
		d.Merged = data
		if data != nil {
			resolved[d.Path] = data
		}
	}
	return resolved, nil
}

// changedPaths lists every path the resolved tree changes on either leg.
// An empty result means the sync is a no-op.
func changedPaths(resolved, collTree, projTree Tree) []string {
	seen := make(map[string]bool)
	var out []string
	note := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range unionPaths(resolved, collTree) {
		if !bytes.Equal(resolved[p], collTree[p]) {
			note(p)
		}
	}
	for _, p := range unionPaths(resolved, projTree) {
		if !bytes.Equal(resolved[p], projTree[p]) {
			note(p)
		}
	}
	sort.Strings(out)
	return out
}

func resolvePath(d *PathDiff, lg *legs, opts Options) ([]byte, error) {
	switch opts.Strategy {
	case StrategyTheirs:
		d.Resolution = TakeCollection
		if opts.Source != nil && !bytes.Equal(d.Source, d.Collection) {
			d.Resolution = TakeSource
		}
		return d.incoming, nil

	case StrategyOurs:
		d.Resolution = TakeProject
		return d.Project, nil

	case StrategyManual:
		if d.Class != ConflictNone {
			data, ok := opts.Manual[d.Path]
			if !ok {
				return nil, &types.ValidationError{Field: "manual", Reason: "path " + d.Path + " is conflicted and needs resolved content"}
			}
			d.Resolution = ManualMerge
			return fsio.Canonicalize(data), nil
		}
		return autoResolve(d, lg, opts), nil

	case StrategyMerge:
		return autoResolve(d, lg, opts), nil
	}
	return nil, &types.ValidationError{Field: "strategy", Reason: "unknown sync strategy " + string(opts.Strategy)}
}

// autoResolve labels the winning side of a cleanly-merged path. The merge
// classifier already produced the content.
func autoResolve(d *PathDiff, lg *legs, opts Options) []byte {
	var b []byte
	if lg.baseTree != nil {
		b = lg.baseTree[d.Path]
	}
	switch {
	case bytes.Equal(d.merge.Merged, d.Project) && !bytes.Equal(b, d.Project):
		d.Resolution = TakeProject
	case opts.Source != nil && !bytes.Equal(d.Source, d.Collection):
		d.Resolution = TakeSource
	case bytes.Equal(d.merge.Merged, d.incoming):
		d.Resolution = TakeCollection
	default:
		d.Resolution = ManualMerge
	}
	return d.merge.Merged
}

// apply converges both legs on the resolved tree: snapshot, stage, record,
// rename. The collection leg commits first so an interruption between the
// renames leaves ordinary project drift rather than a torn artifact.
func (e *Engine) apply(ctx context.Context, lg *legs, resolved Tree, opts Options, res *Result) error {
	colRoot := filepath.Join(lg.collection.Root, "artifacts")
	claudeDir := filepath.Join(lg.project.Path, fsio.ClaudeDir)

	preC, err := e.snapshots.Create(ctx, types.CollectionScope(lg.collection.ID), colRoot, types.SnapshotPreSync, opts.By)
	if err != nil {
		return err
	}
	res.PreCollection = preC
	preP, err := e.snapshots.Create(ctx, types.ProjectScope(lg.project.ID), claudeDir, types.SnapshotPreSync, opts.By)
	if err != nil {
		return err
	}
	res.PreProject = preP

	newHash := resolvedHash(resolved, lg.isDir)

	// Stage phase. Directory legs build complete staging trees; the
	// collection leg of a skill keeps its embedded children, which live
	// inside the skill directory but sync independently.
	var stagedColl, stagedProj string
	defer func() {
		if stagedColl != "" {
			os.RemoveAll(stagedColl)
		}
		if stagedProj != "" {
			os.RemoveAll(stagedProj)
		}
	}()
	if lg.isDir {
		keep, err := embeddedEntries(lg.artifact, lg.sourcePath)
		if err != nil {
			return err
		}
		stagedColl, err = stageTree(lg.sourcePath, resolved, keep)
		if err != nil {
			return err
		}
		stagedProj, err = stageTree(lg.deployment.DeployedPath, resolved, nil)
		if err != nil {
			return err
		}
	}

	// Record phase: the database commits before any file moves.
	err = e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		upd := storage.ArtifactUpdate{ContentHash: &newHash}
		if opts.SourceVersion != "" {
			upd.ResolvedVersion = &opts.SourceVersion
		}
		if err := tx.UpdateArtifact(ctx, lg.artifact.UUID, upd); err != nil {
			return err
		}
		if err := tx.UpsertDeployment(ctx, &types.Deployment{
			ArtifactUUID:      lg.artifact.UUID,
			ProjectID:         lg.project.ID,
			ProfileID:         lg.profile.ID,
			SourceContentHash: newHash,
			DeployedPath:      lg.deployment.DeployedPath,
		}); err != nil {
			return err
		}
		return tx.RefreshProjectStats(ctx, lg.project.ID)
	})
	if err != nil {
		return err
	}

	// Commit phase: collection first, then project, under one journal.
	journal := fsio.NewJournal(lg.project.Path, "sync")
	journal.Add(lg.sourcePath, stagedColl)
	journal.Add(lg.deployment.DeployedPath, stagedProj)
	if err := journal.Begin(); err != nil {
		return err
	}

	commit := func(i int, target, staging string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lg.isDir {
			if err := fsio.AtomicReplaceDir(target, staging); err != nil {
				return err
			}
		} else {
			data := singleValue(resolved)
			if err := fsio.WriteFileAtomic(target, data, 0644); err != nil {
				return err
			}
		}
		if jerr := journal.MarkDone(i); jerr != nil {
			debug.Logf("journal update failed: %v", jerr)
		}
		return nil
	}

	if err := commit(0, lg.sourcePath, stagedColl); err != nil {
		return e.recoverApply(ctx, lg, res, journal, opts, err)
	}
	stagedColl = ""
	if err := commit(1, lg.deployment.DeployedPath, stagedProj); err != nil {
		return e.recoverApply(ctx, lg, res, journal, opts, err)
	}
	stagedProj = ""
	if err := journal.Finish(); err != nil {
		return err
	}

	postC, err := e.snapshots.Create(ctx, types.CollectionScope(lg.collection.ID), colRoot, types.SnapshotPostSync, opts.By)
	if err != nil {
		return err
	}
	res.PostCollection = postC
	postP, err := e.snapshots.Create(ctx, types.ProjectScope(lg.project.ID), claudeDir, types.SnapshotPostSync, opts.By)
	if err != nil {
		return err
	}
	res.PostProject = postP
	return nil
}

// recoverApply handles a rename failure: both pre-sync snapshots are
// restored so neither side is left torn. If either restore fails the caller
// gets a partial-sync error naming what landed.
func (e *Engine) recoverApply(ctx context.Context, lg *legs, res *Result, journal *fsio.Journal, opts Options, cause error) error {
	colRoot := filepath.Join(lg.collection.Root, "artifacts")
	claudeDir := filepath.Join(lg.project.Path, fsio.ClaudeDir)

	_, cerr := e.snapshots.Rollback(ctx, res.PreCollection.ID, colRoot, opts.By)
	_, perr := e.snapshots.Rollback(ctx, res.PreProject.ID, claudeDir, opts.By)
	if cerr == nil && perr == nil {
		_ = journal.Finish()
		return fmt.Errorf("sync of %s failed, collection and project restored to pre-sync state: %w", lg.artifact.Name, cause)
	}
	debug.Logf("pre-sync restore failed after %v (collection: %v, project: %v)", cause, cerr, perr)

	serr := &types.PartialSyncError{}
	legsOut := []struct {
		path string
		rerr error
	}{
		{lg.sourcePath, cerr},
		{lg.deployment.DeployedPath, perr},
	}
	for _, l := range legsOut {
		if l.rerr == nil {
			serr.Applied = append(serr.Applied, l.path)
			continue
		}
		serr.Failed = append(serr.Failed, types.MemberOutcome{
			ArtifactUUID: lg.artifact.UUID,
			Path:         l.path,
			Reason:       l.rerr.Error(),
		})
	}
	return serr
}

// readTreeAt loads the tree rooted at path. Skills drop their embedded
// children, matching how their content hash is computed. A missing root is
// an empty tree.
func readTreeAt(root string, typ types.ArtifactType) (Tree, error) {
	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		return Tree{}, nil
	}
	if err != nil {
		return nil, &types.FilesystemError{Op: "stat", Path: root, Err: err}
	}

	if !info.IsDir() {
		data, err := fsio.ReadFile(root)
		if err != nil {
			return nil, err
		}
		return Tree{path.Base(root): fsio.Canonicalize(data)}, nil
	}

	entries, err := fsio.LsTree(root)
	if err != nil {
		return nil, err
	}
	if typ == types.TypeSkill {
		entries = index.FilterEmbedded(entries)
	}
	tree := make(Tree, len(entries))
	for _, en := range entries {
		data, err := fsio.ReadFile(filepath.Join(root, filepath.FromSlash(en.Path)))
		if err != nil {
			return nil, err
		}
		tree[en.Path] = fsio.Canonicalize(data)
	}
	return tree, nil
}

// stageTree writes a tree into a fresh staging dir next to target. keep
// entries are copied over from the live target directory untouched.
func stageTree(target string, t Tree, keep []fsio.TreeEntry) (string, error) {
	staging, err := fsio.NewStagingDir(target)
	if err != nil {
		return "", err
	}
	fail := func(op, p string, err error) (string, error) {
		os.RemoveAll(staging)
		return "", &types.FilesystemError{Op: op, Path: p, Err: err}
	}
	for p, data := range t {
		dst := filepath.Join(staging, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return fail("mkdir", filepath.Dir(dst), err)
		}
		if err := os.WriteFile(dst, data, 0644); err != nil {
			return fail("write", dst, err)
		}
	}
	if len(keep) > 0 {
		if err := fsio.CopyEntries(target, staging, keep); err != nil {
			os.RemoveAll(staging)
			return "", err
		}
	}
	return staging, nil
}

// embeddedEntries lists the files under a skill's embedded child
// directories, which the sync must carry through the collection-side
// replace untouched.
func embeddedEntries(a *types.Artifact, srcPath string) ([]fsio.TreeEntry, error) {
	if a.Type != types.TypeSkill {
		return nil, nil
	}
	all, err := fsio.LsTree(srcPath)
	if err != nil {
		return nil, err
	}
	own := make(map[string]bool)
	for _, en := range index.FilterEmbedded(all) {
		own[en.Path] = true
	}
	var keep []fsio.TreeEntry
	for _, en := range all {
		if !own[en.Path] {
			keep = append(keep, en)
		}
	}
	return keep, nil
}

func legIsDir(srcPath, deployedPath string, typ types.ArtifactType) bool {
	if info, err := os.Stat(srcPath); err == nil {
		return info.IsDir()
	}
	if info, err := os.Stat(deployedPath); err == nil {
		return info.IsDir()
	}
	return typ == types.TypeSkill
}

// resolvedHash computes the content hash both database rows record:
// directory trees hash to their merkle root, single files to their content
// hash.
func resolvedHash(t Tree, isDir bool) string {
	if !isDir {
		return fsio.ComputeContentHash(singleValue(t))
	}
	entries := make([]fsio.TreeEntry, 0, len(t))
	for p, data := range t {
		entries = append(entries, fsio.TreeEntry{Path: p, Hash: fsio.ComputeContentHash(data)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return fsio.MerkleRoot(entries)
}

func singleValue(t Tree) []byte {
	for _, data := range t {
		return data
	}
	return nil
}

func canonTree(t Tree) Tree {
	if t == nil {
		return nil
	}
	out := make(Tree, len(t))
	for p, data := range t {
		out[p] = fsio.Canonicalize(data)
	}
	return out
}

func treesEqual(a, b Tree) bool {
	if len(a) != len(b) {
		return false
	}
	for p, v := range a {
		w, ok := b[p]
		if !ok || !bytes.Equal(v, w) {
			return false
		}
	}
	return true
}

func unionPaths(a, b Tree) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for p := range a {
		seen[p] = true
		out = append(out, p)
	}
	for p := range b {
		if !seen[p] {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
