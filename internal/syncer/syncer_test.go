package syncer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/skillmeat/skillmeat/internal/composite"
	"github.com/skillmeat/skillmeat/internal/deploy"
	"github.com/skillmeat/skillmeat/internal/fsio"
	"github.com/skillmeat/skillmeat/internal/index"
	"github.com/skillmeat/skillmeat/internal/snapshot"
	"github.com/skillmeat/skillmeat/internal/storage/sqlite"
	"github.com/skillmeat/skillmeat/internal/types"
)

type fixture struct {
	store    *sqlite.SQLiteStorage
	col      *types.Collection
	project  *types.Project
	snaps    *snapshot.Store
	deployer *deploy.Engine
	comps    *composite.Engine
}

func setupSync(t *testing.T) (*Engine, *fixture, func()) {
	t.Helper()
	ctx := context.Background()

	tmpDir, err := os.MkdirTemp("", "skillmeat-sync-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	store, err := sqlite.New(ctx, filepath.Join(tmpDir, "skillmeat.db"))
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to create storage: %v", err)
	}

	fail := func(format string, args ...any) {
		store.Close()
		os.RemoveAll(tmpDir)
		t.Fatalf(format, args...)
	}

	col := &types.Collection{Name: "default", Root: filepath.Join(tmpDir, "collection"), IsActive: true}
	if err := store.CreateCollection(ctx, col); err != nil {
		fail("seed collection: %v", err)
	}
	project := &types.Project{Name: "demo", Path: filepath.Join(tmpDir, "project")}
	if err := store.CreateProject(ctx, project); err != nil {
		fail("seed project: %v", err)
	}
	if err := os.MkdirAll(project.Path, 0o755); err != nil {
		fail("mkdir project: %v", err)
	}

	snaps := snapshot.NewStore(filepath.Join(tmpDir, "snapshots"), store)
	comps := composite.NewEngine(store)
	fx := &fixture{
		store:    store,
		col:      col,
		project:  project,
		snaps:    snaps,
		deployer: deploy.NewEngine(store, snaps, comps),
		comps:    comps,
	}
	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}
	return NewEngine(store, snaps), fx, cleanup
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func mustRead(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

const commandBody = `# Review
Step one: read the diff.
Step two: check tests.
Step three: check docs.
Step four: approve.
Step five: merge.
`

// seedDeployedCommand creates a command in the collection, deploys it, and
// returns the artifact with its collection and project file paths.
func seedDeployedCommand(t *testing.T, fx *fixture, name, content string) (*types.Artifact, string, string) {
	t.Helper()
	ctx := context.Background()

	srcPath := filepath.Join(fx.col.Root, "artifacts", "commands", name+".md")
	mustWrite(t, srcPath, content)
	a := &types.Artifact{
		CollectionID: fx.col.ID,
		Name:         name,
		Type:         types.TypeCommand,
		Origin:       types.OriginLocal,
		ContentHash:  fsio.ComputeContentHash([]byte(content)),
		PathPattern:  ".claude/commands/" + name + ".md",
	}
	if err := fx.store.CreateArtifact(ctx, a); err != nil {
		t.Fatalf("seed command %s: %v", name, err)
	}
	if _, err := fx.deployer.Deploy(ctx, a.UUID, fx.project.ID, "", deploy.Options{}); err != nil {
		t.Fatalf("deploy %s: %v", name, err)
	}
	return a, srcPath, filepath.Join(fx.project.Path, ".claude", "commands", name+".md")
}

// snapshotProject records the project's current .claude tree so later syncs
// can recover a merge ancestor after both sides drift.
func snapshotProject(t *testing.T, fx *fixture) {
	t.Helper()
	claudeDir := filepath.Join(fx.project.Path, fsio.ClaudeDir)
	if _, err := fx.snaps.Create(context.Background(), types.ProjectScope(fx.project.ID), claudeDir, types.SnapshotManual, "test"); err != nil {
		t.Fatalf("snapshot project: %v", err)
	}
}

func TestPreviewStates(t *testing.T) {
	engine, fx, cleanup := setupSync(t)
	defer cleanup()
	ctx := context.Background()

	a, srcPath, deployedPath := seedDeployedCommand(t, fx, "review", commandBody)
	snapshotProject(t, fx)

	pv, err := engine.Preview(ctx, a.UUID, fx.project.ID, "", nil)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if pv.State != StateInSync || len(pv.Paths) != 0 {
		t.Fatalf("fresh deploy state = %s with %d paths, want in-sync/0", pv.State, len(pv.Paths))
	}

	// Collection moves, project untouched.
	mustWrite(t, srcPath, commandBody+"Collection addition.\n")
	pv, err = engine.Preview(ctx, a.UUID, fx.project.ID, "", nil)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if pv.State != StateSourceDrift {
		t.Errorf("state = %s, want %s", pv.State, StateSourceDrift)
	}
	if len(pv.Paths) != 1 || pv.Paths[0].Class != ConflictNone {
		t.Errorf("paths = %+v, want one cleanly-mergeable diff", pv.Paths)
	}

	// Project moves, collection untouched.
	mustWrite(t, srcPath, commandBody)
	mustWrite(t, deployedPath, commandBody+"Project addition.\n")
	pv, err = engine.Preview(ctx, a.UUID, fx.project.ID, "", nil)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if pv.State != StateProjectDrift {
		t.Errorf("state = %s, want %s", pv.State, StateProjectDrift)
	}

	// Both move on different lines: a conflict, but an auto-mergeable one
	// thanks to the snapshot ancestor.
	mustWrite(t, srcPath, "# Review\nStep one: read the diff twice.\nStep two: check tests.\nStep three: check docs.\nStep four: approve.\nStep five: merge.\n")
	pv, err = engine.Preview(ctx, a.UUID, fx.project.ID, "", nil)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if pv.State != StateConflict {
		t.Errorf("state = %s, want %s", pv.State, StateConflict)
	}
	if pv.Hard != 0 {
		t.Errorf("hard = %d, want 0 for edits on distant lines", pv.Hard)
	}
}

func TestPullMergeCombinesIndependentEdits(t *testing.T) {
	engine, fx, cleanup := setupSync(t)
	defer cleanup()
	ctx := context.Background()

	a, srcPath, deployedPath := seedDeployedCommand(t, fx, "review", commandBody)
	snapshotProject(t, fx)

	collEdited := "# Review\nStep one: read the diff twice.\nStep two: check tests.\nStep three: check docs.\nStep four: approve.\nStep five: merge.\n"
	projEdited := "# Review\nStep one: read the diff.\nStep two: check tests.\nStep three: check docs.\nStep four: approve.\nStep five: merge and announce.\n"
	merged := "# Review\nStep one: read the diff twice.\nStep two: check tests.\nStep three: check docs.\nStep four: approve.\nStep five: merge and announce.\n"
	mustWrite(t, srcPath, collEdited)
	mustWrite(t, deployedPath, projEdited)

	res, err := engine.Pull(ctx, a.UUID, fx.project.ID, "", Options{Strategy: StrategyMerge, By: "tester"})
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if len(res.Applied) != 1 || res.Applied[0] != "review.md" {
		t.Fatalf("applied = %v, want [review.md]", res.Applied)
	}
	if got := mustRead(t, srcPath); got != merged {
		t.Errorf("collection = %q, want merged content", got)
	}
	if got := mustRead(t, deployedPath); got != merged {
		t.Errorf("project = %q, want merged content", got)
	}

	wantHash := fsio.ComputeContentHash([]byte(merged))
	updated, err := fx.store.GetArtifact(ctx, a.UUID)
	if err != nil {
		t.Fatalf("GetArtifact: %v", err)
	}
	if updated.ContentHash != wantHash {
		t.Errorf("artifact hash = %s, want %s", updated.ContentHash, wantHash)
	}
	dep, err := fx.store.GetDeployment(ctx, a.UUID, fx.project.ID, deploy.DefaultProfile)
	if err != nil {
		t.Fatalf("GetDeployment: %v", err)
	}
	if dep.SourceContentHash != wantHash {
		t.Errorf("deployment hash = %s, want %s", dep.SourceContentHash, wantHash)
	}
	if fsio.DetectTreeChanges(dep.SourceContentHash, dep.DeployedPath) {
		t.Error("synced deployment still reports drift")
	}

	for name, snap := range map[string]*types.Snapshot{
		"pre-collection":  res.PreCollection,
		"post-collection": res.PostCollection,
		"pre-project":     res.PreProject,
		"post-project":    res.PostProject,
	} {
		if snap == nil {
			t.Errorf("missing %s snapshot", name)
		} else if snap.By != "tester" {
			t.Errorf("%s snapshot by = %q, want tester", name, snap.By)
		}
	}
}

func TestPullMergeRefusesHardConflict(t *testing.T) {
	engine, fx, cleanup := setupSync(t)
	defer cleanup()
	ctx := context.Background()

	a, srcPath, deployedPath := seedDeployedCommand(t, fx, "review", commandBody)
	snapshotProject(t, fx)

	collEdited := "# Review\nStep one: read the diff twice.\nStep two: check tests.\nStep three: check docs.\nStep four: approve.\nStep five: merge.\n"
	projEdited := "# Review\nStep one: skim the diff.\nStep two: check tests.\nStep three: check docs.\nStep four: approve.\nStep five: merge.\n"
	mustWrite(t, srcPath, collEdited)
	mustWrite(t, deployedPath, projEdited)

	_, err := engine.Pull(ctx, a.UUID, fx.project.ID, "", Options{Strategy: StrategyMerge})
	var serr *types.PartialSyncError
	if !errors.As(err, &serr) {
		t.Fatalf("Pull error = %v, want partial sync error", err)
	}
	if len(serr.Conflicts) != 1 || serr.Conflicts[0] != "review.md" {
		t.Errorf("conflicts = %v, want [review.md]", serr.Conflicts)
	}
	if len(serr.Applied) != 0 {
		t.Errorf("applied = %v, want nothing before resolution", serr.Applied)
	}

	// Nothing may move until the conflict is resolved.
	if got := mustRead(t, srcPath); got != collEdited {
		t.Error("collection modified by refused sync")
	}
	if got := mustRead(t, deployedPath); got != projEdited {
		t.Error("project modified by refused sync")
	}
	row, err := fx.store.GetArtifact(ctx, a.UUID)
	if err != nil {
		t.Fatalf("GetArtifact: %v", err)
	}
	if row.ContentHash != a.ContentHash {
		t.Error("artifact row updated by refused sync")
	}
	colSnaps, err := fx.store.ListSnapshots(ctx, types.CollectionScope(fx.col.ID), types.Page{})
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(colSnaps) != 0 {
		t.Errorf("refused sync left %d collection snapshots", len(colSnaps))
	}
}

func TestPullManualResolvesHardConflict(t *testing.T) {
	engine, fx, cleanup := setupSync(t)
	defer cleanup()
	ctx := context.Background()

	a, srcPath, deployedPath := seedDeployedCommand(t, fx, "review", commandBody)
	snapshotProject(t, fx)

	mustWrite(t, srcPath, "# Review\nStep one: read the diff twice.\nStep two: check tests.\nStep three: check docs.\nStep four: approve.\nStep five: merge.\n")
	mustWrite(t, deployedPath, "# Review\nStep one: skim the diff.\nStep two: check tests.\nStep three: check docs.\nStep four: approve.\nStep five: merge.\n")

	// Without content for the conflicted path, manual resolution refuses.
	_, err := engine.Pull(ctx, a.UUID, fx.project.ID, "", Options{Strategy: StrategyManual})
	var verr *types.ValidationError
	if !errors.As(err, &verr) || verr.Field != "manual" {
		t.Fatalf("Pull without manual content = %v, want validation error on manual", err)
	}

	resolved := "# Review\nStep one: read the diff twice, then skim it once more.\nStep two: check tests.\nStep three: check docs.\nStep four: approve.\nStep five: merge.\n"
	res, err := engine.Pull(ctx, a.UUID, fx.project.ID, "", Options{
		Strategy: StrategyManual,
		Manual:   map[string][]byte{"review.md": []byte(resolved)},
	})
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if res.Preview.State != StateConflict || res.Preview.Hard != 1 {
		t.Errorf("preview = %s/%d hard, want conflict/1", res.Preview.State, res.Preview.Hard)
	}
	if got := res.Preview.Paths[0].Resolution; got != ManualMerge {
		t.Errorf("resolution = %s, want %s", got, ManualMerge)
	}
	if got := mustRead(t, srcPath); got != resolved {
		t.Errorf("collection = %q, want manual content", got)
	}
	if got := mustRead(t, deployedPath); got != resolved {
		t.Errorf("project = %q, want manual content", got)
	}

	wantHash := fsio.ComputeContentHash([]byte(resolved))
	dep, err := fx.store.GetDeployment(ctx, a.UUID, fx.project.ID, deploy.DefaultProfile)
	if err != nil {
		t.Fatalf("GetDeployment: %v", err)
	}
	if dep.SourceContentHash != wantHash {
		t.Errorf("deployment hash = %s, want %s", dep.SourceContentHash, wantHash)
	}
	if res.PreProject == nil || res.PostProject == nil {
		t.Error("manual sync skipped project snapshots")
	}
}

func TestPullTheirsConvergesProjectToCollection(t *testing.T) {
	engine, fx, cleanup := setupSync(t)
	defer cleanup()
	ctx := context.Background()

	a, srcPath, deployedPath := seedDeployedCommand(t, fx, "review", commandBody)
	snapshotProject(t, fx)

	collEdited := commandBody + "Collection wins.\n"
	mustWrite(t, srcPath, collEdited)
	mustWrite(t, deployedPath, "# Review\nRewritten locally.\n")

	res, err := engine.Pull(ctx, a.UUID, fx.project.ID, "", Options{Strategy: StrategyTheirs})
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if res.Preview.State != StateConflict {
		t.Errorf("state = %s, want %s", res.Preview.State, StateConflict)
	}
	if got := mustRead(t, deployedPath); got != collEdited {
		t.Errorf("project = %q, want collection content", got)
	}
	if got := mustRead(t, srcPath); got != collEdited {
		t.Errorf("collection rewritten to %q", got)
	}
	if got := res.Preview.Paths[0].Resolution; got != TakeCollection {
		t.Errorf("resolution = %s, want %s", got, TakeCollection)
	}

	wantHash := fsio.ComputeContentHash([]byte(collEdited))
	updated, _ := fx.store.GetArtifact(ctx, a.UUID)
	dep, err := fx.store.GetDeployment(ctx, a.UUID, fx.project.ID, deploy.DefaultProfile)
	if err != nil {
		t.Fatalf("GetDeployment: %v", err)
	}
	if updated.ContentHash != wantHash || dep.SourceContentHash != wantHash {
		t.Errorf("hashes = %s/%s, want both %s", updated.ContentHash, dep.SourceContentHash, wantHash)
	}
}

func TestPushTakesProjectEdits(t *testing.T) {
	engine, fx, cleanup := setupSync(t)
	defer cleanup()
	ctx := context.Background()

	a, srcPath, deployedPath := seedDeployedCommand(t, fx, "review", commandBody)

	projEdited := commandBody + "Learned in the field.\n"
	mustWrite(t, deployedPath, projEdited)

	res, err := engine.Push(ctx, a.UUID, fx.project.ID, "", "tester")
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if res.Preview.State != StateProjectDrift {
		t.Errorf("state = %s, want %s", res.Preview.State, StateProjectDrift)
	}
	if got := mustRead(t, srcPath); got != projEdited {
		t.Errorf("collection = %q, want project content", got)
	}
	if got := res.Preview.Paths[0].Resolution; got != TakeProject {
		t.Errorf("resolution = %s, want %s", got, TakeProject)
	}

	wantHash := fsio.ComputeContentHash([]byte(projEdited))
	updated, err := fx.store.GetArtifact(ctx, a.UUID)
	if err != nil {
		t.Fatalf("GetArtifact: %v", err)
	}
	if updated.ContentHash != wantHash {
		t.Errorf("artifact hash = %s, want %s", updated.ContentHash, wantHash)
	}
}

func TestPullNoChangesIsNoOp(t *testing.T) {
	engine, fx, cleanup := setupSync(t)
	defer cleanup()
	ctx := context.Background()

	a, _, _ := seedDeployedCommand(t, fx, "review", commandBody)

	res, err := engine.Pull(ctx, a.UUID, fx.project.ID, "", Options{})
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if len(res.Applied) != 0 {
		t.Errorf("applied = %v, want none", res.Applied)
	}
	if res.PreProject != nil || res.PostProject != nil {
		t.Error("no-op sync created snapshots")
	}
}

func TestPullFromUpstreamSource(t *testing.T) {
	engine, fx, cleanup := setupSync(t)
	defer cleanup()
	ctx := context.Background()

	a, srcPath, deployedPath := seedDeployedCommand(t, fx, "review", commandBody)

	upstream := commandBody + "Upstream refinement.\n"
	res, err := engine.Pull(ctx, a.UUID, fx.project.ID, "", Options{
		Strategy:      StrategyTheirs,
		Source:        Tree{"review.md": []byte(upstream)},
		SourceVersion: "v2.0.0",
	})
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if res.Preview.State != StateSourceDrift {
		t.Errorf("state = %s, want %s", res.Preview.State, StateSourceDrift)
	}
	if got := res.Preview.Paths[0].Resolution; got != TakeSource {
		t.Errorf("resolution = %s, want %s", got, TakeSource)
	}
	if got := mustRead(t, srcPath); got != upstream {
		t.Errorf("collection = %q, want upstream content", got)
	}
	if got := mustRead(t, deployedPath); got != upstream {
		t.Errorf("project = %q, want upstream content", got)
	}

	updated, err := fx.store.GetArtifact(ctx, a.UUID)
	if err != nil {
		t.Fatalf("GetArtifact: %v", err)
	}
	if updated.ResolvedVersion != "v2.0.0" {
		t.Errorf("resolved version = %q, want v2.0.0", updated.ResolvedVersion)
	}
}

func TestPullSkillPreservesEmbeddedChildren(t *testing.T) {
	engine, fx, cleanup := setupSync(t)
	defer cleanup()
	ctx := context.Background()

	skillDir := filepath.Join(fx.col.Root, "artifacts", "skills", "canvas-design")
	mustWrite(t, filepath.Join(skillDir, "SKILL.md"), "---\nname: canvas-design\n---\n# canvas-design\n")
	mustWrite(t, filepath.Join(skillDir, "reference.md"), "Reference notes.\n")
	mustWrite(t, filepath.Join(skillDir, "commands", "deploy.md"), "# Deploy\nShip it.\n")
	imp, err := fx.comps.ImportSkill(ctx, fx.col.ID, skillDir, composite.ImportOptions{Origin: types.OriginLocal})
	if err != nil {
		t.Fatalf("import skill: %v", err)
	}
	skill := imp.Artifact
	if _, err := fx.deployer.Deploy(ctx, skill.UUID, fx.project.ID, "", deploy.Options{}); err != nil {
		t.Fatalf("deploy skill: %v", err)
	}

	mustWrite(t, filepath.Join(skillDir, "reference.md"), "Reference notes, expanded.\n")

	res, err := engine.Pull(ctx, skill.UUID, fx.project.ID, "", Options{Strategy: StrategyTheirs})
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if len(res.Applied) != 1 || res.Applied[0] != "reference.md" {
		t.Fatalf("applied = %v, want [reference.md]", res.Applied)
	}

	deployedRef := filepath.Join(fx.project.Path, ".claude", "skills", "canvas-design", "reference.md")
	if got := mustRead(t, deployedRef); got != "Reference notes, expanded.\n" {
		t.Errorf("deployed reference = %q, want expanded notes", got)
	}

	// The embedded command keeps living inside the collection's skill
	// directory and never lands inside the deployed skill.
	if got := mustRead(t, filepath.Join(skillDir, "commands", "deploy.md")); got != "# Deploy\nShip it.\n" {
		t.Errorf("embedded command = %q, want untouched content", got)
	}
	if fsio.Exists(filepath.Join(fx.project.Path, ".claude", "skills", "canvas-design", "commands")) {
		t.Error("embedded command copied into the deployed skill")
	}

	// The recorded hash uses the skill's own files, embedded children
	// excluded, so it matches both the row and the deployed tree.
	entries, err := fsio.LsTree(skillDir)
	if err != nil {
		t.Fatalf("LsTree: %v", err)
	}
	wantHash := fsio.MerkleRoot(index.FilterEmbedded(entries))
	updated, err := fx.store.GetArtifact(ctx, skill.UUID)
	if err != nil {
		t.Fatalf("GetArtifact: %v", err)
	}
	if updated.ContentHash != wantHash {
		t.Errorf("artifact hash = %s, want %s", updated.ContentHash, wantHash)
	}
	dep, err := fx.store.GetDeployment(ctx, skill.UUID, fx.project.ID, deploy.DefaultProfile)
	if err != nil {
		t.Fatalf("GetDeployment: %v", err)
	}
	if fsio.DetectTreeChanges(dep.SourceContentHash, dep.DeployedPath) {
		t.Error("synced skill reports drift")
	}
}
