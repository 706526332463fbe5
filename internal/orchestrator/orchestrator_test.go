package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/skillmeat/skillmeat/internal/deploy"
	"github.com/skillmeat/skillmeat/internal/events"
	"github.com/skillmeat/skillmeat/internal/locks"
	"github.com/skillmeat/skillmeat/internal/snapshot"
	"github.com/skillmeat/skillmeat/internal/storage/sqlite"
	"github.com/skillmeat/skillmeat/internal/types"
)

type fixture struct {
	store   *sqlite.SQLiteStorage
	col     *types.Collection
	tmp     string
	project string // path of a scratch project directory
}

func setupOrchestrator(t *testing.T) (*Orchestrator, *fixture, func()) {
	t.Helper()
	ctx := context.Background()

	tmpDir, err := os.MkdirTemp("", "skillmeat-orch-*")
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
	if err := os.MkdirAll(filepath.Join(col.Root, "artifacts"), 0o755); err != nil {
		fail("mkdir collection: %v", err)
	}
	projectPath := filepath.Join(tmpDir, "project")
	if err := os.MkdirAll(projectPath, 0o755); err != nil {
		fail("mkdir project: %v", err)
	}

	director, err := locks.NewDirector(filepath.Join(tmpDir, "locks"))
	if err != nil {
		fail("lock director: %v", err)
	}
	orch, err := New(Deps{
		Store:     store,
		Snapshots: snapshot.NewStore(filepath.Join(tmpDir, "snapshots"), store),
		Locks:     director,
	})
	if err != nil {
		fail("New: %v", err)
	}

	fx := &fixture{store: store, col: col, tmp: tmpDir, project: projectPath}
	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}
	return orch, fx, cleanup
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

// collectEvents subscribes and returns a pointer to the growing event list.
func collectEvents(orch *Orchestrator) *[]events.Event {
	var got []events.Event
	orch.Bus().Subscribe(func(ev events.Event) { got = append(got, ev) })
	return &got
}

func hasEvent(got []events.Event, entity string, kind events.Kind) bool {
	for _, ev := range got {
		if ev.Entity == entity && ev.Kind == kind {
			return true
		}
	}
	return false
}

func TestImportArtifactMaterializes(t *testing.T) {
	orch, fx, cleanup := setupOrchestrator(t)
	defer cleanup()
	ctx := context.Background()

	src := filepath.Join(fx.tmp, "incoming", "review.md")
	mustWrite(t, src, "# Review\nCheck the diff.\n")

	out, err := orch.ImportArtifact(ctx, ImportRequest{Path: src, Type: types.TypeCommand, Tags: []string{"ci"}})
	if err != nil {
		t.Fatalf("ImportArtifact: %v", err)
	}
	if out.Artifact == nil || out.Reimport {
		t.Fatalf("outcome = %+v, want fresh artifact", out)
	}
	if out.Snapshot == nil {
		t.Error("import should snapshot the collection")
	}

	canonical := filepath.Join(fx.col.Root, "artifacts", "commands", "review.md")
	if got := mustRead(t, canonical); got != "# Review\nCheck the diff.\n" {
		t.Errorf("canonical content = %q", got)
	}
	if len(out.Artifact.Tags) != 1 || out.Artifact.Tags[0] != "ci" {
		t.Errorf("tags = %v, want [ci]", out.Artifact.Tags)
	}
	// The source outside the collection is left alone.
	if _, err := os.Stat(src); err != nil {
		t.Errorf("import must not consume the source: %v", err)
	}
}

func TestImportArtifactIdempotent(t *testing.T) {
	orch, fx, cleanup := setupOrchestrator(t)
	defer cleanup()
	ctx := context.Background()

	src := filepath.Join(fx.tmp, "incoming", "review.md")
	mustWrite(t, src, "# Review\n")

	first, err := orch.ImportArtifact(ctx, ImportRequest{Path: src, Type: types.TypeCommand})
	if err != nil {
		t.Fatalf("first import: %v", err)
	}
	second, err := orch.ImportArtifact(ctx, ImportRequest{Path: src, Type: types.TypeCommand})
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if !second.Reimport {
		t.Error("identical re-import should report Reimport")
	}
	if first.Artifact.UUID != second.Artifact.UUID {
		t.Errorf("re-import created a new identity: %s then %s", first.Artifact.UUID, second.Artifact.UUID)
	}
	if first.Artifact.ContentHash != second.Artifact.ContentHash {
		t.Errorf("re-import changed hash: %s then %s", first.Artifact.ContentHash, second.Artifact.ContentHash)
	}
	page, err := orch.Store().ListArtifacts(ctx, types.ArtifactFilter{CollectionID: fx.col.ID}, types.Page{})
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}
	if len(page.Artifacts) != 1 {
		t.Errorf("collection holds %d artifacts after re-import, want 1", len(page.Artifacts))
	}
}

func TestReimportSkillKeepsMemberships(t *testing.T) {
	orch, fx, cleanup := setupOrchestrator(t)
	defer cleanup()
	ctx := context.Background()

	dir := filepath.Join(fx.tmp, "incoming", "code-review")
	mustWrite(t, filepath.Join(dir, "SKILL.md"), "---\nname: code-review\n---\n# Code Review\n")
	mustWrite(t, filepath.Join(dir, "commands", "review.md"), "# Review\n")

	first, err := orch.ImportArtifact(ctx, ImportRequest{Path: dir})
	if err != nil {
		t.Fatalf("first import: %v", err)
	}
	second, err := orch.ImportArtifact(ctx, ImportRequest{Path: dir})
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if second.Composite == nil || second.Composite.ID != first.Composite.ID {
		t.Fatalf("re-import changed composite: %+v then %+v", first.Composite, second.Composite)
	}
	members, err := orch.Store().ListCompositeMembers(ctx, first.Composite.ID)
	if err != nil {
		t.Fatalf("ListCompositeMembers: %v", err)
	}
	if len(members) != 1 {
		t.Errorf("composite has %d memberships after re-import, want 1", len(members))
	}
}

func TestImportInfersSkillFromLayout(t *testing.T) {
	orch, fx, cleanup := setupOrchestrator(t)
	defer cleanup()
	ctx := context.Background()

	dir := filepath.Join(fx.tmp, "incoming", "code-review")
	mustWrite(t, filepath.Join(dir, "SKILL.md"), "---\nname: code-review\n---\n# Code Review\n")
	mustWrite(t, filepath.Join(dir, "commands", "review.md"), "# Review\n")

	out, err := orch.ImportArtifact(ctx, ImportRequest{Path: dir})
	if err != nil {
		t.Fatalf("ImportArtifact: %v", err)
	}
	if out.Artifact == nil || out.Artifact.Type != types.TypeSkill {
		t.Fatalf("artifact = %+v, want skill", out.Artifact)
	}
	if out.Composite == nil || len(out.Children) != 1 {
		t.Fatalf("composite = %v children = %d, want embedded command recorded", out.Composite, len(out.Children))
	}
	if !fileExists(filepath.Join(fx.col.Root, "artifacts", "skills", "code-review", "SKILL.md")) {
		t.Error("skill not materialized at canonical path")
	}
}

func TestImportRejectsAmbiguousShape(t *testing.T) {
	orch, fx, cleanup := setupOrchestrator(t)
	defer cleanup()

	src := filepath.Join(fx.tmp, "incoming", "notes.md")
	mustWrite(t, src, "just a file\n")

	_, err := orch.ImportArtifact(context.Background(), ImportRequest{Path: src})
	if types.Kind(err) != types.KindValidation {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestDeployRegistersProject(t *testing.T) {
	orch, fx, cleanup := setupOrchestrator(t)
	defer cleanup()
	ctx := context.Background()
	evs := collectEvents(orch)

	src := filepath.Join(fx.tmp, "incoming", "review.md")
	mustWrite(t, src, "# Review\n")
	imported, err := orch.ImportArtifact(ctx, ImportRequest{Path: src, Type: types.TypeCommand})
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	out, err := orch.Deploy(ctx, DeployRequest{ArtifactUUID: imported.Artifact.UUID, ProjectPath: fx.project})
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if out.Result == nil || len(out.Result.Applied) != 1 {
		t.Fatalf("result = %+v, want one applied target", out.Result)
	}
	if got := mustRead(t, filepath.Join(fx.project, ".claude", "commands", "review.md")); got != "# Review\n" {
		t.Errorf("deployed content = %q", got)
	}
	if !hasEvent(*evs, events.EntityProject, events.KindCreated) {
		t.Error("deploy into a fresh path should emit project creation")
	}
	if !hasEvent(*evs, events.EntityDeployment, events.KindDeployed) {
		t.Error("no deployed event emitted")
	}

	deps, err := orch.Status(ctx, fx.project)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(deps) != 1 {
		t.Fatalf("deployments = %d, want 1", len(deps))
	}
}

func TestDeployDryRunTouchesNothing(t *testing.T) {
	orch, fx, cleanup := setupOrchestrator(t)
	defer cleanup()
	ctx := context.Background()

	src := filepath.Join(fx.tmp, "incoming", "review.md")
	mustWrite(t, src, "# Review\n")
	imported, err := orch.ImportArtifact(ctx, ImportRequest{Path: src, Type: types.TypeCommand})
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	out, err := orch.Deploy(ctx, DeployRequest{ArtifactUUID: imported.Artifact.UUID, ProjectPath: fx.project, DryRun: true})
	if err != nil {
		t.Fatalf("Deploy dry-run: %v", err)
	}
	if out.Result != nil {
		t.Error("dry run returned an apply result")
	}
	if out.Plan == nil || len(out.Plan.Targets) != 1 {
		t.Fatalf("plan = %+v, want one target", out.Plan)
	}
	if fileExists(filepath.Join(fx.project, ".claude")) {
		t.Error("dry run wrote into the project")
	}
}

func TestDeployRejectsMultipleTargets(t *testing.T) {
	orch, _, cleanup := setupOrchestrator(t)
	defer cleanup()

	_, err := orch.Deploy(context.Background(), DeployRequest{ArtifactUUID: "a", SetID: "s", ProjectPath: "p"})
	if types.Kind(err) != types.KindValidation {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestUndeployRemovesFiles(t *testing.T) {
	orch, fx, cleanup := setupOrchestrator(t)
	defer cleanup()
	ctx := context.Background()

	src := filepath.Join(fx.tmp, "incoming", "review.md")
	mustWrite(t, src, "# Review\n")
	imported, err := orch.ImportArtifact(ctx, ImportRequest{Path: src, Type: types.TypeCommand})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if _, err := orch.Deploy(ctx, DeployRequest{ArtifactUUID: imported.Artifact.UUID, ProjectPath: fx.project}); err != nil {
		t.Fatalf("deploy: %v", err)
	}

	if err := orch.Undeploy(ctx, imported.Artifact.UUID, fx.project, ""); err != nil {
		t.Fatalf("Undeploy: %v", err)
	}
	if fileExists(filepath.Join(fx.project, ".claude", "commands", "review.md")) {
		t.Error("undeploy left the target behind")
	}
	deps, err := orch.Status(ctx, fx.project)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(deps) != 0 {
		t.Errorf("deployments = %d, want 0", len(deps))
	}
}

func TestDeleteSkillSalvagesEmbeddedChildren(t *testing.T) {
	orch, fx, cleanup := setupOrchestrator(t)
	defer cleanup()
	ctx := context.Background()

	dir := filepath.Join(fx.tmp, "incoming", "code-review")
	mustWrite(t, filepath.Join(dir, "SKILL.md"), "---\nname: code-review\n---\n# Code Review\n")
	mustWrite(t, filepath.Join(dir, "commands", "review.md"), "# Review\nShip it.\n")

	out, err := orch.ImportArtifact(ctx, ImportRequest{Path: dir})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	child := out.Children[0].Artifact

	if err := orch.DeleteArtifact(ctx, out.Artifact.UUID); err != nil {
		t.Fatalf("DeleteArtifact: %v", err)
	}

	if fileExists(filepath.Join(fx.col.Root, "artifacts", "skills", "code-review")) {
		t.Error("skill directory survived deletion")
	}
	salvaged, err := fx.store.GetArtifact(ctx, child.UUID)
	if err != nil {
		t.Fatalf("child row gone after parent delete: %v", err)
	}
	if salvaged.Metadata["source_path"] != "" {
		t.Errorf("child still points into the deleted parent: %q", salvaged.Metadata["source_path"])
	}
	if got := mustRead(t, filepath.Join(fx.col.Root, "artifacts", "commands", "review.md")); got != "# Review\nShip it.\n" {
		t.Errorf("salvaged content = %q", got)
	}
	if _, err := fx.store.FindCompositeForArtifact(ctx, out.Artifact.UUID); !types.IsNotFound(err) {
		t.Errorf("companion composite should be gone, got %v", err)
	}
}

func TestUpdateArtifactRenameMovesFiles(t *testing.T) {
	orch, fx, cleanup := setupOrchestrator(t)
	defer cleanup()
	ctx := context.Background()

	src := filepath.Join(fx.tmp, "incoming", "review.md")
	mustWrite(t, src, "# Review\n")
	imported, err := orch.ImportArtifact(ctx, ImportRequest{Path: src, Type: types.TypeCommand})
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	name := "Code Review"
	updated, err := orch.UpdateArtifact(ctx, imported.Artifact.UUID, UpdateRequest{Name: &name})
	if err != nil {
		t.Fatalf("UpdateArtifact: %v", err)
	}
	if updated.Name != "code-review" {
		t.Errorf("name = %q, want canonicalized code-review", updated.Name)
	}
	if updated.PathPattern != ".claude/commands/code-review.md" {
		t.Errorf("path pattern = %q", updated.PathPattern)
	}
	if !fileExists(filepath.Join(fx.col.Root, "artifacts", "commands", "code-review.md")) {
		t.Error("renamed file missing")
	}
	if fileExists(filepath.Join(fx.col.Root, "artifacts", "commands", "review.md")) {
		t.Error("old file still present after rename")
	}
}

func TestDoctorReportsAndFixesLedger(t *testing.T) {
	orch, fx, cleanup := setupOrchestrator(t)
	defer cleanup()
	ctx := context.Background()

	src := filepath.Join(fx.tmp, "incoming", "review.md")
	mustWrite(t, src, "# Review\n")
	imported, err := orch.ImportArtifact(ctx, ImportRequest{Path: src, Type: types.TypeCommand})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if _, err := orch.Deploy(ctx, DeployRequest{ArtifactUUID: imported.Artifact.UUID, ProjectPath: fx.project}); err != nil {
		t.Fatalf("deploy: %v", err)
	}

	// Lose the ledger; the deployment row is now unaccounted for.
	if err := os.Remove(filepath.Join(fx.project, ".skillmeat-deployed.toml")); err != nil {
		t.Fatalf("remove ledger: %v", err)
	}

	report, err := orch.Doctor(ctx, fx.project, false)
	if err != nil {
		t.Fatalf("Doctor: %v", err)
	}
	if len(report.Findings) != 1 || report.Findings[0].Issue != "missing_from_ledger" {
		t.Fatalf("findings = %+v, want one missing_from_ledger", report.Findings)
	}
	if report.Fixed {
		t.Error("report-only run claims to have fixed")
	}

	report, err = orch.Doctor(ctx, fx.project, true)
	if err != nil {
		t.Fatalf("Doctor --fix: %v", err)
	}
	if !report.Fixed {
		t.Fatal("fix run did not rewrite the ledger")
	}
	report, err = orch.Doctor(ctx, fx.project, false)
	if err != nil {
		t.Fatalf("Doctor after fix: %v", err)
	}
	if len(report.Findings) != 0 {
		t.Errorf("findings after fix = %+v, want none", report.Findings)
	}
}

func TestSetLifecycleKeepsMembers(t *testing.T) {
	orch, fx, cleanup := setupOrchestrator(t)
	defer cleanup()
	ctx := context.Background()

	var uuids []string
	for _, name := range []string{"alpha", "beta"} {
		src := filepath.Join(fx.tmp, "incoming", name+".md")
		mustWrite(t, src, "# "+name+"\n")
		out, err := orch.ImportArtifact(ctx, ImportRequest{Path: src, Type: types.TypeCommand})
		if err != nil {
			t.Fatalf("import %s: %v", name, err)
		}
		uuids = append(uuids, out.Artifact.UUID)
	}

	set, err := orch.CreateSet(ctx, "", "base", "baseline tooling")
	if err != nil {
		t.Fatalf("CreateSet: %v", err)
	}
	if set.OwnerID != types.LocalOwner {
		t.Errorf("owner = %q, want local fallback", set.OwnerID)
	}
	for i, uuid := range uuids {
		m := &types.SetMember{SetID: set.ID, Kind: types.MemberArtifact, ArtifactUUID: uuid, Position: float64(i)}
		if err := orch.AddSetMember(ctx, m); err != nil {
			t.Fatalf("AddSetMember: %v", err)
		}
	}

	arts, err := orch.ResolveSet(ctx, set.ID)
	if err != nil {
		t.Fatalf("ResolveSet: %v", err)
	}
	if len(arts) != 2 || arts[0].Name != "alpha" || arts[1].Name != "beta" {
		t.Fatalf("resolved %d artifacts in wrong order", len(arts))
	}

	if err := orch.DeleteSet(ctx, set.ID); err != nil {
		t.Fatalf("DeleteSet: %v", err)
	}
	for _, uuid := range uuids {
		if _, err := fx.store.GetArtifact(ctx, uuid); err != nil {
			t.Errorf("member artifact %s deleted with the set: %v", uuid, err)
		}
	}
	if _, err := fx.store.GetSet(ctx, set.ID); !types.IsNotFound(err) {
		t.Errorf("set should be gone, got %v", err)
	}
}

func TestSetDeployAppliesAllMembers(t *testing.T) {
	orch, fx, cleanup := setupOrchestrator(t)
	defer cleanup()
	ctx := context.Background()

	var uuids []string
	for _, name := range []string{"alpha", "beta"} {
		src := filepath.Join(fx.tmp, "incoming", name+".md")
		mustWrite(t, src, "# "+name+"\n")
		out, err := orch.ImportArtifact(ctx, ImportRequest{Path: src, Type: types.TypeCommand})
		if err != nil {
			t.Fatalf("import %s: %v", name, err)
		}
		uuids = append(uuids, out.Artifact.UUID)
	}
	set, err := orch.CreateSet(ctx, "", "base", "")
	if err != nil {
		t.Fatalf("CreateSet: %v", err)
	}
	for i, uuid := range uuids {
		if err := orch.AddSetMember(ctx, &types.SetMember{SetID: set.ID, Kind: types.MemberArtifact, ArtifactUUID: uuid, Position: float64(i)}); err != nil {
			t.Fatalf("AddSetMember: %v", err)
		}
	}

	out, err := orch.Deploy(ctx, DeployRequest{SetID: set.ID, ProjectPath: fx.project})
	if err != nil {
		t.Fatalf("Deploy set: %v", err)
	}
	if len(out.Result.Applied) != 2 {
		t.Fatalf("applied = %d, want 2", len(out.Result.Applied))
	}
	if out.Result.PreSnapshot == nil || out.Result.PostSnapshot == nil {
		t.Error("multi-target deploy should bracket with snapshots")
	}
	for _, name := range []string{"alpha", "beta"} {
		if !fileExists(filepath.Join(fx.project, ".claude", "commands", name+".md")) {
			t.Errorf("%s not deployed", name)
		}
	}
}

func TestPromoteMemoryLadder(t *testing.T) {
	orch, fx, cleanup := setupOrchestrator(t)
	defer cleanup()
	ctx := context.Background()

	project := &types.Project{Name: "demo", Path: fx.project}
	if err := fx.store.CreateProject(ctx, project); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	item := &types.MemoryItem{ProjectID: project.ID, Type: types.MemoryDecision, Content: "Use sqlite.", Confidence: 0.9}
	if err := fx.store.CreateMemoryItem(ctx, item); err != nil {
		t.Fatalf("seed item: %v", err)
	}

	promoted, err := orch.PromoteMemory(ctx, item.ID)
	if err != nil {
		t.Fatalf("promote candidate: %v", err)
	}
	if promoted.Status != types.MemoryActive {
		t.Fatalf("status = %s, want active", promoted.Status)
	}
	promoted, err = orch.PromoteMemory(ctx, item.ID)
	if err != nil {
		t.Fatalf("promote active: %v", err)
	}
	if promoted.Status != types.MemoryStable {
		t.Fatalf("status = %s, want stable", promoted.Status)
	}
	if _, err := orch.PromoteMemory(ctx, item.ID); types.Kind(err) != types.KindValidation {
		t.Fatalf("promoting stable should fail validation, got %v", err)
	}

	if err := orch.DeprecateMemory(ctx, item.ID); err != nil {
		t.Fatalf("deprecate: %v", err)
	}
	got, err := fx.store.GetMemoryItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got.Status != types.MemoryDeprecated || got.DeprecatedAt == nil {
		t.Errorf("item = %s/%v, want deprecated with timestamp", got.Status, got.DeprecatedAt)
	}
}

func TestMergeMemoryAbsorbsAnchors(t *testing.T) {
	orch, fx, cleanup := setupOrchestrator(t)
	defer cleanup()
	ctx := context.Background()

	project := &types.Project{Name: "demo", Path: fx.project}
	if err := fx.store.CreateProject(ctx, project); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	target := &types.MemoryItem{ProjectID: project.ID, Type: types.MemoryStyleRule, Content: "Tabs for indentation.", Confidence: 0.8, Anchors: []string{"internal/"}}
	source := &types.MemoryItem{ProjectID: project.ID, Type: types.MemoryStyleRule, Content: "Indent with tabs.", Confidence: 0.6, Anchors: []string{"internal/", "cmd/"}}
	for _, m := range []*types.MemoryItem{target, source} {
		if err := fx.store.CreateMemoryItem(ctx, m); err != nil {
			t.Fatalf("seed item: %v", err)
		}
	}

	merged, err := orch.MergeMemory(ctx, target.ID, []string{source.ID})
	if err != nil {
		t.Fatalf("MergeMemory: %v", err)
	}
	if len(merged.Anchors) != 2 {
		t.Errorf("anchors = %v, want internal/ and cmd/", merged.Anchors)
	}
	src, err := fx.store.GetMemoryItem(ctx, source.ID)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if src.Status != types.MemoryDeprecated {
		t.Errorf("source status = %s, want deprecated", src.Status)
	}

	if _, err := orch.MergeMemory(ctx, target.ID, []string{target.ID}); types.Kind(err) != types.KindValidation {
		t.Errorf("self-merge should fail validation, got %v", err)
	}
}

func TestPackContextSelectors(t *testing.T) {
	orch, fx, cleanup := setupOrchestrator(t)
	defer cleanup()
	ctx := context.Background()

	project := &types.Project{Name: "demo", Path: fx.project}
	if err := fx.store.CreateProject(ctx, project); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	for i := 0; i < 3; i++ {
		item := &types.MemoryItem{
			ProjectID:  project.ID,
			Type:       types.MemoryDecision,
			Content:    "Decision number " + string(rune('a'+i)) + ": keep it simple and explicit.",
			Confidence: 0.9,
			Status:     types.MemoryActive,
		}
		if err := fx.store.CreateMemoryItem(ctx, item); err != nil {
			t.Fatalf("seed item %d: %v", i, err)
		}
	}

	pack, err := orch.PackContext(ctx, PackRequest{ProjectPath: fx.project, Budget: 40})
	if err != nil {
		t.Fatalf("PackContext: %v", err)
	}
	if pack.TotalTokens > 40 {
		t.Errorf("pack exceeds budget: %d tokens", pack.TotalTokens)
	}
	if len(pack.Items) == 0 {
		t.Error("pack is empty despite active items under budget")
	}

	if _, err := orch.PackContext(ctx, PackRequest{ProjectPath: fx.project, Budget: 0}); types.Kind(err) != types.KindValidation {
		t.Errorf("zero budget should fail validation, got %v", err)
	}
}

func TestPackContextByModule(t *testing.T) {
	orch, fx, cleanup := setupOrchestrator(t)
	defer cleanup()
	ctx := context.Background()

	project := &types.Project{Name: "demo", Path: fx.project}
	if err := fx.store.CreateProject(ctx, project); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	item := &types.MemoryItem{ProjectID: project.ID, Type: types.MemoryDecision, Content: "Ship small.", Confidence: 0.4, Status: types.MemoryActive}
	if err := fx.store.CreateMemoryItem(ctx, item); err != nil {
		t.Fatalf("seed item: %v", err)
	}

	mod, err := orch.CreateContextModule(ctx, fx.project, &types.ContextModule{Name: "planning", MemberIDs: []string{item.ID}})
	if err != nil {
		t.Fatalf("CreateContextModule: %v", err)
	}
	if mod.ProjectID != project.ID {
		t.Errorf("module project = %q, want %q", mod.ProjectID, project.ID)
	}

	pack, err := orch.PackContext(ctx, PackRequest{ProjectPath: fx.project, ModuleName: "planning", Budget: 1000})
	if err != nil {
		t.Fatalf("PackContext module: %v", err)
	}
	if len(pack.Items) != 1 || pack.Items[0].ID != item.ID {
		t.Fatalf("packed %d items, want the pinned member", len(pack.Items))
	}

	if _, err := orch.PackContext(ctx, PackRequest{ProjectPath: fx.project, ModuleName: "missing", Budget: 100}); !types.IsNotFound(err) {
		t.Errorf("unknown module should be not found, got %v", err)
	}
}

func TestSnapshotRollbackRoundTrip(t *testing.T) {
	orch, fx, cleanup := setupOrchestrator(t)
	defer cleanup()
	ctx := context.Background()

	src := filepath.Join(fx.tmp, "incoming", "review.md")
	mustWrite(t, src, "# Review v1\n")
	imported, err := orch.ImportArtifact(ctx, ImportRequest{Path: src, Type: types.TypeCommand})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	_ = imported

	scope := types.CollectionScope(fx.col.ID)
	snap, err := orch.CreateSnapshot(ctx, scope, "")
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	if snap.Reason != types.SnapshotManual {
		t.Errorf("reason = %s, want manual default", snap.Reason)
	}

	canonical := filepath.Join(fx.col.Root, "artifacts", "commands", "review.md")
	mustWrite(t, canonical, "# Review v2, edited in place\n")

	if _, err := orch.Rollback(ctx, snap.ID); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if got := mustRead(t, canonical); got != "# Review v1\n" {
		t.Errorf("content after rollback = %q, want v1", got)
	}

	snaps, err := orch.ListSnapshots(ctx, scope, types.Page{})
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(snaps) < 3 {
		// import auto-snapshot, manual snapshot, compensating pre-rollback
		t.Errorf("snapshots = %d, want at least 3", len(snaps))
	}
}

func TestProjectRollbackRevertsDeploymentHashes(t *testing.T) {
	orch, fx, cleanup := setupOrchestrator(t)
	defer cleanup()
	ctx := context.Background()

	src := filepath.Join(fx.tmp, "incoming", "review.md")
	mustWrite(t, src, "# Review v1\n")
	imported, err := orch.ImportArtifact(ctx, ImportRequest{Path: src, Type: types.TypeCommand})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	uuid := imported.Artifact.UUID

	if _, err := orch.Deploy(ctx, DeployRequest{ArtifactUUID: uuid, ProjectPath: fx.project}); err != nil {
		t.Fatalf("deploy v1: %v", err)
	}
	project, err := orch.Store().GetProjectByPath(ctx, fx.project)
	if err != nil {
		t.Fatalf("GetProjectByPath: %v", err)
	}
	v1, err := orch.Store().GetDeployment(ctx, uuid, project.ID, deploy.DefaultProfile)
	if err != nil {
		t.Fatalf("GetDeployment v1: %v", err)
	}

	pre, err := orch.CreateSnapshot(ctx, types.ProjectScope(project.ID), "")
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}

	mustWrite(t, src, "# Review v2\nNow with steps.\n")
	if _, err := orch.UpdateArtifact(ctx, uuid, UpdateRequest{RefreshFrom: src}); err != nil {
		t.Fatalf("refresh to v2: %v", err)
	}
	if _, err := orch.Deploy(ctx, DeployRequest{ArtifactUUID: uuid, ProjectPath: fx.project}); err != nil {
		t.Fatalf("deploy v2: %v", err)
	}
	v2, err := orch.Store().GetDeployment(ctx, uuid, project.ID, deploy.DefaultProfile)
	if err != nil {
		t.Fatalf("GetDeployment v2: %v", err)
	}
	if v2.SourceContentHash == v1.SourceContentHash {
		t.Fatal("redeploy did not change the recorded hash")
	}

	comp, err := orch.Rollback(ctx, pre.ID)
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	deployed := filepath.Join(fx.project, ".claude", "commands", "review.md")
	if got := mustRead(t, deployed); got != "# Review v1\n" {
		t.Errorf("deployed content after rollback = %q, want v1", got)
	}
	reverted, err := orch.Store().GetDeployment(ctx, uuid, project.ID, deploy.DefaultProfile)
	if err != nil {
		t.Fatalf("GetDeployment after rollback: %v", err)
	}
	if reverted.SourceContentHash != v1.SourceContentHash {
		t.Errorf("deployment hash = %s, want pre-snapshot %s", reverted.SourceContentHash, v1.SourceContentHash)
	}
	deps, err := orch.Status(ctx, fx.project)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(deps) != 1 || deps[0].IsModified {
		t.Errorf("status after rollback = %+v, want one unmodified deployment", deps)
	}

	// The compensating snapshot reproduces the v2 state, rows included.
	if _, err := orch.Rollback(ctx, comp.ID); err != nil {
		t.Fatalf("rollback of compensator: %v", err)
	}
	if got := mustRead(t, deployed); got != "# Review v2\nNow with steps.\n" {
		t.Errorf("deployed content after compensator rollback = %q, want v2", got)
	}
	restored, err := orch.Store().GetDeployment(ctx, uuid, project.ID, deploy.DefaultProfile)
	if err != nil {
		t.Fatalf("GetDeployment after compensator: %v", err)
	}
	if restored.SourceContentHash != v2.SourceContentHash {
		t.Errorf("deployment hash = %s, want post-deploy %s", restored.SourceContentHash, v2.SourceContentHash)
	}
}

func TestExtractMemoryPreviewAndApply(t *testing.T) {
	orch, fx, cleanup := setupOrchestrator(t)
	defer cleanup()
	ctx := context.Background()

	transcript := []byte("We decided to use sqlite for all local state because it is robust.\n\n" +
		"Always run the linter before committing changes to this repository.\n")

	preview, err := orch.ExtractMemory(ctx, fx.project, transcript, false)
	if err != nil {
		t.Fatalf("ExtractMemory preview: %v", err)
	}
	if len(preview.Candidates) == 0 {
		t.Fatal("no candidates extracted from decision-bearing text")
	}
	if preview.Stored != 0 {
		t.Error("preview stored items")
	}

	applied, err := orch.ExtractMemory(ctx, fx.project, transcript, true)
	if err != nil {
		t.Fatalf("ExtractMemory apply: %v", err)
	}
	if applied.Stored == 0 {
		t.Fatal("apply stored nothing")
	}

	page, err := orch.ListMemory(ctx, fx.project, types.MemoryFilter{}, types.Page{})
	if err != nil {
		t.Fatalf("ListMemory: %v", err)
	}
	if len(page.Items) != applied.Stored {
		t.Errorf("listed %d items, apply reported %d", len(page.Items), applied.Stored)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
