package contextpack

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/skillmeat/skillmeat/internal/storage/sqlite"
	"github.com/skillmeat/skillmeat/internal/types"
)

func setupPacker(t *testing.T) (*Packer, *sqlite.SQLiteStorage, *types.Project, func()) {
	t.Helper()
	ctx := context.Background()

	tmpDir, err := os.MkdirTemp("", "skillmeat-pack-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	store, err := sqlite.New(ctx, filepath.Join(tmpDir, "skillmeat.db"))
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to create storage: %v", err)
	}
	project := &types.Project{Name: "demo", Path: filepath.Join(tmpDir, "project")}
	if err := store.CreateProject(ctx, project); err != nil {
		store.Close()
		os.RemoveAll(tmpDir)
		t.Fatalf("seed project: %v", err)
	}
	return New(store, nil), store, project, func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}
}

func seedItem(t *testing.T, store *sqlite.SQLiteStorage, projectID string, typ types.MemoryType, content string, conf float64, status types.MemoryStatus, anchors ...string) *types.MemoryItem {
	t.Helper()
	item := &types.MemoryItem{
		ProjectID:  projectID,
		Type:       typ,
		Content:    content,
		Confidence: conf,
		Status:     status,
		Anchors:    anchors,
	}
	if err := store.CreateMemoryItem(context.Background(), item); err != nil {
		t.Fatalf("seed memory item: %v", err)
	}
	return item
}

func TestByteEstimator(t *testing.T) {
	cases := []struct {
		content string
		want    int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		if got := (ByteEstimator{}).Estimate(tc.content); got != tc.want {
			t.Errorf("Estimate(%d bytes) = %d, want %d", len(tc.content), got, tc.want)
		}
	}
}

func TestPackBudgetCompliance(t *testing.T) {
	packer, store, project, cleanup := setupPacker(t)
	defer cleanup()
	ctx := context.Background()

	// Each item costs 25 tokens (100 bytes).
	for i := 0; i < 10; i++ {
		conf := 0.90 - float64(i)*0.01
		seedItem(t, store, project.ID, types.MemoryDecision,
			strings.Repeat("abcd", 25-1)+"done", conf, types.MemoryActive)
	}

	pack, err := packer.Pack(ctx, project.ID, Selectors{}, 80)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if pack.TotalTokens > pack.Budget {
		t.Fatalf("pack exceeds budget: %d > %d", pack.TotalTokens, pack.Budget)
	}
	// 80-token budget fits three 25-token items.
	if len(pack.Items) != 3 {
		t.Fatalf("expected 3 items under budget 80, got %d", len(pack.Items))
	}
	if pack.Skipped != 7 {
		t.Errorf("expected 7 skipped, got %d", pack.Skipped)
	}
}

func TestPackIsPrefixOfRankedList(t *testing.T) {
	packer, store, project, cleanup := setupPacker(t)
	defer cleanup()
	ctx := context.Background()

	seedItem(t, store, project.ID, types.MemoryGotcha, "low confidence but tiny", 0.60, types.MemoryActive)
	seedItem(t, store, project.ID, types.MemoryGotcha, strings.Repeat("big high-confidence entry ", 10), 0.95, types.MemoryActive)
	seedItem(t, store, project.ID, types.MemoryGotcha, "medium confidence middle entry", 0.80, types.MemoryActive)

	// Budget fits the top item plus the middle one; the low item would also
	// fit by size but must not jump the queue once a higher-ranked item
	// ended the pack.
	big := (ByteEstimator{}).Estimate(strings.Repeat("big high-confidence entry ", 10))
	mid := (ByteEstimator{}).Estimate("medium confidence middle entry")
	pack, err := packer.Pack(ctx, project.ID, Selectors{}, big+mid)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if len(pack.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(pack.Items))
	}
	if pack.Items[0].Confidence < pack.Items[1].Confidence {
		t.Error("pack not ordered by confidence desc")
	}
	for _, it := range pack.Items {
		if it.Confidence == 0.60 {
			t.Error("lower-ranked item included ahead of rank order")
		}
	}
}

func TestPackDeterminism(t *testing.T) {
	packer, store, project, cleanup := setupPacker(t)
	defer cleanup()
	ctx := context.Background()

	ts := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		item := &types.MemoryItem{
			ProjectID:  project.ID,
			Type:       types.MemoryLearning,
			Content:    strings.Repeat("entry ", i+1) + "tail",
			Confidence: 0.75,
			Status:     types.MemoryActive,
			CreatedAt:  ts,
			UpdatedAt:  ts,
		}
		if err := store.CreateMemoryItem(ctx, item); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	first, err := packer.Pack(ctx, project.ID, Selectors{}, 50)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	second, err := packer.Pack(ctx, project.ID, Selectors{}, 50)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("same inputs produced different packs (-first +second):\n%s", diff)
	}
	if first.Render() != second.Render() {
		t.Error("rendering is not deterministic")
	}
}

func TestPackFiltersStatusAndType(t *testing.T) {
	packer, store, project, cleanup := setupPacker(t)
	defer cleanup()
	ctx := context.Background()

	seedItem(t, store, project.ID, types.MemoryDecision, "use sqlite for the cache", 0.9, types.MemoryActive)
	seedItem(t, store, project.ID, types.MemoryDecision, "still just a candidate", 0.9, types.MemoryCandidate)
	seedItem(t, store, project.ID, types.MemoryGotcha, "watch the WAL checkpoint", 0.9, types.MemoryStable)
	deprecated := seedItem(t, store, project.ID, types.MemoryGotcha, "obsolete advice", 0.9, types.MemoryActive)
	if err := store.UpdateMemoryStatus(ctx, deprecated.ID, types.MemoryDeprecated); err != nil {
		t.Fatalf("deprecate: %v", err)
	}

	pack, err := packer.Pack(ctx, project.ID, Selectors{}, 1000)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if len(pack.Items) != 2 {
		t.Fatalf("expected active+stable only (2 items), got %d", len(pack.Items))
	}

	decOnly, err := packer.Pack(ctx, project.ID, Selectors{Types: []types.MemoryType{types.MemoryDecision}}, 1000)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if len(decOnly.Items) != 1 || decOnly.Items[0].Type != types.MemoryDecision {
		t.Fatalf("type filter failed: %+v", decOnly.Items)
	}
}

func TestPackAnchorSelection(t *testing.T) {
	packer, store, project, cleanup := setupPacker(t)
	defer cleanup()
	ctx := context.Background()

	seedItem(t, store, project.ID, types.MemoryConstraint, "auth tokens expire hourly", 0.9, types.MemoryActive, "src/auth/session.go")
	seedItem(t, store, project.ID, types.MemoryConstraint, "db layer owns retries", 0.9, types.MemoryActive, "src/db/pool.go")
	seedItem(t, store, project.ID, types.MemoryConstraint, "applies everywhere", 0.9, types.MemoryActive)

	pack, err := packer.Pack(ctx, project.ID, Selectors{Anchors: []string{"src/auth"}}, 1000)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	var contents []string
	for _, it := range pack.Items {
		contents = append(contents, it.Content)
	}
	if len(pack.Items) != 2 {
		t.Fatalf("expected anchored auth item + unanchored item, got %v", contents)
	}
	for _, c := range contents {
		if c == "db layer owns retries" {
			t.Error("db-anchored item matched an auth selector")
		}
	}
}

func TestPackModuleExplicitMembers(t *testing.T) {
	packer, store, project, cleanup := setupPacker(t)
	defer cleanup()
	ctx := context.Background()

	// Below the module's confidence floor, but listed explicitly.
	pinned := seedItem(t, store, project.ID, types.MemoryLearning, "pinned low-confidence note", 0.58, types.MemoryActive)
	seedItem(t, store, project.ID, types.MemoryLearning, "high confidence note", 0.91, types.MemoryActive)
	seedItem(t, store, project.ID, types.MemoryLearning, "filtered out note", 0.59, types.MemoryActive)

	mod := &types.ContextModule{
		ProjectID:     project.ID,
		Name:          "review",
		MemoryTypes:   []types.MemoryType{types.MemoryLearning},
		MinConfidence: 0.85,
		MemberIDs:     []string{pinned.ID, "mem_gone"},
	}
	if err := store.CreateContextModule(ctx, mod); err != nil {
		t.Fatalf("create module: %v", err)
	}

	pack, err := packer.PackModule(ctx, project.ID, mod.ID, 1000)
	if err != nil {
		t.Fatalf("PackModule: %v", err)
	}
	if pack.ModuleID != mod.ID {
		t.Errorf("pack module id = %q, want %q", pack.ModuleID, mod.ID)
	}
	found := map[string]bool{}
	for _, it := range pack.Items {
		found[it.Content] = true
	}
	if !found["pinned low-confidence note"] {
		t.Error("explicit member missing from pack")
	}
	if !found["high confidence note"] {
		t.Error("selector match missing from pack")
	}
	if found["filtered out note"] {
		t.Error("item below confidence floor leaked into pack")
	}
}

func TestPackStageMergesModules(t *testing.T) {
	packer, store, project, cleanup := setupPacker(t)
	defer cleanup()
	ctx := context.Background()

	seedItem(t, store, project.ID, types.MemoryDecision, "review stage decision", 0.9, types.MemoryActive)
	seedItem(t, store, project.ID, types.MemoryGotcha, "always-on gotcha", 0.9, types.MemoryActive)
	seedItem(t, store, project.ID, types.MemoryStyleRule, "ship stage style", 0.9, types.MemoryActive)

	mods := []*types.ContextModule{
		{ProjectID: project.ID, Name: "review", MemoryTypes: []types.MemoryType{types.MemoryDecision}, Stages: []string{"review"}},
		{ProjectID: project.ID, Name: "always", MemoryTypes: []types.MemoryType{types.MemoryGotcha}},
		{ProjectID: project.ID, Name: "ship", MemoryTypes: []types.MemoryType{types.MemoryStyleRule}, Stages: []string{"ship"}},
	}
	for _, m := range mods {
		if err := store.CreateContextModule(ctx, m); err != nil {
			t.Fatalf("create module %s: %v", m.Name, err)
		}
	}

	pack, err := packer.PackStage(ctx, project.ID, "review", 1000)
	if err != nil {
		t.Fatalf("PackStage: %v", err)
	}
	found := map[types.MemoryType]bool{}
	for _, it := range pack.Items {
		found[it.Type] = true
	}
	if !found[types.MemoryDecision] || !found[types.MemoryGotcha] {
		t.Errorf("expected review + always-on modules in pack, got %v", found)
	}
	if found[types.MemoryStyleRule] {
		t.Error("ship-stage module leaked into review pack")
	}
}

func TestPackRejectsNonPositiveBudget(t *testing.T) {
	packer, _, project, cleanup := setupPacker(t)
	defer cleanup()

	_, err := packer.Pack(context.Background(), project.ID, Selectors{}, 0)
	if err == nil {
		t.Fatal("expected validation error for zero budget")
	}
	if types.Kind(err) != types.KindValidation {
		t.Errorf("expected validation kind, got %v", types.Kind(err))
	}
}

func TestRenderGroupsByType(t *testing.T) {
	pack := &Pack{
		Budget:      100,
		TotalTokens: 12,
		Items: []Item{
			{ID: "mem_1", Type: types.MemoryDecision, Content: "choose sqlite", Confidence: 0.9, Tokens: 4},
			{ID: "mem_2", Type: types.MemoryDecision, Content: "pin go 1.24", Confidence: 0.8, Tokens: 4},
			{ID: "mem_3", Type: types.MemoryGotcha, Content: "WAL needs checkpoints", Confidence: 0.7, Tokens: 4},
		},
	}
	out := pack.Render()
	if !strings.Contains(out, "## Decisions") || !strings.Contains(out, "## Gotchas") {
		t.Errorf("missing type headings:\n%s", out)
	}
	if strings.Index(out, "choose sqlite") > strings.Index(out, "WAL needs checkpoints") {
		t.Error("items rendered out of rank order")
	}
	if !strings.Contains(out, "12/100 tokens") {
		t.Errorf("missing token header:\n%s", out)
	}
}
