package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/skillmeat/skillmeat/internal/types"
)

func TestSnapshotRoundTrip(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	snap := &types.Snapshot{
		Scope:           types.ArtifactScope("abc-123"),
		ContentHashRoot: "root-hash",
		Tree: map[string]string{
			"SKILL.md":     "hash-a",
			"ref/extra.md": "hash-b",
		},
		Reason: types.SnapshotPreSync,
		By:     "sync",
	}
	if err := store.CreateSnapshot(ctx, snap); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	if snap.ID == "" {
		t.Fatal("snapshot ID should be assigned")
	}

	got, err := store.GetSnapshot(ctx, snap.ID)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if diff := cmp.Diff(snap.Tree, got.Tree); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
	if got.Reason != types.SnapshotPreSync || got.By != "sync" {
		t.Errorf("got reason=%s by=%s", got.Reason, got.By)
	}
}

func TestListSnapshotsScopedNewestFirst(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	scope := types.ArtifactScope("target")
	for i := 0; i < 3; i++ {
		snap := &types.Snapshot{
			Scope:           scope,
			ContentHashRoot: fmt.Sprintf("root-%d", i),
			Reason:          types.SnapshotAuto,
			CreatedAt:       base.Add(time.Duration(i) * time.Hour),
		}
		if err := store.CreateSnapshot(ctx, snap); err != nil {
			t.Fatalf("CreateSnapshot %d: %v", i, err)
		}
	}
	other := &types.Snapshot{Scope: types.ProjectScope("prj-x"), ContentHashRoot: "other", CreatedAt: base}
	if err := store.CreateSnapshot(ctx, other); err != nil {
		t.Fatalf("CreateSnapshot other scope: %v", err)
	}

	snaps, err := store.ListSnapshots(ctx, scope, types.Page{})
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("snapshots = %d, want 3", len(snaps))
	}
	if snaps[0].ContentHashRoot != "root-2" {
		t.Errorf("first snapshot = %s, want newest (root-2)", snaps[0].ContentHashRoot)
	}

	limited, err := store.ListSnapshots(ctx, scope, types.Page{Limit: 1})
	if err != nil {
		t.Fatalf("ListSnapshots limited: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limited = %d, want 1", len(limited))
	}

	before, err := store.ListSnapshotsBefore(ctx, base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("ListSnapshotsBefore: %v", err)
	}
	// root-0, root-1, and the other-scope snapshot predate the cutoff.
	if len(before) != 3 {
		t.Errorf("before cutoff = %d, want 3", len(before))
	}

	if err := store.DeleteSnapshot(ctx, snaps[2].ID); err != nil {
		t.Fatalf("DeleteSnapshot: %v", err)
	}
	if _, err := store.GetSnapshot(ctx, snaps[2].ID); !types.IsNotFound(err) {
		t.Errorf("expected NotFoundError after delete, got %v", err)
	}
}

func TestContextModuleCRUD(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	p := seedProject(t, store)
	m := &types.ContextModule{
		ProjectID:     p.ID,
		Name:          "planning",
		MemoryTypes:   []types.MemoryType{types.MemoryDecision, types.MemoryConstraint},
		MinConfidence: 0.7,
		Stages:        []string{"planning"},
		Priority:      10,
	}
	if err := store.CreateContextModule(ctx, m); err != nil {
		t.Fatalf("CreateContextModule: %v", err)
	}

	got, err := store.GetContextModule(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetContextModule: %v", err)
	}
	if diff := cmp.Diff(m.MemoryTypes, got.MemoryTypes); diff != "" {
		t.Errorf("memory types mismatch (-want +got):\n%s", diff)
	}
	if got.MinConfidence != 0.7 || got.Priority != 10 {
		t.Errorf("got min_confidence=%v priority=%d", got.MinConfidence, got.Priority)
	}

	low := &types.ContextModule{ProjectID: p.ID, Name: "review", Priority: 1}
	if err := store.CreateContextModule(ctx, low); err != nil {
		t.Fatalf("CreateContextModule low: %v", err)
	}

	mods, err := store.ListContextModules(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListContextModules: %v", err)
	}
	if len(mods) != 2 || mods[0].Name != "planning" {
		t.Errorf("modules should order by priority desc, got %v", mods)
	}

	if err := store.DeleteContextModule(ctx, m.ID); err != nil {
		t.Fatalf("DeleteContextModule: %v", err)
	}
	if _, err := store.GetContextModule(ctx, m.ID); !types.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.SetMetadata(ctx, "ledger_hash", "abc"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if err := store.SetMetadata(ctx, "ledger_hash", "def"); err != nil {
		t.Fatalf("SetMetadata overwrite: %v", err)
	}

	got, err := store.GetMetadata(ctx, "ledger_hash")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if got != "def" {
		t.Errorf("value = %q, want def", got)
	}

	missing, err := store.GetMetadata(ctx, "absent")
	if err != nil {
		t.Fatalf("GetMetadata absent: %v", err)
	}
	if missing != "" {
		t.Errorf("absent key = %q, want empty", missing)
	}
}
