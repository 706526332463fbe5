package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/skillmeat/skillmeat/internal/types"
)

func seedProject(t *testing.T, store *SQLiteStorage) *types.Project {
	t.Helper()

	p := &types.Project{Name: "webapp", Path: "/tmp/webapp"}
	if err := store.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return p
}

func TestProjectPathConflict(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	p := seedProject(t, store)

	dup := &types.Project{Name: "webapp-again", Path: "/tmp/webapp"}
	err := store.CreateProject(ctx, dup)
	var conflict *types.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.ExistingID != p.ID {
		t.Errorf("ExistingID = %s, want %s", conflict.ExistingID, p.ID)
	}

	got, err := store.GetProjectByPath(ctx, "/tmp/webapp")
	if err != nil {
		t.Fatalf("GetProjectByPath: %v", err)
	}
	if got.ID != p.ID {
		t.Errorf("by path = %s, want %s", got.ID, p.ID)
	}
}

func TestDeploymentUpsertAndStats(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	col := seedCollection(t, store)
	p := seedProject(t, store)
	a := testArtifact(col.ID, "deployable", types.TypeSkill)
	if err := store.CreateArtifact(ctx, a); err != nil {
		t.Fatalf("CreateArtifact: %v", err)
	}

	d := &types.Deployment{
		ArtifactUUID:      a.UUID,
		ProjectID:         p.ID,
		SourceContentHash: "hash-v1",
		DeployedPath:      ".claude/skills/deployable",
	}
	if err := store.UpsertDeployment(ctx, d); err != nil {
		t.Fatalf("UpsertDeployment: %v", err)
	}
	if d.ProfileID != "claude" {
		t.Errorf("profile defaulted to %q, want claude", d.ProfileID)
	}

	// Re-deploying the same identity updates in place.
	d2 := &types.Deployment{
		ArtifactUUID:      a.UUID,
		ProjectID:         p.ID,
		SourceContentHash: "hash-v2",
		DeployedPath:      ".claude/skills/deployable",
	}
	if err := store.UpsertDeployment(ctx, d2); err != nil {
		t.Fatalf("UpsertDeployment again: %v", err)
	}

	deps, err := store.ListDeploymentsByProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListDeploymentsByProject: %v", err)
	}
	if len(deps) != 1 {
		t.Fatalf("deployments = %d, want 1", len(deps))
	}
	if deps[0].SourceContentHash != "hash-v2" {
		t.Errorf("hash = %s, want hash-v2", deps[0].SourceContentHash)
	}

	if err := store.RefreshProjectStats(ctx, p.ID); err != nil {
		t.Fatalf("RefreshProjectStats: %v", err)
	}
	got, err := store.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.DeploymentCount != 1 {
		t.Errorf("DeploymentCount = %d, want 1", got.DeploymentCount)
	}
	if got.LastDeployment == nil {
		t.Error("LastDeployment should be set")
	}

	if err := store.DeleteDeployment(ctx, a.UUID, p.ID, "claude"); err != nil {
		t.Fatalf("DeleteDeployment: %v", err)
	}
	if err := store.RefreshProjectStats(ctx, p.ID); err != nil {
		t.Fatalf("RefreshProjectStats after delete: %v", err)
	}
	got, err = store.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProject after delete: %v", err)
	}
	if got.DeploymentCount != 0 {
		t.Errorf("DeploymentCount = %d, want 0", got.DeploymentCount)
	}
}

func TestDeploymentDistinctProfiles(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	col := seedCollection(t, store)
	p := seedProject(t, store)
	a := testArtifact(col.ID, "multi-profile", types.TypeSkill)
	if err := store.CreateArtifact(ctx, a); err != nil {
		t.Fatalf("CreateArtifact: %v", err)
	}

	for _, profile := range []string{"claude", "cursor"} {
		d := &types.Deployment{
			ArtifactUUID:      a.UUID,
			ProjectID:         p.ID,
			ProfileID:         profile,
			SourceContentHash: "hash",
			DeployedPath:      profile + "/skills/multi-profile",
		}
		if err := store.UpsertDeployment(ctx, d); err != nil {
			t.Fatalf("UpsertDeployment %s: %v", profile, err)
		}
	}

	deps, err := store.ListDeploymentsByArtifact(ctx, a.UUID)
	if err != nil {
		t.Fatalf("ListDeploymentsByArtifact: %v", err)
	}
	if len(deps) != 2 {
		t.Errorf("deployments = %d, want 2 (one per profile)", len(deps))
	}
}

func TestMemoryItemValidation(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	p := seedProject(t, store)

	tests := []struct {
		name    string
		item    types.MemoryItem
		wantErr bool
	}{
		{
			name: "valid",
			item: types.MemoryItem{ProjectID: p.ID, Type: types.MemoryDecision, Content: "Use sqlite for the cache", Confidence: 0.8},
		},
		{
			name:    "missing project",
			item:    types.MemoryItem{Type: types.MemoryDecision, Content: "orphan", Confidence: 0.8},
			wantErr: true,
		},
		{
			name:    "unknown type",
			item:    types.MemoryItem{ProjectID: p.ID, Type: "opinion", Content: "nope", Confidence: 0.8},
			wantErr: true,
		},
		{
			name:    "empty content",
			item:    types.MemoryItem{ProjectID: p.ID, Type: types.MemoryGotcha, Confidence: 0.8},
			wantErr: true,
		},
		{
			name:    "content too long",
			item:    types.MemoryItem{ProjectID: p.ID, Type: types.MemoryGotcha, Content: strings.Repeat("x", types.MaxMemoryContentLen+1), Confidence: 0.8},
			wantErr: true,
		},
		{
			name:    "confidence out of range",
			item:    types.MemoryItem{ProjectID: p.ID, Type: types.MemoryGotcha, Content: "over", Confidence: 1.5},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := tt.item
			err := store.CreateMemoryItem(ctx, &item)
			if tt.wantErr {
				var verr *types.ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateMemoryItem: %v", err)
			}
			if item.ID == "" || item.ContentHash == "" {
				t.Error("ID and ContentHash should be assigned")
			}
			if item.Status != types.MemoryCandidate {
				t.Errorf("status defaulted to %s, want candidate", item.Status)
			}
		})
	}
}

func TestMemoryDuplicateContent(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	p := seedProject(t, store)

	first := &types.MemoryItem{ProjectID: p.ID, Type: types.MemoryGotcha, Content: "The dev server caches aggressively", Confidence: 0.7}
	if err := store.CreateMemoryItem(ctx, first); err != nil {
		t.Fatalf("CreateMemoryItem: %v", err)
	}

	dup := &types.MemoryItem{ProjectID: p.ID, Type: types.MemoryGotcha, Content: "The dev server caches aggressively", Confidence: 0.9}
	err := store.CreateMemoryItem(ctx, dup)
	var conflict *types.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.ExistingID != first.ID {
		t.Errorf("ExistingID = %s, want %s", conflict.ExistingID, first.ID)
	}

	// The same content in another project is fine.
	other := &types.Project{Name: "api", Path: "/tmp/api"}
	if err := store.CreateProject(ctx, other); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	cross := &types.MemoryItem{ProjectID: other.ID, Type: types.MemoryGotcha, Content: "The dev server caches aggressively", Confidence: 0.7}
	if err := store.CreateMemoryItem(ctx, cross); err != nil {
		t.Errorf("duplicate across projects should not conflict: %v", err)
	}
}

func TestMemoryStatusTransitions(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	p := seedProject(t, store)

	tests := []struct {
		name    string
		path    []types.MemoryStatus
		wantErr bool
	}{
		{name: "promote to active", path: []types.MemoryStatus{types.MemoryActive}},
		{name: "full ladder", path: []types.MemoryStatus{types.MemoryActive, types.MemoryStable, types.MemoryDeprecated}},
		{name: "deprecate candidate", path: []types.MemoryStatus{types.MemoryDeprecated}},
		{name: "skip to stable", path: []types.MemoryStatus{types.MemoryStable}, wantErr: true},
		{name: "demote", path: []types.MemoryStatus{types.MemoryActive, types.MemoryCandidate}, wantErr: true},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &types.MemoryItem{
				ProjectID:  p.ID,
				Type:       types.MemoryLearning,
				Content:    "transition case " + tt.name,
				Confidence: 0.6,
			}
			if err := store.CreateMemoryItem(ctx, item); err != nil {
				t.Fatalf("CreateMemoryItem %d: %v", i, err)
			}

			var err error
			for _, next := range tt.path {
				err = store.UpdateMemoryStatus(ctx, item.ID, next)
				if err != nil {
					break
				}
			}
			if tt.wantErr {
				var verr *types.ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("UpdateMemoryStatus: %v", err)
			}

			got, err := store.GetMemoryItem(ctx, item.ID)
			if err != nil {
				t.Fatalf("GetMemoryItem: %v", err)
			}
			want := tt.path[len(tt.path)-1]
			if got.Status != want {
				t.Errorf("status = %s, want %s", got.Status, want)
			}
			if want == types.MemoryDeprecated && got.DeprecatedAt == nil {
				t.Error("DeprecatedAt should be stamped on deprecation")
			}
		})
	}
}

func TestListMemoryItemsFilter(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	p := seedProject(t, store)
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	seed := []struct {
		typ        types.MemoryType
		confidence float64
		promote    bool
	}{
		{types.MemoryDecision, 0.9, true},
		{types.MemoryDecision, 0.6, false},
		{types.MemoryGotcha, 0.8, true},
		{types.MemoryStyleRule, 0.5, false},
	}
	for i, s := range seed {
		item := &types.MemoryItem{
			ProjectID:  p.ID,
			Type:       s.typ,
			Content:    fmt.Sprintf("%s item %d", s.typ, i),
			Confidence: s.confidence,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.CreateMemoryItem(ctx, item); err != nil {
			t.Fatalf("CreateMemoryItem %d: %v", i, err)
		}
		if s.promote {
			if err := store.UpdateMemoryStatus(ctx, item.ID, types.MemoryActive); err != nil {
				t.Fatalf("UpdateMemoryStatus %d: %v", i, err)
			}
		}
	}

	active := types.MemoryActive
	page, err := store.ListMemoryItems(ctx, types.MemoryFilter{ProjectID: p.ID, Status: &active}, types.Page{})
	if err != nil {
		t.Fatalf("ListMemoryItems by status: %v", err)
	}
	if len(page.Items) != 2 {
		t.Errorf("active items = %d, want 2", len(page.Items))
	}

	decision := types.MemoryDecision
	minConf := 0.7
	page, err = store.ListMemoryItems(ctx, types.MemoryFilter{
		ProjectID:     p.ID,
		Type:          &decision,
		MinConfidence: &minConf,
	}, types.Page{})
	if err != nil {
		t.Fatalf("ListMemoryItems by type+confidence: %v", err)
	}
	if len(page.Items) != 1 {
		t.Errorf("filtered items = %d, want 1", len(page.Items))
	}

	since := base.Add(90 * time.Second)
	page, err = store.ListMemoryItems(ctx, types.MemoryFilter{ProjectID: p.ID, Since: &since}, types.Page{})
	if err != nil {
		t.Fatalf("ListMemoryItems since: %v", err)
	}
	if len(page.Items) != 2 {
		t.Errorf("recent items = %d, want 2", len(page.Items))
	}
}
