package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skillmeat/skillmeat/internal/events"
	"github.com/skillmeat/skillmeat/internal/fsio"
	"github.com/skillmeat/skillmeat/internal/types"
)

type fakeSource struct {
	mu   sync.Mutex
	deps []*types.Deployment
}

func (f *fakeSource) ListDeploymentsByProject(ctx context.Context, projectID string) ([]*types.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*types.Deployment, len(f.deps))
	copy(out, f.deps)
	return out, nil
}

// deployedFile writes content under the project's .claude tree and returns a
// deployment row whose recorded hash matches the written bytes.
func deployedFile(t *testing.T, projectDir, rel, content string) *types.Deployment {
	t.Helper()
	path := filepath.Join(projectDir, ".claude", filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return &types.Deployment{
		ArtifactUUID:      "art-" + filepath.Base(rel),
		ProjectID:         "proj-1",
		ProfileID:         "default",
		SourceContentHash: fsio.ComputeContentHash([]byte(content)),
		DeployedPath:      path,
		DeployedAt:        time.Now().UTC(),
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func subscribe(bus *events.Bus) chan events.Event {
	ch := make(chan events.Event, 32)
	bus.Subscribe(func(ev events.Event) { ch <- ev })
	return ch
}

func waitEvent(t *testing.T, ch chan events.Event, timeout time.Duration) events.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for event")
		return events.Event{}
	}
}

func assertNoEvent(t *testing.T, ch chan events.Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %+v", ev)
	default:
	}
}

func TestDebouncerCoalesces(t *testing.T) {
	var count atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { count.Add(1) })
	defer d.Cancel()

	for i := 0; i < 5; i++ {
		d.Trigger()
	}
	time.Sleep(200 * time.Millisecond)
	if got := count.Load(); got != 1 {
		t.Fatalf("callback ran %d times, want 1", got)
	}

	d.Trigger()
	time.Sleep(200 * time.Millisecond)
	if got := count.Load(); got != 2 {
		t.Fatalf("callback ran %d times after second burst, want 2", got)
	}
}

func TestDebouncerCancel(t *testing.T) {
	var count atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func() { count.Add(1) })

	d.Trigger()
	d.Cancel()
	time.Sleep(150 * time.Millisecond)
	if got := count.Load(); got != 0 {
		t.Fatalf("callback ran %d times after cancel, want 0", got)
	}
}

func TestCheckDriftReportsOncePerTransition(t *testing.T) {
	dir := t.TempDir()
	project := &types.Project{ID: "proj-1", Name: "demo", Path: dir}
	dep := deployedFile(t, dir, "commands/review.md", "# Review\n")
	src := &fakeSource{deps: []*types.Deployment{dep}}
	bus := events.NewBus()
	ch := subscribe(bus)

	w, err := New(project, src, bus, Options{Poll: true})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	ctx := context.Background()

	w.checkDrift(ctx)
	assertNoEvent(t, ch)

	mustWrite(t, dep.DeployedPath, "# Review\n\nEdited by hand.\n")
	w.checkDrift(ctx)
	ev := waitEvent(t, ch, time.Second)
	if ev.Kind != events.KindDrifted || ev.Entity != events.EntityDeployment {
		t.Fatalf("event = %+v, want deployment drifted", ev)
	}
	if ev.ID != dep.ArtifactUUID {
		t.Fatalf("event ID = %q, want %q", ev.ID, dep.ArtifactUUID)
	}
	if ev.Detail["change"] != "modified" {
		t.Fatalf("change detail = %q, want modified", ev.Detail["change"])
	}
	if ev.Detail["project"] != "proj-1" {
		t.Fatalf("project detail = %q, want proj-1", ev.Detail["project"])
	}

	// Still drifted: no repeat.
	w.checkDrift(ctx)
	assertNoEvent(t, ch)

	// Restored then modified again: reported once more.
	mustWrite(t, dep.DeployedPath, "# Review\n")
	w.checkDrift(ctx)
	assertNoEvent(t, ch)
	mustWrite(t, dep.DeployedPath, "# Review\n\nEdited again.\n")
	w.checkDrift(ctx)
	ev = waitEvent(t, ch, time.Second)
	if ev.Kind != events.KindDrifted {
		t.Fatalf("event after restore+modify = %+v, want drifted", ev)
	}
}

func TestCheckDriftReportsRemovedDeployment(t *testing.T) {
	dir := t.TempDir()
	project := &types.Project{ID: "proj-1", Name: "demo", Path: dir}
	dep := deployedFile(t, dir, "agents/reviewer.md", "# Reviewer\n")
	src := &fakeSource{deps: []*types.Deployment{dep}}
	bus := events.NewBus()
	ch := subscribe(bus)

	w, err := New(project, src, bus, Options{Poll: true})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	ctx := context.Background()

	w.checkDrift(ctx)
	assertNoEvent(t, ch)

	if err := os.Remove(dep.DeployedPath); err != nil {
		t.Fatal(err)
	}
	w.checkDrift(ctx)
	ev := waitEvent(t, ch, time.Second)
	if ev.Detail["change"] != "removed" {
		t.Fatalf("change detail = %q, want removed", ev.Detail["change"])
	}
}

func TestStartReportsPreexistingDrift(t *testing.T) {
	dir := t.TempDir()
	project := &types.Project{ID: "proj-1", Name: "demo", Path: dir}
	dep := deployedFile(t, dir, "commands/fmt.md", "# Fmt\n")
	mustWrite(t, dep.DeployedPath, "# Fmt\n\nTampered before the watch began.\n")
	src := &fakeSource{deps: []*types.Deployment{dep}}
	bus := events.NewBus()
	ch := subscribe(bus)

	// A long poll interval isolates the initial scan as the only source.
	w, err := New(project, src, bus, Options{Poll: true, PollInterval: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Close()

	ev := waitEvent(t, ch, time.Second)
	if ev.Kind != events.KindDrifted || ev.ID != dep.ArtifactUUID {
		t.Fatalf("initial scan event = %+v, want drifted for %s", ev, dep.ArtifactUUID)
	}
}

func TestWatcherDetectsWriteViaFsnotify(t *testing.T) {
	dir := t.TempDir()
	project := &types.Project{ID: "proj-1", Name: "demo", Path: dir}
	dep := deployedFile(t, dir, "commands/review.md", "# Review\n")
	src := &fakeSource{deps: []*types.Deployment{dep}}
	bus := events.NewBus()
	ch := subscribe(bus)

	w, err := New(project, src, bus, Options{Debounce: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if w.pollingMode {
		t.Skip("fsnotify unavailable on this platform")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Close()

	mustWrite(t, dep.DeployedPath, "# Review\n\nEdited.\n")
	ev := waitEvent(t, ch, 5*time.Second)
	if ev.Kind != events.KindDrifted || ev.ID != dep.ArtifactUUID {
		t.Fatalf("event = %+v, want drifted for %s", ev, dep.ArtifactUUID)
	}
}

func TestWatcherDetectsNewDirectoryViaFsnotify(t *testing.T) {
	dir := t.TempDir()
	project := &types.Project{ID: "proj-1", Name: "demo", Path: dir}
	dep := deployedFile(t, dir, "skills/code-review/SKILL.md", "# Code Review\n")
	src := &fakeSource{deps: []*types.Deployment{dep}}
	bus := events.NewBus()
	ch := subscribe(bus)

	w, err := New(project, src, bus, Options{Debounce: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if w.pollingMode {
		t.Skip("fsnotify unavailable on this platform")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Close()

	// A directory artifact drifts when a file is added inside it. The
	// recorded hash covers the tree, so the new file changes the root.
	skillDir := filepath.Dir(dep.DeployedPath)
	dirDep := &types.Deployment{
		ArtifactUUID:      "art-skill-tree",
		ProjectID:         "proj-1",
		ProfileID:         "default",
		SourceContentHash: mustHashDir(t, skillDir),
		DeployedPath:      skillDir,
		DeployedAt:        time.Now().UTC(),
	}
	src.mu.Lock()
	src.deps = []*types.Deployment{dirDep}
	src.mu.Unlock()

	mustWrite(t, filepath.Join(skillDir, "reference.md"), "extra notes\n")
	ev := waitEvent(t, ch, 5*time.Second)
	if ev.Kind != events.KindDrifted || ev.ID != "art-skill-tree" {
		t.Fatalf("event = %+v, want drifted for art-skill-tree", ev)
	}
}

func TestWatcherPollingModeDetectsChange(t *testing.T) {
	dir := t.TempDir()
	project := &types.Project{ID: "proj-1", Name: "demo", Path: dir}
	dep := deployedFile(t, dir, "commands/lint.md", "# Lint\n")
	src := &fakeSource{deps: []*types.Deployment{dep}}
	bus := events.NewBus()
	ch := subscribe(bus)

	w, err := New(project, src, bus, Options{Poll: true, PollInterval: 25 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Close()

	mustWrite(t, dep.DeployedPath, "# Lint\n\nChanged.\n")
	ev := waitEvent(t, ch, 5*time.Second)
	if ev.Kind != events.KindDrifted || ev.ID != dep.ArtifactUUID {
		t.Fatalf("event = %+v, want drifted for %s", ev, dep.ArtifactUUID)
	}
}

func mustHashDir(t *testing.T, root string) string {
	t.Helper()
	h, err := fsio.HashDir(root)
	if err != nil {
		t.Fatal(err)
	}
	return h
}
