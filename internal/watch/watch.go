// Package watch monitors a project's deployed .claude/ tree and publishes a
// drift event whenever a deployment's on-disk content diverges from the hash
// recorded at deploy time. Filesystem events are debounced before rescanning;
// when fsnotify is unavailable the watcher degrades to polling.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/skillmeat/skillmeat/internal/debug"
	"github.com/skillmeat/skillmeat/internal/events"
	"github.com/skillmeat/skillmeat/internal/fsio"
	"github.com/skillmeat/skillmeat/internal/types"
)

// Defaults for the drift watcher, overridable through Options and the
// watch.debounce / watch.poll_interval config keys.
const (
	DefaultDebounce     = 500 * time.Millisecond
	DefaultPollInterval = 5 * time.Second
)

// Source lists the deployments whose on-disk state is checked for drift.
// *sqlite.SQLiteStorage satisfies it.
type Source interface {
	ListDeploymentsByProject(ctx context.Context, projectID string) ([]*types.Deployment, error)
}

// Options tune the watcher. Zero values fall back to defaults.
type Options struct {
	Debounce     time.Duration
	PollInterval time.Duration
	// Poll skips fsnotify entirely and rescans on an interval.
	Poll bool
	// Logf receives diagnostic messages. Defaults to debug.Logf.
	Logf func(format string, args ...any)
}

// Watcher monitors one project's .claude/ tree. Drift is reported once per
// divergence: an event fires when a deployment newly drifts, the state clears
// silently when the content is restored, and a later divergence fires again.
type Watcher struct {
	project   *types.Project
	src       Source
	bus       *events.Bus
	opts      Options
	claudeDir string

	fsw         *fsnotify.Watcher
	debouncer   *Debouncer
	pollingMode bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	ctx     context.Context
	drifted map[string]bool // artifact UUID → last reported drift state
}

// New builds a watcher for project. fsnotify failures fall back to polling
// mode unless SKILLMEAT_WATCHER_FALLBACK is set to "false" or "0", in which
// case they are returned as errors.
func New(project *types.Project, src Source, bus *events.Bus, opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Logf == nil {
		opts.Logf = debug.Logf
	}

	w := &Watcher{
		project:   project,
		src:       src,
		bus:       bus,
		opts:      opts,
		claudeDir: filepath.Join(project.Path, ".claude"),
		drifted:   make(map[string]bool),
	}
	w.debouncer = NewDebouncer(opts.Debounce, w.scanNow)

	if opts.Poll {
		w.pollingMode = true
		return w, nil
	}

	fallbackEnv := os.Getenv("SKILLMEAT_WATCHER_FALLBACK")
	fallbackDisabled := fallbackEnv == "false" || fallbackEnv == "0"

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		if fallbackDisabled {
			return nil, fmt.Errorf("fsnotify.NewWatcher() failed and SKILLMEAT_WATCHER_FALLBACK is disabled: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Warning: fsnotify.NewWatcher() failed (%v), falling back to polling mode (%v interval)\n", err, opts.PollInterval)
		fmt.Fprintf(os.Stderr, "Set SKILLMEAT_WATCHER_FALLBACK=false to disable this fallback and require fsnotify\n")
		w.pollingMode = true
		return w, nil
	}
	w.fsw = fsw

	// Watch the project root so creation and removal of .claude itself are
	// visible even when the tree does not exist yet.
	if err := fsw.Add(project.Path); err != nil {
		_ = fsw.Close()
		if fallbackDisabled {
			return nil, fmt.Errorf("failed to watch %s and SKILLMEAT_WATCHER_FALLBACK is disabled: %w", project.Path, err)
		}
		fmt.Fprintf(os.Stderr, "Warning: failed to watch %s (%v), falling back to polling mode (%v interval)\n", project.Path, err, opts.PollInterval)
		fmt.Fprintf(os.Stderr, "Set SKILLMEAT_WATCHER_FALLBACK=false to disable this fallback and require fsnotify\n")
		w.pollingMode = true
		w.fsw = nil
		return w, nil
	}

	if _, err := os.Stat(w.claudeDir); os.IsNotExist(err) {
		opts.Logf("deployment tree %s does not exist yet, watching project root", w.claudeDir)
	} else {
		w.addTree(w.claudeDir)
	}
	return w, nil
}

// Start begins monitoring and performs an initial scan so drift that predates
// the watch is reported immediately. Runs in background goroutines until the
// context is canceled or Close is called. Call once per Watcher.
func (w *Watcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	w.checkDrift(ctx)

	if w.pollingMode {
		w.startPolling(ctx)
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(ctx)
	}()
}

func (w *Watcher) loop(ctx context.Context) {
	prefix := w.claudeDir + string(filepath.Separator)

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}

			switch {
			case event.Name == w.claudeDir && event.Op&fsnotify.Create != 0:
				w.opts.Logf("deployment tree created: %s", event.Name)
				w.addTree(w.claudeDir)
				w.debouncer.Trigger()

			case event.Name == w.claudeDir && event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				w.opts.Logf("deployment tree removed, re-establishing watch")
				_ = w.fsw.Remove(w.claudeDir)
				w.reEstablishWatch(ctx)
				w.debouncer.Trigger()

			case strings.HasPrefix(event.Name, prefix):
				// New directories need their own watch before events inside
				// them are visible.
				if event.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						w.addTree(event.Name)
					}
				}
				w.debouncer.Trigger()
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.opts.Logf("watcher error: %v", err)

		case <-ctx.Done():
			return
		}
	}
}

// addTree registers a watch on root and every directory below it. fsnotify
// watches are not recursive.
func (w *Watcher) addTree(root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if aerr := w.fsw.Add(path); aerr != nil {
			w.opts.Logf("failed to watch %s: %v", path, aerr)
		}
		return nil
	})
}

// reEstablishWatch retries watching the .claude tree with exponential backoff
// after it was removed or renamed, e.g. by a git checkout.
func (w *Watcher) reEstablishWatch(ctx context.Context) {
	delays := []time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}

	for _, delay := range delays {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
			if _, err := os.Stat(w.claudeDir); err != nil {
				if os.IsNotExist(err) {
					w.opts.Logf("deployment tree still missing after %v, retrying", delay)
					continue
				}
				w.opts.Logf("failed to re-watch %s after %v: %v", w.claudeDir, delay, err)
				return
			}
			w.addTree(w.claudeDir)
			w.opts.Logf("re-established watch on %s after %v", w.claudeDir, delay)
			w.debouncer.Trigger()
			return
		}
	}
	// The project root watch still catches a later re-creation of .claude.
	w.opts.Logf("failed to re-establish watch on %s after all retries", w.claudeDir)
}

// startPolling rescans on a ticker instead of reacting to filesystem events.
func (w *Watcher) startPolling(ctx context.Context) {
	w.opts.Logf("starting polling mode with %v interval", w.opts.PollInterval)
	ticker := time.NewTicker(w.opts.PollInterval)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.checkDrift(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// scanNow is the debounced rescan entry point.
func (w *Watcher) scanNow() {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}
	w.checkDrift(ctx)
}

// checkDrift rescans every deployment of the watched project and publishes an
// event for each one that newly diverges from its recorded content hash. A
// deployed path that disappeared counts as drift too.
func (w *Watcher) checkDrift(ctx context.Context) {
	deps, err := w.src.ListDeploymentsByProject(ctx, w.project.ID)
	if err != nil {
		w.opts.Logf("drift scan failed: %v", err)
		return
	}

	for _, d := range deps {
		change := "modified"
		drifted := fsio.DetectTreeChanges(d.SourceContentHash, d.DeployedPath)
		if _, err := os.Stat(d.DeployedPath); os.IsNotExist(err) {
			drifted = true
			change = "removed"
		}

		w.mu.Lock()
		prev := w.drifted[d.ArtifactUUID]
		w.drifted[d.ArtifactUUID] = drifted
		w.mu.Unlock()

		switch {
		case drifted && !prev:
			w.opts.Logf("drift detected (%s): %s", change, d.DeployedPath)
			w.bus.Publish(events.Event{
				Entity: events.EntityDeployment,
				ID:     d.ArtifactUUID,
				Kind:   events.KindDrifted,
				Detail: map[string]string{
					"project": w.project.ID,
					"path":    d.DeployedPath,
					"change":  change,
				},
			})
		case !drifted && prev:
			w.opts.Logf("drift cleared: %s", d.DeployedPath)
		}
	}
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.debouncer.Cancel()
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}
