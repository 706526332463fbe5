// Package locks serializes writers per aggregate.
//
// Each aggregate (collection, project, composite) gets a lock file under
// <state_dir>/locks/ held via flock, so concurrent CLI invocations in
// separate processes serialize correctly. An in-process mutex per key
// shortcuts same-process contention, which flock alone does not provide:
// the same process can re-acquire its own file lock.
package locks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/skillmeat/skillmeat/internal/types"
)

// Key names for the aggregates the CLI serializes on.
func Collection(id string) string { return "collection-" + id }
func Project(id string) string    { return "project-" + id }
func Composite(id string) string  { return "composite-" + id }
func Set(id string) string        { return "set-" + id }

// GCKey guards the snapshot garbage collector.
const GCKey = "gc"

const (
	retryDelay  = 100 * time.Millisecond
	defaultWait = 10 * time.Second
)

// Director hands out per-aggregate locks backed by files in dir.
type Director struct {
	dir  string
	wait time.Duration // max time one Acquire waits on a held lock

	mu    sync.Mutex
	inner map[string]*sync.Mutex
}

// NewDirector creates the lock directory if needed and returns a director
// over it.
func NewDirector(dir string) (*Director, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	return &Director{dir: dir, wait: defaultWait, inner: make(map[string]*sync.Mutex)}, nil
}

func (d *Director) keyMutex(key string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.inner[key]
	if !ok {
		m = &sync.Mutex{}
		d.inner[key] = m
	}
	return m
}

// Acquire blocks until the lock for key is held, the director's wait window
// elapses, or ctx is done. A window that elapses while ctx is still live is
// reported as *types.ConcurrentModificationError so callers can re-plan and
// retry. The returned release function must be called exactly once.
func (d *Director) Acquire(ctx context.Context, key string) (func(), error) {
	wctx, cancel := context.WithTimeout(ctx, d.wait)
	defer cancel()

	inner := d.keyMutex(key)

	acquired := make(chan struct{})
	go func() {
		inner.Lock()
		close(acquired)
	}()
	select {
	case <-acquired:
	case <-wctx.Done():
		// The goroutine will still take the mutex; hand it straight back.
		go func() {
			<-acquired
			inner.Unlock()
		}()
		return nil, d.contention(ctx, key, nil)
	}

	fl := flock.New(filepath.Join(d.dir, key+".lock"))
	locked, err := fl.TryLockContext(wctx, retryDelay)
	if err != nil || !locked {
		inner.Unlock()
		return nil, d.contention(ctx, key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = fl.Unlock()
			inner.Unlock()
		})
	}, nil
}

// contention maps a failed acquisition to either the caller's own context
// error, a filesystem error from flock, or a retryable concurrent-modification
// error when another writer held key for the whole wait window.
func (d *Director) contention(ctx context.Context, key string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("acquire %s: %w", key, ctxErr)
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	return &types.ConcurrentModificationError{Aggregate: key}
}

// AcquireMany takes several locks in sorted key order so concurrent callers
// locking overlapping sets cannot deadlock. Released in reverse order.
func (d *Director) AcquireMany(ctx context.Context, keys ...string) (func(), error) {
	sorted := make([]string, 0, len(keys))
	seen := make(map[string]bool)
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			sorted = append(sorted, k)
		}
	}
	sort.Strings(sorted)

	releases := make([]func(), 0, len(sorted))
	for _, k := range sorted {
		rel, err := d.Acquire(ctx, k)
		if err != nil {
			for i := len(releases) - 1; i >= 0; i-- {
				releases[i]()
			}
			return nil, err
		}
		releases = append(releases, rel)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(releases) - 1; i >= 0; i-- {
				releases[i]()
			}
		})
	}, nil
}
