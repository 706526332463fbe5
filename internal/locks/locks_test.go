package locks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skillmeat/skillmeat/internal/types"
)

func TestAcquireSerializesSameKey(t *testing.T) {
	d, err := NewDirector(filepath.Join(t.TempDir(), "locks"))
	if err != nil {
		t.Fatalf("NewDirector: %v", err)
	}
	ctx := context.Background()

	release, err := d.Acquire(ctx, Collection("c1"))
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	var acquired atomic.Bool
	done := make(chan struct{})
	go func() {
		rel, err := d.Acquire(ctx, Collection("c1"))
		if err != nil {
			t.Errorf("second acquire: %v", err)
			close(done)
			return
		}
		acquired.Store(true)
		rel()
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if acquired.Load() {
		t.Fatal("second acquire succeeded while lock was held")
	}

	release()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("second acquire never completed after release")
	}
	if !acquired.Load() {
		t.Fatal("second acquire did not succeed after release")
	}
}

func TestAcquireDifferentKeysDoNotBlock(t *testing.T) {
	d, err := NewDirector(filepath.Join(t.TempDir(), "locks"))
	if err != nil {
		t.Fatalf("NewDirector: %v", err)
	}
	ctx := context.Background()

	rel1, err := d.Acquire(ctx, Project("p1"))
	if err != nil {
		t.Fatalf("acquire p1: %v", err)
	}
	defer rel1()

	ctx2, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	rel2, err := d.Acquire(ctx2, Project("p2"))
	if err != nil {
		t.Fatalf("acquire p2 blocked by unrelated lock: %v", err)
	}
	rel2()
}

func TestAcquireHonorsContextCancel(t *testing.T) {
	d, err := NewDirector(filepath.Join(t.TempDir(), "locks"))
	if err != nil {
		t.Fatalf("NewDirector: %v", err)
	}

	release, err := d.Acquire(context.Background(), Composite("x"))
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = d.Acquire(ctx, Composite("x"))
	if err == nil {
		t.Fatal("expected error on contended acquire")
	}
	if types.Retryable(err) {
		t.Errorf("caller deadline must not be retryable, got %v", err)
	}
}

func TestContendedAcquireIsRetryable(t *testing.T) {
	d, err := NewDirector(filepath.Join(t.TempDir(), "locks"))
	if err != nil {
		t.Fatalf("NewDirector: %v", err)
	}
	d.wait = 150 * time.Millisecond

	release, err := d.Acquire(context.Background(), Project("busy"))
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer release()

	_, err = d.Acquire(context.Background(), Project("busy"))
	if err == nil {
		t.Fatal("second acquire succeeded while lock was held")
	}
	var cm *types.ConcurrentModificationError
	if !errors.As(err, &cm) {
		t.Fatalf("want ConcurrentModificationError, got %v", err)
	}
	if cm.Aggregate != Project("busy") {
		t.Errorf("aggregate = %q, want %q", cm.Aggregate, Project("busy"))
	}
	if !types.Retryable(err) {
		t.Error("lock contention should be retryable")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	d, err := NewDirector(filepath.Join(t.TempDir(), "locks"))
	if err != nil {
		t.Fatalf("NewDirector: %v", err)
	}
	release, err := d.Acquire(context.Background(), Collection("c"))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	release()
	release() // must not panic or unlock someone else's turn

	rel2, err := d.Acquire(context.Background(), Collection("c"))
	if err != nil {
		t.Fatalf("re-acquire after release: %v", err)
	}
	rel2()
}

func TestLockFilesLiveUnderDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "locks")
	d, err := NewDirector(dir)
	if err != nil {
		t.Fatalf("NewDirector: %v", err)
	}
	release, err := d.Acquire(context.Background(), Project("p9"))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	if _, err := os.Stat(filepath.Join(dir, "project-p9.lock")); err != nil {
		t.Errorf("expected lock file on disk: %v", err)
	}
}

func TestAcquireManyOrdersAndReleases(t *testing.T) {
	d, err := NewDirector(filepath.Join(t.TempDir(), "locks"))
	if err != nil {
		t.Fatalf("NewDirector: %v", err)
	}
	ctx := context.Background()

	release, err := d.AcquireMany(ctx, Project("p1"), Collection("c1"), Project("p1"))
	if err != nil {
		t.Fatalf("AcquireMany: %v", err)
	}
	release()

	// All locks must be free again.
	for _, key := range []string{Project("p1"), Collection("c1")} {
		rel, err := d.Acquire(ctx, key)
		if err != nil {
			t.Fatalf("lock %s not released: %v", key, err)
		}
		rel()
	}
}
