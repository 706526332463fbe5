// Package snapshot implements content-addressed tree snapshots.
//
// Blobs live under <root>/objects/aa/bbbb... keyed by the canonical content
// hash, so identical bytes across snapshots share storage. Snapshot metadata
// (tree, scope, reason) lives in the relational store. Rollback restores a
// captured tree atomically and records a compensating snapshot first, which
// makes rollback itself reversible.
package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/skillmeat/skillmeat/internal/fsio"
	"github.com/skillmeat/skillmeat/internal/storage"
	"github.com/skillmeat/skillmeat/internal/types"
)

// Store manages the blob store and snapshot metadata for one skillmeat home.
type Store struct {
	root  string // snapshots/ directory
	store storage.Storage
}

// NewStore creates a snapshot store rooted at root (usually
// <skillmeat-home>/snapshots).
func NewStore(root string, store storage.Storage) *Store {
	return &Store{root: root, store: store}
}

// Root returns the blob store root directory.
func (s *Store) Root() string { return s.root }

// Create captures the file tree under dir as a snapshot of the given scope.
// A regular file snapshots as a one-entry tree keyed by its base name. Blob
// writes are proportional to files changed since the scope's previous
// snapshot; unchanged hashes are shared, and already-present objects are
// skipped with a stat.
func (s *Store) Create(ctx context.Context, scope, dir string, reason types.SnapshotReason, by string) (*types.Snapshot, error) {
	entries, single, err := treeAt(dir)
	if err != nil {
		return nil, err
	}

	prev := map[string]string{}
	if latest, err := s.Latest(ctx, scope); err == nil {
		prev = latest.Tree
	} else if !types.IsNotFound(err) {
		return nil, err
	}

	for _, e := range entries {
		if prev[e.Path] == e.Hash || s.hasObject(e.Hash) {
			continue
		}
		src := filepath.Join(dir, filepath.FromSlash(e.Path))
		if single {
			src = dir
		}
		data, err := os.ReadFile(src)
		if err != nil {
			return nil, &types.FilesystemError{Op: "read", Path: e.Path, Err: err}
		}
		if err := s.writeObject(e.Hash, data); err != nil {
			return nil, err
		}
	}

	snap := &types.Snapshot{
		Scope:           scope,
		ContentHashRoot: fsio.MerkleRoot(entries),
		Tree:            fsio.TreeMap(entries),
		Reason:          reason,
		By:              by,
	}
	if err := s.store.CreateSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Latest returns the scope's most recent snapshot.
func (s *Store) Latest(ctx context.Context, scope string) (*types.Snapshot, error) {
	page, err := s.store.ListSnapshots(ctx, scope, types.Page{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(page) == 0 {
		return nil, &types.NotFoundError{Entity: "snapshot", ID: scope}
	}
	return page[0], nil
}

// Rollback restores the tree captured by snapshotID into dir. The current
// state of dir is captured first as a compensating snapshot (reason
// pre-rollback), which is returned so callers can undo the rollback. The
// restore itself is staged and swapped in with one atomic replace.
func (s *Store) Rollback(ctx context.Context, snapshotID, dir, by string) (*types.Snapshot, error) {
	snap, err := s.store.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, err
	}

	// Verify every blob exists before touching anything.
	for _, hash := range snap.Tree {
		if !s.hasObject(hash) {
			return nil, &types.StaleSnapshotError{SnapshotID: snapshotID}
		}
	}

	comp, err := s.Create(ctx, snap.Scope, dir, types.SnapshotPreRollback, by)
	if err != nil {
		return nil, err
	}

	if hash, ok := fileSnapshot(snap, dir); ok {
		data, err := s.readObject(hash)
		if err != nil {
			return nil, err
		}
		if err := fsio.WriteFileAtomic(dir, data, 0644); err != nil {
			return nil, err
		}
		return comp, nil
	}

	staging, err := fsio.NewStagingDir(dir)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(staging)

	for rel, hash := range snap.Tree {
		data, err := s.readObject(hash)
		if err != nil {
			return nil, err
		}
		target := filepath.Join(staging, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return nil, &types.FilesystemError{Op: "mkdir", Path: filepath.Dir(target), Err: err}
		}
		if err := os.WriteFile(target, data, 0644); err != nil {
			return nil, &types.FilesystemError{Op: "write", Path: target, Err: err}
		}
	}

	if err := fsio.AtomicReplaceDir(dir, staging); err != nil {
		return nil, err
	}
	return comp, nil
}

// treeAt lists the tree rooted at path. A regular file is a one-entry tree
// keyed by its base name; the bool reports that case.
func treeAt(path string) ([]fsio.TreeEntry, bool, error) {
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		_, hash, err := fsio.ReadFileWithHash(path)
		if err != nil {
			return nil, false, err
		}
		return []fsio.TreeEntry{{Path: filepath.Base(path), Hash: hash}}, true, nil
	}
	entries, err := fsio.LsTree(path)
	return entries, false, err
}

// fileSnapshot reports whether snap captures the single file at target, and
// returns its blob hash. A target that currently exists as a directory always
// restores in directory mode.
func fileSnapshot(snap *types.Snapshot, target string) (string, bool) {
	if len(snap.Tree) != 1 {
		return "", false
	}
	hash, ok := snap.Tree[filepath.Base(target)]
	if !ok {
		return "", false
	}
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		return "", false
	}
	return hash, true
}

// Diff compares two trees and reports the paths added, modified, and removed
// going from before to after. Slices come back sorted for stable output.
func Diff(before, after map[string]string) (added, modified, removed []string) {
	for path, hash := range after {
		prev, ok := before[path]
		switch {
		case !ok:
			added = append(added, path)
		case prev != hash:
			modified = append(modified, path)
		}
	}
	for path := range before {
		if _, ok := after[path]; !ok {
			removed = append(removed, path)
		}
	}
	sort.Strings(added)
	sort.Strings(modified)
	sort.Strings(removed)
	return added, modified, removed
}

// RetentionPolicy bounds how many snapshots are kept. Zero values leave the
// corresponding dimension unbounded.
type RetentionPolicy struct {
	MaxPerScope int
	MaxAge      time.Duration
}

// PruneResult reports what Prune and GC removed.
type PruneResult struct {
	SnapshotsDeleted int
	BlobsDeleted     int
	BytesFreed       int64
}

// Prune deletes snapshot rows that fall outside the retention policy and
// then garbage-collects blobs no remaining snapshot references.
func (s *Store) Prune(ctx context.Context, policy RetentionPolicy) (*PruneResult, error) {
	res := &PruneResult{}

	if policy.MaxAge > 0 {
		cutoff := time.Now().UTC().Add(-policy.MaxAge)
		old, err := s.store.ListSnapshotsBefore(ctx, cutoff)
		if err != nil {
			return nil, err
		}
		for _, snap := range old {
			if err := s.store.DeleteSnapshot(ctx, snap.ID); err != nil && !types.IsNotFound(err) {
				return nil, err
			}
			res.SnapshotsDeleted++
		}
	}

	if policy.MaxPerScope > 0 {
		all, err := s.listAll(ctx)
		if err != nil {
			return nil, err
		}
		perScope := map[string]int{}
		for _, snap := range all { // newest first
			perScope[snap.Scope]++
			if perScope[snap.Scope] <= policy.MaxPerScope {
				continue
			}
			if err := s.store.DeleteSnapshot(ctx, snap.ID); err != nil && !types.IsNotFound(err) {
				return nil, err
			}
			res.SnapshotsDeleted++
		}
	}

	gc, err := s.GC(ctx)
	if err != nil {
		return nil, err
	}
	res.BlobsDeleted = gc.BlobsDeleted
	res.BytesFreed = gc.BytesFreed
	return res, nil
}

// GC removes blobs not referenced by any remaining snapshot.
func (s *Store) GC(ctx context.Context) (*PruneResult, error) {
	all, err := s.listAll(ctx)
	if err != nil {
		return nil, err
	}
	live := map[string]bool{}
	for _, snap := range all {
		for _, hash := range snap.Tree {
			live[hash] = true
		}
	}

	res := &PruneResult{}
	objects := filepath.Join(s.root, "objects")
	err = filepath.WalkDir(objects, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return &types.FilesystemError{Op: "walk", Path: path, Err: err}
		}
		if d.IsDir() {
			return nil
		}
		hash := filepath.Base(filepath.Dir(path)) + d.Name()
		if live[hash] {
			return nil
		}
		info, ierr := d.Info()
		if rerr := os.Remove(path); rerr != nil {
			return &types.FilesystemError{Op: "remove", Path: path, Err: rerr}
		}
		res.BlobsDeleted++
		if ierr == nil {
			res.BytesFreed += info.Size()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// listAll returns every snapshot, newest first.
func (s *Store) listAll(ctx context.Context) ([]*types.Snapshot, error) {
	return s.store.ListSnapshots(ctx, "", types.Page{})
}

func (s *Store) objectPath(hash string) string {
	return filepath.Join(s.root, "objects", hash[:2], hash[2:])
}

func (s *Store) hasObject(hash string) bool {
	if len(hash) < 3 {
		return false
	}
	return fsio.Exists(s.objectPath(hash))
}

// writeObject stores raw bytes under their canonical hash. Re-hashing the
// stored bytes reproduces the key, so integrity is checkable on read.
func (s *Store) writeObject(hash string, data []byte) error {
	if len(hash) < 3 {
		return &types.ValidationError{Field: "hash", Reason: "blob hash too short"}
	}
	return fsio.WriteFileAtomic(s.objectPath(hash), data, 0644)
}

// Object returns the raw bytes of a stored blob, verifying the checksum.
func (s *Store) Object(hash string) ([]byte, error) {
	return s.readObject(hash)
}

func (s *Store) readObject(hash string) ([]byte, error) {
	path := s.objectPath(hash)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &types.FilesystemError{Op: "read", Path: path, Err: err}
	}
	if got := fsio.ComputeContentHash(data); got != hash {
		return nil, &types.ChecksumMismatchError{Path: path, Want: hash, Got: got}
	}
	return data, nil
}

