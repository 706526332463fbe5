// Package fsio is the single filesystem access layer for skillmeat.
//
// Every component that needs disk I/O goes through this package: atomic file
// and directory replacement, canonical content hashing, path safety checks,
// and tree listings for Merkle-style change detection. Keeping the surface
// here makes the write-through ordering auditable in one place.
package fsio

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/skillmeat/skillmeat/internal/types"
)

// ReadFile reads the file at path.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &types.FilesystemError{Op: "read", Path: path, Err: err}
	}
	return data, nil
}

// WriteFileAtomic writes data to path via a temp file in the same directory
// followed by a rename, so readers never observe a partial write.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &types.FilesystemError{Op: "mkdir", Path: dir, Err: err}
	}

	tmpFile, err := os.CreateTemp(dir, ".*.tmp")
	if err != nil {
		return &types.FilesystemError{Op: "create temp", Path: dir, Err: err}
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return &types.FilesystemError{Op: "write temp", Path: tmpPath, Err: err}
	}

	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return &types.FilesystemError{Op: "sync temp", Path: tmpPath, Err: err}
	}

	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return &types.FilesystemError{Op: "close temp", Path: tmpPath, Err: err}
	}

	if err := os.Chmod(tmpPath, perm); err != nil {
		_ = os.Remove(tmpPath)
		return &types.FilesystemError{Op: "chmod", Path: tmpPath, Err: err}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return &types.FilesystemError{Op: "rename", Path: path, Err: err}
	}

	return nil
}

// NewStagingDir creates a temporary staging directory on the same filesystem
// as target, so the final rename cannot cross a device boundary.
func NewStagingDir(target string) (string, error) {
	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return "", &types.FilesystemError{Op: "mkdir", Path: parent, Err: err}
	}
	staging, err := os.MkdirTemp(parent, ".staging-*")
	if err != nil {
		return "", &types.FilesystemError{Op: "create staging", Path: parent, Err: err}
	}
	return staging, nil
}

// AtomicReplaceDir renames staging into place at target. If target already
// exists it is moved aside first and restored on failure, so the target is
// never observed missing or half-written.
func AtomicReplaceDir(target, staging string) error {
	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return &types.AtomicReplaceError{Target: target, Err: err}
	}

	var backup string
	if _, err := os.Stat(target); err == nil {
		old, err := os.MkdirTemp(parent, ".replaced-*")
		if err != nil {
			return &types.AtomicReplaceError{Target: target, Err: err}
		}
		backup = filepath.Join(old, filepath.Base(target))
		if err := os.Rename(target, backup); err != nil {
			_ = os.Remove(old)
			return &types.AtomicReplaceError{Target: target, Err: err}
		}
	}

	if err := os.Rename(staging, target); err != nil {
		if backup != "" {
			// Best effort restore of the prior state
			_ = os.Rename(backup, target)
			_ = os.Remove(filepath.Dir(backup))
		}
		return &types.AtomicReplaceError{Target: target, Err: err}
	}

	if backup != "" {
		_ = os.RemoveAll(filepath.Dir(backup))
	}
	return nil
}

// RemoveDir removes a directory tree rooted inside root. The path is
// validated first so a corrupt ledger entry cannot delete outside the root.
func RemoveDir(root, rel string) error {
	abs, err := ResolvePath(root, rel)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(abs); err != nil {
		return &types.FilesystemError{Op: "remove", Path: abs, Err: err}
	}
	return nil
}

// CopyTree copies every regular file under src into dst, preserving relative
// layout. Used to populate staging directories.
func CopyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return &types.FilesystemError{Op: "walk", Path: path, Err: err}
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return &types.FilesystemError{Op: "rel", Path: path, Err: err}
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return &types.FilesystemError{Op: "read", Path: path, Err: err}
		}
		targetPath := filepath.Join(dst, rel)
		if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
			return &types.FilesystemError{Op: "mkdir", Path: filepath.Dir(targetPath), Err: err}
		}
		if err := os.WriteFile(targetPath, data, 0644); err != nil {
			return &types.FilesystemError{Op: "write", Path: targetPath, Err: err}
		}
		return nil
	})
}

// CopyEntries copies the listed tree entries from src into dst, preserving
// relative layout. Entries outside src are rejected.
func CopyEntries(src, dst string, entries []TreeEntry) error {
	for _, e := range entries {
		from, err := ResolvePath(src, filepath.FromSlash(e.Path))
		if err != nil {
			return err
		}
		data, err := os.ReadFile(from)
		if err != nil {
			return &types.FilesystemError{Op: "read", Path: from, Err: err}
		}
		to := filepath.Join(dst, filepath.FromSlash(e.Path))
		if err := os.MkdirAll(filepath.Dir(to), 0755); err != nil {
			return &types.FilesystemError{Op: "mkdir", Path: filepath.Dir(to), Err: err}
		}
		if err := os.WriteFile(to, data, 0644); err != nil {
			return &types.FilesystemError{Op: "write", Path: to, Err: err}
		}
	}
	return nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnsureDir creates dir and parents when missing.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("ensure dir %s: %w", dir, err)
	}
	return nil
}
