package fsio

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/skillmeat/skillmeat/internal/types"
)

// TreeEntry is one file in a tree listing: a slash-separated relative path
// and the canonical content hash of the file.
type TreeEntry struct {
	Path string
	Hash string
}

// LsTree walks root and returns every regular file as a TreeEntry, sorted by
// path. A missing root yields an empty listing, which lets callers treat
// "never deployed" and "empty tree" uniformly. Hidden staging and journal
// files are excluded.
func LsTree(root string) ([]TreeEntry, error) {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var entries []TreeEntry
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return &types.FilesystemError{Op: "walk", Path: path, Err: err}
		}
		name := d.Name()
		if d.IsDir() {
			if isInternalName(name) && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if isInternalName(name) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return &types.FilesystemError{Op: "rel", Path: path, Err: err}
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return &types.FilesystemError{Op: "read", Path: path, Err: err}
		}
		entries = append(entries, TreeEntry{
			Path: filepath.ToSlash(rel),
			Hash: ComputeContentHash(data),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// MerkleRoot computes a stable root hash over tree entries. Entries are
// hashed in sorted path order as "path\x00hash\n" records, so the root is
// independent of traversal order and stable across platforms.
func MerkleRoot(entries []TreeEntry) string {
	sorted := make([]TreeEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	h := sha256.New()
	for _, e := range sorted {
		h.Write([]byte(e.Path))
		h.Write([]byte{0})
		h.Write([]byte(e.Hash))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// TreeMap converts entries to a path → hash map.
func TreeMap(entries []TreeEntry) map[string]string {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.Path] = e.Hash
	}
	return m
}

// HashDir is LsTree + MerkleRoot: the canonical content hash of a directory
// artifact.
func HashDir(root string) (string, error) {
	entries, err := LsTree(root)
	if err != nil {
		return "", err
	}
	return MerkleRoot(entries), nil
}

// HashPath hashes whatever lives at path: directories via HashDir, files via
// their canonical content hash.
func HashPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", &types.FilesystemError{Op: "stat", Path: path, Err: err}
	}
	if info.IsDir() {
		return HashDir(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &types.FilesystemError{Op: "read", Path: path, Err: err}
	}
	return ComputeContentHash(data), nil
}

// DetectTreeChanges reports whether the tree or file at path diverges from
// expectedHash. Directories hash via HashDir, files via their canonical
// content hash. A missing path reports false, matching DetectChanges.
func DetectTreeChanges(expectedHash, path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		root, err := HashDir(path)
		if err != nil {
			return false
		}
		return root != expectedHash
	}
	return DetectChanges(expectedHash, path)
}

// isInternalName reports whether a file or directory name belongs to
// skillmeat's own machinery rather than artifact content.
func isInternalName(name string) bool {
	return strings.HasPrefix(name, ".staging-") ||
		strings.HasPrefix(name, ".replaced-") ||
		strings.HasPrefix(name, ".skillmeat-journal") ||
		(strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".tmp"))
}
