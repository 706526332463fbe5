// Package index normalizes discovered artifacts and resolves their identity
// against the collection store.
//
// Discovery (scan.go) produces DetectedArtifact values from directory
// conventions. Normalize canonicalizes names and computes content hashes;
// ResolveIdentity maps the normalized artifact onto an existing row's uuid or
// mints a new one. Identity survives renames as long as the
// (origin, upstream, type, name) tuple matches, and survives moves as long
// as the content hash matches.
package index

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/skillmeat/skillmeat/internal/fsio"
	"github.com/skillmeat/skillmeat/internal/types"
)

// DetectedArtifact is the raw discovery input: a path that looks like an
// artifact, plus whatever origin information the caller has.
type DetectedArtifact struct {
	Name        string
	Type        types.ArtifactType
	Path        string // absolute path to the artifact's file or directory
	Origin      types.Origin
	Upstream    string
	VersionSpec string
}

// Normalized is a DetectedArtifact after canonicalization: stable name,
// path pattern, and content hash, enriched with frontmatter metadata.
type Normalized struct {
	Name        string
	Type        types.ArtifactType
	Origin      types.Origin
	Upstream    string
	VersionSpec string
	Path        string // absolute source path, carried over from detection
	PathPattern string
	ContentHash string
	Files       []fsio.TreeEntry
	IsDir       bool
	Description string
	Version     string
	Tags        []string
}

var nameCleaner = regexp.MustCompile(`[^a-z0-9-]+`)

// CanonicalName lowercases, converts separators to hyphens, and strips
// everything outside [a-z0-9-].
func CanonicalName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.NewReplacer(" ", "-", "_", "-", ".", "-").Replace(s)
	s = nameCleaner.ReplaceAllString(s, "")
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	return strings.Trim(s, "-")
}

// Normalize canonicalizes a detected artifact and computes its content hash.
//
// Directory artifacts hash as the Merkle root over their sorted file listing;
// single-file artifacts hash as the file's canonical content hash, so the
// value is directly comparable with the hash of the deployed copy.
func Normalize(det DetectedArtifact) (*Normalized, error) {
	if !det.Type.IsValid() {
		return nil, &types.ValidationError{Field: "type", Reason: "unknown artifact type " + string(det.Type)}
	}
	if det.Origin == "" {
		det.Origin = types.OriginLocal
	}
	if !det.Origin.IsValid() {
		return nil, &types.ValidationError{Field: "origin", Reason: "unknown origin " + string(det.Origin)}
	}

	info, err := os.Stat(det.Path)
	if err != nil {
		return nil, &types.FilesystemError{Op: "stat", Path: det.Path, Err: err}
	}

	n := &Normalized{
		Type:        det.Type,
		Origin:      det.Origin,
		Upstream:    det.Upstream,
		VersionSpec: det.VersionSpec,
		Path:        det.Path,
		IsDir:       info.IsDir(),
	}

	name := det.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(det.Path), filepath.Ext(det.Path))
	}

	if n.IsDir {
		entries, err := fsio.LsTree(det.Path)
		if err != nil {
			return nil, err
		}
		if det.Type == types.TypeSkill {
			// Embedded companion artifacts are rows of their own; the
			// parent's hash covers only its own files.
			entries = FilterEmbedded(entries)
		}
		if len(entries) == 0 {
			return nil, &types.ValidationError{Field: "path", Reason: "artifact directory is empty: " + det.Path}
		}
		n.Files = entries
		n.ContentHash = fsio.MerkleRoot(entries)
	} else {
		data, hash, err := fsio.ReadFileWithHash(det.Path)
		if err != nil {
			return nil, err
		}
		n.Files = []fsio.TreeEntry{{Path: filepath.Base(det.Path), Hash: hash}}
		n.ContentHash = hash
		enrichFromFrontmatter(n, data, &name)
	}

	if n.IsDir {
		if data, err := fsio.ReadFile(filepath.Join(det.Path, manifestFor(det.Type))); err == nil {
			enrichFromFrontmatter(n, data, &name)
		}
	}

	n.Name = CanonicalName(name)
	if n.Name == "" {
		return nil, &types.ValidationError{Field: "name", Reason: "artifact name is empty after canonicalization"}
	}

	// The pattern is the deploy target template; profiles may remap the
	// directory but the default layout mirrors it exactly.
	if n.IsDir {
		n.PathPattern = fsio.ClaudeDir + "/" + det.Type.Plural() + "/" + n.Name
	} else {
		n.PathPattern = fsio.ClaudeDir + "/" + det.Type.Plural() + "/" + n.Name + filepath.Ext(det.Path)
	}
	return n, nil
}

func enrichFromFrontmatter(n *Normalized, data []byte, name *string) {
	fm, _, ok := ParseFrontmatter(data)
	if !ok {
		return
	}
	if fm.Name != "" {
		*name = fm.Name
	}
	if fm.Description != "" {
		n.Description = fm.Description
	}
	if fm.Version != "" {
		n.Version = fm.Version
	}
	if len(fm.Tags) > 0 {
		n.Tags = fm.Tags
	}
}

// manifestFor names the file that carries an artifact's frontmatter inside a
// directory artifact.
func manifestFor(typ types.ArtifactType) string {
	switch typ {
	case types.TypeSkill:
		return "SKILL.md"
	case types.TypeAgent:
		return "AGENT.md"
	}
	return "README.md"
}

// Finder is the identity-lookup subset of the store, satisfied by both
// storage.Storage and storage.Transaction.
type Finder interface {
	FindArtifactByContentHash(ctx context.Context, collectionID, hash string) (*types.Artifact, error)
	FindArtifactByUpstream(ctx context.Context, origin types.Origin, upstream string, typ types.ArtifactType, name string) (*types.Artifact, error)
}

// Resolution names how an identity was established.
type Resolution string

const (
	ResolutionContentMatch  Resolution = "content-match"
	ResolutionUpstreamMatch Resolution = "upstream-match"
	ResolutionNew           Resolution = "new"
)

// Identity is the outcome of ResolveIdentity. Existing is the matched row
// for content and upstream matches, nil for new artifacts.
type Identity struct {
	UUID       string
	Existing   *types.Artifact
	Resolution Resolution
}

// ResolveIdentity maps a normalized artifact onto a uuid.
//
// Lookup order: exact content hash in the collection (unchanged content,
// possibly renamed or moved), then the (origin, upstream, type, name) tuple
// (same artifact, changed content), then a fresh uuid.
func ResolveIdentity(ctx context.Context, finder Finder, collectionID string, n *Normalized) (*Identity, error) {
	a, err := finder.FindArtifactByContentHash(ctx, collectionID, n.ContentHash)
	if err == nil {
		return &Identity{UUID: a.UUID, Existing: a, Resolution: ResolutionContentMatch}, nil
	}
	if !types.IsNotFound(err) {
		return nil, err
	}

	a, err = finder.FindArtifactByUpstream(ctx, n.Origin, n.Upstream, n.Type, n.Name)
	if err == nil {
		return &Identity{UUID: a.UUID, Existing: a, Resolution: ResolutionUpstreamMatch}, nil
	}
	if !types.IsNotFound(err) {
		return nil, err
	}

	return &Identity{UUID: uuid.NewString(), Resolution: ResolutionNew}, nil
}
