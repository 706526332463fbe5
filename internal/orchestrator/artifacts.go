package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/skillmeat/skillmeat/internal/composite"
	"github.com/skillmeat/skillmeat/internal/deploy"
	"github.com/skillmeat/skillmeat/internal/events"
	"github.com/skillmeat/skillmeat/internal/fsio"
	"github.com/skillmeat/skillmeat/internal/index"
	"github.com/skillmeat/skillmeat/internal/locks"
	"github.com/skillmeat/skillmeat/internal/storage"
	"github.com/skillmeat/skillmeat/internal/types"
)

// ImportRequest describes a filesystem import into a collection.
type ImportRequest struct {
	// Path is the source file or directory.
	Path string
	// Type may be left empty for shapes the scanner can infer on its own
	// (SKILL.md directories, plugin.json manifests).
	Type types.ArtifactType
	// Collection selects a collection by name; empty means the active one.
	Collection  string
	Origin      types.Origin
	Upstream    string
	VersionSpec string
	Tags        []string
}

// ImportOutcome reports a completed import.
type ImportOutcome struct {
	Artifact  *types.Artifact
	Composite *types.CompositeArtifact
	Children  []composite.ChildImport
	Reimport  bool
	Snapshot  *types.Snapshot
}

// ImportArtifact copies the source into the collection's canonical storage
// and records it in the store. Skills with embedded children import as a
// coordinated composite; plugin.json directories import as manifest
// composites. Re-importing identical content is a no-op apart from the
// refreshed snapshot.
func (o *Orchestrator) ImportArtifact(ctx context.Context, req ImportRequest) (*ImportOutcome, error) {
	src, err := filepath.Abs(req.Path)
	if err != nil {
		return nil, &types.FilesystemError{Op: "abs", Path: req.Path, Err: err}
	}
	if !fsio.Exists(src) {
		return nil, &types.NotFoundError{Entity: "path", ID: src}
	}

	col, err := o.collection(ctx, req.Collection)
	if err != nil {
		return nil, err
	}

	shape, err := detectShape(src, req.Type)
	if err != nil {
		return nil, err
	}

	var out *ImportOutcome
	err = withRetry(ctx, func() error {
		release, lerr := o.locks.Acquire(ctx, locks.Collection(col.ID))
		if lerr != nil {
			return lerr
		}
		defer release()
		var runErr error
		out, runErr = o.importLocked(ctx, col, src, shape, req)
		return runErr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ImportComposite imports a plugin/stack/suite directory described by a
// plugin.json manifest. Offered separately so callers can insist on a
// manifest being present.
func (o *Orchestrator) ImportComposite(ctx context.Context, req ImportRequest) (*ImportOutcome, error) {
	src, err := filepath.Abs(req.Path)
	if err != nil {
		return nil, &types.FilesystemError{Op: "abs", Path: req.Path, Err: err}
	}
	if !fsio.Exists(filepath.Join(src, composite.ManifestName)) {
		return nil, &types.ValidationError{Field: "path", Reason: "no " + composite.ManifestName + " in " + src}
	}
	req.Path = src
	req.Type = ""
	return o.ImportArtifact(ctx, req)
}

// importShape classifies what an import source looks like.
type importShape struct {
	typ      types.ArtifactType // zero for manifests
	manifest bool
	isDir    bool
}

// detectShape infers the artifact shape of src. An explicit type wins;
// otherwise only unambiguous shapes are inferred.
func detectShape(src string, typ types.ArtifactType) (importShape, error) {
	info, err := os.Stat(src)
	if err != nil {
		return importShape{}, &types.FilesystemError{Op: "stat", Path: src, Err: err}
	}
	shape := importShape{isDir: info.IsDir()}

	if shape.isDir && fsio.Exists(filepath.Join(src, composite.ManifestName)) {
		shape.manifest = true
		return shape, nil
	}
	if typ != "" {
		if !typ.IsValid() {
			return importShape{}, &types.ValidationError{Field: "type", Reason: "unknown artifact type " + string(typ)}
		}
		shape.typ = typ
		return shape, nil
	}
	if shape.isDir && fsio.Exists(filepath.Join(src, "SKILL.md")) {
		shape.typ = types.TypeSkill
		return shape, nil
	}
	return importShape{}, &types.ValidationError{Field: "type", Reason: "cannot infer artifact type of " + src + "; pass one explicitly"}
}

func (o *Orchestrator) importLocked(ctx context.Context, col *types.Collection, src string, shape importShape, req ImportRequest) (*ImportOutcome, error) {
	opts := composite.ImportOptions{
		Origin:      req.Origin,
		Upstream:    req.Upstream,
		VersionSpec: req.VersionSpec,
	}

	// Materialize into canonical storage first: row contents (hashes,
	// source paths) derive from the final on-disk layout. A store failure
	// afterwards rolls the files back, so the pair converges either way.
	dst, undo, err := o.materialize(ctx, col, src, shape)
	if err != nil {
		return nil, err
	}

	out := &ImportOutcome{}
	switch {
	case shape.manifest:
		res, err := o.comp.ImportManifest(ctx, col.ID, dst, opts)
		if err != nil {
			undo()
			return nil, err
		}
		out.Composite = res.Composite
		out.Children = res.Children
		out.Reimport = res.Reimport

	case shape.typ == types.TypeSkill && index.HasEmbeddedChildren(dst):
		res, err := o.comp.ImportSkill(ctx, col.ID, dst, opts)
		if err != nil {
			undo()
			return nil, err
		}
		out.Artifact = res.Artifact
		out.Composite = res.Composite
		out.Children = res.Children
		out.Reimport = res.Reimport

	default:
		a, created, err := o.comp.ImportDetected(ctx, col.ID, index.DetectedArtifact{
			Type:        shape.typ,
			Path:        dst,
			Origin:      req.Origin,
			Upstream:    req.Upstream,
			VersionSpec: req.VersionSpec,
		})
		if err != nil {
			undo()
			return nil, err
		}
		out.Artifact = a
		out.Reimport = !created
	}

	if out.Artifact != nil && len(req.Tags) > 0 {
		tags := mergeTags(out.Artifact.Tags, req.Tags)
		if len(tags) != len(out.Artifact.Tags) {
			if err := o.store.UpdateArtifact(ctx, out.Artifact.UUID, storage.ArtifactUpdate{Tags: &tags}); err != nil {
				return nil, err
			}
			out.Artifact.Tags = tags
		}
	}

	snap, err := o.snaps.Create(ctx, types.CollectionScope(col.ID), col.Root, types.SnapshotAuto, o.by)
	if err != nil {
		return nil, err
	}
	out.Snapshot = snap

	kind := events.KindCreated
	if out.Reimport {
		kind = events.KindUpdated
	}
	switch {
	case out.Artifact != nil:
		o.emit(events.EntityArtifact, out.Artifact.UUID, kind, map[string]string{
			"name": out.Artifact.Name,
			"type": string(out.Artifact.Type),
		})
	case out.Composite != nil:
		o.emit(events.EntityArtifact, out.Composite.ID, kind, map[string]string{
			"name": out.Composite.Name,
			"type": string(out.Composite.CompositeType),
		})
	}
	return out, nil
}

// materialize copies src into the collection's canonical location for its
// shape and returns the destination plus an undo that restores the prior
// state. Sources already at their canonical path are left untouched.
func (o *Orchestrator) materialize(ctx context.Context, col *types.Collection, src string, shape importShape) (string, func(), error) {
	dst, err := o.canonicalDst(col, src, shape)
	if err != nil {
		return "", nil, err
	}
	if dst == src {
		return dst, func() {}, nil
	}

	existed := fsio.Exists(dst)
	if existed {
		// Replacing content: bracket with a snapshot so a store failure can
		// restore the previous bytes.
		pre, err := o.snaps.Create(ctx, types.CollectionScope(col.ID), col.Root, types.SnapshotAuto, o.by)
		if err != nil {
			return "", nil, err
		}
		if err := copyInto(src, dst, shape.isDir); err != nil {
			return "", nil, err
		}
		return dst, func() {
			_, _ = o.snaps.Rollback(ctx, pre.ID, col.Root, o.by)
		}, nil
	}

	if err := copyInto(src, dst, shape.isDir); err != nil {
		return "", nil, err
	}
	return dst, func() { _ = os.RemoveAll(dst) }, nil
}

// canonicalDst computes where src's files live inside the collection.
func (o *Orchestrator) canonicalDst(col *types.Collection, src string, shape importShape) (string, error) {
	root := filepath.Join(col.Root, "artifacts")

	if shape.manifest {
		m, err := composite.ReadManifest(src)
		if err != nil {
			return "", err
		}
		return fsio.ResolvePath(root, filepath.Join(compositeDir(m.CompositeType()), index.CanonicalName(m.Name)))
	}

	// Normalize against the source to learn the final name; frontmatter may
	// override the filename-derived one.
	n, err := index.Normalize(index.DetectedArtifact{Type: shape.typ, Path: src})
	if err != nil {
		return "", err
	}
	return fsio.ResolvePath(root, filepath.FromSlash(strings.TrimPrefix(n.PathPattern, fsio.ClaudeDir+"/")))
}

// compositeDir maps a composite type to its storage directory.
func compositeDir(ct types.CompositeType) string {
	return string(ct) + "s"
}

func copyInto(src, dst string, isDir bool) error {
	if isDir {
		staging, err := fsio.NewStagingDir(dst)
		if err != nil {
			return err
		}
		if err := fsio.CopyTree(src, staging); err != nil {
			os.RemoveAll(staging)
			return err
		}
		return fsio.AtomicReplaceDir(dst, staging)
	}
	data, err := fsio.ReadFile(src)
	if err != nil {
		return err
	}
	return fsio.WriteFileAtomic(dst, data, 0644)
}

func mergeTags(existing, add []string) []string {
	seen := make(map[string]bool, len(existing))
	out := append([]string(nil), existing...)
	for _, t := range existing {
		seen[t] = true
	}
	for _, t := range add {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// UpdateRequest carries mutable artifact fields. Nil fields stay untouched.
type UpdateRequest struct {
	Name        *string
	VersionSpec *string
	Tags        *[]string
	Metadata    *map[string]string
	// RefreshFrom re-imports content from this path, keeping identity.
	RefreshFrom string
}

// UpdateArtifact renames, retags, or refreshes an artifact. Renames move
// the canonical files; refreshes recompute the content hash.
func (o *Orchestrator) UpdateArtifact(ctx context.Context, uuid string, req UpdateRequest) (*types.Artifact, error) {
	a, err := o.store.GetArtifact(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if a.Metadata["read_only"] == "true" {
		return nil, &types.ReadOnlyArtifactError{UUID: uuid}
	}
	col, err := o.store.GetCollection(ctx, a.CollectionID)
	if err != nil {
		return nil, err
	}

	release, err := o.locks.Acquire(ctx, locks.Collection(col.ID))
	if err != nil {
		return nil, err
	}
	defer release()

	upd := storage.ArtifactUpdate{
		VersionSpec: req.VersionSpec,
		Tags:        req.Tags,
		Metadata:    req.Metadata,
	}

	if req.Name != nil && index.CanonicalName(*req.Name) != a.Name {
		newName := index.CanonicalName(*req.Name)
		if newName == "" {
			return nil, &types.ValidationError{Field: "name", Reason: "name is empty after canonicalization"}
		}
		pattern, err := o.renameFiles(col, a, newName)
		if err != nil {
			return nil, err
		}
		upd.Name = &newName
		upd.PathPattern = &pattern
	}

	if req.RefreshFrom != "" {
		refreshed, err := o.refreshContent(ctx, col, a, req.RefreshFrom)
		if err != nil {
			return nil, err
		}
		upd.ContentHash = &refreshed.ContentHash
		if refreshed.Version != "" {
			upd.ResolvedVersion = &refreshed.Version
		}
	}

	if err := o.store.UpdateArtifact(ctx, uuid, upd); err != nil {
		return nil, err
	}
	if _, err := o.snaps.Create(ctx, types.CollectionScope(col.ID), col.Root, types.SnapshotAuto, o.by); err != nil {
		return nil, err
	}

	a, err = o.store.GetArtifact(ctx, uuid)
	if err != nil {
		return nil, err
	}
	o.emit(events.EntityArtifact, uuid, events.KindUpdated, map[string]string{"name": a.Name})
	return a, nil
}

// renameFiles moves an artifact's canonical files to match newName and
// returns the new path pattern. Embedded children keep their recorded
// source_path and are unaffected.
func (o *Orchestrator) renameFiles(col *types.Collection, a *types.Artifact, newName string) (string, error) {
	if a.Metadata["source_path"] != "" {
		// Embedded child: files live inside the parent, only the row renames.
		return a.PathPattern, nil
	}
	oldPath, err := deploy.SourcePath(col, a)
	if err != nil {
		return "", err
	}
	ext := ""
	if !strings.HasSuffix(a.PathPattern, "/"+a.Name) {
		ext = filepath.Ext(a.PathPattern)
	}
	pattern := fsio.ClaudeDir + "/" + a.Type.Plural() + "/" + newName + ext
	newPath, err := fsio.ResolvePath(filepath.Join(col.Root, "artifacts"), filepath.FromSlash(strings.TrimPrefix(pattern, fsio.ClaudeDir+"/")))
	if err != nil {
		return "", err
	}
	if fsio.Exists(newPath) {
		return "", &types.ConflictError{Entity: "artifact path", ExistingID: newPath}
	}
	if !fsio.Exists(oldPath) {
		// Row-only rename; files were never materialized.
		return pattern, nil
	}
	if err := fsio.EnsureDir(filepath.Dir(newPath)); err != nil {
		return "", err
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return "", &types.FilesystemError{Op: "rename", Path: oldPath, Err: err}
	}
	return pattern, nil
}

// refreshContent re-copies an artifact's files from src and returns the
// normalized view of the new content.
func (o *Orchestrator) refreshContent(ctx context.Context, col *types.Collection, a *types.Artifact, src string) (*index.Normalized, error) {
	abs, err := filepath.Abs(src)
	if err != nil {
		return nil, &types.FilesystemError{Op: "abs", Path: src, Err: err}
	}
	dstShape := importShape{typ: a.Type, isDir: !strings.Contains(filepath.Base(a.PathPattern), ".")}
	if info, statErr := os.Stat(abs); statErr == nil {
		dstShape.isDir = info.IsDir()
	}
	dst, err := deploy.SourcePath(col, a)
	if err != nil {
		return nil, err
	}
	if abs != dst {
		if err := copyInto(abs, dst, dstShape.isDir); err != nil {
			return nil, err
		}
	}
	return index.Normalize(index.DetectedArtifact{Name: a.Name, Type: a.Type, Path: dst, Origin: a.Origin, Upstream: a.Upstream})
}

// DeleteArtifact removes an artifact's row, memberships, deployments, and
// canonical files. Embedded children of a deleted skill are salvaged to
// their own canonical paths so their rows stay deployable.
func (o *Orchestrator) DeleteArtifact(ctx context.Context, uuid string) error {
	a, err := o.store.GetArtifact(ctx, uuid)
	if err != nil {
		return err
	}
	if a.Metadata["read_only"] == "true" {
		return &types.ReadOnlyArtifactError{UUID: uuid}
	}
	col, err := o.store.GetCollection(ctx, a.CollectionID)
	if err != nil {
		return err
	}

	release, err := o.locks.Acquire(ctx, locks.Collection(col.ID))
	if err != nil {
		return err
	}
	defer release()

	srcPath, srcErr := deploy.SourcePath(col, a)

	// Skill parents carry a companion composite; salvage its children before
	// the parent's directory disappears, then drop the composite row.
	if a.Type == types.TypeSkill {
		if comp, err := o.store.FindCompositeForArtifact(ctx, uuid); err == nil {
			if err := o.salvageChildren(ctx, col, comp.ID, srcPath); err != nil {
				return err
			}
			if err := o.store.DeleteComposite(ctx, comp.ID); err != nil {
				return err
			}
		} else if !types.IsNotFound(err) {
			return err
		}
	}

	if err := o.store.DeleteArtifact(ctx, uuid); err != nil {
		return err
	}

	if srcErr == nil && a.Metadata["source_path"] == "" && fsio.Exists(srcPath) {
		if err := os.RemoveAll(srcPath); err != nil {
			return &types.FilesystemError{Op: "remove", Path: srcPath, Err: err}
		}
	}

	if _, err := o.snaps.Create(ctx, types.CollectionScope(col.ID), col.Root, types.SnapshotAuto, o.by); err != nil {
		return err
	}
	o.emit(events.EntityArtifact, uuid, events.KindDeleted, map[string]string{"name": a.Name})
	return nil
}

// salvageChildren relocates embedded children living under parentDir to
// their own canonical paths and clears their source_path so future deploys
// resolve against the new location.
func (o *Orchestrator) salvageChildren(ctx context.Context, col *types.Collection, compositeID, parentDir string) error {
	members, err := o.store.ListCompositeMembers(ctx, compositeID)
	if err != nil {
		return err
	}
	root := filepath.Join(col.Root, "artifacts")
	for _, m := range members {
		child, err := o.store.GetArtifact(ctx, m.ChildUUID)
		if err != nil {
			if types.IsNotFound(err) {
				continue
			}
			return err
		}
		rel := child.Metadata["source_path"]
		if rel == "" {
			continue
		}
		cur, err := fsio.ResolvePath(root, filepath.FromSlash(rel))
		if err != nil || !strings.HasPrefix(cur, parentDir+string(filepath.Separator)) {
			continue
		}
		if !fsio.Exists(cur) {
			continue
		}
		canonical, err := fsio.ResolvePath(root, filepath.FromSlash(strings.TrimPrefix(child.PathPattern, fsio.ClaudeDir+"/")))
		if err != nil {
			return err
		}
		info, err := os.Stat(cur)
		if err != nil {
			continue
		}
		if err := copyInto(cur, canonical, info.IsDir()); err != nil {
			return err
		}
		md := make(map[string]string, len(child.Metadata))
		for k, v := range child.Metadata {
			md[k] = v
		}
		delete(md, "source_path")
		if err := o.store.UpdateArtifact(ctx, child.UUID, storage.ArtifactUpdate{Metadata: &md}); err != nil {
			return err
		}
	}
	return nil
}
