package composite

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/skillmeat/skillmeat/internal/fsio"
	"github.com/skillmeat/skillmeat/internal/index"
	"github.com/skillmeat/skillmeat/internal/storage"
	"github.com/skillmeat/skillmeat/internal/types"
)

// ImportOptions carries provenance for a filesystem import.
type ImportOptions struct {
	Origin      types.Origin
	Upstream    string
	VersionSpec string
}

// ChildImport reports one embedded child after import. Reused is true when
// an existing collection row satisfied the child instead of a new one.
type ChildImport struct {
	Artifact *types.Artifact
	Reused   bool
}

// ImportResult reports an atomic composite import.
type ImportResult struct {
	Artifact  *types.Artifact          // the skill row; nil for manifest imports
	Composite *types.CompositeArtifact // companion composite row
	Children  []ChildImport
	Reimport  bool // the composite matched an existing row
}

// ImportSkill imports a skill directory together with its embedded children
// (commands/, agents/, hooks/, mcps/) in a single transaction. The skill's
// own content hash excludes the embedded subtrees, so re-editing a child does
// not change the parent's identity. Children already present in the
// collection are reused by content hash; memberships are idempotent, so
// re-importing the same directory is a no-op apart from refreshed hashes.
func (e *Engine) ImportSkill(ctx context.Context, collectionID, skillDir string, opts ImportOptions) (*ImportResult, error) {
	parent, err := index.Normalize(index.DetectedArtifact{
		Name:        filepath.Base(skillDir),
		Type:        types.TypeSkill,
		Path:        skillDir,
		Origin:      opts.Origin,
		Upstream:    opts.Upstream,
		VersionSpec: opts.VersionSpec,
	})
	if err != nil {
		return nil, err
	}

	detected, err := index.EmbeddedChildren(skillDir, opts.Origin, opts.Upstream)
	if err != nil {
		return nil, err
	}
	children := make([]*index.Normalized, 0, len(detected))
	for _, det := range detected {
		n, err := index.Normalize(det)
		if err != nil {
			return nil, err
		}
		children = append(children, n)
	}

	artifactsRoot, err := e.artifactsRoot(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{}
	err = e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		skill, created, err := resolveInto(ctx, tx, collectionID, artifactsRoot, parent)
		if err != nil {
			return err
		}
		res.Artifact = skill
		res.Reimport = !created

		comp, err := ensureCompanionComposite(ctx, tx, collectionID, skill)
		if err != nil {
			return err
		}
		res.Composite = comp

		for i, cn := range children {
			child, createdChild, err := resolveInto(ctx, tx, collectionID, artifactsRoot, cn)
			if err != nil {
				return err
			}
			if err := tx.AddCompositeMember(ctx, &types.CompositeMembership{
				CompositeID: comp.ID,
				ChildUUID:   child.UUID,
				Position:    float64(i + 1),
			}); err != nil {
				return err
			}
			res.Children = append(res.Children, ChildImport{Artifact: child, Reused: !createdChild})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ImportManifest imports a plugin/stack/suite directory described by its
// plugin.json. Each child path must stay inside the manifest directory.
// The import is atomic; children dedup by content hash like skill children.
func (e *Engine) ImportManifest(ctx context.Context, collectionID, dir string, opts ImportOptions) (*ImportResult, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}

	children := make([]*index.Normalized, 0, len(m.Children))
	for _, entry := range m.Children {
		path, err := fsio.ResolvePath(dir, filepath.FromSlash(entry.Path))
		if err != nil {
			return nil, err
		}
		n, err := index.Normalize(index.DetectedArtifact{
			Name:        entry.Name,
			Type:        types.ArtifactType(entry.Type),
			Path:        path,
			Origin:      opts.Origin,
			Upstream:    opts.Upstream,
			VersionSpec: opts.VersionSpec,
		})
		if err != nil {
			return nil, err
		}
		children = append(children, n)
	}

	artifactsRoot, err := e.artifactsRoot(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	// Manifest composites have no companion Artifact row; identity is the
	// (collection, type, name) triple.
	existing, err := e.findCompositeByName(ctx, collectionID, m.CompositeType(), index.CanonicalName(m.Name))
	if err != nil {
		return nil, err
	}

	res := &ImportResult{}
	err = e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		comp := existing
		if comp == nil {
			comp = &types.CompositeArtifact{
				CollectionID:  collectionID,
				CompositeType: m.CompositeType(),
				Name:          index.CanonicalName(m.Name),
				Metadata:      manifestMetadata(m),
			}
			if err := tx.CreateComposite(ctx, comp); err != nil {
				return err
			}
		} else {
			res.Reimport = true
		}
		res.Composite = comp

		for i, cn := range children {
			child, created, err := resolveInto(ctx, tx, collectionID, artifactsRoot, cn)
			if err != nil {
				return err
			}
			if err := tx.AddCompositeMember(ctx, &types.CompositeMembership{
				CompositeID: comp.ID,
				ChildUUID:   child.UUID,
				Position:    float64(i + 1),
			}); err != nil {
				return err
			}
			res.Children = append(res.Children, ChildImport{Artifact: child, Reused: !created})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ImportDetected imports a standalone artifact (single file or plain
// directory) without composite expansion, applying the same identity
// resolution skill and manifest imports use. Returns the resolved row and
// whether a fresh row was created.
func (e *Engine) ImportDetected(ctx context.Context, collectionID string, det index.DetectedArtifact) (*types.Artifact, bool, error) {
	n, err := index.Normalize(det)
	if err != nil {
		return nil, false, err
	}
	artifactsRoot, err := e.artifactsRoot(ctx, collectionID)
	if err != nil {
		return nil, false, err
	}
	var (
		a       *types.Artifact
		created bool
	)
	err = e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		var txErr error
		a, created, txErr = resolveInto(ctx, tx, collectionID, artifactsRoot, n)
		return txErr
	})
	if err != nil {
		return nil, false, err
	}
	return a, created, nil
}

// resolveInto maps a normalized artifact onto a collection row: content match
// reuses the row untouched, upstream match refreshes hash and pattern, and a
// miss creates a fresh row. Returns the row and whether it was created.
func resolveInto(ctx context.Context, tx storage.Transaction, collectionID, artifactsRoot string, n *index.Normalized) (*types.Artifact, bool, error) {
	id, err := index.ResolveIdentity(ctx, tx, collectionID, n)
	if err != nil {
		return nil, false, err
	}

	switch id.Resolution {
	case index.ResolutionContentMatch:
		return id.Existing, false, nil

	case index.ResolutionUpstreamMatch:
		upd := storage.ArtifactUpdate{
			ContentHash: &n.ContentHash,
			PathPattern: &n.PathPattern,
		}
		if n.VersionSpec != "" {
			upd.VersionSpec = &n.VersionSpec
		}
		if n.Version != "" {
			upd.ResolvedVersion = &n.Version
		}
		if len(n.Tags) > 0 {
			tags := n.Tags
			upd.Tags = &tags
		}
		if md := mergeSourcePath(id.Existing.Metadata, artifactsRoot, n.Path); md != nil {
			upd.Metadata = &md
		}
		if err := tx.UpdateArtifact(ctx, id.UUID, upd); err != nil {
			return nil, false, err
		}
		refreshed, err := tx.GetArtifact(ctx, id.UUID)
		if err != nil {
			return nil, false, err
		}
		return refreshed, false, nil

	default:
		a := &types.Artifact{
			UUID:            id.UUID,
			CollectionID:    collectionID,
			Name:            n.Name,
			Type:            n.Type,
			Origin:          n.Origin,
			Upstream:        n.Upstream,
			VersionSpec:     n.VersionSpec,
			ResolvedVersion: n.Version,
			ContentHash:     n.ContentHash,
			PathPattern:     n.PathPattern,
			Tags:            n.Tags,
		}
		md := map[string]string{}
		if n.Description != "" {
			md["description"] = n.Description
		}
		if rel := sourceRel(artifactsRoot, n.Path); rel != "" {
			md["source_path"] = rel
		}
		if len(md) > 0 {
			a.Metadata = md
		}
		if err := tx.CreateArtifact(ctx, a); err != nil {
			return nil, false, err
		}
		return a, true, nil
	}
}

// sourceRel returns the slash-separated path of abs inside the collection's
// artifacts root, or "" when abs lives elsewhere. Artifacts stored at their
// canonical location derive their source from the path pattern; embedded
// children live inside their parent's directory and need the recorded path.
func sourceRel(artifactsRoot, abs string) string {
	if artifactsRoot == "" || abs == "" {
		return ""
	}
	rel, err := filepath.Rel(artifactsRoot, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	return filepath.ToSlash(rel)
}

// mergeSourcePath returns a metadata bag with source_path updated, or nil when
// nothing needs writing.
func mergeSourcePath(existing map[string]string, artifactsRoot, abs string) map[string]string {
	rel := sourceRel(artifactsRoot, abs)
	if rel == "" || existing["source_path"] == rel {
		return nil
	}
	md := make(map[string]string, len(existing)+1)
	for k, v := range existing {
		md[k] = v
	}
	md["source_path"] = rel
	return md
}

// artifactsRoot resolves a collection's canonical storage directory.
func (e *Engine) artifactsRoot(ctx context.Context, collectionID string) (string, error) {
	col, err := e.store.GetCollection(ctx, collectionID)
	if err != nil {
		return "", err
	}
	return filepath.Join(col.Root, "artifacts"), nil
}

// ensureCompanionComposite finds or creates the composite row back-referencing
// a skill artifact through metadata.artifact_uuid.
func ensureCompanionComposite(ctx context.Context, tx storage.Transaction, collectionID string, skill *types.Artifact) (*types.CompositeArtifact, error) {
	comp, err := tx.FindCompositeForArtifact(ctx, skill.UUID)
	if err == nil {
		return comp, nil
	}
	if !types.IsNotFound(err) {
		return nil, err
	}

	comp = &types.CompositeArtifact{
		CollectionID:  collectionID,
		CompositeType: types.CompositeSkill,
		Name:          skill.Name,
		Metadata:      map[string]string{"artifact_uuid": skill.UUID},
	}
	if err := tx.CreateComposite(ctx, comp); err != nil {
		return nil, err
	}
	return comp, nil
}

func (e *Engine) findCompositeByName(ctx context.Context, collectionID string, ct types.CompositeType, name string) (*types.CompositeArtifact, error) {
	all, err := e.store.ListComposites(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	for _, c := range all {
		if c.CompositeType == ct && c.Name == name {
			return c, nil
		}
	}
	return nil, nil
}

func manifestMetadata(m *Manifest) map[string]string {
	md := map[string]string{}
	if m.Description != "" {
		md["description"] = m.Description
	}
	if m.Version != "" {
		md["version"] = m.Version
	}
	if len(md) == 0 {
		return nil
	}
	return md
}

