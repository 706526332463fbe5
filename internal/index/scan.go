package index

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/skillmeat/skillmeat/internal/fsio"
	"github.com/skillmeat/skillmeat/internal/types"
)

// skillManifest marks a directory as a skill artifact.
const skillManifest = "SKILL.md"

// Scan walks root and returns every artifact it can identify, sorted by
// (type, name) for deterministic import order.
//
// Recognized shapes:
//
//   - a directory containing SKILL.md is a skill (root itself included)
//   - <plural>/<name>/ directories under root (or root/artifacts/) hold
//     directory artifacts of that type
//   - <plural>/<name>.md and <plural>/<name>.json files hold single-file
//     artifacts
//
// Unrecognized files are skipped silently; discovery is best-effort and the
// caller decides what to import.
func Scan(root string, origin types.Origin, upstream string) ([]DetectedArtifact, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, &types.FilesystemError{Op: "stat", Path: root, Err: err}
	}
	if !info.IsDir() {
		det, ok := detectFile(root, origin, upstream)
		if !ok {
			return nil, nil
		}
		return []DetectedArtifact{det}, nil
	}

	// A directory that is itself a skill.
	if isSkillDir(root) {
		return []DetectedArtifact{{
			Name:     filepath.Base(root),
			Type:     types.TypeSkill,
			Path:     root,
			Origin:   origin,
			Upstream: upstream,
		}}, nil
	}

	base := root
	if sub := filepath.Join(root, "artifacts"); dirExists(sub) {
		base = sub
	}

	var out []DetectedArtifact
	for _, typ := range types.ValidArtifactTypes {
		typedDir := filepath.Join(base, typ.Plural())
		if !dirExists(typedDir) {
			continue
		}
		found, err := scanTypedDir(typedDir, typ, origin, upstream)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func scanTypedDir(dir string, typ types.ArtifactType, origin types.Origin, upstream string) ([]DetectedArtifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &types.FilesystemError{Op: "readdir", Path: dir, Err: err}
	}

	var out []DetectedArtifact
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)
		if e.IsDir() {
			out = append(out, DetectedArtifact{
				Name:     name,
				Type:     typ,
				Path:     path,
				Origin:   origin,
				Upstream: upstream,
			})
			continue
		}
		switch filepath.Ext(name) {
		case ".md", ".json", ".yaml", ".yml":
			out = append(out, DetectedArtifact{
				Name:     strings.TrimSuffix(name, filepath.Ext(name)),
				Type:     typ,
				Path:     path,
				Origin:   origin,
				Upstream: upstream,
			})
		}
	}
	return out, nil
}

// detectFile classifies a lone file by its parent directory name.
func detectFile(path string, origin types.Origin, upstream string) (DetectedArtifact, bool) {
	parent := filepath.Base(filepath.Dir(path))
	for _, typ := range types.ValidArtifactTypes {
		if typ.Plural() == parent {
			return DetectedArtifact{
				Name:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
				Type:     typ,
				Path:     path,
				Origin:   origin,
				Upstream: upstream,
			}, true
		}
	}
	return DetectedArtifact{}, false
}

// EmbeddedChildren looks inside a skill directory for typed subdirectories
// holding embedded companion artifacts (the skill-with-embedded composite
// shape). The skill's own manifest and reference files are not children.
func EmbeddedChildren(skillDir string, origin types.Origin, upstream string) ([]DetectedArtifact, error) {
	embedded := map[string]types.ArtifactType{
		"commands":    types.TypeCommand,
		"agents":      types.TypeAgent,
		"hooks":       types.TypeHook,
		"mcps":        types.TypeMCPServer,
		"mcp-servers": types.TypeMCPServer,
	}

	var out []DetectedArtifact
	for dirName, typ := range embedded {
		typedDir := filepath.Join(skillDir, dirName)
		if !dirExists(typedDir) {
			continue
		}
		found, err := scanTypedDir(typedDir, typ, origin, upstream)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// HasEmbeddedChildren reports whether a skill directory carries any typed
// subdirectory, without scanning file contents.
func HasEmbeddedChildren(skillDir string) bool {
	for _, dirName := range embeddedDirNames {
		if dirExists(filepath.Join(skillDir, dirName)) {
			return true
		}
	}
	return false
}

var embeddedDirNames = []string{"commands", "agents", "hooks", "mcps", "mcp-servers"}

// FilterEmbedded drops tree entries that live under an embedded child
// directory, leaving only the files that belong to the parent skill.
func FilterEmbedded(entries []fsio.TreeEntry) []fsio.TreeEntry {
	var out []fsio.TreeEntry
outer:
	for _, e := range entries {
		for _, dirName := range embeddedDirNames {
			if strings.HasPrefix(e.Path, dirName+"/") {
				continue outer
			}
		}
		out = append(out, e)
	}
	return out
}

func isSkillDir(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, skillManifest))
	return err == nil && !info.IsDir()
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
