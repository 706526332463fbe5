package composite

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/skillmeat/skillmeat/internal/types"
)

// ManifestName is the descriptor file expected at a plugin root.
const ManifestName = "plugin.json"

// Manifest is the plugin.json descriptor enumerating a composite's children.
// Paths are relative to the manifest's directory.
type Manifest struct {
	Name        string          `json:"name"`
	Type        string          `json:"type,omitempty"` // plugin (default), stack, or suite
	Description string          `json:"description,omitempty"`
	Version     string          `json:"version,omitempty"`
	Children    []ManifestEntry `json:"children"`
}

// ManifestEntry names one child of a manifest composite.
type ManifestEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Name string `json:"name,omitempty"` // defaults to the path basename
}

// CompositeType maps the manifest's type field onto the stored enum.
func (m *Manifest) CompositeType() types.CompositeType {
	if m.Type == "" {
		return types.CompositePlugin
	}
	return types.CompositeType(m.Type)
}

// ReadManifest loads and validates the plugin.json inside dir.
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &types.FilesystemError{Op: "read", Path: path, Err: err}
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &types.ValidationError{Field: ManifestName, Reason: err.Error()}
	}
	if m.Name == "" {
		m.Name = filepath.Base(dir)
	}
	ct := m.CompositeType()
	if !ct.IsValid() || ct == types.CompositeSkill {
		return nil, &types.ValidationError{Field: "type", Reason: "manifest type must be plugin, stack, or suite"}
	}
	if len(m.Children) == 0 {
		return nil, &types.ValidationError{Field: "children", Reason: "manifest lists no children"}
	}
	for i, c := range m.Children {
		if c.Path == "" {
			return nil, &types.ValidationError{Field: "children", Reason: "child entry missing path"}
		}
		if !types.ArtifactType(c.Type).IsValid() {
			return nil, &types.ValidationError{Field: "children", Reason: "unknown artifact type " + c.Type}
		}
		if m.Children[i].Name == "" {
			base := filepath.Base(c.Path)
			m.Children[i].Name = trimKnownExt(base)
		}
	}
	return &m, nil
}

func trimKnownExt(name string) string {
	switch ext := filepath.Ext(name); ext {
	case ".md", ".json", ".yaml", ".yml", ".toml":
		return name[:len(name)-len(ext)]
	}
	return name
}
