package fsio

import (
	"path/filepath"
	"strings"

	"github.com/skillmeat/skillmeat/internal/types"
)

// ClaudeDir is the project subtree owned by the deployment engine.
const ClaudeDir = ".claude"

// ResolvePath joins rel onto root and verifies the result stays inside root.
// Absolute rel paths and traversal via ".." are rejected with
// PathOutsideRootError.
func ResolvePath(root, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", &types.PathOutsideRootError{Path: rel, Root: root}
	}

	cleanRoot := filepath.Clean(root)
	joined := filepath.Clean(filepath.Join(cleanRoot, rel))

	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return "", &types.PathOutsideRootError{Path: rel, Root: root}
	}
	return joined, nil
}

// ResolveDeployPath is ResolvePath with the additional requirement that rel
// lives under .claude/. Deploy and context operations must not write
// anywhere else in a project.
func ResolveDeployPath(projectRoot, rel string) (string, error) {
	norm := filepath.ToSlash(rel)
	if norm != ClaudeDir && !strings.HasPrefix(norm, ClaudeDir+"/") {
		return "", &types.PathOutsideRootError{Path: rel, Root: filepath.Join(projectRoot, ClaudeDir)}
	}
	return ResolvePath(projectRoot, rel)
}
