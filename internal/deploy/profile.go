package deploy

import (
	"path"

	"github.com/skillmeat/skillmeat/internal/fsio"
	"github.com/skillmeat/skillmeat/internal/types"
)

// DefaultProfile is assumed when a deployment names no profile.
const DefaultProfile = "claude"

// Profile maps artifact types onto project-relative target directories.
// Every mapped directory must live under .claude/, which is the only project
// subtree the deployment engine owns.
type Profile struct {
	ID   string
	Dirs map[types.ArtifactType]string
}

// ClaudeProfile returns the built-in default profile: each artifact type
// deploys into .claude/<plural>/.
func ClaudeProfile() *Profile {
	dirs := make(map[types.ArtifactType]string, len(types.ValidArtifactTypes))
	for _, t := range types.ValidArtifactTypes {
		dirs[t] = path.Join(fsio.ClaudeDir, t.Plural())
	}
	return &Profile{ID: DefaultProfile, Dirs: dirs}
}

// LookupProfile resolves a profile id to its mapping. An empty id means the
// default. Unknown ids are rejected rather than guessed at.
func LookupProfile(id string) (*Profile, error) {
	switch id {
	case "", DefaultProfile:
		return ClaudeProfile(), nil
	}
	return nil, &types.ValidationError{Field: "profile", Reason: "unknown profile " + id}
}

// TargetRel computes the project-relative path (slash-separated) where the
// artifact lands under this profile. The final path segment comes from the
// artifact's path_pattern, so renames in the collection carry over.
func (p *Profile) TargetRel(a *types.Artifact) (string, error) {
	dir, ok := p.Dirs[a.Type]
	if !ok {
		return "", &types.ValidationError{Field: "type", Reason: "profile " + p.ID + " has no mapping for " + string(a.Type)}
	}
	if a.PathPattern == "" {
		return "", &types.ValidationError{Field: "path_pattern", Reason: "artifact has no path pattern"}
	}
	return path.Join(dir, path.Base(a.PathPattern)), nil
}
