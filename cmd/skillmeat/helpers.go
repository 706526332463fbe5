package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/skillmeat/skillmeat/internal/types"
	"github.com/skillmeat/skillmeat/internal/ui"
	"github.com/skillmeat/skillmeat/internal/utils"
)

// artifactTypes lists the types `--type` accepts.
var artifactTypes = []types.ArtifactType{
	types.TypeSkill, types.TypeCommand, types.TypeAgent, types.TypeHook,
	types.TypeMCPServer, types.TypeContext, types.TypeRule, types.TypeSpec,
}

func parseArtifactType(s string) (types.ArtifactType, error) {
	if s == "" {
		return "", nil
	}
	for _, t := range artifactTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", &types.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown artifact type %q (valid: %s)", s, joinTypes())}
}

func joinTypes() string {
	names := make([]string, len(artifactTypes))
	for i, t := range artifactTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// splitTypedRef splits "skill:code-review" into its type qualifier and name.
// Refs without a known type prefix pass through whole.
func splitTypedRef(ref string) (types.ArtifactType, string) {
	prefix, rest, ok := strings.Cut(ref, ":")
	if !ok {
		return "", ref
	}
	for _, t := range artifactTypes {
		if string(t) == prefix {
			return t, rest
		}
	}
	return "", ref
}

// resolveArtifact finds one artifact by UUID, name, or type:name within the
// resolved collection. Name misses print "did you mean" suggestions.
func resolveArtifact(ctx context.Context, a *app, ref string) *types.Artifact {
	if art, err := a.store.GetArtifact(ctx, ref); err == nil {
		return art
	}

	col := mustCollection(ctx, a)
	wantType, name := splitTypedRef(ref)

	page, err := a.store.ListArtifacts(ctx, types.ArtifactFilter{CollectionID: col.ID}, types.Page{})
	if err != nil {
		FatalErr(err)
	}

	var matches []*types.Artifact
	names := make([]string, 0, len(page.Artifacts))
	for _, art := range page.Artifacts {
		names = append(names, art.Name)
		if art.Name == name && (wantType == "" || art.Type == wantType) {
			matches = append(matches, art)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0]
	case 0:
		if jsonOutput {
			FatalErrorRespectJSON("artifact %q not found in collection %q", ref, col.Name)
		}
		fmt.Fprintln(os.Stderr, ui.RenderSuggestions(name, utils.ClosestMatches(name, names, 3), ui.GetWidth()))
		os.Exit(1)
	default:
		FatalErrorRespectJSON("artifact name %q matches multiple types; qualify it, e.g. skill:%s", name, name)
	}
	return nil
}

// resolveSet finds a deployment set by ID or name.
func resolveSet(ctx context.Context, a *app, ref string) *types.DeploymentSet {
	sets, err := a.orch.ListSets(ctx, "")
	if err != nil {
		FatalErr(err)
	}
	names := make([]string, 0, len(sets))
	for _, s := range sets {
		if s.ID == ref || s.Name == ref {
			return s
		}
		names = append(names, s.Name)
	}
	if jsonOutput {
		FatalErrorRespectJSON("set %q not found", ref)
	}
	fmt.Fprintln(os.Stderr, ui.RenderSuggestions(ref, utils.ClosestMatches(ref, names, 3), ui.GetWidth()))
	os.Exit(1)
	return nil
}

// resolveGroup finds a group by ID or name within the collection.
func resolveGroup(ctx context.Context, a *app, ref string) *types.Group {
	col := mustCollection(ctx, a)
	groups, err := a.store.ListGroups(ctx, col.ID)
	if err != nil {
		FatalErr(err)
	}
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		if g.ID == ref || g.Name == ref {
			return g
		}
		names = append(names, g.Name)
	}
	if jsonOutput {
		FatalErrorRespectJSON("group %q not found", ref)
	}
	fmt.Fprintln(os.Stderr, ui.RenderSuggestions(ref, utils.ClosestMatches(ref, names, 3), ui.GetWidth()))
	os.Exit(1)
	return nil
}

// projectPath normalizes the --project flag, defaulting to the CWD.
func projectPath(flag string) string {
	if flag == "" {
		flag = "."
	}
	abs, err := filepath.Abs(flag)
	if err != nil {
		FatalError("resolving project path: %v", err)
	}
	return abs
}

// parseTimeFlag accepts RFC3339, YYYY-MM-DD, bare durations ("72h", "30d"),
// and natural phrases ("2 weeks ago", "last monday").
func parseTimeFlag(s string) (time.Time, error) {
	now := time.Now()
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if d, err := parseExtendedDuration(s); err == nil {
		return now.Add(-d), nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	result, err := w.Parse(s, now)
	if err != nil {
		return time.Time{}, err
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("unrecognized time %q", s)
	}
	return result.Time, nil
}

// parseExtendedDuration is time.ParseDuration plus a "d" suffix for days.
func parseExtendedDuration(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		var days float64
		if _, err := fmt.Sscanf(s, "%fd", &days); err == nil {
			return time.Duration(days * 24 * float64(time.Hour)), nil
		}
	}
	return time.ParseDuration(s)
}
