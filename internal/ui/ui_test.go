package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/skillmeat/skillmeat/internal/types"
)

func TestMain(m *testing.M) {
	// Plain output keeps assertions independent of the host terminal.
	lipgloss.SetColorProfile(termenv.Ascii)
	m.Run()
}

func TestRenderArtifactTableListsRows(t *testing.T) {
	artifacts := []*types.Artifact{
		{Name: "code-review", Type: types.TypeCommand, Origin: types.OriginLocal, Tags: []string{"review"}},
		{Name: "pdf-tools", Type: types.TypeSkill, Origin: types.OriginGitHub, ResolvedVersion: "v1.2.0"},
	}
	out := RenderArtifactTable(artifacts, 100)

	for _, want := range []string{"code-review", "pdf-tools", "command", "skill", "v1.2.0", "github"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestRenderArtifactTableEmpty(t *testing.T) {
	out := RenderArtifactTable(nil, 80)
	if !strings.Contains(out, "No artifacts") {
		t.Errorf("empty table = %q, want hint text", out)
	}
}

func TestRenderDeploymentTableShowsState(t *testing.T) {
	rows := []DeploymentRow{
		{
			Deployment: &types.Deployment{ArtifactUUID: "abc", ProfileID: "default", DeployedAt: time.Now().Add(-2 * time.Hour)},
			Artifact:   &types.Artifact{Name: "code-review", Type: types.TypeCommand},
			State:      "modified",
		},
	}
	out := RenderDeploymentTable(rows, 100)
	if !strings.Contains(out, "modified") || !strings.Contains(out, "code-review") {
		t.Errorf("deployment table missing state or name:\n%s", out)
	}
	if !strings.Contains(out, "2h ago") {
		t.Errorf("deployment table missing relative age:\n%s", out)
	}
}

func TestRenderTreeNesting(t *testing.T) {
	out := RenderTree("frontend", []TreeNode{
		{Label: "code-review"},
		{Label: "review-suite", Children: []TreeNode{{Label: "lint"}, {Label: "fmt"}}},
	})
	for _, want := range []string{"frontend", "code-review", "review-suite", "lint", "fmt"} {
		if !strings.Contains(out, want) {
			t.Errorf("tree missing %q:\n%s", want, out)
		}
	}
	// Nested members indent deeper than top-level ones.
	lintLine, suiteLine := "", ""
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "lint") {
			lintLine = line
		}
		if strings.Contains(line, "review-suite") {
			suiteLine = line
		}
	}
	if strings.Index(lintLine, "lint") <= strings.Index(suiteLine, "review-suite") {
		t.Errorf("nested member not indented:\n%s", out)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate(short) = %q", got)
	}
	if got := Truncate("a very long string that should be cut", 10); got != "a very ..." {
		t.Errorf("Truncate = %q, want %q", got, "a very ...")
	}
}

func TestShortID(t *testing.T) {
	if got := ShortID("0123456789abcdef"); got != "01234567" {
		t.Errorf("ShortID = %q", got)
	}
	if got := ShortID("tiny"); got != "tiny" {
		t.Errorf("ShortID(tiny) = %q", got)
	}
}

func TestStatusStyleSeverity(t *testing.T) {
	cases := map[string]lipgloss.Style{
		"ok":         PassStyle,
		"in-sync":    PassStyle,
		"modified":   WarnStyle,
		"candidate":  WarnStyle,
		"missing":    FailStyle,
		"conflict":   FailStyle,
		"deprecated": FailStyle,
		"unknown":    MutedStyle,
	}
	for state, want := range cases {
		if got := GetStatusStyle(state); got.GetForeground() != want.GetForeground() {
			t.Errorf("GetStatusStyle(%q) has wrong color", state)
		}
	}
}

func TestRenderSuggestionsListsCandidates(t *testing.T) {
	out := RenderSuggestions("code-reveiw", []string{"code-review", "code-rewrite"}, 60)
	if !strings.Contains(out, "code-reveiw") || !strings.Contains(out, "code-review") {
		t.Errorf("suggestions missing query or candidate:\n%s", out)
	}
	if !strings.Contains(out, "Did you mean?") {
		t.Errorf("suggestions missing header:\n%s", out)
	}
}

func TestRenderInitReportSections(t *testing.T) {
	out := RenderInitReport(InitResult{
		StateDir:           "/home/u/.skillmeat",
		DBPath:             "/home/u/.skillmeat/skillmeat.db",
		CollectionName:     "default",
		CollectionRoot:     "/home/u/.skillmeat/collection",
		Identity:           "u",
		CreatedDirs:        []string{"collection/artifacts", "snapshots", "locks"},
		DoctorIssues:       []string{"ledger missing for project demo"},
		QuickstartCommands: []string{"skillmeat add ./my-skill", "skillmeat list"},
	}, 90)

	for _, want := range []string{"initialized", "skillmeat.db", "default", "ledger missing", "skillmeat add", "Next steps"} {
		if !strings.Contains(out, want) {
			t.Errorf("init report missing %q:\n%s", want, out)
		}
	}
}
