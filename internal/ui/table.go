package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/skillmeat/skillmeat/internal/types"
)

// Table Styles
var (
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorAccent).
				Align(lipgloss.Center)

	TableWarningStyle = lipgloss.NewStyle().
				Foreground(ColorWarn)

	TableSuccessStyle = lipgloss.NewStyle().
				Foreground(ColorPass)

	TableHintStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	TableBorderStyle = lipgloss.NewStyle().
				Foreground(ColorMuted)
)

// newTable creates a bordered table with the shared styling.
func newTable(width int, headers ...string) *table.Table {
	return table.New().
		Headers(headers...).
		Border(lipgloss.RoundedBorder()).
		BorderStyle(TableBorderStyle).
		Width(width).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Left)
		})
}

// Truncate shortens s to max runes, marking the cut with an ellipsis.
func Truncate(s string, max int) string {
	if max <= 3 {
		max = 3
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

// RenderArtifactTable lays artifacts out as a bordered listing.
func RenderArtifactTable(artifacts []*types.Artifact, width int) string {
	if len(artifacts) == 0 {
		return TableHintStyle.Render("No artifacts in the collection.")
	}

	rows := make([][]string, 0, len(artifacts))
	for _, a := range artifacts {
		version := a.ResolvedVersion
		if version == "" {
			version = "-"
		}
		tags := strings.Join(a.Tags, ", ")
		if tags == "" {
			tags = "-"
		}
		rows = append(rows, []string{
			a.Name,
			RenderType(a.Type),
			string(a.Origin),
			version,
			Truncate(tags, 30),
		})
	}
	return newTable(width, "NAME", "TYPE", "ORIGIN", "VERSION", "TAGS").
		Rows(rows...).
		String()
}

// DeploymentRow pairs a deployment with its artifact and a computed state
// label (ok, modified, missing) for display.
type DeploymentRow struct {
	Deployment *types.Deployment
	Artifact   *types.Artifact
	State      string
}

// RenderDeploymentTable lays a project's deployments out as a bordered table.
func RenderDeploymentTable(rows []DeploymentRow, width int) string {
	if len(rows) == 0 {
		return TableHintStyle.Render("Nothing deployed here.")
	}

	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		name := ShortID(r.Deployment.ArtifactUUID)
		typ := "-"
		if r.Artifact != nil {
			name = r.Artifact.Name
			typ = RenderType(r.Artifact.Type)
		}
		cells = append(cells, []string{
			name,
			typ,
			r.Deployment.ProfileID,
			RenderStatusIcon(r.State) + " " + RenderStatus(r.State),
			formatAge(r.Deployment.DeployedAt),
		})
	}
	return newTable(width, "NAME", "TYPE", "PROFILE", "STATE", "DEPLOYED").
		Rows(cells...).
		String()
}

// RenderMemoryTable lays memory items out as a bordered table.
func RenderMemoryTable(items []*types.MemoryItem, width int) string {
	if len(items) == 0 {
		return TableHintStyle.Render("No memory items recorded.")
	}

	contentWidth := width - 50
	if contentWidth < 20 {
		contentWidth = 20
	}
	rows := make([][]string, 0, len(items))
	for _, m := range items {
		rows = append(rows, []string{
			RenderID(ShortID(m.ID)),
			string(m.Type),
			RenderStatus(string(m.Status)),
			fmt.Sprintf("%.2f", m.Confidence),
			Truncate(strings.ReplaceAll(m.Content, "\n", " "), contentWidth),
		})
	}
	return newTable(width, "ID", "TYPE", "STATUS", "CONF", "CONTENT").
		Rows(rows...).
		String()
}

// RenderSnapshotTable lays snapshots out newest first.
func RenderSnapshotTable(snaps []*types.Snapshot, width int) string {
	if len(snaps) == 0 {
		return TableHintStyle.Render("No snapshots yet.")
	}

	rows := make([][]string, 0, len(snaps))
	for _, s := range snaps {
		rows = append(rows, []string{
			RenderID(ShortID(s.ID)),
			s.Scope,
			string(s.Reason),
			fmt.Sprintf("%d files", len(s.Tree)),
			formatAge(s.CreatedAt),
		})
	}
	return newTable(width, "ID", "SCOPE", "REASON", "FILES", "CREATED").
		Rows(rows...).
		String()
}

// formatAge renders a timestamp as a short relative age.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
	return t.Format("2006-01-02")
}
