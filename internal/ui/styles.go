package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/skillmeat/skillmeat/internal/types"
)

// Palette. Adaptive pairs pick a readable shade for light and dark terminals.
var (
	ColorAccent = lipgloss.AdaptiveColor{Light: "25", Dark: "39"}   // blue
	ColorPass   = lipgloss.AdaptiveColor{Light: "28", Dark: "42"}   // green
	ColorWarn   = lipgloss.AdaptiveColor{Light: "130", Dark: "214"} // orange
	ColorFail   = lipgloss.AdaptiveColor{Light: "124", Dark: "196"} // red
	ColorMuted  = lipgloss.AdaptiveColor{Light: "245", Dark: "243"} // gray
)

// Status icons.
const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
)

var (
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	BoldStyle   = lipgloss.NewStyle().Bold(true)
	IDStyle     = lipgloss.NewStyle().Foreground(ColorMuted)
)

func RenderPass(s string) string   { return PassStyle.Render(s) }
func RenderWarn(s string) string   { return WarnStyle.Render(s) }
func RenderFail(s string) string   { return FailStyle.Render(s) }
func RenderAccent(s string) string { return AccentStyle.Render(s) }
func RenderMuted(s string) string  { return MutedStyle.Render(s) }
func RenderBold(s string) string   { return BoldStyle.Render(s) }
func RenderID(s string) string     { return IDStyle.Render(s) }

// ShortID abbreviates a UUID for display.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Per-type styles so artifact listings stay scannable.
var (
	TypeSkillStyle     = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "90", Dark: "177"})
	TypeCommandStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "25", Dark: "39"})
	TypeAgentStyle     = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "42"})
	TypeHookStyle      = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "130", Dark: "214"})
	TypeMCPServerStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "30", Dark: "80"})
	TypeDefaultStyle   = lipgloss.NewStyle().Foreground(ColorMuted)
)

// RenderType colors an artifact type label.
func RenderType(t types.ArtifactType) string {
	switch t {
	case types.TypeSkill:
		return TypeSkillStyle.Render(string(t))
	case types.TypeCommand:
		return TypeCommandStyle.Render(string(t))
	case types.TypeAgent:
		return TypeAgentStyle.Render(string(t))
	case types.TypeHook:
		return TypeHookStyle.Render(string(t))
	case types.TypeMCPServer:
		return TypeMCPServerStyle.Render(string(t))
	}
	return TypeDefaultStyle.Render(string(t))
}

// GetStatusStyle maps a state label to its severity style. Labels come from
// deployment drift checks, sync previews, and memory statuses.
func GetStatusStyle(state string) lipgloss.Style {
	switch state {
	case "ok", "in-sync", "active", "stable", "applied":
		return PassStyle
	case "modified", "drifted", "candidate", "source-drift", "project-drift", "skipped":
		return WarnStyle
	case "missing", "conflict", "deprecated", "failed":
		return FailStyle
	}
	return MutedStyle
}

// GetStatusIcon maps a state label to a one-glyph marker.
func GetStatusIcon(state string) string {
	switch state {
	case "ok", "in-sync", "active", "stable", "applied":
		return IconPass
	case "missing", "conflict", "deprecated", "failed":
		return IconFail
	}
	return IconWarn
}

// RenderStatus colors a state label.
func RenderStatus(state string) string {
	return GetStatusStyle(state).Render(state)
}

// RenderStatusIcon colors the icon for a state label.
func RenderStatusIcon(state string) string {
	return GetStatusStyle(state).Render(GetStatusIcon(state))
}

// ConfigureColors pins lipgloss to the terminal's capabilities before any
// styled output is produced, honoring NO_COLOR and CLICOLOR conventions.
func ConfigureColors() {
	switch {
	case !ShouldUseColor():
		lipgloss.SetColorProfile(termenv.Ascii)
	case !IsTerminal():
		// CLICOLOR_FORCE in a pipe: color without a profile query.
		lipgloss.SetColorProfile(termenv.ANSI256)
	default:
		lipgloss.SetColorProfile(termenv.ColorProfile())
	}
}
