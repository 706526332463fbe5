package ui

import "github.com/charmbracelet/glamour"

// RenderMarkdown renders markdown for terminal display, falling back to the
// raw text when stdout is not a terminal or rendering fails.
func RenderMarkdown(md string) string {
	if !IsTerminal() {
		return md
	}
	width := GetWidth()
	if width > 100 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
