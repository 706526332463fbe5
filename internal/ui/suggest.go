package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// renderSingleTable renders a simple list into a 1-column table with a header.
func renderSingleTable(title string, items []string, width int) string {
	if len(items) == 0 {
		return ""
	}

	rows := [][]string{}
	for i, item := range items {
		rows = append(rows, []string{fmt.Sprintf("%d. %s", i+1, item)})
	}

	return table.New().
		Headers(title).
		Border(lipgloss.RoundedBorder()).
		BorderStyle(TableBorderStyle).
		Width(width).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle.Width(width - 2)
			}
			return lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Left)
		}).
		String()
}

// RenderSuggestions shows "did you mean" candidates after a failed artifact
// lookup.
func RenderSuggestions(query string, suggestions []string, width int) string {
	var sections []string

	sections = append(sections, TableWarningStyle.Render(fmt.Sprintf("%s No artifact matches %q.", IconWarn, query)))

	if len(suggestions) > 0 {
		sections = append(sections, "")
		sections = append(sections, renderSingleTable("Did you mean?", suggestions, width))
	} else {
		sections = append(sections, TableHintStyle.Render("  Run `skillmeat list` to see what is in the collection."))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
