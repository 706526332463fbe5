package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/list"
	"github.com/charmbracelet/lipgloss/table"
)

// InitResult aggregates what initialization created for the final report.
type InitResult struct {
	StateDir       string
	DBPath         string
	CollectionName string
	CollectionRoot string
	Identity       string

	CreatedDirs []string

	// Diagnostics
	DoctorIssues []string

	// Next steps
	QuickstartCommands []string
}

// RenderInitReport generates the closing report for the init command.
func RenderInitReport(res InitResult, width int) string {
	var sections []string

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPass).
		Render(IconPass + " skillmeat initialized")
	sections = append(sections, header, "")

	// Created directories as a checked list.
	if len(res.CreatedDirs) > 0 {
		l := list.New().
			Enumerator(func(_ list.Items, i int) string {
				return RenderPass(IconPass)
			}).
			EnumeratorStyle(lipgloss.NewStyle().MarginRight(1))
		for _, d := range res.CreatedDirs {
			l.Item(d)
		}
		sections = append(sections, l.String(), "")
	}

	detailsRows := [][]string{
		{"State dir", res.StateDir},
		{"Database", res.DBPath},
		{"Collection", res.CollectionName + " → " + res.CollectionRoot},
		{"Identity", res.Identity},
	}
	summaryTable := table.New().
		Headers("Component", "Location").
		Rows(detailsRows...).
		Border(lipgloss.RoundedBorder()).
		BorderStyle(TableBorderStyle).
		Width(width).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				if col == 0 {
					return TableHeaderStyle.Width(20)
				}
				return TableHeaderStyle.Width(width - 20 - 3)
			}
			style := lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Left)
			if col == 0 {
				style = style.Bold(true).Foreground(ColorAccent)
			}
			return style
		})
	sections = append(sections, summaryTable.String(), "")

	if len(res.DoctorIssues) > 0 {
		warnBox := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorWarn).
			Padding(0, 1).
			Width(width - 2)

		var warnContent []string
		warnContent = append(warnContent, lipgloss.NewStyle().Bold(true).Foreground(ColorWarn).Render(IconWarn+" Setup warnings:"))
		for _, issue := range res.DoctorIssues {
			warnContent = append(warnContent, "  • "+issue)
		}
		warnContent = append(warnContent, "", "Run "+RenderAccent("skillmeat doctor --fix")+" to resolve.")
		sections = append(sections, warnBox.Render(strings.Join(warnContent, "\n")), "")
	}

	if len(res.QuickstartCommands) > 0 {
		sections = append(sections, RenderBold("Next steps:"))
		for _, cmd := range res.QuickstartCommands {
			sections = append(sections, "  • "+RenderAccent(cmd))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
