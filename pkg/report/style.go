// Package report renders tdbctl's static, one-shot command output - table
// dumps, verify summaries - with the same lipgloss palette and layout
// helpers the teacher's interactive readers used for their TUI screens,
// adapted here to a single render pass with no running bubbletea Program.
package report

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	darkPrimary  = lipgloss.Color("#7C3AED")
	darkAccent   = lipgloss.Color("#10B981")
	darkWarning  = lipgloss.Color("#F59E0B")
	darkError    = lipgloss.Color("#EF4444")
	darkMuted    = lipgloss.Color("#94A3B8")
	lightPrimary = lipgloss.Color("#5A56E0")
	lightAccent  = lipgloss.Color("#02BA84")
	lightWarning = lipgloss.Color("#FF8C00")
	lightError   = lipgloss.Color("#FF5F56")
	lightMuted   = lipgloss.Color("#9B9B9B")
)

var (
	primaryColor = lipgloss.AdaptiveColor{Light: string(lightPrimary), Dark: string(darkPrimary)}
	successColor = lipgloss.AdaptiveColor{Light: string(lightAccent), Dark: string(darkAccent)}
	warningColor = lipgloss.AdaptiveColor{Light: string(lightWarning), Dark: string(darkWarning)}
	errorColor   = lipgloss.AdaptiveColor{Light: string(lightError), Dark: string(darkError)}
	mutedColor   = lipgloss.AdaptiveColor{Light: string(lightMuted), Dark: string(darkMuted)}
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(primaryColor).Bold(true).Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(primaryColor).
			Bold(true).
			Padding(0, 1)

	okStyle   = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	errStyle  = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor)

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(1, 2)
)

// Title renders a bold, padded section heading.
func Title(s string) string { return titleStyle.Render(s) }

// OK renders s in the success color, for a passing verify check.
func OK(s string) string { return okStyle.Render(s) }

// Warn renders s in the warning color.
func Warn(s string) string { return warnStyle.Render(s) }

// Fail renders s in the error color, for a failing verify check.
func Fail(s string) string { return errStyle.Render(s) }

// Muted renders s de-emphasized, for secondary detail lines.
func Muted(s string) string { return mutedStyle.Render(s) }

// Box wraps s in a rounded border, used for the top-level command summary.
func Box(s string) string { return boxStyle.Render(s) }

// Table renders rows under header as a lipgloss-aligned text table, column
// widths computed from the widest cell per column - the same fixed-width
// layout the teacher's paging readers used, collapsed to one static render.
func Table(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(padRow(header, widths)))
	b.WriteString("\n")
	for _, row := range rows {
		b.WriteString(padRow(row, widths))
		b.WriteString("\n")
	}
	return b.String()
}

func padRow(row []string, widths []int) string {
	cells := make([]string, len(row))
	for i, cell := range row {
		w := 0
		if i < len(widths) {
			w = widths[i]
		}
		cells[i] = padString(cell, w)
	}
	return strings.Join(cells, "  ")
}

func padString(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
