// Package style provides consistent terminal styling using Lipgloss.
package style

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/vrcwmt/worldperm/internal/roster"
)

var (
	// Success style for applied changes
	Success = lipgloss.NewStyle().
		Foreground(lipgloss.Color("10")). // Green
		Bold(true)

	// Warning style for no-ops and pending saves
	Warning = lipgloss.NewStyle().
		Foreground(lipgloss.Color("11")). // Yellow
		Bold(true)

	// Error style for rejected requests
	Error = lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")). // Red
		Bold(true)

	Info = lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")) // Blue

	Dim = lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")) // Gray

	Bold = lipgloss.NewStyle().
		Bold(true)

	// Title heads listings and menu screens
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("13")). // Magenta
		MarginBottom(1)

	// Selected marks the highlighted menu entry
	Selected = lipgloss.NewStyle().
		Foreground(lipgloss.Color("14")). // Cyan
		Bold(true)

	SuccessPrefix = Success.Render("✓")
	WarningPrefix = Warning.Render("⚠")
	ErrorPrefix   = Error.Render("✗")
	ArrowPrefix   = Info.Render("→")
	LockPrefix    = Dim.Render("🔒")
)

var categoryColors = map[roster.Category]lipgloss.Color{
	roster.Securiter:     lipgloss.Color("12"),
	roster.Bar:           lipgloss.Color("14"),
	roster.DJ:            lipgloss.Color("13"),
	roster.Dieux:         lipgloss.Color("11"),
	roster.Admin:         lipgloss.Color("10"),
	roster.BannedPlayers: lipgloss.Color("9"),
}

// Category renders a category token in its own color.
func Category(c roster.Category) string {
	return lipgloss.NewStyle().Bold(true).Foreground(categoryColors[c]).Render(c.String())
}
