package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette, tuned for dark terminals.
var (
	ColorPrimary = lipgloss.Color("#7D56F4")
	ColorPass    = lipgloss.Color("#04B575")
	ColorFail    = lipgloss.Color("#FF5F87")
	ColorWarning = lipgloss.Color("#FFAF00")
	ColorKey     = lipgloss.Color("#FAFAFA")
	ColorSubtle  = lipgloss.Color("#767676")
	ColorBorder  = lipgloss.Color("#3C3C3C")
	ColorBanner  = lipgloss.Color("#00AFD7")
)

var (
	// Section headers in the summary and the dashboard.
	Title = lipgloss.NewStyle().
		Foreground(ColorPrimary).
		Bold(true).
		Padding(0, 1).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(ColorSubtle)

	Subtle = lipgloss.NewStyle().Foreground(ColorSubtle)
	Active = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)

	// Check, threshold and run outcomes.
	Error   = lipgloss.NewStyle().Foreground(ColorFail)
	Warn    = lipgloss.NewStyle().Foreground(ColorWarning)
	Success = lipgloss.NewStyle().Foreground(ColorPass).Bold(true)

	keyName = lipgloss.NewStyle().Foreground(ColorKey).Bold(true)
	keyDesc = lipgloss.NewStyle().Foreground(ColorSubtle)

	// Counter cards on the live dashboard.
	Box = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1).
		Margin(0, 1)

	FooterBase = lipgloss.NewStyle().
			Height(1).
			Padding(0, 1)
)

// RenderKey renders a key binding hint such as "<q> stop".
func RenderKey(key, desc string) string {
	return lipgloss.JoinHorizontal(lipgloss.Center,
		keyName.Render("<"+key+">"),
		" ",
		keyDesc.Render(desc),
	)
}

// Mark renders a pass or fail tick.
func Mark(ok bool) string {
	if ok {
		return Success.Render("✓")
	}
	return Error.Render("✗")
}

// Verdict renders the overall run result.
func Verdict(passed bool) string {
	if passed {
		return Success.Render("PASSED")
	}
	return Error.Render("FAILED")
}
