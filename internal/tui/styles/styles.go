package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// Dark-terminal palette.
var (
	ColorPrimary   = lipgloss.Color("#7D56F4") // indigo
	ColorSecondary = lipgloss.Color("#04B575") // green
	ColorError     = lipgloss.Color("#FF5F87") // red
	ColorWarning   = lipgloss.Color("#FFAF00") // gold
	ColorSubtle    = lipgloss.Color("#767676") // gray
	ColorBorder    = lipgloss.Color("#3C3C3C") // dark gray
	ColorBanner    = ColorPrimary
)

var (
	Title = lipgloss.NewStyle().
		Foreground(ColorPrimary).
		Bold(true).
		Padding(0, 1)

	Subtle = lipgloss.NewStyle().Foreground(ColorSubtle)

	Active  = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	Success = lipgloss.NewStyle().Foreground(ColorSecondary).Bold(true)
	Error   = lipgloss.NewStyle().Foreground(ColorError)
	Warn    = lipgloss.NewStyle().Foreground(ColorWarning)

	Box = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1).
		Margin(0, 1)
)
