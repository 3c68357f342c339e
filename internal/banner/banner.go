package banner

import (
	"kvbench/internal/tui/styles"

	"github.com/charmbracelet/lipgloss"
)

func GetString() string {
	renderer := lipgloss.DefaultRenderer()

	style := renderer.NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)

	ascii := `
    __         __                    __
   / /___   __/ /_  ___  ____  _____/ /_
  / //_/ | / / __ \/ _ \/ __ \/ ___/ __ \
 / ,<  | |/ / /_/ /  __/ / / / /__/ / / /
/_/|_| |___/_.___/\___/_/ /_/\___/_/ /_/ `

	return "\n" + style.Render(ascii) + "\n"
}
