package banner

import (
	"fxload/internal/tui/styles"

	"github.com/charmbracelet/lipgloss"
)

func GetString() string {
	renderer := lipgloss.DefaultRenderer()

	style := renderer.NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)

	ascii := `
    ____         __                __
   / __/  __    / /   ____  ____ _/ /
  / /_| |/_/___/ /   / __ \/ __ '/ __ /
 / __/>  </___/ /___/ /_/ / /_/ / /_/ /
/_/ /_/|_|   /_____/\____/\__,_/\__,_/ `

	return "\n" + style.Render(ascii) + "\n"
}
