package outline

import "github.com/charmbracelet/lipgloss"

var (
	appStyle = lipgloss.NewStyle().Padding(1, 2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#0AF")).
			Bold(true).
			Padding(0, 1)

	cursorStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("#0AF")).
			Foreground(lipgloss.Color("#FFF"))

	// bulletStyles cycle by depth.
	bulletStyles = []lipgloss.Style{
		lipgloss.NewStyle().Foreground(lipgloss.Color("#0AF")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("#cba6f7")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("#667788")),
	}

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#0AF", Dark: "#0AF"})

	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F55"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#667788"))

	resultStyle = lipgloss.NewStyle().
			MarginLeft(1).
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#334455"))
)

func bulletStyle(depth int) lipgloss.Style {
	return bulletStyles[depth%len(bulletStyles)]
}
