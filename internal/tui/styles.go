package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	primaryColor   = lipgloss.Color("#E8833A")
	secondaryColor = lipgloss.Color("#4ECDC4")
	accentColor    = lipgloss.Color("#FFE66D")
	mutedColor     = lipgloss.Color("#6C757D")
	successColor   = lipgloss.Color("#2ECC71")
	errorColor     = lipgloss.Color("#E74C3C")

	// Header
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1).
			MarginBottom(1)

	// Status bar
	statusBarStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1)

	tracingStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	stoppedStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	newEventStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	// Event list
	eventListStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(secondaryColor).
			Padding(0, 1)

	selectedEventStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("#2D2D44")).
				Foreground(accentColor).
				Bold(true)

	bookmarkStyle = lipgloss.NewStyle().
			Foreground(accentColor)

	// Detail panel
	detailPanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(primaryColor).
				Padding(1)

	fieldNameStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Bold(true)

	dividerStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	// Status word coloring in the event list
	statusDoneStyle = lipgloss.NewStyle().
			Foreground(successColor)

	statusFailedStyle = lipgloss.NewStyle().
				Foreground(errorColor)

	// Help bar
	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	helpCategoryStyle = lipgloss.NewStyle().
				Foreground(secondaryColor).
				Bold(true)

	helpOverlayStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(accentColor).
				Padding(1, 2)

	// Utility styles
	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	emptyStateStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	confirmationStyle = lipgloss.NewStyle().
				Foreground(successColor)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(primaryColor)
)
