package ui

import "github.com/charmbracelet/lipgloss"

// Colors used throughout the TUI.
var (
	ColorRed     = lipgloss.Color("#FF0000")
	ColorOrange  = lipgloss.Color("#FF8800")
	ColorGreen   = lipgloss.Color("#00FF00")
	ColorLeaf    = lipgloss.Color("#4CAF50")
	ColorYellow  = lipgloss.Color("#FFFF00")
	ColorCyan    = lipgloss.Color("#00FFFF")
	ColorGray    = lipgloss.Color("#666666")
	ColorDimGray = lipgloss.Color("#444444")
	ColorWhite   = lipgloss.Color("#FFFFFF")
	ColorMagenta = lipgloss.Color("#FF00FF")
)

// Base styles reused by UI components.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorLeaf)

	HeaderStyle = lipgloss.NewStyle().
			Foreground(ColorCyan)

	StatusStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true)

	ErrorTextStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	TimestampStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	PanelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorWhite)

	PanelTitleActiveStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorCyan)

	DimStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	FooterKeyStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	FooterDescStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	DividerStyle = lipgloss.NewStyle().
			Foreground(ColorDimGray)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ColorMagenta)
)

// Connection indicator.
var (
	ConnectedStyle = lipgloss.NewStyle().
			Foreground(ColorGreen).
			Bold(true)

	ReconnectingStyle = lipgloss.NewStyle().
				Foreground(ColorYellow).
				Bold(true)

	DisconnectedStyle = lipgloss.NewStyle().
				Foreground(ColorRed).
				Bold(true)
)

// Alerts and camera badges.
var (
	SeverityHighStyle = lipgloss.NewStyle().
				Foreground(ColorRed).
				Bold(true)

	SeverityMediumStyle = lipgloss.NewStyle().
				Foreground(ColorOrange)

	SeverityLowStyle = lipgloss.NewStyle().
				Foreground(ColorGreen)

	ToastStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorRed).
			Padding(0, 1)

	StaleBadgeStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	LiveBadgeStyle = lipgloss.NewStyle().
			Foreground(ColorGreen).
			Bold(true)
)

// Chat roles.
var (
	UserStyle = lipgloss.NewStyle().
			Foreground(ColorCyan).
			Bold(true)

	AssistantStyle = lipgloss.NewStyle().
			Foreground(ColorLeaf).
			Bold(true)

	SystemStyle = lipgloss.NewStyle().
			Foreground(ColorGray).
			Italic(true)

	RecordingDotStyle = lipgloss.NewStyle().
				Foreground(ColorRed).
				Bold(true)
)

// SeverityStyle returns the style for an alert severity.
func SeverityStyle(severity string) lipgloss.Style {
	switch severity {
	case "high":
		return SeverityHighStyle
	case "medium":
		return SeverityMediumStyle
	}
	return SeverityLowStyle
}

// ConnectionStyle returns the indicator style for a connection state name.
func ConnectionStyle(state string) lipgloss.Style {
	switch state {
	case "connected":
		return ConnectedStyle
	case "connecting", "reconnecting":
		return ReconnectingStyle
	}
	return DisconnectedStyle
}
