package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}
	colorError  = lipgloss.AdaptiveColor{Light: "#D32F2F", Dark: "#FF5F87"}
	colorWarn   = lipgloss.AdaptiveColor{Light: "#B26A00", Dark: "#FFB454"}
	colorHuman  = lipgloss.AdaptiveColor{Light: "#00796B", Dark: "#4DD0E1"}

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	humanLabel   = lipgloss.NewStyle().Bold(true).Foreground(colorHuman)
	aiLabel      = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	statusStyle  = lipgloss.NewStyle().Italic(true).Foreground(colorWarn)
	metricsStyle = lipgloss.NewStyle().Foreground(colorMuted)
	chipStyle    = lipgloss.NewStyle().Foreground(colorAccent).Padding(0, 1).
			Border(lipgloss.RoundedBorder()).BorderForeground(colorMuted)
	bannerStyle = lipgloss.NewStyle().Foreground(colorError).Bold(true).
			Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(colorError).
			PaddingLeft(1)
	blockedStyle = lipgloss.NewStyle().Foreground(colorError).Padding(1, 2)
)
