package dashboard

import (
	"github.com/Iron-Ham/apihub/internal/circuit"
	"github.com/Iron-Ham/apihub/internal/health"
	"github.com/charmbracelet/lipgloss"
)

var (
	// Colors meet WCAG AA contrast on dark backgrounds.
	PrimaryColor = lipgloss.Color("#A78BFA") // Purple
	GreenColor   = lipgloss.Color("#10B981")
	AmberColor   = lipgloss.Color("#F59E0B")
	RedColor     = lipgloss.Color("#F87171")
	MutedColor   = lipgloss.Color("#9CA3AF")
	BorderColor  = lipgloss.Color("#6B7280")

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor).
		MarginBottom(1)

	Muted = lipgloss.NewStyle().Foreground(MutedColor)
	Error = lipgloss.NewStyle().Foreground(RedColor)

	HelpBar = lipgloss.NewStyle().
		Foreground(MutedColor).
		MarginTop(1)

	HelpKey = lipgloss.NewStyle().
		Bold(true).
		Foreground(GreenColor)

	Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor).
		Padding(0, 1)

	Cell = lipgloss.NewStyle().Padding(0, 1)
)

// StateColor returns the color a circuit state is drawn in.
func StateColor(s circuit.State) lipgloss.Color {
	switch s {
	case circuit.StateOpen:
		return RedColor
	case circuit.StateHalfOpen:
		return AmberColor
	default:
		return GreenColor
	}
}

// HealthColor returns the color a health status is drawn in.
func HealthColor(s health.Status) lipgloss.Color {
	switch s {
	case health.StatusHealthy:
		return GreenColor
	case health.StatusDegraded:
		return AmberColor
	case health.StatusUnhealthy:
		return RedColor
	default:
		return MutedColor
	}
}
