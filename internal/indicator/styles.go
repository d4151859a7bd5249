package indicator

import "github.com/charmbracelet/lipgloss"

// Palette.
var (
	AlarmColor     = lipgloss.Color("#FF5F5F")
	SilentColor    = lipgloss.Color("#FFD75F")
	AttentionColor = lipgloss.Color("#FFAF00")
	ClearColor     = lipgloss.Color("#5FD787")
	MutedColor     = lipgloss.Color("#808080")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(MutedColor)
	errorStyle = lipgloss.NewStyle().Foreground(AlarmColor)
	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(AlarmColor).
			Padding(0, 1)
)

// statusStyle picks the colour of the indicator line.
func statusStyle(status string) lipgloss.Style {
	style := lipgloss.NewStyle().Bold(true)

	switch status {
	case StatusSounding:
		return style.Foreground(AlarmColor)
	case StatusSilent:
		return style.Foreground(SilentColor)
	case StatusAttention:
		return style.Foreground(AttentionColor)
	default:
		return style.Foreground(ClearColor)
	}
}
