package main

import (
	"github.com/charmbracelet/lipgloss"

	"dolphinenv/pkg/eventlog"
)

// Theme is the colour palette shared by the monitor and the logs output.
type Theme struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Success   lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color
	Muted     lipgloss.Color
}

// DefaultTheme returns the 256-colour palette.
func DefaultTheme() Theme {
	return Theme{
		Primary:   lipgloss.Color("12"),  // Blue
		Secondary: lipgloss.Color("14"),  // Cyan
		Success:   lipgloss.Color("10"),  // Green
		Warning:   lipgloss.Color("11"),  // Yellow
		Error:     lipgloss.Color("9"),   // Red
		Muted:     lipgloss.Color("240"), // Gray
	}
}

// statusColor maps a session's last event type to a colour.
func (t Theme) statusColor(eventType string) lipgloss.Color {
	switch eventType {
	case eventlog.TypeConnect, eventlog.TypeReset, eventlog.TypeStep:
		return t.Success
	case eventlog.TypeDisconnect:
		return t.Primary
	case eventlog.TypeExit:
		return t.Warning
	case eventlog.TypeKill, eventlog.TypeTimeout:
		return t.Error
	default:
		return t.Muted
	}
}
