package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/yllada/vpn-bridge/tunnel"
)

// Palette shared with the desktop notifications.
const (
	colorSuccess = lipgloss.Color("#2ec27e")
	colorWarning = lipgloss.Color("#e5a50a")
	colorError   = lipgloss.Color("#e01b24")
	colorAccent  = lipgloss.Color("#3584e4")
	colorDim     = lipgloss.Color("#77767b")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			Width(14)

	valueStyle = lipgloss.NewStyle().Bold(true)

	dimStyle = lipgloss.NewStyle().Foreground(colorDim)

	errorStyle = lipgloss.NewStyle().Foreground(colorError)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1)
)

// stateStyle colors a tunnel state by kind.
func stateStyle(kind tunnel.Kind) lipgloss.Style {
	switch kind {
	case tunnel.Connected:
		return valueStyle.Foreground(colorSuccess)
	case tunnel.Connecting, tunnel.Disconnecting:
		return valueStyle.Foreground(colorWarning)
	case tunnel.Error:
		return valueStyle.Foreground(colorError)
	default:
		return valueStyle.Foreground(colorDim)
	}
}

// onlineStyle colors a connectivity flag.
func onlineStyle(online bool) lipgloss.Style {
	if online {
		return valueStyle.Foreground(colorSuccess)
	}
	return valueStyle.Foreground(colorError)
}
