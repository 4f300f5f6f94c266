// ABOUTME: StatusBar component for displaying feed connection and instance info
// ABOUTME: Shows connection state with colored indicators and keyboard shortcuts
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/harper/codeql-relay/internal/tui/client"
	"github.com/harper/codeql-relay/internal/tui/theme"
)

const (
	StatusConnected    = "connected"
	StatusConnecting   = "connecting"
	StatusDisconnected = "disconnected"
)

type StatusBar struct {
	width            int
	theme            theme.Theme
	connectionStatus string
	instanceID       string
	running          int
	engine           *client.Health
}

func NewStatusBar(width int, t theme.Theme) *StatusBar {
	return &StatusBar{
		width:            width,
		theme:            t,
		connectionStatus: StatusDisconnected,
	}
}

func (s *StatusBar) SetConnectionStatus(status string) {
	s.connectionStatus = status
}

func (s *StatusBar) ConnectionStatus() string {
	return s.connectionStatus
}

// SetInstance names the selected instance and how many of its operations run.
func (s *StatusBar) SetInstance(id string, running int) {
	s.instanceID = id
	s.running = running
}

// SetEngine records the last engine health report; nil means unknown.
func (s *StatusBar) SetEngine(h *client.Health) {
	s.engine = h
}

func (s *StatusBar) SetSize(width int) {
	s.width = width
}

func (s *StatusBar) View() string {
	var statusIcon, statusText string
	switch s.connectionStatus {
	case StatusConnected:
		statusIcon, statusText = "🟢", "Connected"
	case StatusConnecting:
		statusIcon, statusText = "🟡", "Connecting"
	default:
		statusIcon, statusText = "🔴", "Disconnected"
	}
	statusPart := fmt.Sprintf("[%s %s]", statusIcon, statusText)

	instancePart := "No instance selected"
	if s.instanceID != "" {
		instancePart = fmt.Sprintf("Instance: %s", s.instanceID)
		if s.running > 0 {
			instancePart += fmt.Sprintf(" (%d running)", s.running)
		}
	}

	if s.engine != nil {
		if s.engine.EngineRunning {
			instancePart += fmt.Sprintf(" | engine up, %d pending", s.engine.PendingRequests)
		} else {
			instancePart += " | engine down"
		}
	}

	shortcuts := "Tab: Focus, c: Completed, ?: Help, q: Quit"
	leftContent := statusPart + " " + instancePart

	padding := s.width - lipgloss.Width(leftContent) - lipgloss.Width(shortcuts) - 7
	if padding < 1 {
		padding = 1
	}

	fullContent := leftContent + strings.Repeat(" ", padding) + "| " + shortcuts

	return s.theme.StatusBarStyle().
		Width(s.width - 2).
		Render(fullContent)
}
