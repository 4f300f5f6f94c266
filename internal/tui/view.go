// ABOUTME: View rendering for the progress watcher
// ABOUTME: Lays out sidebar, progress view, notifications, and status bar with lipgloss
package tui

import (
	"github.com/charmbracelet/lipgloss"
)

const notificationRows = 3

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	if m.helpOverlay.IsVisible() {
		return m.helpOverlay.View()
	}

	main := m.progressView.View()
	if m.sidebarVisible {
		main = lipgloss.JoinHorizontal(lipgloss.Top, m.sidebar.View(), main)
	}

	toasts := lipgloss.NewStyle().
		Height(notificationRows).
		MaxHeight(notificationRows).
		Render(m.notifications.View())

	return lipgloss.JoinVertical(lipgloss.Left, main, toasts, m.statusBar.View())
}
