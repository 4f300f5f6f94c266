// ABOUTME: HelpOverlay component for displaying keyboard shortcuts
// ABOUTME: Shows a centered modal dialog with the watcher's key bindings
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/harper/codeql-relay/internal/tui/theme"
)

// Shortcut is one key binding row in the overlay.
type Shortcut struct {
	key         string
	description string
}

// HelpOverlay displays a modal overlay with keyboard shortcuts
type HelpOverlay struct {
	width     int
	height    int
	theme     theme.Theme
	visible   bool
	shortcuts []Shortcut
}

// NewHelpOverlay creates a hidden overlay listing the watcher key bindings.
func NewHelpOverlay(width, height int, t theme.Theme) *HelpOverlay {
	return &HelpOverlay{
		width:  width,
		height: height,
		theme:  t,
		shortcuts: []Shortcut{
			{"Tab", "Switch focus between instances and progress"},
			{"↑/↓ j/k", "Select instance or scroll"},
			{"Ctrl+B", "Toggle sidebar"},
			{"c", "Show or hide finished operations"},
			{"x", "Clear selected instance"},
			{"r", "Reconnect to the feed"},
			{"q", "Quit"},
			{"Ctrl+C", "Quit"},
			{"?", "Toggle help"},
		},
	}
}

// Show makes the overlay visible.
func (h *HelpOverlay) Show() {
	h.visible = true
}

// Hide hides the overlay.
func (h *HelpOverlay) Hide() {
	h.visible = false
}

// IsVisible reports whether the overlay is shown.
func (h *HelpOverlay) IsVisible() bool {
	return h.visible
}

// Toggle flips the overlay visibility.
func (h *HelpOverlay) Toggle() {
	h.visible = !h.visible
}

// SetSize updates the window size the overlay centers in.
func (h *HelpOverlay) SetSize(width, height int) {
	h.width = width
	h.height = height
}

// View renders the help overlay centered in the window, or nothing when hidden.
func (h *HelpOverlay) View() string {
	if !h.visible {
		return ""
	}

	var content strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(h.theme.Primary)
	content.WriteString(titleStyle.Render("Keyboard Shortcuts"))
	content.WriteString("\n\n")

	maxKeyLen := 0
	for _, sc := range h.shortcuts {
		if w := lipgloss.Width(sc.key); w > maxKeyLen {
			maxKeyLen = w
		}
	}

	keyStyle := lipgloss.NewStyle().Foreground(h.theme.Success).Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(h.theme.Foreground)
	for _, sc := range h.shortcuts {
		paddedKey := sc.key + strings.Repeat(" ", maxKeyLen-lipgloss.Width(sc.key))
		content.WriteString(fmt.Sprintf("  %s  %s\n", keyStyle.Render(paddedKey), descStyle.Render(sc.description)))
	}

	modalWidth := 60
	if modalWidth > h.width-4 {
		modalWidth = h.width - 4
	}

	modal := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(h.theme.Primary).
		Padding(1, 2).
		Width(modalWidth).
		Render(content.String())

	return lipgloss.Place(h.width, h.height, lipgloss.Center, lipgloss.Center, modal)
}
