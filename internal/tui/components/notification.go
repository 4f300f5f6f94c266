// ABOUTME: Toast notification system for request completions and feed state changes
// ABOUTME: Supports info, warning, error, and success severities with auto-dismiss
package components

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/harper/codeql-relay/internal/tui/theme"
)

const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
	SeveritySuccess = "success"
)

const (
	maxNotifications  = 3
	notificationWidth = 40
	autoDismissDelay  = 4 * time.Second
)

// Notification represents a single toast notification.
type Notification struct {
	ID        int
	Message   string
	Severity  string
	CreatedAt time.Time
}

// NotificationComponent manages toast notifications.
type NotificationComponent struct {
	notifications []*Notification
	nextID        int
	width         int
	theme         theme.Theme
}

// DismissNotificationMsg is sent to dismiss a notification.
type DismissNotificationMsg struct {
	ID int
}

func NewNotificationComponent(width int, th theme.Theme) *NotificationComponent {
	return &NotificationComponent{
		notifications: make([]*Notification, 0, maxNotifications),
		width:         width,
		theme:         th,
	}
}

// Show displays a new notification and returns its auto-dismiss command.
// Only the most recent notifications stay on screen.
func (nc *NotificationComponent) Show(message, severity string) tea.Cmd {
	nc.nextID++
	id := nc.nextID
	nc.notifications = append(nc.notifications, &Notification{
		ID:        id,
		Message:   message,
		Severity:  severity,
		CreatedAt: time.Now(),
	})
	if len(nc.notifications) > maxNotifications {
		nc.notifications = nc.notifications[len(nc.notifications)-maxNotifications:]
	}

	return tea.Tick(autoDismissDelay, func(time.Time) tea.Msg {
		return DismissNotificationMsg{ID: id}
	})
}

// Dismiss removes the notification with id, if still shown.
func (nc *NotificationComponent) Dismiss(id int) {
	for i, n := range nc.notifications {
		if n.ID == id {
			nc.notifications = append(nc.notifications[:i], nc.notifications[i+1:]...)
			return
		}
	}
}

func (nc *NotificationComponent) Count() int {
	return len(nc.notifications)
}

func (nc *NotificationComponent) Update(msg tea.Msg) tea.Cmd {
	if dismissMsg, ok := msg.(DismissNotificationMsg); ok {
		nc.Dismiss(dismissMsg.ID)
	}
	return nil
}

// View renders the notifications side by side, oldest first.
func (nc *NotificationComponent) View() string {
	if len(nc.notifications) == 0 {
		return ""
	}

	views := make([]string, 0, len(nc.notifications))
	for _, n := range nc.notifications {
		style := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(nc.borderColor(n.Severity)).
			Padding(0, 1).
			Width(notificationWidth)
		views = append(views, style.Render(nc.icon(n.Severity)+" "+truncate(n.Message, notificationWidth-8)))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, views...)
}

func (nc *NotificationComponent) icon(severity string) string {
	switch severity {
	case SeverityWarning:
		return "⚠️"
	case SeverityError:
		return "❌"
	case SeveritySuccess:
		return "✅"
	default:
		return "ℹ️"
	}
}

func (nc *NotificationComponent) borderColor(severity string) lipgloss.Color {
	switch severity {
	case SeverityWarning:
		return nc.theme.Warning
	case SeverityError:
		return nc.theme.Error
	case SeveritySuccess:
		return nc.theme.Success
	default:
		return nc.theme.Info
	}
}

// truncate keeps toasts to a single line.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
