// ABOUTME: Tests for the toast notification system component
// ABOUTME: Verifies notification creation, dismissal by id, limits, and rendering
package components

import (
	"strings"
	"testing"

	"github.com/harper/codeql-relay/internal/tui/theme"
)

func TestNotificationCreation(t *testing.T) {
	nc := NewNotificationComponent(80, theme.DefaultTheme)

	if nc.Count() != 0 {
		t.Errorf("Expected 0 notifications initially, got %d", nc.Count())
	}

	if cmd := nc.Show("Query finished", SeveritySuccess); cmd == nil {
		t.Error("Expected Show to return a command for auto-dismiss")
	}

	if nc.Count() != 1 {
		t.Fatalf("Expected 1 notification after Show, got %d", nc.Count())
	}
	n := nc.notifications[0]
	if n.Message != "Query finished" || n.Severity != SeveritySuccess {
		t.Errorf("unexpected notification %+v", n)
	}
	if n.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}
}

func TestNotificationMaxLimit(t *testing.T) {
	nc := NewNotificationComponent(80, theme.DefaultTheme)

	for i := 0; i < 5; i++ {
		_ = nc.Show("Message", SeverityInfo)
	}

	if nc.Count() != maxNotifications {
		t.Fatalf("Expected max %d notifications, got %d", maxNotifications, nc.Count())
	}
	if nc.notifications[0].ID != 3 {
		t.Errorf("Expected oldest kept notification to be #3, got #%d", nc.notifications[0].ID)
	}
}

func TestNotificationDismissByID(t *testing.T) {
	nc := NewNotificationComponent(80, theme.DefaultTheme)
	_ = nc.Show("first", SeverityInfo)
	_ = nc.Show("second", SeverityError)
	_ = nc.Show("third", SeverityWarning)

	// Dismissing the first must not remove a later one.
	nc.Update(DismissNotificationMsg{ID: 1})
	if nc.Count() != 2 || nc.notifications[0].Message != "second" {
		t.Fatalf("unexpected notifications after dismiss: %+v", nc.notifications)
	}

	// Unknown and repeated ids are ignored.
	nc.Dismiss(1)
	nc.Dismiss(42)
	if nc.Count() != 2 {
		t.Errorf("Expected 2 notifications, got %d", nc.Count())
	}
}

func TestNotificationRendering(t *testing.T) {
	nc := NewNotificationComponent(80, theme.DefaultTheme)
	if nc.View() != "" {
		t.Error("Expected empty view without notifications")
	}

	_ = nc.Show("runQueries #4 failed", SeverityError)
	_ = nc.Show(strings.Repeat("x", 100), SeverityWarning)
	_ = nc.Show("Feed connected", SeveritySuccess)

	view := nc.View()
	for _, want := range []string{"runQueries #4 failed", "Feed connected", "❌", "✅", "…"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected view to contain %q", want)
		}
	}
}
