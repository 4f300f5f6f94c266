// ABOUTME: Update logic for the progress watcher (feed events, keys, reconnects)
// ABOUTME: Implements the Elm architecture Update function
package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/harper/codeql-relay/internal/logger"
	"github.com/harper/codeql-relay/internal/tui/client"
	"github.com/harper/codeql-relay/internal/tui/components"
	feed "github.com/harper/codeql-relay/internal/websocket"
)

type FeedConnectedMsg struct{}

type FeedEventMsg struct {
	Event feed.Event
}

type FeedErrorMsg struct {
	Err error
}

type reconnectMsg struct{}

type healthTickMsg struct{}

type HealthMsg struct {
	Health *client.Health
	Err    error
}

const healthInterval = 5 * time.Second

const maxReconnectDelay = 30 * time.Second

// reconnectDelay doubles from one second per attempt.
func reconnectDelay(attempt int) time.Duration {
	d := time.Second << uint(attempt-1)
	if d <= 0 || d > maxReconnectDelay {
		return maxReconnectDelay
	}
	return d
}

func (m Model) connect() tea.Cmd {
	fc := m.feed
	return func() tea.Msg {
		if err := fc.Connect(context.Background()); err != nil {
			return FeedErrorMsg{Err: err}
		}
		return FeedConnectedMsg{}
	}
}

func (m Model) fetchHealth() tea.Cmd {
	base := m.healthURL
	return func() tea.Msg {
		h, err := client.FetchHealth(context.Background(), base)
		return HealthMsg{Health: h, Err: err}
	}
}

// waitForFeed delivers the next event or error from the feed.
func (m Model) waitForFeed() tea.Cmd {
	fc := m.feed
	return func() tea.Msg {
		select {
		case ev := <-fc.Events():
			return FeedEventMsg{Event: ev}
		case err := <-fc.Errors():
			return FeedErrorMsg{Err: err}
		}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateComponentSizes()
		return m, nil

	case tea.KeyMsg:
		if m.helpOverlay.IsVisible() {
			if msg.String() == "?" || msg.String() == "esc" {
				m.helpOverlay.Toggle()
			}
			return m, nil
		}

		switch msg.String() {
		case "ctrl+c", "q":
			_ = m.feed.Close()
			return m, tea.Quit

		case "?":
			m.helpOverlay.Toggle()
			return m, nil

		case "ctrl+b":
			m.sidebarVisible = !m.sidebarVisible
			if !m.sidebarVisible {
				m.focusedArea = FocusProgress
			}
			m.updateComponentSizes()
			return m, nil

		case "tab":
			m.cycleFocus()
			return m, nil

		case "c":
			m.progressView.ToggleCompleted()
			return m, nil

		case "x":
			if m.selectedID != "" {
				m.store.Clear(m.selectedID)
				m = m.refresh()
			}
			return m, nil

		case "r":
			if m.feed.IsConnected() {
				return m, nil
			}
			m.reconnects = 0
			m.statusBar.SetConnectionStatus(components.StatusConnecting)
			return m, m.connect()
		}

		return m.handleFocusedInput(msg)

	case FeedConnectedMsg:
		logger.Debug("watcher connected to %s", m.feed.URL())
		m.reconnects = 0
		m.statusBar.SetConnectionStatus(components.StatusConnected)
		cmds := []tea.Cmd{
			m.waitForFeed(),
			m.notifications.Show("Connected to progress feed", components.SeveritySuccess),
		}
		if m.healthURL != "" && !m.healthPolling {
			m.healthPolling = true
			cmds = append(cmds, m.fetchHealth())
		}
		return m, tea.Batch(cmds...)

	case HealthMsg:
		if msg.Err != nil {
			logger.Debug("watcher health poll failed: %v", msg.Err)
			m.statusBar.SetEngine(nil)
		} else {
			m.statusBar.SetEngine(msg.Health)
		}
		if !m.feed.IsConnected() {
			m.healthPolling = false
			return m, nil
		}
		return m, tea.Tick(healthInterval, func(time.Time) tea.Msg { return healthTickMsg{} })

	case healthTickMsg:
		return m, m.fetchHealth()

	case FeedEventMsg:
		op := m.store.Apply(msg.Event)
		m = m.refresh()
		cmds := []tea.Cmd{m.waitForFeed()}
		if op != nil && msg.Event.Type == feed.EventCompleted && msg.Event.Error != "" {
			cmds = append(cmds, m.notifications.Show(
				fmt.Sprintf("%s failed: %s", op.Title, msg.Event.Error), components.SeverityError))
		}
		return m, tea.Batch(cmds...)

	case FeedErrorMsg:
		logger.Debug("watcher feed error: %v", msg.Err)
		if m.reconnects >= m.config.Feed.ReconnectAttempts {
			m.statusBar.SetConnectionStatus(components.StatusDisconnected)
			return m, m.notifications.Show("Feed unavailable (r to retry)", components.SeverityError)
		}
		m.reconnects++
		m.statusBar.SetConnectionStatus(components.StatusConnecting)
		delay := reconnectDelay(m.reconnects)
		return m, tea.Batch(
			m.notifications.Show(fmt.Sprintf("Feed dropped, retrying in %s", delay), components.SeverityWarning),
			tea.Tick(delay, func(time.Time) tea.Msg { return reconnectMsg{} }),
		)

	case reconnectMsg:
		if m.feed.IsConnected() {
			return m, nil
		}
		return m, m.connect()

	case components.DismissNotificationMsg:
		return m, m.notifications.Update(msg)
	}

	if m.focusedArea == FocusProgress {
		_, cmd := m.progressView.Update(msg)
		return m, cmd
	}
	return m, nil
}

// updateComponentSizes recalculates component sizes from the window dimensions
func (m *Model) updateComponentSizes() {
	if m.width == 0 || m.height == 0 {
		return
	}

	// Status bar plus one row of notifications.
	availableHeight := m.height - 1 - notificationRows
	if availableHeight < 1 {
		availableHeight = 1
	}

	sidebarWidth := 0
	if m.sidebarVisible {
		sidebarWidth = m.config.UI.SidebarWidth
		if sidebarWidth > m.width/2 {
			sidebarWidth = m.width / 2
		}
		m.sidebar.SetSize(sidebarWidth, availableHeight)
	}

	m.progressView.SetSize(m.width-sidebarWidth, availableHeight)
	m.statusBar.SetSize(m.width)
	m.helpOverlay.SetSize(m.width, m.height)
}

func (m *Model) cycleFocus() {
	if m.focusedArea == FocusSidebar || !m.sidebarVisible {
		m.focusedArea = FocusProgress
		return
	}
	m.focusedArea = FocusSidebar
}

func (m Model) handleFocusedInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.focusedArea {
	case FocusSidebar:
		switch msg.String() {
		case "up", "k":
			m.sidebar.CursorUp()
			m = m.refresh()
		case "down", "j":
			m.sidebar.CursorDown()
			m = m.refresh()
		}
		return m, nil

	default:
		_, cmd := m.progressView.Update(msg)
		return m, cmd
	}
}

// refresh re-reads the store into the sidebar, progress view, and status bar.
func (m Model) refresh() Model {
	instances := m.store.Instances()
	m.sidebar.SetInstances(instances)

	sel := m.sidebar.Selected()
	if sel == nil {
		m.selectedID = ""
		m.progressView.SetOperations(nil)
		m.statusBar.SetInstance("", 0)
		return m
	}

	m.selectedID = sel.ID
	m.progressView.SetOperations(m.store.Operations(sel.ID))
	m.statusBar.SetInstance(sel.ID, sel.Running)
	return m
}
