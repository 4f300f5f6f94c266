// ABOUTME: Core Bubbletea model and state management for the progress watcher
// ABOUTME: Implements the Model interface with Init, Update, and View methods
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/harper/codeql-relay/internal/logger"
	"github.com/harper/codeql-relay/internal/tui/client"
	"github.com/harper/codeql-relay/internal/tui/components"
	"github.com/harper/codeql-relay/internal/tui/config"
	"github.com/harper/codeql-relay/internal/tui/theme"
)

// FocusArea represents which component currently has focus
type FocusArea int

const (
	FocusSidebar FocusArea = iota
	FocusProgress
)

type Model struct {
	config *config.Config
	theme  theme.Theme
	width  int
	height int

	sidebar       *components.Sidebar
	progressView  *components.ProgressView
	statusBar     *components.StatusBar
	helpOverlay   *components.HelpOverlay
	notifications *components.NotificationComponent

	feed  *client.FeedClient
	store *client.ProgressStore

	focusedArea    FocusArea
	sidebarVisible bool
	selectedID     string
	reconnects     int
	healthURL      string
	healthPolling  bool
}

func NewModel(cfg *config.Config) Model {
	th := theme.GetTheme(cfg.UI.Theme)

	// Sized properly on the first WindowSizeMsg.
	progressView := components.NewProgressView(80, 20, th)
	progressView.SetShowCompleted(cfg.UI.ShowCompleted)

	focus := FocusSidebar
	if !cfg.UI.SidebarDefaultVisible {
		focus = FocusProgress
	}

	// Without a derivable API root the watcher still follows the feed.
	healthURL, err := client.ManagementBaseURL(cfg.Feed.URL)
	if err != nil {
		logger.Warn("engine health unavailable: %v", err)
	}

	return Model{
		config:         cfg,
		theme:          th,
		sidebar:        components.NewSidebar(cfg.UI.SidebarWidth, 24, th),
		progressView:   progressView,
		statusBar:      components.NewStatusBar(80, th),
		helpOverlay:    components.NewHelpOverlay(80, 24, th),
		notifications:  components.NewNotificationComponent(80, th),
		feed:           client.NewFeedClient(cfg.Feed.URL, time.Duration(cfg.Feed.TimeoutSeconds)*time.Second),
		store:          client.NewProgressStore(cfg.UI.HistoryLimit),
		focusedArea:    focus,
		sidebarVisible: cfg.UI.SidebarDefaultVisible,
		healthURL:      healthURL,
	}
}

func (m Model) Init() tea.Cmd {
	m.statusBar.SetConnectionStatus(components.StatusConnecting)
	return m.connect()
}

// Close releases the feed connection.
func (m Model) Close() error {
	return m.feed.Close()
}
