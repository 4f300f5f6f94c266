// ABOUTME: Sidebar component listing query-server instances seen on the feed
// ABOUTME: Handles instance navigation, rendering, and selection
package components

import (
	"fmt"
	"strings"

	"github.com/harper/codeql-relay/internal/tui/client"
	"github.com/harper/codeql-relay/internal/tui/theme"
)

type Sidebar struct {
	width     int
	height    int
	theme     theme.Theme
	instances []*client.Instance
	cursor    int
}

func NewSidebar(width, height int, t theme.Theme) *Sidebar {
	return &Sidebar{
		width:  width,
		height: height,
		theme:  t,
	}
}

// SetInstances replaces the list, keeping the cursor on the same instance
// when it is still present.
func (s *Sidebar) SetInstances(instances []*client.Instance) {
	selected := ""
	if cur := s.Selected(); cur != nil {
		selected = cur.ID
	}
	s.instances = instances

	for i, inst := range instances {
		if inst.ID == selected {
			s.cursor = i
			return
		}
	}
	if s.cursor >= len(instances) {
		s.cursor = len(instances) - 1
	}
	if s.cursor < 0 {
		s.cursor = 0
	}
}

func (s *Sidebar) CursorDown() {
	if len(s.instances) == 0 {
		return
	}
	s.cursor = (s.cursor + 1) % len(s.instances)
}

func (s *Sidebar) CursorUp() {
	if len(s.instances) == 0 {
		return
	}
	s.cursor--
	if s.cursor < 0 {
		s.cursor = len(s.instances) - 1
	}
}

func (s *Sidebar) Selected() *client.Instance {
	if s.cursor < 0 || s.cursor >= len(s.instances) {
		return nil
	}
	return s.instances[s.cursor]
}

func (s *Sidebar) View() string {
	if len(s.instances) == 0 {
		emptyMsg := s.theme.DimStyle().Render("No instances yet\n\nWaiting for progress\nfrom the relay")
		return s.theme.SidebarStyle().
			Width(s.width - 2).
			Height(s.height - 2).
			Render(emptyMsg)
	}

	title := s.theme.SelectedStyle().
		Width(s.width - 4).
		Render("INSTANCES")
	items := []string{title, ""}

	for i, inst := range s.instances {
		icon := "💤"
		switch {
		case inst.Running > 0:
			icon = "⏳"
		case inst.Failed > 0:
			icon = "⚠️"
		}

		name := inst.ID
		maxLen := s.width - 12
		if maxLen > 3 && len(name) > maxLen {
			name = name[:maxLen-3] + "..."
		}
		line := fmt.Sprintf("%s %s", icon, name)
		if inst.Running > 0 {
			line += fmt.Sprintf(" (%d)", inst.Running)
		}

		style := s.theme.UnselectedStyle()
		if i == s.cursor {
			style = s.theme.SelectedStyle()
		}
		items = append(items, style.Width(s.width-4).Render(line))
	}

	items = append(items, "", s.theme.DimStyle().Render("↑↓: Select instance"))

	return s.theme.SidebarStyle().
		Width(s.width - 2).
		Height(s.height - 2).
		Render(strings.Join(items, "\n"))
}

func (s *Sidebar) SetSize(width, height int) {
	s.width = width
	s.height = height
}
