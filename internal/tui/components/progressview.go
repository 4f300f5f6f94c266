// ABOUTME: ProgressView component showing an instance's operations with progress bars
// ABOUTME: Uses bubbles viewport for scrolling and lipgloss for state styling
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/harper/codeql-relay/internal/tui/client"
	"github.com/harper/codeql-relay/internal/tui/theme"
)

const barWidth = 20

type ProgressView struct {
	width         int
	height        int
	theme         theme.Theme
	viewport      viewport.Model
	operations    []*client.Operation
	showCompleted bool
	follow        bool
}

func NewProgressView(width, height int, t theme.Theme) *ProgressView {
	vp := viewport.New(width, height)
	vp.Style = t.FeedViewStyle()

	return &ProgressView{
		width:         width,
		height:        height,
		theme:         t,
		viewport:      vp,
		showCompleted: true,
		follow:        true,
	}
}

// SetOperations replaces the rendered operations. The view stays pinned to
// the bottom unless the user scrolled away.
func (pv *ProgressView) SetOperations(ops []*client.Operation) {
	pv.operations = ops
	pv.updateViewport()
	if pv.follow {
		pv.viewport.GotoBottom()
	}
}

// ToggleCompleted shows or hides operations that are no longer running.
func (pv *ProgressView) ToggleCompleted() bool {
	pv.showCompleted = !pv.showCompleted
	pv.updateViewport()
	return pv.showCompleted
}

func (pv *ProgressView) SetShowCompleted(show bool) {
	pv.showCompleted = show
	pv.updateViewport()
}

func (pv *ProgressView) visible() []*client.Operation {
	if pv.showCompleted {
		return pv.operations
	}
	var out []*client.Operation
	for _, op := range pv.operations {
		if op.State == client.StateRunning {
			out = append(out, op)
		}
	}
	return out
}

// Bar renders a fixed-width progress bar, or an empty string for
// operations without a step count.
func Bar(fraction float64, width int) string {
	if fraction < 0 {
		return ""
	}
	filled := int(fraction*float64(width) + 0.5)
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

func (pv *ProgressView) formatOperation(op *client.Operation) string {
	var sb strings.Builder

	timestamp := pv.theme.DimStyle().Render(op.Updated.Format("15:04:05"))
	sb.WriteString(fmt.Sprintf("%s %s %s\n", op.State.Icon(), timestamp, op.Title))

	if bar := Bar(op.Fraction(), barWidth); bar != "" {
		sb.WriteString("   ")
		sb.WriteString(pv.theme.BarStyle().Render(bar))
		sb.WriteString(fmt.Sprintf(" %d/%d", op.Step, op.MaxStep))
		sb.WriteString("\n")
	}

	if op.Message != "" {
		style := pv.theme.DimStyle()
		switch op.State {
		case client.StateFailed:
			style = pv.theme.ErrorStyle()
		case client.StateSucceeded:
			style = pv.theme.SuccessStyle()
		}
		sb.WriteString("   ")
		sb.WriteString(style.Render(op.Message))
		sb.WriteString("\n")
	}

	return sb.String()
}

func (pv *ProgressView) render() string {
	ops := pv.visible()
	if len(ops) == 0 {
		return pv.theme.DimStyle().Render("No operations yet")
	}

	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = pv.formatOperation(op)
	}
	return strings.Join(parts, "\n")
}

func (pv *ProgressView) updateViewport() {
	pv.viewport.SetContent(pv.render())
}

func (pv *ProgressView) View() string {
	return pv.viewport.View()
}

func (pv *ProgressView) SetSize(width, height int) {
	pv.width = width
	pv.height = height
	pv.viewport.Width = width
	pv.viewport.Height = height
	pv.updateViewport()
}

func (pv *ProgressView) Init() tea.Cmd {
	return nil
}

func (pv *ProgressView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	pv.viewport, cmd = pv.viewport.Update(msg)
	pv.follow = pv.viewport.AtBottom()
	return pv, cmd
}
