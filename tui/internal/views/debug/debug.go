// Package debug provides a scrollable event log overlay backed by a
// bubbles viewport. New entries keep the view pinned to the tail unless
// the user has scrolled up.
package debug

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/lynxrender/tui/internal/theme"
)

const maxEntries = 200

// Filters cycled by CycleFilter. The empty filter shows every kind.
var filters = []string{"", "ws", "err", "act", "hlth"}

// Entry is a single event log line.
type Entry struct {
	Time    time.Time
	Kind    string // "ws", "err", "act", "hlth", ...
	Message string
}

// Model holds debug log state.
type Model struct {
	Entries []Entry
	Filter  string

	vp     viewport.Model
	width  int
	height int
}

// New creates an empty debug model sized for an 80x20 overlay.
func New() Model {
	m := Model{vp: viewport.New(0, 0)}
	m.SetSize(80, 20)
	return m
}

// SetSize fits the log to an overlay of the given outer dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = max(width-4, 20)
	m.height = height
	m.vp.Width = m.width - 4
	m.vp.Height = max(height-6, 3)
	m.refresh(m.vp.AtBottom())
}

// Add appends a log entry and caps the buffer.
func (m *Model) Add(kind, message string) {
	follow := m.vp.AtBottom()
	m.Entries = append(m.Entries, Entry{
		Time:    time.Now(),
		Kind:    kind,
		Message: message,
	})
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[len(m.Entries)-maxEntries:]
	}
	m.refresh(follow)
}

// ScrollUp moves the view toward older entries.
func (m *Model) ScrollUp(n int) {
	m.vp.ScrollUp(n)
}

// ScrollDown moves the view toward newer entries.
func (m *Model) ScrollDown(n int) {
	m.vp.ScrollDown(n)
}

// Offset returns how many lines lie below the visible window.
func (m Model) Offset() int {
	return max(0, m.vp.TotalLineCount()-m.vp.YOffset-m.vp.Height)
}

// CycleFilter advances to the next kind filter and jumps to the tail.
func (m *Model) CycleFilter() {
	next := 0
	for i, f := range filters {
		if f == m.Filter {
			next = (i + 1) % len(filters)
			break
		}
	}
	m.Filter = filters[next]
	m.refresh(true)
}

func (m Model) visible() []Entry {
	if m.Filter == "" {
		return m.Entries
	}
	var out []Entry
	for _, e := range m.Entries {
		if e.Kind == m.Filter {
			out = append(out, e)
		}
	}
	return out
}

func (m *Model) refresh(follow bool) {
	entries := m.visible()
	lines := make([]string, 0, len(entries))
	msgWidth := m.vp.Width - 18
	for _, e := range entries {
		tsStr := theme.StyleDimmed.Render(e.Time.Format("15:04:05.000"))
		kindStr := lipgloss.NewStyle().Foreground(kindToColor(e.Kind)).Width(4).Render(e.Kind)
		msgStr := e.Message
		if msgWidth > 3 && len(msgStr) > msgWidth {
			msgStr = msgStr[:msgWidth-3] + "..."
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", tsStr, kindStr, msgStr))
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if follow {
		m.vp.GotoBottom()
	}
}

// panelStyle returns the shared border style for the debug overlay.
func panelStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder)
}

// View renders the debug log as an overlay panel.
func (m Model) View() string {
	title := theme.StyleHeader.Render(" EVENT LOG ")
	filter := m.Filter
	if filter == "" {
		filter = "all"
	}
	help := theme.StyleDimmed.Render(fmt.Sprintf("j/k:scroll  f:filter(%s)  esc:close  %d entries", filter, len(m.Entries)))

	if len(m.visible()) == 0 {
		body := theme.StyleDimmed.Render("  No events recorded yet.")
		content := lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", help)
		return panelStyle(m.width).Render(content)
	}

	scrollIndicator := ""
	if off := m.Offset(); off > 0 {
		scrollIndicator = theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d more", off))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, m.vp.View(), scrollIndicator, help)
	return panelStyle(m.width).Render(content)
}

func kindToColor(kind string) lipgloss.Color {
	switch kind {
	case "ws":
		return theme.ColorAllOnUI
	case "err":
		return theme.ColorErrored
	case "act":
		return theme.ColorUninitialized
	case "hlth":
		return theme.ColorWarning
	default:
		return theme.ColorDimmed
	}
}
