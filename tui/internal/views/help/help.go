// Package help renders the key binding reference overlay as Markdown
// through glamour.
package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/lynxrender/tui/internal/theme"
)

const intro = `# Session inspector

Sessions are grouped into lanes: **live** sessions are initialized with a
loaded template, **pending** ones are initializing or reloading, and
**gone** ones have been destroyed.
`

// Model caches the rendered help for one width.
type Model struct {
	Style    string
	bindings []key.Binding
	width    int
	rendered string
	err      error
}

// New creates a help model for bindings. style is a glamour standard style
// name such as "dark", "light" or "notty".
func New(style string, bindings []key.Binding) Model {
	if style == "" {
		style = "dark"
	}
	return Model{Style: style, bindings: bindings}
}

// Markdown returns the source document.
func Markdown(bindings []key.Binding) string {
	var b strings.Builder
	b.WriteString(intro)
	b.WriteString("\n## Keys\n\n| Key | Action |\n| --- | --- |\n")
	for _, kb := range bindings {
		h := kb.Help()
		if h.Key == "" {
			continue
		}
		fmt.Fprintf(&b, "| `%s` | %s |\n", h.Key, h.Desc)
	}
	return b.String()
}

// SetWidth re-renders when the word wrap width changes.
func (m *Model) SetWidth(width int) {
	if width == m.width && m.rendered != "" {
		return
	}
	m.width = width
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.Style),
		glamour.WithWordWrap(max(width-8, 20)),
	)
	if err != nil {
		m.err = err
		return
	}
	m.rendered, m.err = r.Render(Markdown(m.bindings))
}

// View renders the overlay panel.
func (m Model) View() string {
	body := m.rendered
	if m.err != nil {
		body = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("help unavailable: " + m.err.Error())
	}
	footer := theme.StyleDimmed.Render("esc:close")
	return theme.StyleBorder.Padding(0, 1).Render(lipgloss.JoinVertical(lipgloss.Left, body, footer))
}
