// Package detail renders the session info flyout overlay.
package detail

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lynxrender/tui/internal/client"
	"github.com/lynxrender/tui/internal/theme"
)

const (
	panelWidth = 64
	labelWidth = 14
)

var (
	stylePanel = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.ColorBorder).
			Padding(0, 1)

	styleLabel = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed).
			Width(labelWidth)

	styleValue = lipgloss.NewStyle().
			Foreground(theme.ColorBright)

	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorBright)

	styleFooter = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed)

	styleError = lipgloss.NewStyle().
			Foreground(theme.ColorDanger)
)

// Model holds the state for the detail overlay.
type Model struct {
	Session     *client.SessionInfo
	ActionError string
}

// New creates a detail model for the given session.
func New(s *client.SessionInfo) Model {
	return Model{Session: s}
}

// View renders the detail panel. Returns an empty string if no session is set.
func (m Model) View() string {
	if m.Session == nil {
		return ""
	}
	return stylePanel.Width(panelWidth).Render(m.renderInner(m.Session))
}

func (m Model) renderInner(s *client.SessionInfo) string {
	var b strings.Builder

	b.WriteString(styleTitle.Render("Session: "+DisplayName(s)) + "\n")
	b.WriteString(strings.Repeat("─", panelWidth-4) + "\n")

	writeRow(&b, "ID", truncate(s.ID, 36))
	writeRow(&b, "URL", truncate(s.URL, 44))

	state := string(s.State)
	stateColor := theme.StateColor(state, s.LastError != "")
	writeRow(&b, "State", lipgloss.NewStyle().Foreground(stateColor).Render(theme.StateGlyph(state)+" "+state))

	strategy := s.ThreadStrategy
	if s.AutoConcurrency {
		strategy += " (auto)"
	}
	writeRow(&b, "Strategy", theme.StrategyBadge(s.ThreadStrategy)+" "+strategy)

	var flags []string
	if s.LayoutOnBackground {
		flags = append(flags, "layout-bg")
	}
	if s.VsyncAlignedFlush {
		flags = append(flags, "vsync-flush")
	}
	if len(flags) > 0 {
		writeRow(&b, "Flags", strings.Join(flags, " "))
	}

	b.WriteString("\n")

	v := s.Viewport
	writeRow(&b, "Viewport", fmt.Sprintf("%dx%d (%s, %s)", v.Width, v.Height, modeName(v.WidthMode), modeName(v.HeightMode)))
	if s.Handle != 0 {
		writeRow(&b, "Handle", fmt.Sprintf("%d", s.Handle))
	}
	loaded := "no"
	if s.Loaded {
		loaded = "yes"
		if s.PageVersion != "" {
			loaded += " (" + s.PageVersion + ")"
		}
	}
	writeRow(&b, "Loaded", loaded)
	writeRow(&b, "Counters", fmt.Sprintf("%d reloads  %d errors  %d destroy attempts",
		s.ReloadCount, s.ErrorCount, s.DestroyAttempts))

	b.WriteString("\n")

	if !s.CreatedAt.IsZero() {
		writeRow(&b, "Created", formatAge(s.CreatedAt))
	}
	if s.LoadedAt != nil {
		writeRow(&b, "Loaded At", formatAge(*s.LoadedAt))
	}
	if !s.LastActivityAt.IsZero() {
		writeRow(&b, "Last Active", formatAge(s.LastActivityAt))
	}
	if s.DestroyedAt != nil {
		writeRow(&b, "Destroyed", formatAge(*s.DestroyedAt))
	}

	if s.LastError != "" {
		b.WriteString("\n")
		b.WriteString(styleError.Render("Last error: "+truncate(s.LastError, panelWidth-16)) + "\n")
	}

	if m.ActionError != "" {
		b.WriteString("\n")
		b.WriteString(styleError.Render("Action failed: "+m.ActionError) + "\n")
	}

	b.WriteString("\n")
	footer := "[r] reload  [x] destroy  [esc] close"
	if s.State == client.StateDestroyed {
		footer = "[esc] close  (destroyed)"
	}
	b.WriteString(styleFooter.Render(footer))

	return b.String()
}

func writeRow(b *strings.Builder, label, value string) {
	b.WriteString(styleLabel.Render(label+":") + styleValue.Render(value) + "\n")
}

func modeName(mode string) string {
	if mode == "" {
		return "undefined"
	}
	return mode
}

// DisplayName returns a human-readable label for a session, preferring the
// last URL path segment, then a truncated ID.
func DisplayName(s *client.SessionInfo) string {
	if s.URL != "" {
		name := s.URL
		if i := strings.LastIndex(strings.TrimRight(name, "/"), "/"); i >= 0 && i < len(name)-1 {
			name = strings.TrimRight(name[i+1:], "/")
		}
		return name
	}
	if len(s.ID) >= 8 {
		return s.ID[:8]
	}
	return s.ID
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds ago", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm ago", int(d.Hours()), int(d.Minutes())%60)
	}
}
