// Package lanes renders sessions grouped into live, pending and gone lanes,
// with glyphs colored by lifecycle state and badges by thread strategy.
package lanes

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lynxrender/tui/internal/client"
	"github.com/lynxrender/tui/internal/theme"
)

const urlWidth = 32

// Model holds the lanes view state.
type Model struct {
	live    []*client.SessionInfo
	pending []*client.SessionInfo
	gone    []*client.SessionInfo

	SelectedIdx int
	ActiveZone  Zone

	Width  int
	Height int
}

// New creates a lanes model.
func New() Model {
	return Model{}
}

// SetSessions rebuilds the zone groupings.
func (m *Model) SetSessions(sessions map[string]*client.SessionInfo) {
	m.live = nil
	m.pending = nil
	m.gone = nil

	for _, s := range sessions {
		switch Classify(s) {
		case ZoneLive:
			m.live = append(m.live, s)
		case ZonePending:
			m.pending = append(m.pending, s)
		case ZoneGone:
			m.gone = append(m.gone, s)
		}
	}

	// Live by lane, then id.
	sort.Slice(m.live, func(i, j int) bool {
		if m.live[i].Lane != m.live[j].Lane {
			return m.live[i].Lane < m.live[j].Lane
		}
		return m.live[i].ID < m.live[j].ID
	})
	// Pending by last activity (most recent first).
	sort.Slice(m.pending, func(i, j int) bool {
		return m.pending[i].LastActivityAt.After(m.pending[j].LastActivityAt)
	})
	// Gone by destroy time (most recent first).
	sort.Slice(m.gone, func(i, j int) bool {
		if m.gone[i].DestroyedAt != nil && m.gone[j].DestroyedAt != nil {
			return m.gone[i].DestroyedAt.After(*m.gone[j].DestroyedAt)
		}
		return m.gone[i].DestroyedAt != nil
	})

	m.clampSelection()
}

// Counts returns the number of sessions in each zone.
func (m Model) Counts() (live, pending, gone int) {
	return len(m.live), len(m.pending), len(m.gone)
}

// MoveDown advances the selection cursor within the active zone.
func (m *Model) MoveDown() {
	if count := len(m.zoneSessions()); count > 0 {
		m.SelectedIdx = (m.SelectedIdx + 1) % count
	}
}

// MoveUp moves the selection cursor back within the active zone.
func (m *Model) MoveUp() {
	if count := len(m.zoneSessions()); count > 0 {
		m.SelectedIdx = (m.SelectedIdx - 1 + count) % count
	}
}

// CycleZone advances to the next zone.
func (m *Model) CycleZone() {
	m.ActiveZone = (m.ActiveZone + 1) % 3
	m.SelectedIdx = 0
}

// JumpToZone sets the active zone directly.
func (m *Model) JumpToZone(z Zone) {
	m.ActiveZone = z
	m.SelectedIdx = 0
}

// SelectedSession returns the currently selected session, if any.
func (m Model) SelectedSession() *client.SessionInfo {
	zone := m.zoneSessions()
	if m.SelectedIdx >= 0 && m.SelectedIdx < len(zone) {
		return zone[m.SelectedIdx]
	}
	return nil
}

// View renders all three zones.
func (m Model) View() string {
	width := max(m.Width, 60)

	var sections []string
	sections = append(sections, m.renderZone(ZoneLive, m.live, width, "No live sessions")...)
	sections = append(sections, m.renderZone(ZonePending, m.pending, width, "Nothing pending")...)
	sections = append(sections, m.renderZone(ZoneGone, m.gone, width, "No destroyed sessions")...)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderZone(z Zone, sessions []*client.SessionInfo, width int, empty string) []string {
	title := "─── " + ZoneName(z) + " "
	header := title + strings.Repeat("─", max(4, width-lipgloss.Width(title)-2))
	style := theme.StyleDimmed
	if z == m.ActiveZone {
		style = theme.StyleHeader
	}
	lines := []string{style.Render(header)}
	if len(sessions) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("  "+empty))
	}
	for i, s := range sessions {
		lines = append(lines, renderLine(s, z == m.ActiveZone && i == m.SelectedIdx))
	}
	return lines
}

func renderLine(s *client.SessionInfo, selected bool) string {
	prefix := "  "
	if selected {
		prefix = "> "
	}
	state := string(s.State)
	color := theme.StateColor(state, s.LastError != "")
	glyph := lipgloss.NewStyle().Foreground(color).Render(theme.StateGlyph(state))

	name := displayURL(s, urlWidth)
	nameStyle := lipgloss.NewStyle().Width(urlWidth)
	if selected {
		nameStyle = nameStyle.Inherit(theme.StyleSelected)
	}

	details := []string{fmt.Sprintf("%dx%d", s.Viewport.Width, s.Viewport.Height)}
	if s.ReloadCount > 0 {
		details = append(details, fmt.Sprintf("↻%d", s.ReloadCount))
	}
	if s.ErrorCount > 0 {
		details = append(details, lipgloss.NewStyle().Foreground(theme.ColorDanger).
			Render(fmt.Sprintf("!%d", s.ErrorCount)))
	}
	if s.DestroyAttempts > 1 {
		details = append(details, fmt.Sprintf("×%d", s.DestroyAttempts))
	}
	if age := formatAge(s.CreatedAt); age != "" {
		details = append(details, theme.StyleDimmed.Render(age))
	}

	return prefix + glyph + " " + theme.StrategyBadge(s.ThreadStrategy) + " " +
		nameStyle.Render(name) + " " + strings.Join(details, "  ")
}

// displayURL returns the session URL, or its id when the URL is empty,
// truncated to maxLen characters.
func displayURL(s *client.SessionInfo, maxLen int) string {
	name := s.URL
	if name == "" {
		name = s.ID
	}
	if r := []rune(name); len(r) > maxLen {
		name = string(r[:maxLen-1]) + "…"
	}
	return name
}

func formatAge(start time.Time) string {
	if start.IsZero() {
		return ""
	}
	return formatElapsed(time.Since(start))
}

// formatElapsed renders a duration as a compact string (e.g. "42s", "3m").
func formatElapsed(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

func (m Model) zoneSessions() []*client.SessionInfo {
	switch m.ActiveZone {
	case ZoneLive:
		return m.live
	case ZonePending:
		return m.pending
	case ZoneGone:
		return m.gone
	default:
		return nil
	}
}

func (m *Model) clampSelection() {
	count := len(m.zoneSessions())
	if count == 0 {
		m.SelectedIdx = 0
	} else if m.SelectedIdx >= count {
		m.SelectedIdx = count - 1
	}
}
