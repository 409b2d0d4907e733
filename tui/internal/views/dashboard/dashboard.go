// Package dashboard provides a stats summary row, a spring-animated
// load gauge and a session table for the inspector.
package dashboard

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"

	"github.com/lynxrender/tui/internal/client"
	"github.com/lynxrender/tui/internal/theme"
	"github.com/lynxrender/tui/internal/views/lanes"
)

const (
	fps      = 30
	gaugeMin = 4
)

// FrameMsg advances the gauge animation by one frame.
type FrameMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second/fps, func(t time.Time) tea.Msg {
		return FrameMsg(t)
	})
}

// Model holds the dashboard state.
type Model struct {
	Width    int
	sessions []*client.SessionInfo
	history  *client.History

	spring    harmonica.Spring
	pos       float64
	vel       float64
	target    float64
	animating bool
}

// New creates a dashboard model.
func New() Model {
	return Model{
		spring: harmonica.NewSpring(harmonica.FPS(fps), 6.0, 0.5),
	}
}

// SetSessions updates the session list and retargets the gauge. The
// returned command starts the animation when it is not already running.
func (m *Model) SetSessions(sessions map[string]*client.SessionInfo) tea.Cmd {
	m.sessions = make([]*client.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		m.sessions = append(m.sessions, s)
	}
	sort.Slice(m.sessions, func(i, j int) bool {
		zi, zj := lanes.Classify(m.sessions[i]), lanes.Classify(m.sessions[j])
		if zi != zj {
			return zi < zj
		}
		return m.sessions[i].ID < m.sessions[j].ID
	})
	return m.retarget()
}

// SetHistory records lifetime counters used for the gauge ceiling.
func (m *Model) SetHistory(h *client.History) tea.Cmd {
	m.history = h
	return m.retarget()
}

// Update steps the gauge spring on FrameMsg.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if _, ok := msg.(FrameMsg); !ok {
		return m, nil
	}
	m.pos, m.vel = m.spring.Update(m.pos, m.vel, m.target)
	if math.Abs(m.pos-m.target) < 0.001 && math.Abs(m.vel) < 0.001 {
		m.pos, m.vel = m.target, 0
		m.animating = false
		return m, nil
	}
	return m, tick()
}

// Gauge returns the displayed and target gauge fractions.
func (m Model) Gauge() (pos, target float64) {
	return m.pos, m.target
}

func (m *Model) retarget() tea.Cmd {
	live := m.liveCount()
	ceiling := max(live, gaugeMin)
	if m.history != nil && m.history.MaxConcurrentLive > ceiling {
		ceiling = m.history.MaxConcurrentLive
	}
	m.target = float64(live) / float64(ceiling)
	if m.animating || m.pos == m.target {
		return nil
	}
	m.animating = true
	return tick()
}

func (m Model) liveCount() int {
	n := 0
	for _, s := range m.sessions {
		if lanes.Classify(s) == lanes.ZoneLive {
			n++
		}
	}
	return n
}

// View renders the full dashboard: stats row, gauge and session table.
func (m Model) View() string {
	width := max(m.Width, 40)
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsRow(width),
		m.renderGauge(width),
		m.renderTable(width),
	)
}

func (m Model) renderStatsRow(width int) string {
	var live, pending, gone, reloads, errs int
	for _, s := range m.sessions {
		switch lanes.Classify(s) {
		case lanes.ZoneLive:
			live++
		case lanes.ZonePending:
			pending++
		case lanes.ZoneGone:
			gone++
		}
		reloads += s.ReloadCount
		errs += s.ErrorCount
	}

	statStyle := lipgloss.NewStyle().Padding(0, 1)

	stats := []string{
		statStyle.Foreground(theme.ColorInitialized).Render(fmt.Sprintf("Live: %d", live)),
		statStyle.Foreground(theme.ColorReloading).Render(fmt.Sprintf("Pending: %d", pending)),
		statStyle.Foreground(theme.ColorDimmed).Render(fmt.Sprintf("Gone: %d", gone)),
		statStyle.Foreground(theme.ColorMostOnTASM).Render(fmt.Sprintf("Reloads: %d", reloads)),
		statStyle.Foreground(theme.ColorErrored).Render(fmt.Sprintf("Errors: %d", errs)),
	}
	if m.history != nil {
		stats = append(stats, statStyle.Foreground(theme.ColorDimmed).Render(
			fmt.Sprintf("All-time: %s sessions", formatCount(m.history.TotalSessions))))
	}

	content := strings.Join(stats, lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | "))

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

func (m Model) renderGauge(width int) string {
	label := "  Load "
	barWidth := max(width-len(label)-8, 10)
	return label + renderBar(m.pos, barWidth)
}

func (m Model) renderTable(width int) string {
	header := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBright).Render("  Sessions")

	if len(m.sessions) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left,
			header,
			theme.StyleDimmed.Render("  No sessions"),
		)
	}

	colID := 10
	colURL := 28
	colStrategy := 15
	colState := 14
	colViewport := 11
	colReloads := 7
	colErrors := 6

	dimStyle := lipgloss.NewStyle().Foreground(theme.ColorDimmed)
	brightStyle := lipgloss.NewStyle().Foreground(theme.ColorBright).Bold(true)

	tableHeader := fmt.Sprintf("  %-*s %-*s %-*s %-*s %-*s %*s %*s",
		colID, "ID",
		colURL, "URL",
		colStrategy, "Strategy",
		colState, "State",
		colViewport, "Viewport",
		colReloads, "Reloads",
		colErrors, "Errors",
	)
	lines := []string{
		header,
		dimStyle.Render(tableHeader),
		dimStyle.Render("  " + strings.Repeat("─", min(width-4, colID+colURL+colStrategy+colState+colViewport+colReloads+colErrors+6))),
	}

	for _, s := range m.sessions {
		idStr := dimStyle.Width(colID).Render(truncate(s.ID, colID-1))
		urlStr := lipgloss.NewStyle().Foreground(theme.ColorBright).Width(colURL).Render(truncate(s.URL, colURL-1))
		stratStr := lipgloss.NewStyle().Foreground(theme.StrategyColor(s.ThreadStrategy)).Width(colStrategy).
			Render(s.ThreadStrategy)

		state := string(s.State)
		stateStr := lipgloss.NewStyle().Foreground(theme.StateColor(state, s.LastError != "")).Width(colState).
			Render(theme.StateGlyph(state) + " " + state)

		vpStr := dimStyle.Width(colViewport).Render(fmt.Sprintf("%dx%d", s.Viewport.Width, s.Viewport.Height))
		relStr := brightStyle.Width(colReloads).Align(lipgloss.Right).Render(fmt.Sprintf("%d", s.ReloadCount))
		errStyle := brightStyle
		if s.ErrorCount > 0 {
			errStyle = errStyle.Foreground(theme.ColorDanger)
		}
		errStr := errStyle.Width(colErrors).Align(lipgloss.Right).Render(fmt.Sprintf("%d", s.ErrorCount))

		lines = append(lines, fmt.Sprintf("  %s %s %s %s %s %s %s",
			idStr, urlStr, stratStr, stateStr, vpStr, relStr, errStr))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// renderBar draws the gauge with a percentage label.
func renderBar(pct float64, barWidth int) string {
	pct = max(0, min(pct, 1))
	filled := int(math.Round(pct * float64(barWidth)))
	empty := barWidth - filled

	color := theme.LoadColor(pct)
	bar := lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", filled))
	bar += lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(strings.Repeat("░", empty))
	return bar + lipgloss.NewStyle().Foreground(color).Render(fmt.Sprintf(" %3.0f%%", pct*100))
}

func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

// formatCount formats large numbers with K/M suffixes.
func formatCount(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
