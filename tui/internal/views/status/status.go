package status

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lynxrender/tui/internal/client"
	"github.com/lynxrender/tui/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	Connected bool
	Live      int
	Pending   int
	Gone      int
	Dropped   int
	Resources map[string]client.SchemeHealth
	Width     int
}

// New creates a status bar model.
func New() Model {
	return Model{
		Resources: make(map[string]client.SchemeHealth),
	}
}

// SetCounts updates the zone counts.
func (m *Model) SetCounts(live, pending, gone int) {
	m.Live = live
	m.Pending = pending
	m.Gone = gone
}

// SetStatus applies a server status report.
func (m *Model) SetStatus(st client.Status) {
	m.Dropped = st.DroppedEvents
	m.Resources = make(map[string]client.SchemeHealth, len(st.Resources))
	for _, h := range st.Resources {
		m.Resources[h.Scheme] = h
	}
}

// View renders the status bar.
func (m Model) View() string {
	width := max(m.Width, 40)

	var connStr string
	if m.Connected {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	} else {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}

	counts := fmt.Sprintf("%d live  %d pending  %d gone", m.Live, m.Pending, m.Gone)

	schemes := make([]string, 0, len(m.Resources))
	for scheme := range m.Resources {
		schemes = append(schemes, scheme)
	}
	sort.Strings(schemes)

	var healthParts []string
	for _, scheme := range schemes {
		h := m.Resources[scheme]
		healthParts = append(healthParts, lipgloss.NewStyle().Foreground(theme.HealthColor(string(h.Status))).Render(
			fmt.Sprintf("%s: %s", h.Scheme, string(h.Status)),
		))
	}
	healthStr := strings.Join(healthParts, "  ")

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + counts
	if m.Dropped > 0 {
		content += sep + lipgloss.NewStyle().Foreground(theme.ColorWarning).
			Render(fmt.Sprintf("%d dropped", m.Dropped))
	}
	if healthStr != "" {
		content += sep + healthStr
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
