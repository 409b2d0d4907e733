package app

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lynxrender/tui/internal/client"
	"github.com/lynxrender/tui/internal/theme"
	"github.com/lynxrender/tui/internal/views/dashboard"
	"github.com/lynxrender/tui/internal/views/debug"
	"github.com/lynxrender/tui/internal/views/detail"
	"github.com/lynxrender/tui/internal/views/help"
	"github.com/lynxrender/tui/internal/views/lanes"
	"github.com/lynxrender/tui/internal/views/status"
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayDetail
	OverlayDebug
	OverlayHelp
)

const defaultStatusInterval = 2 * time.Second

// Options tune the root model.
type Options struct {
	// StatusInterval is how often /api/status is polled. Zero uses 2s,
	// negative fetches once at startup only.
	StatusInterval time.Duration
	// HelpStyle is the glamour style for the help overlay.
	HelpStyle string
}

type statusTickMsg struct{}

type statusMsg struct {
	status *client.Status
	err    error
}

type sessionsMsg struct {
	sessions []*client.SessionInfo
	err      error
}

type actionDoneMsg struct {
	op  string
	id  string
	err error
}

// Model is the root Bubble Tea model.
type Model struct {
	ws     *client.WSClient
	http   *client.HTTPClient
	ctx    context.Context
	cancel context.CancelFunc
	opts   Options

	keys   KeyMap
	width  int
	height int

	sessions map[string]*client.SessionInfo
	overlay  Overlay

	statusBar status.Model
	dashboard dashboard.Model
	lanes     lanes.Model
	detail    detail.Model
	debug     debug.Model
	help      help.Model

	connected bool
}

// New creates the root model. Either client may be nil.
func New(ws *client.WSClient, http *client.HTTPClient, opts ...Options) Model {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.StatusInterval == 0 {
		o.StatusInterval = defaultStatusInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	keys := DefaultKeyMap()
	return Model{
		ws:        ws,
		http:      http,
		ctx:       ctx,
		cancel:    cancel,
		opts:      o,
		keys:      keys,
		sessions:  make(map[string]*client.SessionInfo),
		statusBar: status.New(),
		dashboard: dashboard.New(),
		lanes:     lanes.New(),
		debug:     debug.New(),
		help:      help.New(o.HelpStyle, keys.Bindings()),
	}
}

// Init starts the WebSocket connection and status polling.
func (m Model) Init() tea.Cmd {
	var cmds []tea.Cmd
	if m.ws != nil {
		cmds = append(cmds, m.ws.Listen(m.ctx))
	}
	cmds = append(cmds, m.fetchStatus())
	return tea.Batch(cmds...)
}

func (m Model) readNext() tea.Cmd {
	if m.ws == nil {
		return nil
	}
	return m.ws.ReadLoop(m.ctx)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.dashboard.Width = msg.Width
		m.lanes.Width = msg.Width
		m.debug.SetSize(msg.Width, msg.Height)
		m.help.SetWidth(min(msg.Width, 100))
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case dashboard.FrameMsg:
		var cmd tea.Cmd
		m.dashboard, cmd = m.dashboard.Update(msg)
		return m, cmd

	case client.WSConnectedMsg:
		m.connected = true
		m.statusBar.Connected = true
		m.debug.Add("ws", "connected")
		return m, m.readNext()

	case client.WSDisconnectedMsg:
		m.connected = false
		m.statusBar.Connected = false
		if msg.Err != nil {
			m.debug.Add("ws", "disconnected: "+msg.Err.Error())
		}
		if m.ws == nil {
			return m, nil
		}
		return m, m.ws.Listen(m.ctx)

	case client.WSSnapshotMsg:
		cmd := m.replaceSessions(msg.Payload.Sessions)
		return m, tea.Batch(cmd, m.readNext())

	case client.WSDeltaMsg:
		for _, s := range msg.Payload.Updates {
			m.sessions[s.ID] = s
		}
		for _, id := range msg.Payload.Removed {
			delete(m.sessions, id)
		}
		cmd := m.applySessions()
		return m, tea.Batch(cmd, m.readNext())

	case client.WSErrorMsg:
		p := msg.Payload
		m.debug.Add("err", fmt.Sprintf("%s: %s (#%d)", p.SessionID, p.Message, p.ErrorCount))
		return m, m.readNext()

	case client.WSStatusMsg:
		cmd := m.applyStatus(msg.Payload)
		return m, tea.Batch(cmd, m.readNext())

	case statusTickMsg:
		return m, m.fetchStatus()

	case statusMsg:
		var cmd tea.Cmd
		if msg.err != nil {
			m.debug.Add("hlth", "status: "+msg.err.Error())
		} else {
			cmd = m.applyStatus(*msg.status)
		}
		return m, tea.Batch(cmd, m.scheduleStatus())

	case sessionsMsg:
		if msg.err != nil {
			m.debug.Add("err", "resync: "+msg.err.Error())
			return m, nil
		}
		m.debug.Add("act", fmt.Sprintf("resynced %d sessions", len(msg.sessions)))
		return m, m.replaceSessions(msg.sessions)

	case actionDoneMsg:
		if msg.err != nil {
			m.debug.Add("err", fmt.Sprintf("%s %s: %v", msg.op, msg.id, msg.err))
			if m.detail.Session != nil && m.detail.Session.ID == msg.id {
				m.detail.ActionError = msg.err.Error()
			}
			return m, nil
		}
		m.debug.Add("act", msg.op+" "+msg.id)
		if m.detail.Session != nil && m.detail.Session.ID == msg.id {
			m.detail.ActionError = ""
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) && msg.String() == "ctrl+c" {
		m.cancel()
		return m, tea.Quit
	}

	switch m.overlay {
	case OverlayDetail:
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Reload):
			return m, m.act("reload", m.detail.Session)
		case key.Matches(msg, m.keys.Destroy):
			return m, m.act("destroy", m.detail.Session)
		}
		return m, nil

	case OverlayDebug:
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Debug):
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Up):
			m.debug.ScrollUp(1)
		case key.Matches(msg, m.keys.Down):
			m.debug.ScrollDown(1)
		case key.Matches(msg, m.keys.Filter):
			m.debug.CycleFilter()
		}
		return m, nil

	case OverlayHelp:
		if key.Matches(msg, m.keys.Escape) || key.Matches(msg, m.keys.Help) {
			m.overlay = OverlayNone
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Down):
		m.lanes.MoveDown()

	case key.Matches(msg, m.keys.Up):
		m.lanes.MoveUp()

	case key.Matches(msg, m.keys.Tab):
		m.lanes.CycleZone()

	case key.Matches(msg, m.keys.Zone1):
		m.lanes.JumpToZone(lanes.ZoneLive)

	case key.Matches(msg, m.keys.Zone2):
		m.lanes.JumpToZone(lanes.ZonePending)

	case key.Matches(msg, m.keys.Zone3):
		m.lanes.JumpToZone(lanes.ZoneGone)

	case key.Matches(msg, m.keys.Enter):
		if s := m.lanes.SelectedSession(); s != nil {
			m.detail = detail.New(s)
			m.overlay = OverlayDetail
		}

	case key.Matches(msg, m.keys.Reload):
		return m, m.act("reload", m.lanes.SelectedSession())

	case key.Matches(msg, m.keys.Destroy):
		return m, m.act("destroy", m.lanes.SelectedSession())

	case key.Matches(msg, m.keys.Debug):
		m.overlay = OverlayDebug

	case key.Matches(msg, m.keys.Help):
		if m.width > 0 {
			m.help.SetWidth(min(m.width, 100))
		}
		m.overlay = OverlayHelp

	case key.Matches(msg, m.keys.Resync):
		return m, m.resync()
	}

	return m, nil
}

// act runs a session action over HTTP.
func (m Model) act(op string, s *client.SessionInfo) tea.Cmd {
	if s == nil || m.http == nil || s.State == client.StateDestroyed {
		return nil
	}
	hc, id := m.http, s.ID
	return func() tea.Msg {
		var err error
		switch op {
		case "reload":
			err = hc.ReloadSession(id)
		case "destroy":
			err = hc.DestroySession(id)
		}
		return actionDoneMsg{op: op, id: id, err: err}
	}
}

func (m Model) resync() tea.Cmd {
	if m.http == nil {
		return nil
	}
	hc := m.http
	return func() tea.Msg {
		sessions, err := hc.GetSessions()
		return sessionsMsg{sessions: sessions, err: err}
	}
}

func (m Model) fetchStatus() tea.Cmd {
	if m.http == nil {
		return nil
	}
	hc := m.http
	return func() tea.Msg {
		st, err := hc.GetStatus()
		return statusMsg{status: st, err: err}
	}
}

func (m Model) scheduleStatus() tea.Cmd {
	if m.http == nil || m.opts.StatusInterval < 0 {
		return nil
	}
	return tea.Tick(m.opts.StatusInterval, func(time.Time) tea.Msg {
		return statusTickMsg{}
	})
}

func (m *Model) applyStatus(st client.Status) tea.Cmd {
	for _, h := range st.Resources {
		if prev, ok := m.statusBar.Resources[h.Scheme]; ok && prev.Status != h.Status {
			m.debug.Add("hlth", fmt.Sprintf("%s: %s -> %s", h.Scheme, prev.Status, h.Status))
		}
	}
	m.statusBar.SetStatus(st)
	if st.History != nil {
		return m.dashboard.SetHistory(st.History)
	}
	return nil
}

func (m *Model) replaceSessions(sessions []*client.SessionInfo) tea.Cmd {
	m.sessions = make(map[string]*client.SessionInfo, len(sessions))
	for _, s := range sessions {
		m.sessions[s.ID] = s
	}
	return m.applySessions()
}

func (m *Model) applySessions() tea.Cmd {
	m.lanes.SetSessions(m.sessions)
	m.statusBar.SetCounts(m.lanes.Counts())
	if m.detail.Session != nil {
		if s, ok := m.sessions[m.detail.Session.ID]; ok {
			m.detail.Session = s
		}
	}
	return m.dashboard.SetSessions(m.sessions)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	base := lipgloss.JoinVertical(lipgloss.Left,
		m.statusBar.View(),
		m.dashboard.View(),
		m.lanes.View(),
		theme.StyleDimmed.Render("  j/k:navigate  tab:lane  enter:detail  r:reload  x:destroy  d:events  ?:help  q:quit"),
	)

	var modal string
	switch {
	case !m.connected:
		modal = disconnectedPanel()
	case m.overlay == OverlayDetail:
		modal = m.detail.View()
	case m.overlay == OverlayDebug:
		modal = m.debug.View()
	case m.overlay == OverlayHelp:
		modal = m.help.View()
	}
	if modal == "" {
		return base
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal,
		lipgloss.WithWhitespaceChars(" "))
}

func disconnectedPanel() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorDanger).Render("DISCONNECTED")
	body := theme.StyleDimmed.Render("Reconnecting to the render host...")
	return theme.StyleBorder.
		BorderForeground(theme.ColorDanger).
		Padding(1, 4).
		Render(lipgloss.JoinVertical(lipgloss.Center, title, "", body))
}
