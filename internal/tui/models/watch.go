// Package models holds the bubbletea models behind the TUI commands
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/go-rtu"
	"github.com/allbin/go-rtu/internal/tui/components"
	"github.com/allbin/go-rtu/internal/tui/keys"
	"github.com/allbin/go-rtu/internal/tui/styles"
)

// eventRows is the height of the poll history pane
const eventRows = 6

// Session is the part of rtu.Manager the watch view drives
type Session interface {
	State() rtu.State
	Stats() rtu.Stats
	Reconnect() error
}

// ReadFunc fetches count registers starting at addr
type ReadFunc func(addr, count uint16) ([]uint16, error)

// WatchConfig describes what to poll
type WatchConfig struct {
	Params   rtu.Params
	Addr     uint16
	Count    int
	Interval time.Duration
	Input    bool
	Read     ReadFunc
	Session  Session
}

type tickMsg time.Time

type pollResultMsg struct {
	values  []uint16
	err     error
	at      time.Time
	latency time.Duration
}

type reconnectMsg struct {
	err error
	at  time.Time
}

// Watch polls a register block and renders it live
type Watch struct {
	cfg WatchConfig

	grid      *components.RegisterGrid
	events    *components.EventLog
	statusBar *components.StatusBar
	help      help.Model
	keys      keys.WatchKeys

	paused   bool
	inflight bool
	width    int
	height   int
	now      func() time.Time
}

func NewWatch(cfg WatchConfig) *Watch {
	return &Watch{
		cfg:       cfg,
		grid:      components.NewRegisterGrid(cfg.Addr, cfg.Count),
		events:    components.NewEventLog(80, eventRows),
		statusBar: components.NewStatusBar(cfg.Params.Device, cfg.Params),
		help:      help.New(),
		keys:      keys.NewWatchKeys(),
		now:       time.Now,
	}
}

func (m *Watch) Init() tea.Cmd {
	m.inflight = true
	return tea.Batch(m.poll(), m.tick())
}

func (m *Watch) tick() tea.Cmd {
	return tea.Tick(m.cfg.Interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// poll runs one read through the session. The manager serializes it with
// anything else using the link.
func (m *Watch) poll() tea.Cmd {
	read, addr, count, now := m.cfg.Read, m.cfg.Addr, uint16(m.cfg.Count), m.now
	return func() tea.Msg {
		start := now()
		values, err := read(addr, count)
		end := now()
		return pollResultMsg{values: values, err: err, at: end, latency: end.Sub(start)}
	}
}

func (m *Watch) reconnect() tea.Cmd {
	session, now := m.cfg.Session, m.now
	return func() tea.Msg {
		err := session.Reconnect()
		return reconnectMsg{err: err, at: now()}
	}
}

func (m *Watch) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tickMsg:
		cmds := []tea.Cmd{m.tick()}
		if !m.paused && !m.inflight {
			m.inflight = true
			cmds = append(cmds, m.poll())
		}
		return m, tea.Batch(cmds...)

	case pollResultMsg:
		m.inflight = false
		m.record(msg)
		return m, nil

	case reconnectMsg:
		ev := components.Event{Time: msg.at, OK: msg.err == nil, Detail: "reconnect"}
		if msg.err != nil {
			ev.Detail = fmt.Sprintf("reconnect: %v", msg.err)
		}
		m.events.Add(ev)
		m.statusBar.SetSession(m.cfg.Session.State(), m.cfg.Session.Stats())
		return m, nil
	}

	return m, m.grid.Update(msg)
}

func (m *Watch) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.layout()
	case key.Matches(msg, m.keys.Pause):
		m.paused = !m.paused
		m.statusBar.SetPaused(m.paused)
	case key.Matches(msg, m.keys.Refresh):
		if !m.inflight {
			m.inflight = true
			return m.poll()
		}
	case key.Matches(msg, m.keys.Reconnect):
		return m.reconnect()
	case key.Matches(msg, m.keys.Format):
		m.grid.CycleFormat()
	default:
		return m.grid.Update(msg)
	}
	return nil
}

func (m *Watch) record(msg pollResultMsg) {
	ev := components.Event{Time: msg.at, OK: msg.err == nil, Latency: msg.latency}
	err := msg.err
	if err == nil {
		err = m.grid.Set(msg.values, msg.at)
	}
	if err != nil {
		m.grid.MarkStale()
		ev.OK = false
		ev.Detail = err.Error()
	} else {
		ev.Detail = fmt.Sprintf("%d registers", len(msg.values))
	}
	m.events.Add(ev)
	m.statusBar.SetPoll(msg.at, err)
	m.statusBar.SetSession(m.cfg.Session.State(), m.cfg.Session.Stats())
}

func (m *Watch) resize(width, height int) {
	m.width, m.height = width, height
	m.help.Width = width
	m.statusBar.SetWidth(width)
	m.layout()
}

// layout gives the grid whatever the title, history, status and help
// lines leave over
func (m *Watch) layout() {
	if m.height == 0 {
		return
	}
	helpLines := lipgloss.Height(m.help.View(m.keys))
	// title, grid header and borders, history header, status bar
	used := 1 + 4 + eventRows + 2 + 1 + helpLines
	m.grid.SetPageSize(m.height - used)
	m.events.SetSize(m.width, eventRows)
}

func (m *Watch) Paused() bool { return m.paused }

func (m *Watch) Grid() *components.RegisterGrid { return m.grid }

func (m *Watch) Events() []components.Event { return m.events.Events() }

func (m *Watch) View() string {
	kind := "holding"
	if m.cfg.Input {
		kind = "input"
	}
	title := styles.TitleStyle.Render(fmt.Sprintf("%s registers %d..%d [%s]",
		kind, m.cfg.Addr, int(m.cfg.Addr)+m.cfg.Count-1, m.grid.Format()))

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(m.grid.View())
	b.WriteString("\n")
	b.WriteString(m.events.View())
	b.WriteString("\n")
	b.WriteString(m.statusBar.View())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}
