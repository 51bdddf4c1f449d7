package models

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allbin/go-rtu"
	"github.com/allbin/go-rtu/internal/tui/components"
)

type fakeSession struct {
	state      rtu.State
	stats      rtu.Stats
	reconnects int
	err        error
}

func (s *fakeSession) State() rtu.State { return s.state }
func (s *fakeSession) Stats() rtu.Stats { return s.stats }
func (s *fakeSession) Reconnect() error {
	s.reconnects++
	return s.err
}

func newTestWatch(t *testing.T, read ReadFunc) (*Watch, *fakeSession) {
	t.Helper()
	session := &fakeSession{state: rtu.Connected}
	m := NewWatch(WatchConfig{
		Params:   rtu.DefaultParams("/dev/ttyS0"),
		Addr:     10,
		Count:    3,
		Interval: time.Second,
		Read:     read,
		Session:  session,
	})
	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		clock = clock.Add(5 * time.Millisecond)
		return clock
	}
	return m, session
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestWatchPollUpdatesGrid(t *testing.T) {
	var gotAddr, gotCount uint16
	m, _ := newTestWatch(t, func(addr, count uint16) ([]uint16, error) {
		gotAddr, gotCount = addr, count
		return []uint16{1, 2, 0xFFFF}, nil
	})

	msg := m.poll()()
	_, cmd := m.Update(msg)
	assert.Nil(t, cmd)

	assert.Equal(t, uint16(10), gotAddr)
	assert.Equal(t, uint16(3), gotCount)
	assert.Equal(t, []uint16{1, 2, 0xFFFF}, m.Grid().Values())
	assert.False(t, m.Grid().Stale())
	assert.Equal(t, "65535", m.Grid().Cell(2))

	events := m.Events()
	require.Len(t, events, 1)
	assert.True(t, events[0].OK)
	assert.Equal(t, 5*time.Millisecond, events[0].Latency)
	assert.Equal(t, "3 registers", events[0].Detail)
}

func TestWatchPollFailureMarksStale(t *testing.T) {
	fail := false
	m, session := newTestWatch(t, func(addr, count uint16) ([]uint16, error) {
		if fail {
			return nil, rtu.ErrTransport
		}
		return []uint16{7, 8, 9}, nil
	})

	m.Update(m.poll()())
	fail = true
	session.state = rtu.Disconnected
	m.Update(m.poll()())

	assert.True(t, m.Grid().Stale())
	assert.Equal(t, []uint16{7, 8, 9}, m.Grid().Values(), "last good values stay visible")
	events := m.Events()
	require.Len(t, events, 2)
	assert.False(t, events[1].OK)
	assert.Contains(t, events[1].Detail, rtu.ErrTransport.Error())
	assert.Equal(t, "○", m.statusBar.Indicator())
}

func TestWatchShortReplyIsAnError(t *testing.T) {
	m, _ := newTestWatch(t, func(addr, count uint16) ([]uint16, error) {
		return []uint16{1}, nil
	})

	m.Update(m.poll()())

	assert.True(t, m.Grid().Stale())
	require.Len(t, m.Events(), 1)
	assert.False(t, m.Events()[0].OK)
	assert.Error(t, m.statusBar.Err())
}

func TestWatchTickRespectsPauseAndInflight(t *testing.T) {
	calls := 0
	m, _ := newTestWatch(t, func(addr, count uint16) ([]uint16, error) {
		calls++
		return []uint16{0, 0, 0}, nil
	})

	m.Update(runes("p"))
	require.True(t, m.Paused())
	m.Update(tickMsg(time.Now()))
	assert.False(t, m.inflight, "no poll while paused")

	m.Update(runes("p"))
	require.False(t, m.Paused())
	m.Update(tickMsg(time.Now()))
	assert.True(t, m.inflight)

	// A manual refresh while a poll is outstanding is ignored
	_, cmd := m.Update(runes("r"))
	assert.Nil(t, cmd)
	assert.Zero(t, calls, "polls only run when bubbletea executes the command")
}

func TestWatchRefreshPolls(t *testing.T) {
	m, _ := newTestWatch(t, func(addr, count uint16) ([]uint16, error) {
		return []uint16{4, 5, 6}, nil
	})

	_, cmd := m.Update(runes("r"))
	require.NotNil(t, cmd)
	m.Update(cmd())
	assert.Equal(t, []uint16{4, 5, 6}, m.Grid().Values())
	assert.False(t, m.inflight)
}

func TestWatchReconnectKey(t *testing.T) {
	m, session := newTestWatch(t, func(addr, count uint16) ([]uint16, error) {
		return []uint16{0, 0, 0}, nil
	})
	session.err = errors.New("still down")

	_, cmd := m.Update(runes("R"))
	require.NotNil(t, cmd)
	m.Update(cmd())

	assert.Equal(t, 1, session.reconnects)
	events := m.Events()
	require.Len(t, events, 1)
	assert.False(t, events[0].OK)
	assert.Contains(t, events[0].Detail, "still down")
}

func TestWatchFormatKey(t *testing.T) {
	m, _ := newTestWatch(t, func(addr, count uint16) ([]uint16, error) {
		return []uint16{0xFFFF, 0x1234, 1}, nil
	})
	m.Update(m.poll()())

	m.Update(runes("f"))
	assert.Equal(t, components.FormatSigned, m.Grid().Format())
	assert.Equal(t, "-1", m.Grid().Cell(0))

	m.Update(runes("f"))
	assert.Equal(t, "0x1234", m.Grid().Cell(1))
}

func TestWatchQuit(t *testing.T) {
	m, _ := newTestWatch(t, nil)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestWatchView(t *testing.T) {
	m, _ := newTestWatch(t, func(addr, count uint16) ([]uint16, error) {
		return []uint16{1, 2, 3}, nil
	})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m.Update(m.poll()())

	view := m.View()
	assert.Contains(t, view, "holding registers 10..12 [dec]")
	assert.Contains(t, view, "/dev/ttyS0")
}
