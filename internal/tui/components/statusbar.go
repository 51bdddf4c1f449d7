package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/go-rtu"
	"github.com/allbin/go-rtu/internal/tui/colors"
	"github.com/allbin/go-rtu/internal/tui/styles"
)

// StatusBar is the bottom line of the watch view: mode, device,
// connection state, line settings, executor counters and last poll time.
type StatusBar struct {
	device   string
	params   rtu.Params
	state    rtu.State
	stats    rtu.Stats
	paused   bool
	lastPoll time.Time
	err      error
	width    int
}

func NewStatusBar(device string, params rtu.Params) *StatusBar {
	return &StatusBar{device: device, params: params}
}

func (sb *StatusBar) SetWidth(width int) {
	sb.width = width
}

// SetSession records the manager's state and counters
func (sb *StatusBar) SetSession(state rtu.State, stats rtu.Stats) {
	sb.state = state
	sb.stats = stats
}

func (sb *StatusBar) SetPaused(paused bool) {
	sb.paused = paused
}

// SetPoll records the outcome of the latest poll
func (sb *StatusBar) SetPoll(at time.Time, err error) {
	sb.lastPoll = at
	sb.err = err
}

func (sb *StatusBar) Err() error { return sb.err }

// Indicator is the single-glyph connection marker
func (sb *StatusBar) Indicator() string {
	switch {
	case sb.paused:
		return "⏸"
	case sb.state != rtu.Connected:
		return "○"
	case sb.err != nil:
		return "✗"
	default:
		return "●"
	}
}

func (sb *StatusBar) View() string {
	width := sb.width
	if width <= 0 {
		width = 80
	}

	modeText, modeBg := "POLL", colors.Blue
	if sb.paused {
		modeText, modeBg = "PAUSED", colors.Yellow
	}
	mode := lipgloss.NewStyle().
		Foreground(colors.Base).
		Background(modeBg).
		Bold(true).
		Padding(0, 1).
		Render(modeText)

	port := lipgloss.NewStyle().
		Foreground(colors.Mauve).
		Bold(true).
		Padding(0, 1).
		Render(sb.device)

	indicator := styles.GetStatusStyle(sb.state, sb.paused).Render(sb.Indicator())

	divider := lipgloss.NewStyle().
		Foreground(colors.Surface2).
		Padding(0, 1).
		Render("│")

	details := lipgloss.NewStyle().
		Foreground(colors.Subtext0).
		Padding(0, 1).
		Render(fmt.Sprintf("⚡ %d baud %d%s%d slave %d",
			sb.params.BaudRate, sb.params.DataBits, sb.params.Parity,
			sb.params.StopBits, sb.params.SlaveID))

	counters := lipgloss.NewStyle().
		Foreground(colors.Teal).
		Padding(0, 1).
		Render(fmt.Sprintf("ops %d fail %d reconn %d",
			sb.stats.Operations, sb.stats.TransportFailures, sb.stats.Reconnects))

	stamp := "--:--:--"
	if !sb.lastPoll.IsZero() {
		stamp = sb.lastPoll.Format("15:04:05")
	}
	clock := lipgloss.NewStyle().
		Foreground(colors.Subtext1).
		Padding(0, 1).
		Render(stamp)

	left := lipgloss.JoinHorizontal(lipgloss.Left, mode, port, indicator, divider)
	right := lipgloss.JoinHorizontal(lipgloss.Left, details, divider, counters, divider, clock)

	spacer := lipgloss.NewStyle().
		Width(max(width-lipgloss.Width(left)-lipgloss.Width(right), 1)).
		Render("")

	return lipgloss.NewStyle().
		Foreground(colors.Text).
		Background(colors.Surface0).
		Width(width).
		Render(lipgloss.JoinHorizontal(lipgloss.Left, left, spacer, right))
}
