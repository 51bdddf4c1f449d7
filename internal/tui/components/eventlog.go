package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/go-rtu/internal/tui/colors"
)

// maxEvents bounds the poll history kept on screen
const maxEvents = 200

// Event is one entry of the poll history
type Event struct {
	Time    time.Time
	OK      bool
	Latency time.Duration
	Detail  string
}

// EventLog is a scrolling table of poll outcomes, newest last
type EventLog struct {
	table  table.Model
	events []Event
}

func NewEventLog(width, height int) *EventLog {
	t := table.New(
		table.WithColumns(eventColumns(width)),
		table.WithFocused(false),
		table.WithHeight(max(height, 2)),
		table.WithWidth(width),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colors.Subtext0).
		BorderBottom(true).
		Bold(true).
		Foreground(colors.Text)
	s.Selected = s.Selected.
		Foreground(colors.Text).
		Background(colors.Surface1).
		Bold(false)
	t.SetStyles(s)

	return &EventLog{table: t}
}

func eventColumns(width int) []table.Column {
	detail := max(width-14-6-10-8, 20)
	return []table.Column{
		{Title: "Time", Width: 14},
		{Title: "", Width: 6},
		{Title: "Latency", Width: 10},
		{Title: "Detail", Width: detail},
	}
}

func (l *EventLog) SetSize(width, height int) {
	l.table.SetColumns(eventColumns(width))
	l.table.SetHeight(max(height, 2))
	l.table.SetWidth(width)
	l.table.UpdateViewport()
}

// Add appends e, dropping the oldest entries past the limit
func (l *EventLog) Add(e Event) {
	l.events = append(l.events, e)
	if len(l.events) > maxEvents {
		l.events = l.events[len(l.events)-maxEvents:]
	}

	rows := make([]table.Row, len(l.events))
	for i, ev := range l.events {
		mark := "✓"
		if !ev.OK {
			mark = "✗"
		}
		rows[i] = table.Row{
			ev.Time.Format("15:04:05.000"),
			mark,
			fmt.Sprintf("%v", ev.Latency.Round(time.Millisecond)),
			ev.Detail,
		}
	}
	l.table.SetRows(rows)
	l.table.GotoBottom()
}

func (l *EventLog) Events() []Event { return l.events }

func (l *EventLog) View() string {
	return l.table.View()
}
