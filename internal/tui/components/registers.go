package components

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/evertras/bubble-table/table"

	"github.com/allbin/go-rtu/internal/tui/colors"
	"github.com/allbin/go-rtu/internal/tui/styles"
)

const (
	colAddr    = "addr"
	colValue   = "value"
	colRaw     = "raw"
	colUpdated = "updated"
)

// highlight is how long a changed register stays emphasized
const highlight = 2 * time.Second

// RegisterGrid is a paged table of consecutive registers
type RegisterGrid struct {
	base    uint16
	values  []uint16
	seen    bool
	changed []time.Time
	stale   bool
	format  ValueFormat
	now     time.Time
	table   table.Model
}

func NewRegisterGrid(base uint16, count int) *RegisterGrid {
	g := &RegisterGrid{
		base:    base,
		values:  make([]uint16, count),
		changed: make([]time.Time, count),
	}
	g.table = table.New([]table.Column{
		table.NewColumn(colAddr, "Addr", 8),
		table.NewColumn(colValue, "Value", 20),
		table.NewColumn(colRaw, "Raw", 8),
		table.NewColumn(colUpdated, "Changed", 14),
	}).
		BorderRounded().
		HeaderStyle(styles.InfoStyle).
		WithBaseStyle(styles.ValueStyle.BorderForeground(colors.Surface2)).
		Focused(true)
	g.rebuild()
	return g
}

// Set stores a fresh poll. Values that differ from the previous poll are
// highlighted for a while; a reply of the wrong length is ignored.
func (g *RegisterGrid) Set(values []uint16, now time.Time) error {
	if len(values) != len(g.values) {
		return fmt.Errorf("got %d registers, watching %d", len(values), len(g.values))
	}
	for i, v := range values {
		if g.seen && v != g.values[i] {
			g.changed[i] = now
		}
		g.values[i] = v
	}
	g.seen = true
	g.stale = false
	g.now = now
	g.rebuild()
	return nil
}

// MarkStale dims the grid after a failed poll
func (g *RegisterGrid) MarkStale() {
	g.stale = true
	g.rebuild()
}

func (g *RegisterGrid) Stale() bool { return g.stale }

func (g *RegisterGrid) Values() []uint16 { return g.values }

func (g *RegisterGrid) Format() ValueFormat { return g.format }

func (g *RegisterGrid) CycleFormat() {
	g.format = g.format.Next()
	g.rebuild()
}

// Cell returns the rendered value of register i
func (g *RegisterGrid) Cell(i int) string {
	if !g.seen {
		return "-"
	}
	return FormatRegister(g.values[i], g.format)
}

func (g *RegisterGrid) SetPageSize(rows int) {
	g.table = g.table.WithPageSize(max(rows, 1))
}

func (g *RegisterGrid) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	g.table, cmd = g.table.Update(msg)
	return cmd
}

func (g *RegisterGrid) View() string {
	return g.table.View()
}

func (g *RegisterGrid) rebuild() {
	rows := make([]table.Row, len(g.values))
	for i := range g.values {
		style := styles.ValueStyle
		switch {
		case g.stale:
			style = styles.StaleStyle
		case !g.changed[i].IsZero() && g.now.Sub(g.changed[i]) < highlight:
			style = styles.ChangedStyle
		}

		updated := ""
		if !g.changed[i].IsZero() {
			updated = g.changed[i].Format("15:04:05.000")
		}
		raw := "-"
		if g.seen {
			raw = fmt.Sprintf("%04X", g.values[i])
		}

		rows[i] = table.NewRow(table.RowData{
			colAddr:    fmt.Sprintf("%d", int(g.base)+i),
			colValue:   table.NewStyledCell(g.Cell(i), style),
			colRaw:     raw,
			colUpdated: updated,
		})
	}
	g.table = g.table.WithRows(rows)
}
