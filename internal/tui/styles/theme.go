package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/go-rtu"
	"github.com/allbin/go-rtu/internal/tui/colors"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Mauve).
			Background(colors.Surface0).
			Padding(0, 1)

	StatusConnectedStyle = lipgloss.NewStyle().
				Foreground(colors.Green).
				Bold(true)

	StatusDisconnectedStyle = lipgloss.NewStyle().
				Foreground(colors.Red).
				Bold(true)

	StatusPausedStyle = lipgloss.NewStyle().
				Foreground(colors.Yellow).
				Bold(true)

	// Register cells
	ValueStyle   = lipgloss.NewStyle().Foreground(colors.Text)
	ChangedStyle = lipgloss.NewStyle().Foreground(colors.Peach).Bold(true)
	StaleStyle   = lipgloss.NewStyle().Foreground(colors.Overlay0).Faint(true)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Red)

	InfoStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Mauve)
)

// One-shot command output, matching the glyph colors of the plain CLI
var (
	CLIInfo    = lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Bold(true)
	CLISuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("40")).Bold(true)
	CLIError   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	CLIMuted   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	CLIHeader  = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(lipgloss.Color("240"))
)

// GetStatusStyle returns the indicator style for a manager state
func GetStatusStyle(state rtu.State, paused bool) lipgloss.Style {
	switch {
	case paused:
		return StatusPausedStyle
	case state == rtu.Connected:
		return StatusConnectedStyle
	default:
		return StatusDisconnectedStyle
	}
}
