/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/allbin/go-rtu/internal/tui/models"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch <port> <addr> <count>",
	Short: "Poll a register block in a live terminal view",
	Long: `Poll count registers starting at addr and show them live. Values that
change are highlighted; failed polls dim the grid and land in the
history pane while the manager reconnects underneath. Logging is
silenced unless logging.output names a file.

Keys: p pause, r poll now, R reconnect, f cycle dec/int16/hex/bin, q quit.

Example usage:
  rtu watch /dev/ttyUSB0 0 16
  rtu watch /dev/ttyUSB0 0x100 8 --input --interval 250ms`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		addr, err := parseAddr(args[1])
		exitOnError(err)
		count, err := parseAddr(args[2])
		exitOnError(err)
		if count == 0 {
			exitOnError(fmt.Errorf("count must be at least 1"))
		}

		s, err := openSessionWith(cmd, args[0], true)
		exitOnError(err)

		interval := s.cfg.Poll.Interval
		if cmd.Flags().Changed("interval") {
			interval, _ = cmd.Flags().GetDuration("interval")
		}
		input, _ := cmd.Flags().GetBool("input")

		read := s.manager.ReadHoldingRegisters
		if input {
			read = s.manager.ReadInputRegisters
		}

		m := models.NewWatch(models.WatchConfig{
			Params:   s.params,
			Addr:     addr,
			Count:    int(count),
			Interval: interval,
			Input:    input,
			Read:     read,
			Session:  s.manager,
		})

		_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
		s.Close()
		exitOnError(err)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().Duration("interval", 500*time.Millisecond, "Poll interval (default from poll.interval)")
	watchCmd.Flags().Bool("input", false, "Watch input registers (0x04) instead of holding registers")
}
