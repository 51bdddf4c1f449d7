/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/allbin/go-rtu/internal/drive"
	"github.com/allbin/go-rtu/internal/tui/styles"
)

// driveCmd represents the drive command
var driveCmd = &cobra.Command{
	Use:   "drive <port>",
	Short: "Run the drive master loop: command writes plus telemetry reads",
	Long: `Ramp the drive from --start-rpm down to 0 while sweeping the steering
angle from -180 to 179.99 degrees. Every step:
- writes rpm and angle to holding registers 0-1
- writes valid/forward/backward/enable to coils 0-3
- reads the battery block (registers 10-13)
- reads the charger error flags (coils 4-9)

Failed operations are counted and the loop carries on. Ctrl+C stops early.
A timing summary is printed at the end.

Example usage:
  rtu drive /dev/ttyS0
  rtu drive /dev/ttyS0 --start-rpm 100 --interval 100ms
  rtu drive /dev/ttyS0 --simulate --interval 0`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s, err := openSession(cmd, args[0])
		exitOnError(err)

		start := s.cfg.Poll.StartRPM
		if cmd.Flags().Changed("start-rpm") {
			start, _ = cmd.Flags().GetInt("start-rpm")
		}
		interval := s.cfg.Poll.Interval
		if cmd.Flags().Changed("interval") {
			interval, _ = cmd.Flags().GetDuration("interval")
		}
		quiet, _ := cmd.Flags().GetBool("quiet")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("%s driving %s: %d steps every %v\n",
			styles.CLIInfo.Render("⚡"), s.params.Device, start+1, interval)
		sum, err := runDrive(ctx, s.manager, s.logger, drive.Sweep(start), interval, quiet, os.Stdout)
		stats := s.manager.Stats()
		s.Close()

		fmt.Printf("reconnects: %d, retries: %d\n", stats.Reconnects, stats.Retries)
		if err != nil && !errors.Is(err, context.Canceled) {
			exitOnError(err)
		}
		if sum.FailedOps > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(driveCmd)

	driveCmd.Flags().Int("start-rpm", 3500, "Initial rpm of the ramp (default from poll.start_rpm)")
	driveCmd.Flags().Duration("interval", 500*time.Millisecond, "Pause between steps (default from poll.interval)")
	driveCmd.Flags().BoolP("quiet", "q", false, "Only print the summary")
}

func runDrive(ctx context.Context, bus drive.Bus, logger *zap.Logger, steps []drive.Step, interval time.Duration, quiet bool, w io.Writer) (drive.Summary, error) {
	report := func(r drive.Report) {
		if quiet {
			return
		}
		line := fmt.Sprintf("[%4d] %s", r.Index, r.Step.Frame())
		if r.Battery != nil {
			line += "  " + r.Battery.String()
		} else {
			line += "  battery: " + styles.CLIError.Render("n/a")
		}
		if r.Charger != nil {
			line += "  " + r.Charger.String()
		}
		fmt.Fprintln(w, line)
	}

	sum, err := drive.NewLoop(bus, logger, interval, report).Run(ctx, steps)

	status := styles.CLISuccess.Render("✓")
	if sum.FailedOps > 0 {
		status = styles.CLIError.Render("✗")
	}
	fmt.Fprintf(w, "%s frames: %d, failed operations: %d\n", status, sum.Frames, sum.FailedOps)
	fmt.Fprintf(w, "elapsed: %v, sleep: %v, effective: %v, per frame: %v\n",
		sum.Elapsed.Round(time.Millisecond), sum.Sleep, sum.Effective().Round(time.Millisecond),
		sum.PerFrame().Round(time.Microsecond))
	return sum, err
}
