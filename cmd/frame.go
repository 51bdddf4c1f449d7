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

	"github.com/allbin/go-rtu"
	"github.com/allbin/go-rtu/internal/drive"
	"github.com/allbin/go-rtu/internal/tui/styles"
)

// linker is the part of rtu.Manager that lends out the raw link
type linker interface {
	WithLink(fn func(rtu.Link) error) error
}

// frameCmd represents the frame command
var frameCmd = &cobra.Command{
	Use:   "frame",
	Short: "Send or receive raw 8-byte drive frames outside Modbus",
	Long: `Some drive controllers accept a raw 8-byte command frame on the same
RS-485 link: rpm (u16 LE), angle in 0.01 degree (i16 LE), a control byte
(valid/forward/backward) and three reserved bytes.

These commands borrow the managed link for each frame, so they never
interleave with a Modbus request.`,
}

var frameSendCmd = &cobra.Command{
	Use:   "send <port>",
	Short: "Send the rpm ramp and angle sweep as raw frames",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s, err := openSession(cmd, args[0])
		exitOnError(err)

		start := s.cfg.Poll.StartRPM
		if cmd.Flags().Changed("start-rpm") {
			start, _ = cmd.Flags().GetInt("start-rpm")
		}
		interval := s.cfg.Poll.FrameInterval
		if cmd.Flags().Changed("interval") {
			interval, _ = cmd.Flags().GetDuration("interval")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = sendFrames(ctx, s.manager, drive.Sweep(start), interval, os.Stdout)
		s.Close()
		if !errors.Is(err, context.Canceled) {
			exitOnError(err)
		}
	},
}

var frameRecvCmd = &cobra.Command{
	Use:   "recv <port>",
	Short: "Print raw frames as they arrive",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s, err := openSession(cmd, args[0])
		exitOnError(err)
		count, _ := cmd.Flags().GetInt("count")
		timeout, _ := cmd.Flags().GetDuration("wait")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = recvFrames(ctx, s.manager, count, timeout, os.Stdout)
		s.Close()
		if !errors.Is(err, context.Canceled) {
			exitOnError(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(frameCmd)
	frameCmd.AddCommand(frameSendCmd, frameRecvCmd)

	frameSendCmd.Flags().Int("start-rpm", 3500, "Initial rpm of the ramp (default from poll.start_rpm)")
	frameSendCmd.Flags().Duration("interval", 20*time.Millisecond, "Pause between frames (default from poll.frame_interval)")

	frameRecvCmd.Flags().IntP("count", "n", 0, "Stop after n frames (0: run until interrupted)")
	frameRecvCmd.Flags().Duration("wait", 200*time.Millisecond, "Poll slice while waiting for a frame")
}

// sendFrames writes each step as a raw frame, pausing interval between
// frames. A failed write is reported and the ramp goes on.
func sendFrames(ctx context.Context, l linker, steps []drive.Step, interval time.Duration, w io.Writer) error {
	failed := 0
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		f := step.Frame()
		if err := l.WithLink(func(link rtu.Link) error { return drive.Write(link, f) }); err != nil {
			failed++
			fmt.Fprintf(w, "%s [%4d] %v\n", styles.CLIError.Render("✗"), i, err)
		} else {
			fmt.Fprintf(w, "[%4d] %s\n", i, f)
		}
		if interval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d frames failed", failed, len(steps))
	}
	return nil
}

// recvFrames prints frames until count have arrived (0: no limit) or ctx
// ends. The link is borrowed for at most wait at a time so other users of
// the manager are not starved.
func recvFrames(ctx context.Context, l linker, count int, wait time.Duration, w io.Writer) error {
	for got := 0; count == 0 || got < count; {
		if err := ctx.Err(); err != nil {
			return err
		}
		var f drive.Frame
		err := l.WithLink(func(link rtu.Link) error {
			var err error
			f, err = drive.Read(link, wait)
			return err
		})
		switch {
		case errors.Is(err, rtu.ErrReadTimeout):
			continue
		case err != nil:
			return err
		}
		got++
		fmt.Fprintf(w, "%s %s\n", styles.CLIMuted.Render(time.Now().Format("15:04:05.000")), f)
	}
	return nil
}
