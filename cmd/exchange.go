/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/allbin/go-rtu"
	"github.com/allbin/go-rtu/internal/tui/styles"
)

// exchangeCmd represents the exchange command
var exchangeCmd = &cobra.Command{
	Use:   "exchange <port> <waddr> <wvalue> [raddr]",
	Short: "Write one register, then read one back",
	Long: `Write wvalue to holding register waddr, then read register raddr
(default: waddr). The read runs even when the write fails, so both
outcomes are reported.

Example usage:
  rtu exchange /dev/ttyS0 20 42        # Reg[20]=42, read Reg[20]
  rtu exchange /dev/ttyS0 20 42 10     # Reg[20]=42, read Reg[10]`,
	Args: cobra.RangeArgs(3, 4),
	Run: func(cmd *cobra.Command, args []string) {
		waddr, err := parseAddr(args[1])
		exitOnError(err)
		wvalue, err := parseAddr(args[2])
		exitOnError(err)
		raddr := waddr
		if len(args) == 4 {
			raddr, err = parseAddr(args[3])
			exitOnError(err)
		}

		s, err := openSession(cmd, args[0])
		exitOnError(err)
		fmt.Printf("%s %s, slave %d\n", styles.CLIInfo.Render("⚡"), s.params.Device, s.params.SlaveID)
		err = runExchange(s.manager, waddr, wvalue, raddr, os.Stdout)
		s.Close()
		exitOnError(err)
	},
}

func init() {
	rootCmd.AddCommand(exchangeCmd)
}

func runExchange(m *rtu.Manager, waddr, wvalue, raddr uint16, w io.Writer) error {
	ok, failed := styles.CLISuccess.Render("✓"), styles.CLIError.Render("✗")

	fmt.Fprintf(w, "Write Reg[%d] = %d\n", waddr, wvalue)
	werr := m.WriteSingleRegister(waddr, wvalue)
	if werr != nil {
		fmt.Fprintf(w, "  %s write failed: %v\n", failed, werr)
	} else {
		fmt.Fprintf(w, "  %s write OK\n", ok)
	}

	fmt.Fprintf(w, "Read  Reg[%d]\n", raddr)
	value, rerr := m.ReadRegister(raddr)
	if rerr != nil {
		fmt.Fprintf(w, "  %s read failed: %v\n", failed, rerr)
	} else {
		fmt.Fprintf(w, "  %s read OK: Reg[%d] = %d\n", ok, raddr, value)
	}

	return errors.Join(werr, rerr)
}
