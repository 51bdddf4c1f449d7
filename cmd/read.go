/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/allbin/go-rtu"
	"github.com/allbin/go-rtu/internal/tui/components"
)

// Data tables a read can address
const (
	tableHolding  = "holding"
	tableInput    = "input"
	tableCoils    = "coils"
	tableDiscrete = "discrete"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <port> <addr> [count]",
	Short: "Read registers or bits from a slave",
	Long: `Read count items (default 1) starting at addr. Holding registers are
read unless --input, --coils or --discrete selects another table.

Addresses accept decimal or 0x-prefixed hex.

Example usage:
  rtu read /dev/ttyUSB0 0 10
  rtu read /dev/ttyUSB0 0x100 2 --input
  rtu read /dev/ttyUSB0 4 6 --coils --slave 3`,
	Args: cobra.RangeArgs(2, 3),
	Run: func(cmd *cobra.Command, args []string) {
		addr, err := parseAddr(args[1])
		exitOnError(err)
		count := uint16(1)
		if len(args) == 3 {
			count, err = parseAddr(args[2])
			exitOnError(err)
		}

		s, err := openSession(cmd, args[0])
		exitOnError(err)
		err = runRead(s.manager, readTable(cmd), addr, count, os.Stdout)
		s.Close()
		exitOnError(err)
	},
}

func init() {
	rootCmd.AddCommand(readCmd)

	readCmd.Flags().Bool("input", false, "Read input registers (0x04)")
	readCmd.Flags().Bool("coils", false, "Read coils (0x01)")
	readCmd.Flags().Bool("discrete", false, "Read discrete inputs (0x02)")
	readCmd.MarkFlagsMutuallyExclusive("input", "coils", "discrete")
}

func readTable(cmd *cobra.Command) string {
	for _, table := range []string{tableInput, tableCoils, tableDiscrete} {
		if on, _ := cmd.Flags().GetBool(table); on {
			return table
		}
	}
	return tableHolding
}

func runRead(m *rtu.Manager, table string, addr, count uint16, w io.Writer) error {
	switch table {
	case tableCoils, tableDiscrete:
		read := m.ReadCoils
		if table == tableDiscrete {
			read = m.ReadDiscreteInputs
		}
		bits, err := read(addr, count)
		if err != nil {
			return err
		}
		for i, b := range bits {
			fmt.Fprintf(w, "%5d  %s\n", int(addr)+i, components.FormatBit(b))
		}
	default:
		read := m.ReadHoldingRegisters
		if table == tableInput {
			read = m.ReadInputRegisters
		}
		regs, err := read(addr, count)
		if err != nil {
			return err
		}
		for i, v := range regs {
			fmt.Fprintf(w, "%5d  %6s  %s\n", int(addr)+i,
				components.FormatRegister(v, components.FormatDecimal),
				components.FormatRegister(v, components.FormatHex))
		}
	}
	return nil
}
