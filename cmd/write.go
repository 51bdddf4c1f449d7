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
	"github.com/allbin/go-rtu/internal/tui/styles"
)

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write <port> <addr> <value...>",
	Short: "Write registers or coils on a slave",
	Long: `Write one or more values starting at addr. A single value uses the
single-write function (0x06 / 0x05); several use the multiple-write
function (0x10 / 0x0F).

Coil values are 0/1, on/off or true/false.

Example usage:
  rtu write /dev/ttyUSB0 20 42
  rtu write /dev/ttyUSB0 0 3500 0x0400
  rtu write /dev/ttyUSB0 0 1 1 0 1 --coils`,
	Args: cobra.MinimumNArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		addr, err := parseAddr(args[1])
		exitOnError(err)
		coils, _ := cmd.Flags().GetBool("coils")

		s, err := openSession(cmd, args[0])
		exitOnError(err)
		err = runWrite(s.manager, coils, addr, args[2:], os.Stdout)
		s.Close()
		exitOnError(err)
	},
}

func init() {
	rootCmd.AddCommand(writeCmd)

	writeCmd.Flags().Bool("coils", false, "Write coils instead of holding registers")
}

func runWrite(m *rtu.Manager, coils bool, addr uint16, args []string, w io.Writer) error {
	if coils {
		values := make([]bool, len(args))
		for i, a := range args {
			b, err := parseBool(a)
			if err != nil {
				return err
			}
			values[i] = b
		}
		if len(values) == 1 {
			if err := m.WriteSingleCoil(addr, values[0]); err != nil {
				return err
			}
		} else if _, err := m.WriteMultipleCoils(addr, values); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s wrote %d coil(s) at %d\n", styles.CLISuccess.Render("✓"), len(values), addr)
		return nil
	}

	values := make([]uint16, len(args))
	for i, a := range args {
		v, err := parseAddr(a)
		if err != nil {
			return err
		}
		values[i] = v
	}
	if len(values) == 1 {
		if err := m.WriteSingleRegister(addr, values[0]); err != nil {
			return err
		}
	} else if _, err := m.WriteMultipleRegisters(addr, values); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s wrote %d register(s) at %d\n", styles.CLISuccess.Render("✓"), len(values), addr)
	return nil
}
