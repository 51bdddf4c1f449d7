/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/allbin/go-rtu"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <port>",
	Short: "Display port details and the RS-485 mode programmed in the driver",
	Long: `Display details about a serial port: driver, USB metadata from sysfs,
and the RS-485 transmit-enable settings currently held by the kernel driver.

Examples:
  rtu info /dev/ttyUSB0
  rtu info /dev/ttyAMA0`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		portPath := args[0]

		info, err := rtu.GetPortInfo(portPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting port info: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Port Information: %s\n\n", info.Path)
		fmt.Printf("  Name:        %s\n", info.Name)
		fmt.Printf("  Description: %s\n", info.Description())
		if info.Driver != "" {
			fmt.Printf("  Driver:      %s\n", info.Driver)
		}

		if info.VendorID != "" || info.ProductID != "" {
			fmt.Println("\nUSB Device Information:")
			fmt.Printf("  Vendor ID:    %s\n", info.VendorID)
			fmt.Printf("  Product ID:   %s\n", info.ProductID)
			if info.SerialNumber != "" {
				fmt.Printf("  Serial:       %s\n", info.SerialNumber)
			}
			if info.Manufacturer != "" {
				fmt.Printf("  Manufacturer: %s\n", info.Manufacturer)
			}
			if info.Product != "" {
				fmt.Printf("  Product:      %s\n", info.Product)
			}
		}

		fmt.Println("\nRS-485:")
		rs, err := readRS485(portPath)
		switch {
		case errors.Is(err, rtu.ErrRS485NotSupported):
			fmt.Println("  not supported by this driver")
		case err != nil:
			fmt.Printf("  unavailable: %v\n", err)
		default:
			fmt.Printf("  Enabled:        %t\n", rs.Enabled)
			fmt.Printf("  RTS on send:    %t\n", rs.RTSOnSend)
			fmt.Printf("  RTS after send: %t\n", rs.RTSAfterSend)
			fmt.Printf("  Rx during Tx:   %t\n", rs.RxDuringTx)
			fmt.Printf("  Delay before:   %v\n", rs.DelayBeforeSend)
			fmt.Printf("  Delay after:    %v\n", rs.DelayAfterSend)
		}
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

// readRS485 opens path without touching its line settings and queries the
// driver's RS-485 state
func readRS485(path string) (rtu.RS485Config, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return rtu.RS485Config{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer unix.Close(fd)
	return rtu.ReadRS485(fd)
}
