/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/allbin/go-rtu"
	"github.com/allbin/go-rtu/internal/tui/styles"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List serial ports that can carry an RS-485 bus",
	Long: `List the UARTs on this system that can drive an RS-485 transceiver:
- USB serial adapters (ttyUSB*)
- USB CDC/ACM devices (ttyACM*)
- On-board UARTs (ttyS*, ttyAMA*, ttymxc*, ...)

Virtual terminals and pseudo-terminals are excluded.`,
	Run: func(cmd *cobra.Command, args []string) {
		ports, err := rtu.ListPorts()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing ports: %v\n", err)
			os.Exit(1)
		}

		filterType, _ := cmd.Flags().GetString("filter")
		tableFormat, _ := cmd.Flags().GetBool("table")

		infos := filterPorts(describePorts(ports), filterType)
		if len(infos) == 0 {
			if filterType != "" {
				fmt.Printf("No serial ports found matching filter: %s\n", filterType)
			} else {
				fmt.Println("No serial ports found")
			}
			return
		}

		if tableFormat {
			renderTable(infos)
		} else {
			for _, info := range infos {
				fmt.Println(info.Path)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringP("filter", "f", "", "Filter by port type: usb, onboard, all")
	listCmd.Flags().Bool("table", false, "Display output in a styled table format")
}

func describePorts(ports []string) []rtu.PortInfo {
	infos := make([]rtu.PortInfo, 0, len(ports))
	for _, port := range ports {
		info, err := rtu.GetPortInfo(port)
		if err != nil {
			infos = append(infos, rtu.PortInfo{Path: port, Name: port, Kind: "Unknown"})
			continue
		}
		infos = append(infos, *info)
	}
	return infos
}

// filterPorts keeps the ports matching filterType; USB adapters are the
// ones whose kind starts with "USB"
func filterPorts(infos []rtu.PortInfo, filterType string) []rtu.PortInfo {
	filterType = strings.ToLower(filterType)
	if filterType == "" || filterType == "all" {
		return infos
	}

	var filtered []rtu.PortInfo
	for _, info := range infos {
		usb := strings.HasPrefix(info.Kind, "USB")
		switch filterType {
		case "usb":
			if usb {
				filtered = append(filtered, info)
			}
		case "onboard":
			if !usb {
				filtered = append(filtered, info)
			}
		}
	}
	return filtered
}

// renderTable renders the port list in a styled static table format
func renderTable(infos []rtu.PortInfo) {
	fmt.Printf("Found %d serial port(s):\n\n", len(infos))

	const (
		portWidth   = 15
		driverWidth = 14
		descWidth   = 40
	)
	cellStyle := lipgloss.NewStyle().PaddingRight(2)

	header := fmt.Sprintf("%-*s %-*s %-*s",
		portWidth, "Port",
		driverWidth, "Driver",
		descWidth, "Description")
	fmt.Println(styles.CLIHeader.Render(header))

	for _, info := range infos {
		driver := info.Driver
		if driver == "" {
			driver = "-"
		}
		row := fmt.Sprintf("%-*s %-*s %-*s",
			portWidth, info.Name,
			driverWidth, driver,
			descWidth, info.Description())
		fmt.Println(cellStyle.Render(row))
	}
}
