/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/allbin/go-rtu"
	"github.com/allbin/go-rtu/internal/config"
)

var (
	cfgFile string
	v       = config.New()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rtu",
	Short: "Modbus RTU master for RS-485 links",
	Long: `A Modbus RTU master that keeps one RS-485 link healthy.

Every request goes through a connection manager that reconnects once and
retries once when the link fails, so a flaky adapter or a power-cycled
slave costs one retry instead of a crashed tool.

Settings come from flags, RTU_* environment variables (also read from
./.env) and an optional rtu.yaml (./, ~/.config/rtu, /etc/rtu). Flags win.

Example usage:
  rtu list --table
  rtu read /dev/ttyUSB0 0 10
  rtu write /dev/ttyUSB0 5 1234 --slave 2
  rtu drive /dev/ttyUSB0 --baud 9600 --parity even`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default: rtu.yaml in ., ~/.config/rtu or /etc/rtu)")
	pf.IntP("baud", "b", rtu.DefaultBaudRate, "Baud rate")
	pf.StringP("parity", "p", "none", "Parity: none, even, odd")
	pf.Int("data-bits", rtu.DefaultDataBits, "Data bits: 7 or 8")
	pf.Int("stop-bits", rtu.DefaultStopBits, "Stop bits: 1 or 2")
	pf.IntP("slave", "s", rtu.DefaultSlaveID, "Slave address (1-247)")
	pf.DurationP("timeout", "t", rtu.DefaultResponseTimeout, "Response timeout")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.Bool("strict-baud", false, "Fail instead of falling back when the baud rate is unsupported")
	pf.Bool("no-rs485", false, "Leave RS-485 transmit-enable untouched")
	pf.Bool("simulate", false, "Talk to an in-memory slave instead of the device")

	bindFlags(v, map[string]string{
		"serial.baud_rate":        "baud",
		"serial.parity":           "parity",
		"serial.data_bits":        "data-bits",
		"serial.stop_bits":        "stop-bits",
		"serial.slave_id":         "slave",
		"serial.response_timeout": "timeout",
		"serial.strict_baud":      "strict-baud",
		"logging.level":           "log-level",
	})
}

func bindFlags(v *viper.Viper, keys map[string]string) {
	for key, flag := range keys {
		if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
}

// loadConfig merges file, environment (including ./.env) and flags.
// --no-rs485 has no config key of its own; it overrides rs485.enabled.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}
	if off, _ := cmd.Flags().GetBool("no-rs485"); off {
		cfg.RS485.Enabled = false
	}
	return cfg, nil
}
