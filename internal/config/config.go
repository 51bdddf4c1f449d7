// Package config loads CLI settings from flags, environment and an
// optional YAML file through viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/allbin/go-rtu"
)

// EnvPrefix namespaces environment overrides, e.g. RTU_SERIAL_BAUD_RATE
const EnvPrefix = "RTU"

// Config represents the CLI configuration
type Config struct {
	Serial  SerialConfig  `mapstructure:"serial"`
	RS485   RS485Config   `mapstructure:"rs485"`
	Logging LoggingConfig `mapstructure:"logging"`
	Poll    PollConfig    `mapstructure:"poll"`
}

// SerialConfig represents the line and session settings
type SerialConfig struct {
	BaudRate        int           `mapstructure:"baud_rate"`
	DataBits        int           `mapstructure:"data_bits"`
	StopBits        int           `mapstructure:"stop_bits"`
	Parity          string        `mapstructure:"parity"`
	SlaveID         int           `mapstructure:"slave_id"`
	ResponseTimeout time.Duration `mapstructure:"response_timeout"`
	ByteTimeout     time.Duration `mapstructure:"byte_timeout"`
	StrictBaud      bool          `mapstructure:"strict_baud"`
	ErrorRecovery   bool          `mapstructure:"error_recovery"`
	FrameGap        time.Duration `mapstructure:"frame_gap"`
}

// RS485Config represents transmit-enable settings
type RS485Config struct {
	Enabled         bool          `mapstructure:"enabled"`
	RTSOnSend       bool          `mapstructure:"rts_on_send"`
	RTSAfterSend    bool          `mapstructure:"rts_after_send"`
	RxDuringTx      bool          `mapstructure:"rx_during_tx"`
	DelayBeforeSend time.Duration `mapstructure:"delay_before_send"`
	DelayAfterSend  time.Duration `mapstructure:"delay_after_send"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// PollConfig represents pacing for the drive and watch commands
type PollConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	StartRPM      int           `mapstructure:"start_rpm"`
	FrameInterval time.Duration `mapstructure:"frame_interval"`
}

// New returns a viper instance with defaults and environment binding.
// Flags are bound by the caller before Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// LoadDotEnv exports the variables of a .env file (default: ./.env) that
// are not already set, so RTU_* overrides can live next to the binary. A
// missing default file is not an error.
func LoadDotEnv(files ...string) error {
	err := godotenv.Load(files...)
	if err != nil && (len(files) > 0 || !errors.Is(err, fs.ErrNotExist)) {
		return fmt.Errorf("error loading env file: %w", err)
	}
	return nil
}

// Load reads file (if non-empty, else rtu.yaml from the usual places when
// present) and decodes the merged settings.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("rtu")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/rtu")
		v.AddConfigPath("/etc/rtu")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.baud_rate", rtu.DefaultBaudRate)
	v.SetDefault("serial.data_bits", rtu.DefaultDataBits)
	v.SetDefault("serial.stop_bits", rtu.DefaultStopBits)
	v.SetDefault("serial.parity", "none")
	v.SetDefault("serial.slave_id", rtu.DefaultSlaveID)
	v.SetDefault("serial.response_timeout", rtu.DefaultResponseTimeout)
	v.SetDefault("serial.byte_timeout", rtu.DefaultByteTimeout)
	v.SetDefault("serial.strict_baud", false)
	v.SetDefault("serial.error_recovery", true)
	v.SetDefault("serial.frame_gap", "20ms")

	v.SetDefault("rs485.enabled", true)
	v.SetDefault("rs485.rts_on_send", true)
	v.SetDefault("rs485.rts_after_send", false)
	v.SetDefault("rs485.rx_during_tx", false)
	v.SetDefault("rs485.delay_before_send", "0s")
	v.SetDefault("rs485.delay_after_send", "0s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", false)

	v.SetDefault("poll.interval", "500ms")
	v.SetDefault("poll.start_rpm", 3500)
	v.SetDefault("poll.frame_interval", "20ms")
}

func (c *Config) validate() error {
	if _, err := rtu.ParseParity(c.Serial.Parity); err != nil {
		return err
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json: %q", c.Logging.Format)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive")
	}
	return nil
}

// Params builds connection parameters for device
func (c *Config) Params(device string) (rtu.Params, error) {
	parity, err := rtu.ParseParity(c.Serial.Parity)
	if err != nil {
		return rtu.Params{}, err
	}
	return rtu.NewParams(device,
		rtu.WithBaudRate(c.Serial.BaudRate),
		rtu.WithParity(parity),
		rtu.WithDataBits(c.Serial.DataBits),
		rtu.WithStopBits(c.Serial.StopBits),
		rtu.WithSlaveID(c.Serial.SlaveID),
	)
}

// HandleOptions translates the session settings into handle options
func (c *Config) HandleOptions() []rtu.Option {
	opts := []rtu.Option{
		rtu.WithResponseTimeout(c.Serial.ResponseTimeout),
		rtu.WithByteTimeout(c.Serial.ByteTimeout),
		rtu.WithErrorRecovery(c.Serial.ErrorRecovery),
	}
	if c.RS485.Enabled {
		opts = append(opts, rtu.WithRS485(rtu.RS485Config{
			Enabled:         true,
			RTSOnSend:       c.RS485.RTSOnSend,
			RTSAfterSend:    c.RS485.RTSAfterSend,
			RxDuringTx:      c.RS485.RxDuringTx,
			DelayBeforeSend: c.RS485.DelayBeforeSend,
			DelayAfterSend:  c.RS485.DelayAfterSend,
		}))
	} else {
		opts = append(opts, rtu.WithoutRS485())
	}
	if c.Serial.StrictBaud {
		opts = append(opts, rtu.WithStrictBaudRate())
	}
	return opts
}
