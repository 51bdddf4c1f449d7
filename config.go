package rtu

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Link defaults
const (
	DefaultBaudRate        = 115200
	DefaultDataBits        = 8
	DefaultStopBits        = 1
	DefaultSlaveID         = 1
	DefaultResponseTimeout = 2 * time.Second
	DefaultByteTimeout     = 2 * time.Second
)

// Parity represents the parity mode
type Parity int

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "N"
	case ParityEven:
		return "E"
	case ParityOdd:
		return "O"
	default:
		return fmt.Sprintf("Parity(%d)", int(p))
	}
}

// ParseParity accepts N/E/O as well as none/even/odd, case-insensitive.
func ParseParity(s string) (Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "n", "none", "":
		return ParityNone, nil
	case "e", "even":
		return ParityEven, nil
	case "o", "odd":
		return ParityOdd, nil
	default:
		return ParityNone, fmt.Errorf("%w: parity %q", ErrUnsupportedConfig, s)
	}
}

// Params are the connection parameters captured for one session. They are
// plain values; the Manager keeps a copy of the last set that opened
// successfully.
type Params struct {
	Device   string
	BaudRate int
	Parity   Parity
	DataBits int
	StopBits int
	SlaveID  int
}

// ParamOption is a functional option for connection parameters
type ParamOption func(*Params) error

// DefaultParams returns 115200 8N1 addressed at slave 1.
func DefaultParams(device string) Params {
	return Params{
		Device:   device,
		BaudRate: DefaultBaudRate,
		Parity:   ParityNone,
		DataBits: DefaultDataBits,
		StopBits: DefaultStopBits,
		SlaveID:  DefaultSlaveID,
	}
}

// NewParams builds validated parameters from the defaults plus opts.
func NewParams(device string, opts ...ParamOption) (Params, error) {
	p := DefaultParams(device)
	for _, opt := range opts {
		if err := opt(&p); err != nil {
			return Params{}, err
		}
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Validate checks the framing and addressing fields. The baud rate is not
// checked here; the configurator resolves it against the rate table.
func (p Params) Validate() error {
	if p.Device == "" {
		return fmt.Errorf("%w: empty device path", ErrUnsupportedConfig)
	}
	if p.DataBits != 7 && p.DataBits != 8 {
		return fmt.Errorf("%w: %d data bits", ErrUnsupportedConfig, p.DataBits)
	}
	if p.StopBits != 1 && p.StopBits != 2 {
		return fmt.Errorf("%w: %d stop bits", ErrUnsupportedConfig, p.StopBits)
	}
	switch p.Parity {
	case ParityNone, ParityEven, ParityOdd:
	default:
		return fmt.Errorf("%w: parity %v", ErrUnsupportedConfig, p.Parity)
	}
	if p.SlaveID < 1 || p.SlaveID > 247 {
		return fmt.Errorf("%w: slave address %d outside 1-247", ErrUnsupportedConfig, p.SlaveID)
	}
	return nil
}

func (p Params) String() string {
	return fmt.Sprintf("%s %d %d%s%d slave=%d", p.Device, p.BaudRate, p.DataBits, p.Parity, p.StopBits, p.SlaveID)
}

// WithBaudRate sets the baud rate
func WithBaudRate(rate int) ParamOption {
	return func(p *Params) error {
		if rate <= 0 {
			return ErrInvalidBaudRate
		}
		p.BaudRate = rate
		return nil
	}
}

// WithParity sets the parity mode
func WithParity(parity Parity) ParamOption {
	return func(p *Params) error {
		p.Parity = parity
		return nil
	}
}

// WithDataBits sets the number of data bits (7 or 8)
func WithDataBits(bits int) ParamOption {
	return func(p *Params) error {
		if bits != 7 && bits != 8 {
			return ErrUnsupportedConfig
		}
		p.DataBits = bits
		return nil
	}
}

// WithStopBits sets the number of stop bits (1 or 2)
func WithStopBits(bits int) ParamOption {
	return func(p *Params) error {
		if bits != 1 && bits != 2 {
			return ErrUnsupportedConfig
		}
		p.StopBits = bits
		return nil
	}
}

// WithSlaveID sets the target device address (1-247)
func WithSlaveID(id int) ParamOption {
	return func(p *Params) error {
		if id < 1 || id > 247 {
			return ErrUnsupportedConfig
		}
		p.SlaveID = id
		return nil
	}
}

// RS485Config mirrors the kernel's struct serial_rs485 settings.
type RS485Config struct {
	Enabled         bool
	RTSOnSend       bool // RTS asserted while transmitting
	RTSAfterSend    bool // RTS asserted after the last byte
	RxDuringTx      bool
	DelayBeforeSend time.Duration // millisecond resolution
	DelayAfterSend  time.Duration // millisecond resolution
}

// DefaultRS485Config enables automatic transmit-enable toggling with zero
// turnaround delays.
func DefaultRS485Config() RS485Config {
	return RS485Config{
		Enabled:   true,
		RTSOnSend: true,
	}
}

// Config holds the session settings applied when a handle is opened
type Config struct {
	ResponseTimeout time.Duration
	ByteTimeout     time.Duration
	ErrorRecovery   bool
	RS485           RS485Config
	StrictBaudRate  bool
	Logger          *zap.Logger
}

// Option is a functional option for configuring a handle
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		ResponseTimeout: DefaultResponseTimeout,
		ByteTimeout:     DefaultByteTimeout,
		ErrorRecovery:   true,
		RS485:           DefaultRS485Config(),
		Logger:          zap.NewNop(),
	}
}

// WithResponseTimeout bounds the wait for the first byte of a reply
func WithResponseTimeout(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("%w: response timeout %v", ErrUnsupportedConfig, d)
		}
		c.ResponseTimeout = d
		return nil
	}
}

// WithByteTimeout bounds the gap between consecutive reply bytes
func WithByteTimeout(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("%w: byte timeout %v", ErrUnsupportedConfig, d)
		}
		c.ByteTimeout = d
		return nil
	}
}

// WithErrorRecovery toggles flushing of the channel after a transport error
func WithErrorRecovery(enabled bool) Option {
	return func(c *Config) error {
		c.ErrorRecovery = enabled
		return nil
	}
}

// WithRS485 replaces the RS-485 transmit-enable settings
func WithRS485(rs RS485Config) Option {
	return func(c *Config) error {
		if rs.DelayBeforeSend < 0 || rs.DelayAfterSend < 0 {
			return fmt.Errorf("%w: negative RS-485 delay", ErrUnsupportedConfig)
		}
		c.RS485 = rs
		return nil
	}
}

// WithoutRS485 leaves the line's RS-485 mode untouched
func WithoutRS485() Option {
	return func(c *Config) error {
		c.RS485 = RS485Config{}
		return nil
	}
}

// WithStrictBaudRate makes an unsupported baud rate fail the open instead of
// falling back to DefaultBaudRate.
func WithStrictBaudRate() Option {
	return func(c *Config) error {
		c.StrictBaudRate = true
		return nil
	}
}

// WithLogger sets the logger used while configuring the line
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) error {
		if logger == nil {
			logger = zap.NewNop()
		}
		c.Logger = logger
		return nil
	}
}
