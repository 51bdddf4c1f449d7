package rtu

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Device is a raw, configured serial line. The concrete implementation is
// backed by a tty file descriptor; tests substitute in-memory devices.
type Device interface {
	io.ReadWriteCloser
	// ReadTimeout waits at most timeout for input, then reads what is
	// available. It returns ErrReadTimeout when nothing arrived.
	ReadTimeout(buf []byte, timeout time.Duration) (int, error)
	Flush() error
	Drain() error
	Fd() int
}

// port is the tty-backed Device
type port struct {
	mu     sync.RWMutex
	fd     int
	closed bool
}

// Ensure port implements Device at compile time
var _ Device = (*port)(nil)

// baudRates maps supported integer rates to their termios constants
var baudRates = map[int]uint32{
	1200:    unix.B1200,
	1800:    unix.B1800,
	2400:    unix.B2400,
	4800:    unix.B4800,
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	500000:  unix.B500000,
	576000:  unix.B576000,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	1152000: unix.B1152000,
	1500000: unix.B1500000,
	2000000: unix.B2000000,
	2500000: unix.B2500000,
	3000000: unix.B3000000,
	3500000: unix.B3500000,
	4000000: unix.B4000000,
}

// getBaudRate converts an integer baud rate to the unix constant
func getBaudRate(rate int) (uint32, error) {
	if b, ok := baudRates[rate]; ok {
		return b, nil
	}
	return 0, ErrInvalidBaudRate
}

// resolveBaudRate returns the termios constant and the rate actually used.
// Unknown rates fall back to DefaultBaudRate unless strict is set.
func resolveBaudRate(rate int, strict bool) (uint32, int, error) {
	b, err := getBaudRate(rate)
	if err == nil {
		return b, rate, nil
	}
	if strict {
		return 0, 0, fmt.Errorf("%w: %w: %d", ErrUnsupportedConfig, ErrInvalidBaudRate, rate)
	}
	b, _ = getBaudRate(DefaultBaudRate)
	return b, DefaultBaudRate, nil
}

// classifyOpenError maps errno values from open(2) to the package sentinels
func classifyOpenError(err error) error {
	switch {
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ENODEV), errors.Is(err, unix.ENXIO):
		return ErrDeviceNotFound
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return ErrPermissionDenied
	case errors.Is(err, unix.EBUSY):
		return ErrDeviceInUse
	default:
		return err
	}
}

// OpenHandle opens device p.Device, programs the line per p and opts and
// returns the owned handle. The descriptor is closed on every failure path.
func OpenHandle(p Params, opts ...Option) (*Handle, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return nil, err
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	baud, rate, err := resolveBaudRate(p.BaudRate, config.StrictBaudRate)
	if err != nil {
		return nil, err
	}
	if rate != p.BaudRate {
		config.Logger.Warn("unsupported baud rate, using default",
			zap.String("device", p.Device),
			zap.Int("requested", p.BaudRate),
			zap.Int("baud_rate", rate),
		)
	}

	// O_NONBLOCK keeps open(2) from waiting on carrier detect
	fd, err := unix.Open(p.Device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w (%w): %s: %v", ErrDeviceOpen, classifyOpenError(err), p.Device, err)
	}

	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %s: clear O_NONBLOCK: %v", ErrDeviceOpen, p.Device, err)
	}

	if err := unix.IoctlSetInt(fd, unix.TIOCEXCL, 0); err != nil {
		config.Logger.Debug("exclusive mode not available", zap.String("device", p.Device), zap.Error(err))
	}

	if err := configurePort(fd, baud, p); err != nil {
		unix.Close(fd)
		return nil, err
	}

	if config.RS485.Enabled {
		if err := setRS485(fd, config.RS485); err != nil {
			config.Logger.Warn("RS-485 transmit-enable not configured",
				zap.String("device", p.Device),
				zap.Error(err),
			)
		}
	}

	// Discard anything that arrived before the line was programmed
	_ = unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIOFLUSH)

	p.BaudRate = rate
	return newHandle(&port{fd: fd}, p, config), nil
}

// configurePort programs raw 8-bit clean mode and the line framing
func configurePort(fd int, baud uint32, p Params) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("%w: failed to get termios: %v", ErrDeviceOpen, err)
	}

	// Raw mode: no input processing, no output processing, no line
	// discipline, no software flow control
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB | unix.CRTSCTS
	termios.Cflag |= unix.CREAD | unix.CLOCAL

	// Reads are bounded by poll(2), so the tty itself never blocks
	termios.Cc[unix.VMIN] = 0
	termios.Cc[unix.VTIME] = 0

	switch p.DataBits {
	case 7:
		termios.Cflag |= unix.CS7
	case 8:
		termios.Cflag |= unix.CS8
	default:
		return fmt.Errorf("%w: %d data bits", ErrUnsupportedConfig, p.DataBits)
	}

	switch p.StopBits {
	case 1:
	case 2:
		termios.Cflag |= unix.CSTOPB
	default:
		return fmt.Errorf("%w: %d stop bits", ErrUnsupportedConfig, p.StopBits)
	}

	switch p.Parity {
	case ParityNone:
	case ParityEven:
		termios.Cflag |= unix.PARENB
		termios.Iflag |= unix.INPCK
	case ParityOdd:
		termios.Cflag |= unix.PARENB | unix.PARODD
		termios.Iflag |= unix.INPCK
	default:
		return fmt.Errorf("%w: parity %v", ErrUnsupportedConfig, p.Parity)
	}

	termios.Cflag = (termios.Cflag &^ unix.CBAUD) | baud
	termios.Ispeed = baud
	termios.Ospeed = baud

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("%w: failed to set termios: %v", ErrUnsupportedConfig, err)
	}
	return nil
}

// Close closes the descriptor. Closing twice is a no-op.
func (p *port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return unix.Close(p.fd)
}

// Read reads whatever is available without waiting
func (p *port) Read(buf []byte) (int, error) {
	return p.ReadTimeout(buf, 0)
}

// ReadTimeout waits up to timeout for input using poll(2)
func (p *port) ReadTimeout(buf []byte, timeout time.Duration) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrHandleClosed
	}

	ms := int(timeout / time.Millisecond)
	if timeout > 0 && ms == 0 {
		ms = 1
	}
	fds := []unix.PollFd{{Fd: int32(p.fd), Events: unix.POLLIN}}
	deadline := time.Now().Add(timeout)
	for {
		n, err := unix.Poll(fds, ms)
		if errors.Is(err, unix.EINTR) {
			if ms = int(time.Until(deadline) / time.Millisecond); ms < 0 {
				ms = 0
			}
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			return 0, ErrReadTimeout
		}
		break
	}

	if fds[0].Revents&unix.POLLIN == 0 && fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		return 0, io.ErrUnexpectedEOF
	}

	n, err := unix.Read(p.fd, buf)
	if err != nil {
		return 0, err
	}
	if n == 0 && len(buf) > 0 {
		// Readable but empty: the device went away
		return 0, io.EOF
	}
	return n, nil
}

// Write writes all of data to the line
func (p *port) Write(data []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrHandleClosed
	}

	written := 0
	for written < len(data) {
		n, err := unix.Write(p.fd, data[written:])
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return written, err
		}
		written += n
	}
	return written, nil
}

// Flush discards both unread input and unwritten output
func (p *port) Flush() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrHandleClosed
	}

	return unix.IoctlSetInt(p.fd, unix.TCFLSH, unix.TCIOFLUSH)
}

// Drain waits until all output written to the port has been transmitted
func (p *port) Drain() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrHandleClosed
	}

	return unix.IoctlSetInt(p.fd, unix.TCSBRK, 1)
}

// Fd returns the descriptor, or -1 once closed
func (p *port) Fd() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return -1
	}
	return p.fd
}
