package rtu

import (
	"errors"
	"fmt"
)

// Predefined error types for robust error handling
var (
	// Configurator errors
	ErrDeviceOpen        = errors.New("serial device could not be opened")
	ErrDeviceNotFound    = errors.New("serial device not found")
	ErrPermissionDenied  = errors.New("permission denied accessing serial device")
	ErrDeviceInUse       = errors.New("serial device already in use")
	ErrUnsupportedConfig = errors.New("unsupported serial configuration")
	ErrInvalidBaudRate   = errors.New("invalid baud rate")
	ErrHandleClosed      = errors.New("connection handle is closed")
	ErrReadTimeout       = errors.New("read operation timed out")
	ErrRS485NotSupported = errors.New("RS-485 mode not supported by device")

	// Manager errors
	ErrConnect           = errors.New("connect failed")
	ErrNotConnected      = errors.New("not connected")
	ErrNoPriorConnection = errors.New("no prior successful connection to reconnect")

	// Operation errors
	ErrTransport       = errors.New("transport failure")
	ErrUnexpectedCount = errors.New("unexpected item count in response")
	ErrInvalidArgument = errors.New("invalid argument")
)

// ExceptionError is a well-formed negative response from the remote device.
// The link is healthy when one of these comes back, so it never triggers a
// reconnect.
type ExceptionError struct {
	Function byte
	Code     byte
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("device exception on function 0x%02X: %s (0x%02X)", e.Function, exceptionText(e.Code), e.Code)
}

func exceptionText(code byte) string {
	switch code {
	case 0x01:
		return "illegal function"
	case 0x02:
		return "illegal data address"
	case 0x03:
		return "illegal data value"
	case 0x04:
		return "server device failure"
	case 0x05:
		return "acknowledge"
	case 0x06:
		return "server device busy"
	case 0x08:
		return "memory parity error"
	case 0x0A:
		return "gateway path unavailable"
	case 0x0B:
		return "gateway target device failed to respond"
	default:
		return "unknown exception"
	}
}

// IsException reports whether err carries a device exception response.
func IsException(err error) bool {
	var exc *ExceptionError
	return errors.As(err, &exc)
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}
