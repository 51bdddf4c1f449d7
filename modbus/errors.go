package modbus

import "errors"

// Transport faults. None of these are device exceptions, so the resilient
// executor treats them as recoverable.
var (
	ErrTimeout    = errors.New("modbus: response timeout")
	ErrCRC        = errors.New("modbus: CRC mismatch")
	ErrMalformed  = errors.New("modbus: malformed response")
	ErrShortWrite = errors.New("modbus: short write")
)
