package rtu

import (
	"fmt"
	"io"
	"time"
)

// Link is the codec's view of a live handle
type Link interface {
	io.Writer
	ReadTimeout(buf []byte, timeout time.Duration) (int, error)
	Flush() error
	Drain() error
	SlaveID() byte
	// ResponseTimeout bounds the wait for the first reply byte
	ResponseTimeout() time.Duration
	// ByteTimeout bounds the gap between reply bytes
	ByteTimeout() time.Duration
	// ErrorRecovery reports whether the channel should be flushed after a
	// transport error
	ErrorRecovery() bool
}

// Codec performs request encoding and response decoding for each protocol
// primitive over a Link. Implementations return *ExceptionError for device
// exception responses, errors wrapping ErrInvalidArgument for requests that
// were never sent, and any other error for transport faults.
//
// Read primitives return the items actually carried by the response, which
// may differ from the requested count.
type Codec interface {
	ReadCoils(l Link, addr, count uint16) ([]bool, error)
	ReadDiscreteInputs(l Link, addr, count uint16) ([]bool, error)
	ReadHoldingRegisters(l Link, addr, count uint16) ([]uint16, error)
	ReadInputRegisters(l Link, addr, count uint16) ([]uint16, error)

	WriteSingleCoil(l Link, addr uint16, value bool) error
	WriteSingleRegister(l Link, addr, value uint16) error
	WriteMultipleCoils(l Link, addr uint16, values []bool) (int, error)
	WriteMultipleRegisters(l Link, addr uint16, values []uint16) (int, error)

	MaskWriteRegister(l Link, addr, andMask, orMask uint16) error
	ReadWriteMultipleRegisters(l Link, readAddr, readCount, writeAddr uint16, values []uint16) ([]uint16, error)
	Custom(l Link, function byte, payload []byte) ([]byte, error)
}

var errNoCodec = fmt.Errorf("%w: manager has no codec", ErrInvalidArgument)

// noCodec stands in for a nil Codec passed to NewManager
type noCodec struct{}

func (noCodec) ReadCoils(Link, uint16, uint16) ([]bool, error)          { return nil, errNoCodec }
func (noCodec) ReadDiscreteInputs(Link, uint16, uint16) ([]bool, error) { return nil, errNoCodec }
func (noCodec) ReadHoldingRegisters(Link, uint16, uint16) ([]uint16, error) {
	return nil, errNoCodec
}
func (noCodec) ReadInputRegisters(Link, uint16, uint16) ([]uint16, error) { return nil, errNoCodec }
func (noCodec) WriteSingleCoil(Link, uint16, bool) error                  { return errNoCodec }
func (noCodec) WriteSingleRegister(Link, uint16, uint16) error            { return errNoCodec }
func (noCodec) WriteMultipleCoils(Link, uint16, []bool) (int, error)      { return 0, errNoCodec }
func (noCodec) WriteMultipleRegisters(Link, uint16, []uint16) (int, error) {
	return 0, errNoCodec
}
func (noCodec) MaskWriteRegister(Link, uint16, uint16, uint16) error { return errNoCodec }
func (noCodec) ReadWriteMultipleRegisters(Link, uint16, uint16, uint16, []uint16) ([]uint16, error) {
	return nil, errNoCodec
}
func (noCodec) Custom(Link, byte, []byte) ([]byte, error) { return nil, errNoCodec }
