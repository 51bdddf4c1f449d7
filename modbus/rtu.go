package modbus

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/allbin/go-rtu"
)

// DefaultFrameGap ends a reply whose length cannot be predicted from its
// header (vendor-specific functions)
const DefaultFrameGap = 20 * time.Millisecond

// RTU is the binary serial framing of the protocol. It is stateless and
// safe to share between managers.
type RTU struct {
	frameGap time.Duration
	logger   *zap.Logger
}

// Ensure RTU implements rtu.Codec at compile time
var _ rtu.Codec = (*RTU)(nil)

// Option is a functional option for the RTU codec
type Option func(*RTU)

// WithFrameGap sets the silence that terminates an unpredictable reply
func WithFrameGap(d time.Duration) Option {
	return func(c *RTU) {
		if d > 0 {
			c.frameGap = d
		}
	}
}

// WithLogger enables debug-level frame dumps
func WithLogger(logger *zap.Logger) Option {
	return func(c *RTU) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New returns an RTU codec
func New(opts ...Option) *RTU {
	c := &RTU{
		frameGap: DefaultFrameGap,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EncodeADU frames pdu for slave with the trailing CRC
func EncodeADU(slave byte, pdu []byte) []byte {
	adu := make([]byte, 0, len(pdu)+3)
	adu = append(adu, slave)
	adu = append(adu, pdu...)
	return appendCRC(adu)
}

// transact sends req and returns the response PDU (function code first,
// CRC stripped). After a transport fault the channel is flushed when the
// link asks for error recovery.
func (c *RTU) transact(l rtu.Link, req []byte) ([]byte, error) {
	resp, err := c.exchange(l, req)
	if err != nil && !rtu.IsException(err) && l.ErrorRecovery() {
		if ferr := l.Flush(); ferr != nil {
			c.logger.Debug("flush after error failed", zap.Error(ferr))
		}
	}
	return resp, err
}

func (c *RTU) exchange(l rtu.Link, req []byte) ([]byte, error) {
	slave := l.SlaveID()
	adu := EncodeADU(slave, req)
	c.logger.Debug("tx", zap.String("frame", hex.EncodeToString(adu)))

	n, err := l.Write(adu)
	if err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	if n != len(adu) {
		return nil, fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(adu))
	}

	frame, err := c.readFrame(l)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("rx", zap.String("frame", hex.EncodeToString(frame)))

	if !checkCRC(frame) {
		return nil, fmt.Errorf("%w: frame % X", ErrCRC, frame)
	}
	if frame[0] != slave {
		return nil, fmt.Errorf("%w: reply from slave %d, expected %d", ErrMalformed, frame[0], slave)
	}
	resp := frame[1 : len(frame)-2]
	if resp[0] == req[0]|0x80 {
		if len(resp) < 2 {
			return nil, fmt.Errorf("%w: exception without code", ErrMalformed)
		}
		return nil, &rtu.ExceptionError{Function: req[0], Code: resp[1]}
	}
	if resp[0] != req[0] {
		return nil, fmt.Errorf("%w: function 0x%02X in reply to 0x%02X", ErrMalformed, resp[0], req[0])
	}
	return resp, nil
}

// readFrame reads one reply ADU. The first byte may take up to the
// response timeout; each following byte must arrive within the byte
// timeout.
func (c *RTU) readFrame(l rtu.Link) ([]byte, error) {
	frame := make([]byte, 0, MaxADU)
	chunk := make([]byte, MaxADU)
	want := 0

	for {
		var timeout time.Duration
		switch {
		case len(frame) == 0:
			timeout = l.ResponseTimeout()
		case want < 0:
			timeout = c.frameGap
		default:
			timeout = l.ByteTimeout()
		}

		need := MaxADU - len(frame)
		if want > 0 {
			need = want - len(frame)
		}

		n, err := l.ReadTimeout(chunk[:need], timeout)
		if errors.Is(err, rtu.ErrReadTimeout) {
			if want < 0 && len(frame) >= 4 {
				return frame, nil
			}
			return nil, fmt.Errorf("%w after %d bytes", ErrTimeout, len(frame))
		}
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		frame = append(frame, chunk[:n]...)

		if want == 0 {
			want = responseLength(frame)
			if want > MaxADU {
				return nil, fmt.Errorf("%w: announced length %d", ErrMalformed, want)
			}
		}
		if want > 0 && len(frame) >= want {
			return frame[:want], nil
		}
		if len(frame) >= MaxADU {
			if want < 0 {
				return frame, nil
			}
			return nil, fmt.Errorf("%w: frame exceeds %d bytes", ErrMalformed, MaxADU)
		}
	}
}

func (c *RTU) readBits(l rtu.Link, function byte, addr, count uint16) ([]bool, error) {
	if err := checkQuantity("bit", int(count), MaxReadBits); err != nil {
		return nil, err
	}
	resp, err := c.transact(l, pdu(function, addr, count))
	if err != nil {
		return nil, err
	}
	data, err := byteCountPayload(resp)
	if err != nil {
		return nil, err
	}
	// A byte count that does not match the request reports every bit it
	// carries, so callers see the mismatch
	n := int(count)
	if len(data) != (n+7)/8 {
		n = 8 * len(data)
	}
	return unpackBits(data, n), nil
}

func (c *RTU) readRegisters(l rtu.Link, function byte, addr, count uint16) ([]uint16, error) {
	if err := checkQuantity("register", int(count), MaxReadRegisters); err != nil {
		return nil, err
	}
	resp, err := c.transact(l, pdu(function, addr, count))
	if err != nil {
		return nil, err
	}
	data, err := byteCountPayload(resp)
	if err != nil {
		return nil, err
	}
	return decodeRegisters(data)
}

// ReadCoils implements rtu.Codec (function 0x01)
func (c *RTU) ReadCoils(l rtu.Link, addr, count uint16) ([]bool, error) {
	return c.readBits(l, FuncReadCoils, addr, count)
}

// ReadDiscreteInputs implements rtu.Codec (function 0x02)
func (c *RTU) ReadDiscreteInputs(l rtu.Link, addr, count uint16) ([]bool, error) {
	return c.readBits(l, FuncReadDiscreteInputs, addr, count)
}

// ReadHoldingRegisters implements rtu.Codec (function 0x03)
func (c *RTU) ReadHoldingRegisters(l rtu.Link, addr, count uint16) ([]uint16, error) {
	return c.readRegisters(l, FuncReadHoldingRegisters, addr, count)
}

// ReadInputRegisters implements rtu.Codec (function 0x04)
func (c *RTU) ReadInputRegisters(l rtu.Link, addr, count uint16) ([]uint16, error) {
	return c.readRegisters(l, FuncReadInputRegisters, addr, count)
}

// echo sends req and requires the reply PDU to repeat it byte for byte
func (c *RTU) echo(l rtu.Link, req []byte) error {
	resp, err := c.transact(l, req)
	if err != nil {
		return err
	}
	if string(resp) != string(req) {
		return fmt.Errorf("%w: echo % X, sent % X", ErrMalformed, resp, req)
	}
	return nil
}

// WriteSingleCoil implements rtu.Codec (function 0x05)
func (c *RTU) WriteSingleCoil(l rtu.Link, addr uint16, value bool) error {
	v := uint16(coilOff)
	if value {
		v = coilOn
	}
	return c.echo(l, pdu(FuncWriteSingleCoil, addr, v))
}

// WriteSingleRegister implements rtu.Codec (function 0x06)
func (c *RTU) WriteSingleRegister(l rtu.Link, addr, value uint16) error {
	return c.echo(l, pdu(FuncWriteSingleRegister, addr, value))
}

// writeMultiple sends a 0x0F/0x10 request and returns the acknowledged
// quantity
func (c *RTU) writeMultiple(l rtu.Link, function byte, addr uint16, quantity int, data []byte) (int, error) {
	req := pdu(function, addr, uint16(quantity))
	req = append(req, byte(len(data)))
	req = append(req, data...)

	resp, err := c.transact(l, req)
	if err != nil {
		return 0, err
	}
	if len(resp) != 5 {
		return 0, fmt.Errorf("%w: write reply of %d bytes", ErrMalformed, len(resp))
	}
	if got := binary.BigEndian.Uint16(resp[1:3]); got != addr {
		return 0, fmt.Errorf("%w: write reply address %d, sent %d", ErrMalformed, got, addr)
	}
	return int(binary.BigEndian.Uint16(resp[3:5])), nil
}

// WriteMultipleCoils implements rtu.Codec (function 0x0F)
func (c *RTU) WriteMultipleCoils(l rtu.Link, addr uint16, values []bool) (int, error) {
	if err := checkQuantity("coil", len(values), MaxWriteCoils); err != nil {
		return 0, err
	}
	return c.writeMultiple(l, FuncWriteMultipleCoils, addr, len(values), packBits(values))
}

// WriteMultipleRegisters implements rtu.Codec (function 0x10)
func (c *RTU) WriteMultipleRegisters(l rtu.Link, addr uint16, values []uint16) (int, error) {
	if err := checkQuantity("register", len(values), MaxWriteRegisters); err != nil {
		return 0, err
	}
	return c.writeMultiple(l, FuncWriteMultipleRegisters, addr, len(values), encodeRegisters(values))
}

// MaskWriteRegister implements rtu.Codec (function 0x16)
func (c *RTU) MaskWriteRegister(l rtu.Link, addr, andMask, orMask uint16) error {
	return c.echo(l, pdu(FuncMaskWriteRegister, addr, andMask, orMask))
}

// ReadWriteMultipleRegisters implements rtu.Codec (function 0x17)
func (c *RTU) ReadWriteMultipleRegisters(l rtu.Link, readAddr, readCount, writeAddr uint16, values []uint16) ([]uint16, error) {
	if err := checkQuantity("register", int(readCount), MaxReadRegisters); err != nil {
		return nil, err
	}
	if err := checkQuantity("register", len(values), MaxRWWriteRegisters); err != nil {
		return nil, err
	}
	data := encodeRegisters(values)
	req := pdu(FuncReadWriteMultipleRegisters, readAddr, readCount, writeAddr, uint16(len(values)))
	req = append(req, byte(len(data)))
	req = append(req, data...)

	resp, err := c.transact(l, req)
	if err != nil {
		return nil, err
	}
	payload, err := byteCountPayload(resp)
	if err != nil {
		return nil, err
	}
	return decodeRegisters(payload)
}

// Custom implements rtu.Codec for vendor-specific functions. The reply is
// delimited by DefaultFrameGap (or WithFrameGap) of line silence.
func (c *RTU) Custom(l rtu.Link, function byte, payload []byte) ([]byte, error) {
	if function == 0 || function&0x80 != 0 {
		return nil, fmt.Errorf("%w: function code 0x%02X", rtu.ErrInvalidArgument, function)
	}
	if len(payload) > MaxADU-4 {
		return nil, fmt.Errorf("%w: payload of %d bytes", rtu.ErrInvalidArgument, len(payload))
	}
	req := append([]byte{function}, payload...)
	resp, err := c.transact(l, req)
	if err != nil {
		return nil, err
	}
	return resp[1:], nil
}
