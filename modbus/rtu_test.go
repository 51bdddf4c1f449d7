package modbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allbin/go-rtu"
)

// scriptLink replies to every write with a canned frame, delivered in
// chunks of at most chunk bytes
type scriptLink struct {
	slave    byte
	reply    []byte
	rx       []byte
	chunk    int
	recovery bool
	sent     [][]byte
	flushes  int
}

func (l *scriptLink) Write(p []byte) (int, error) {
	l.sent = append(l.sent, append([]byte(nil), p...))
	l.rx = append(l.rx, l.reply...)
	return len(p), nil
}

func (l *scriptLink) ReadTimeout(buf []byte, _ time.Duration) (int, error) {
	if len(l.rx) == 0 {
		return 0, rtu.ErrReadTimeout
	}
	n := len(buf)
	if l.chunk > 0 && n > l.chunk {
		n = l.chunk
	}
	n = copy(buf[:n], l.rx)
	l.rx = l.rx[n:]
	return n, nil
}

func (l *scriptLink) Flush() error {
	l.flushes++
	l.rx = nil
	return nil
}

func (l *scriptLink) Drain() error                   { return nil }
func (l *scriptLink) SlaveID() byte                  { return l.slave }
func (l *scriptLink) ResponseTimeout() time.Duration { return 10 * time.Millisecond }
func (l *scriptLink) ByteTimeout() time.Duration     { return 10 * time.Millisecond }
func (l *scriptLink) ErrorRecovery() bool            { return l.recovery }

func newScript(reply []byte) *scriptLink {
	return &scriptLink{slave: 1, reply: reply, recovery: true}
}

func TestEncodeADU(t *testing.T) {
	adu := EncodeADU(1, []byte{0x06, 0x00, 0x01, 0x00, 0x03})
	assert.Equal(t, []byte{0x01, 0x06, 0x00, 0x01, 0x00, 0x03, 0x98, 0x0B}, adu)
}

func TestReadHoldingRegistersFrames(t *testing.T) {
	l := newScript(EncodeADU(1, []byte{0x03, 0x04, 0x00, 0x2A, 0x01, 0x00}))
	l.chunk = 1

	regs, err := New().ReadHoldingRegisters(l, 20, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint16{42, 256}, regs)
	require.Len(t, l.sent, 1)
	assert.Equal(t, EncodeADU(1, []byte{0x03, 0x00, 0x14, 0x00, 0x02}), l.sent[0])
}

func TestReadFrameDropsTrailingBytes(t *testing.T) {
	reply := EncodeADU(1, []byte{0x03, 0x02, 0x00, 0x07})
	l := newScript(append(reply, 0xFF, 0xFF))

	regs, err := New().ReadHoldingRegisters(l, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint16{7}, regs)
}

func TestReadCoilsCountMismatch(t *testing.T) {
	// Two data bytes for a one-coil request: every carried bit comes back
	l := newScript(EncodeADU(1, []byte{0x01, 0x02, 0x01, 0x00}))

	bits, err := New().ReadCoils(l, 0, 1)
	require.NoError(t, err)
	assert.Len(t, bits, 16)
	assert.True(t, bits[0])
}

func TestExchangeErrors(t *testing.T) {
	tests := []struct {
		name  string
		reply []byte
		want  error
	}{
		{"timeout", nil, ErrTimeout},
		{"bad crc", func() []byte {
			f := EncodeADU(1, []byte{0x03, 0x02, 0x00, 0x01})
			f[len(f)-1] ^= 0xFF
			return f
		}(), ErrCRC},
		{"wrong slave", EncodeADU(2, []byte{0x03, 0x02, 0x00, 0x01}), ErrMalformed},
		{"wrong function", EncodeADU(1, []byte{0x04, 0x02, 0x00, 0x01}), ErrMalformed},
		{"truncated", EncodeADU(1, []byte{0x03, 0x02, 0x00, 0x01})[:5], ErrTimeout},
		{"odd byte count", EncodeADU(1, []byte{0x03, 0x03, 0x00, 0x01, 0x02}), ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newScript(tt.reply)
			_, err := New().ReadHoldingRegisters(l, 0, 1)
			assert.ErrorIs(t, err, tt.want)
			assert.False(t, rtu.IsException(err))
		})
	}
}

func TestTransportErrorFlushes(t *testing.T) {
	l := newScript(nil)
	_, err := New().ReadInputRegisters(l, 0, 1)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, l.flushes)

	l = newScript(nil)
	l.recovery = false
	_, err = New().ReadInputRegisters(l, 0, 1)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Zero(t, l.flushes)
}

func TestExceptionResponse(t *testing.T) {
	l := newScript(EncodeADU(1, []byte{0x86, 0x02}))

	err := New().WriteSingleRegister(l, 9999, 1)
	var exc *rtu.ExceptionError
	require.ErrorAs(t, err, &exc)
	assert.Equal(t, byte(FuncWriteSingleRegister), exc.Function)
	assert.Equal(t, byte(0x02), exc.Code)
	assert.Zero(t, l.flushes, "an exception leaves the line clean")
}

func TestEchoMismatch(t *testing.T) {
	l := newScript(EncodeADU(1, []byte{0x06, 0x00, 0x01, 0x00, 0x04}))
	err := New().WriteSingleRegister(l, 1, 3)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestWriteSingleCoilEncoding(t *testing.T) {
	req := []byte{0x05, 0x00, 0x07, 0xFF, 0x00}
	l := newScript(EncodeADU(1, req))

	require.NoError(t, New().WriteSingleCoil(l, 7, true))
	assert.Equal(t, EncodeADU(1, req), l.sent[0])
}

func TestWriteMultipleRegistersAck(t *testing.T) {
	l := newScript(EncodeADU(1, []byte{0x10, 0x00, 0x0A, 0x00, 0x02}))

	n, err := New().WriteMultipleRegisters(l, 10, []uint16{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, EncodeADU(1, []byte{0x10, 0x00, 0x0A, 0x00, 0x02, 0x04, 0x00, 0x01, 0x00, 0x02}), l.sent[0])

	l = newScript(EncodeADU(1, []byte{0x10, 0x00, 0x0B, 0x00, 0x02}))
	_, err = New().WriteMultipleRegisters(l, 10, []uint16{1, 2})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestQuantityLimitsNeverSent(t *testing.T) {
	c := New()
	l := newScript(nil)

	_, err := c.ReadHoldingRegisters(l, 0, 126)
	assert.ErrorIs(t, err, rtu.ErrInvalidArgument)
	_, err = c.ReadCoils(l, 0, 2001)
	assert.ErrorIs(t, err, rtu.ErrInvalidArgument)
	_, err = c.WriteMultipleRegisters(l, 0, make([]uint16, 124))
	assert.ErrorIs(t, err, rtu.ErrInvalidArgument)
	_, err = c.WriteMultipleCoils(l, 0, nil)
	assert.ErrorIs(t, err, rtu.ErrInvalidArgument)
	_, err = c.ReadWriteMultipleRegisters(l, 0, 1, 0, make([]uint16, 122))
	assert.ErrorIs(t, err, rtu.ErrInvalidArgument)
	_, err = c.Custom(l, 0x83, nil)
	assert.ErrorIs(t, err, rtu.ErrInvalidArgument)
	_, err = c.Custom(l, 0x41, make([]byte, MaxADU))
	assert.ErrorIs(t, err, rtu.ErrInvalidArgument)

	assert.Empty(t, l.sent)
}

func TestCustomFrameGap(t *testing.T) {
	l := newScript(EncodeADU(1, []byte{0x41, 0x10, 0x20, 0x30}))
	l.chunk = 3

	resp, err := New(WithFrameGap(time.Millisecond)).Custom(l, 0x41, []byte{0x10})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x10, 0x20, 0x30}, resp)
}
