package rtu

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestExecuteNotConnected(t *testing.T) {
	m, codec, _ := newTestManager(t)

	_, err := m.ReadHoldingRegisters(0, 2)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, m.WriteSingleCoil(1, true), ErrNotConnected)
	assert.Zero(t, codec.callCount())
}

func TestExecuteSingleRetryBound(t *testing.T) {
	m, codec, opener := newTestManager(t)
	require.NoError(t, m.Open(DefaultParams("/dev/ttyA")))
	codec.fail = func(int) error { return errLinkDown }

	_, err := m.ReadHoldingRegisters(0, 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, errLinkDown)
	assert.True(t, IsTransport(err))

	assert.Equal(t, 2, codec.callCount(), "one attempt plus one retry")
	opens, _, _ := opener.stats()
	assert.Equal(t, 2, opens, "initial open plus one reconnect")

	s := m.Stats()
	assert.Equal(t, Stats{Operations: 1, TransportFailures: 2, Reconnects: 1, Retries: 1}, s)
}

func TestExecuteRetrySucceeds(t *testing.T) {
	m, codec, opener := newTestManager(t)
	require.NoError(t, m.Open(DefaultParams("/dev/ttyA")))
	codec.regs[7] = 0x1234
	codec.fail = func(call int) error {
		if call == 1 {
			return errLinkDown
		}
		return nil
	}

	v, err := m.ReadRegister(7)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), v)

	opens, live, _ := opener.stats()
	assert.Equal(t, 2, opens)
	assert.Equal(t, 1, live)
	assert.Equal(t, Connected, m.State())
}

func TestExecuteReconnectFails(t *testing.T) {
	m, codec, opener := newTestManager(t)
	require.NoError(t, m.Open(DefaultParams("/dev/ttyA")))
	codec.fail = func(int) error { return errLinkDown }
	opener.fail = func(Params, int) error { return ErrDeviceNotFound }

	err := m.WriteSingleRegister(1, 2)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, errLinkDown)
	assert.NotErrorIs(t, err, ErrDeviceNotFound, "the operation error is reported, not the reconnect error")
	assert.Equal(t, Disconnected, m.State())
	assert.Equal(t, 1, codec.callCount())

	s := m.Stats()
	assert.Equal(t, uint64(1), s.ReconnectFailures)
	assert.Zero(t, s.Retries)

	// Still down: no handle means no attempt
	err = m.WriteSingleRegister(1, 2)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, 1, codec.callCount())
}

func TestExecuteExceptionPassThrough(t *testing.T) {
	m, codec, opener := newTestManager(t)
	require.NoError(t, m.Open(DefaultParams("/dev/ttyA")))
	codec.fail = func(int) error { return &ExceptionError{Function: 0x03, Code: 0x02} }

	_, err := m.ReadHoldingRegisters(900, 1)
	require.Error(t, err)

	var exc *ExceptionError
	require.True(t, errors.As(err, &exc))
	assert.Equal(t, byte(0x02), exc.Code)
	assert.True(t, IsException(err))
	assert.False(t, IsTransport(err))
	assert.Contains(t, err.Error(), "illegal data address")

	assert.Equal(t, 1, codec.callCount())
	opens, _, _ := opener.stats()
	assert.Equal(t, 1, opens)
	assert.Zero(t, m.Stats().Reconnects)
}

func TestExecuteInvalidArgumentPassThrough(t *testing.T) {
	m, codec, _ := newTestManager(t)
	require.NoError(t, m.Open(DefaultParams("/dev/ttyA")))
	codec.fail = func(int) error { return fmt.Errorf("%w: register quantity 0", ErrInvalidArgument) }

	_, err := m.WriteMultipleRegisters(0, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.False(t, IsTransport(err))
	assert.Zero(t, m.Stats().Reconnects)
}

func TestSingleValueRejectsWrongCount(t *testing.T) {
	tests := []struct {
		name  string
		empty bool
		items int
		read  func(*Manager) error
	}{
		{"register empty", true, 0, func(m *Manager) error { _, err := m.ReadRegister(0); return err }},
		{"register long", false, 2, func(m *Manager) error { _, err := m.ReadRegister(0); return err }},
		{"input register long", false, 3, func(m *Manager) error { _, err := m.ReadInputRegister(0); return err }},
		{"coil long", false, 8, func(m *Manager) error { _, err := m.ReadCoil(0); return err }},
		{"discrete empty", true, 0, func(m *Manager) error { _, err := m.ReadDiscreteInput(0); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, codec, _ := newTestManager(t)
			require.NoError(t, m.Open(DefaultParams("/dev/ttyA")))
			codec.empty = tt.empty
			codec.items = tt.items

			err := tt.read(m)
			assert.ErrorIs(t, err, ErrUnexpectedCount)
			assert.Zero(t, m.Stats().Reconnects)
		})
	}
}

func TestSingleEmptyReply(t *testing.T) {
	_, err := single("ReadRegister", []uint16{}, nil)
	assert.ErrorIs(t, err, ErrUnexpectedCount)

	_, err = single[bool]("ReadCoil", nil, nil)
	assert.ErrorIs(t, err, ErrUnexpectedCount)

	v, err := single("ReadRegister", []uint16{42}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint16(42), v)

	_, err = single("ReadRegister", []uint16{42}, errLinkDown)
	assert.ErrorIs(t, err, errLinkDown)
}

func TestExecuteOperations(t *testing.T) {
	m, codec, _ := newTestManager(t)
	require.NoError(t, m.Open(DefaultParams("/dev/ttyA")))

	n, err := m.WriteMultipleRegisters(10, []uint16{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	regs, err := m.ReadHoldingRegisters(10, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint16{1, 2, 3}, regs)

	n, err = m.WriteMultipleCoils(0, []bool{true, false, true})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	bits, err := m.ReadCoils(0, 3)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, bits)

	require.NoError(t, m.WriteSingleCoil(1, true))
	on, err := m.ReadCoil(1)
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, m.MaskWriteRegister(10, 0x00F0, 0x0F00))
	v, err := m.ReadRegister(10)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0F00), v)

	out, err := m.ReadWriteMultipleRegisters(20, 2, 20, []uint16{7, 8})
	require.NoError(t, err)
	assert.Equal(t, []uint16{7, 8}, out)

	resp, err := m.Custom(0x41, []byte{0xDE, 0xAD})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x41, 0xDE, 0xAD}, resp)

	_, err = m.ReadInputRegisters(0, 2)
	require.NoError(t, err)
	_, err = m.ReadDiscreteInputs(0, 2)
	require.NoError(t, err)
	_, err = m.ReadInputRegister(0)
	require.NoError(t, err)
	_, err = m.ReadDiscreteInput(0)
	require.NoError(t, err)

	assert.Equal(t, uint64(14), m.Stats().Operations)
	assert.Equal(t, 14, codec.callCount())
}

func TestExecuteLogsFailure(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	codec := newFakeCodec()
	opener := &fakeOpener{}
	m := NewManager(codec, zap.New(core), WithOpener(opener.open), WithDebug(true))
	require.NoError(t, m.Open(DefaultParams("/dev/ttyA")))

	codec.fail = func(call int) error {
		if call == 1 {
			return errLinkDown
		}
		return nil
	}
	require.NoError(t, m.WriteSingleRegister(3, 4))

	warn := logs.FilterMessage("operation failed, reconnecting").All()
	require.Len(t, warn, 1)
	assert.Equal(t, "WriteSingleRegister", warn[0].ContextMap()["op"])
	assert.Equal(t, 1, logs.FilterMessage("operation").Len())
}

func TestExecuteConcurrentReconnect(t *testing.T) {
	m, codec, opener := newTestManager(t)
	require.NoError(t, m.Open(DefaultParams("/dev/ttyA")))
	codec.fail = func(call int) error {
		if call%5 == 0 {
			return errLinkDown
		}
		return nil
	}

	const rounds = 200
	var wg sync.WaitGroup
	wg.Add(3)
	for w := 0; w < 2; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				addr := uint16(w*100 + i%50)
				if err := m.WriteSingleRegister(addr, uint16(i)); err != nil {
					t.Errorf("write %d: %v", addr, err)
					return
				}
				if _, err := m.ReadRegister(addr); err != nil {
					t.Errorf("read %d: %v", addr, err)
					return
				}
			}
		}(w)
	}
	go func() {
		defer wg.Done()
		for i := 0; i < rounds/4; i++ {
			assert.NoError(t, m.Reconnect())
		}
	}()
	wg.Wait()

	codec.mu.Lock()
	stale := codec.stale
	codec.mu.Unlock()
	assert.Zero(t, stale, "no operation may see a closed handle")

	_, live, maxLive := opener.stats()
	assert.Equal(t, 1, live)
	assert.Equal(t, 1, maxLive)
}
