package rtu

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// recoverable reports whether err should trigger reconnect-and-retry.
// Device exceptions and rejected arguments leave the link healthy.
func recoverable(err error) bool {
	return !IsException(err) && !errors.Is(err, ErrInvalidArgument)
}

// execute runs fn against the live handle under the manager lock. A
// transport failure triggers one reconnect with the last parameters and,
// if that succeeds, exactly one more attempt.
func (m *Manager) execute(op string, fn func(Link) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle == nil {
		return fmt.Errorf("%s: %w", op, ErrNotConnected)
	}

	m.stats.Operations++
	start := time.Now()
	err := fn(m.handle)
	if m.debug {
		m.logger.Debug("operation", zap.String("op", op), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
	}
	if err == nil || !recoverable(err) {
		return err
	}

	m.stats.TransportFailures++
	m.logger.Warn("operation failed, reconnecting", zap.String("op", op), zap.Error(err))

	if rerr := m.reconnectLocked(); rerr != nil {
		m.logger.Error("reconnect failed", zap.String("op", op), zap.NamedError("reconnect_error", rerr))
		return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
	}

	m.stats.Retries++
	err = fn(m.handle)
	if err == nil || !recoverable(err) {
		return err
	}
	m.stats.TransportFailures++
	m.logger.Error("retry failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}

// call adapts a value-returning primitive to execute
func call[T any](m *Manager, op string, fn func(Link) (T, error)) (T, error) {
	var out T
	err := m.execute(op, func(l Link) error {
		v, err := fn(l)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// ReadCoils reads count coils starting at addr
func (m *Manager) ReadCoils(addr, count uint16) ([]bool, error) {
	return call(m, "ReadCoils", func(l Link) ([]bool, error) {
		return m.codec.ReadCoils(l, addr, count)
	})
}

// ReadDiscreteInputs reads count discrete inputs starting at addr
func (m *Manager) ReadDiscreteInputs(addr, count uint16) ([]bool, error) {
	return call(m, "ReadDiscreteInputs", func(l Link) ([]bool, error) {
		return m.codec.ReadDiscreteInputs(l, addr, count)
	})
}

// ReadHoldingRegisters reads count holding registers starting at addr
func (m *Manager) ReadHoldingRegisters(addr, count uint16) ([]uint16, error) {
	return call(m, "ReadHoldingRegisters", func(l Link) ([]uint16, error) {
		return m.codec.ReadHoldingRegisters(l, addr, count)
	})
}

// ReadInputRegisters reads count input registers starting at addr
func (m *Manager) ReadInputRegisters(addr, count uint16) ([]uint16, error) {
	return call(m, "ReadInputRegisters", func(l Link) ([]uint16, error) {
		return m.codec.ReadInputRegisters(l, addr, count)
	})
}

// WriteSingleCoil forces one coil on or off
func (m *Manager) WriteSingleCoil(addr uint16, value bool) error {
	return m.execute("WriteSingleCoil", func(l Link) error {
		return m.codec.WriteSingleCoil(l, addr, value)
	})
}

// WriteSingleRegister writes one holding register
func (m *Manager) WriteSingleRegister(addr, value uint16) error {
	return m.execute("WriteSingleRegister", func(l Link) error {
		return m.codec.WriteSingleRegister(l, addr, value)
	})
}

// WriteMultipleCoils writes values starting at addr and returns the count
// the device acknowledged
func (m *Manager) WriteMultipleCoils(addr uint16, values []bool) (int, error) {
	return call(m, "WriteMultipleCoils", func(l Link) (int, error) {
		return m.codec.WriteMultipleCoils(l, addr, values)
	})
}

// WriteMultipleRegisters writes values starting at addr and returns the
// count the device acknowledged
func (m *Manager) WriteMultipleRegisters(addr uint16, values []uint16) (int, error) {
	return call(m, "WriteMultipleRegisters", func(l Link) (int, error) {
		return m.codec.WriteMultipleRegisters(l, addr, values)
	})
}

// MaskWriteRegister applies (current AND andMask) OR (orMask AND NOT andMask)
func (m *Manager) MaskWriteRegister(addr, andMask, orMask uint16) error {
	return m.execute("MaskWriteRegister", func(l Link) error {
		return m.codec.MaskWriteRegister(l, addr, andMask, orMask)
	})
}

// ReadWriteMultipleRegisters writes values at writeAddr, then reads
// readCount registers at readAddr, in one transaction
func (m *Manager) ReadWriteMultipleRegisters(readAddr, readCount, writeAddr uint16, values []uint16) ([]uint16, error) {
	return call(m, "ReadWriteMultipleRegisters", func(l Link) ([]uint16, error) {
		return m.codec.ReadWriteMultipleRegisters(l, readAddr, readCount, writeAddr, values)
	})
}

// Custom sends a vendor-specific function with payload and returns the
// response data following the function code
func (m *Manager) Custom(function byte, payload []byte) ([]byte, error) {
	return call(m, fmt.Sprintf("Custom(0x%02X)", function), func(l Link) ([]byte, error) {
		return m.codec.Custom(l, function, payload)
	})
}

// single extracts the only item of a count-1 read
func single[T any](op string, items []T, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if len(items) != 1 {
		return zero, fmt.Errorf("%s: %w: got %d, want 1", op, ErrUnexpectedCount, len(items))
	}
	return items[0], nil
}

// ReadRegister reads one holding register
func (m *Manager) ReadRegister(addr uint16) (uint16, error) {
	items, err := m.ReadHoldingRegisters(addr, 1)
	return single("ReadRegister", items, err)
}

// ReadInputRegister reads one input register
func (m *Manager) ReadInputRegister(addr uint16) (uint16, error) {
	items, err := m.ReadInputRegisters(addr, 1)
	return single("ReadInputRegister", items, err)
}

// ReadCoil reads one coil
func (m *Manager) ReadCoil(addr uint16) (bool, error) {
	items, err := m.ReadCoils(addr, 1)
	return single("ReadCoil", items, err)
}

// ReadDiscreteInput reads one discrete input
func (m *Manager) ReadDiscreteInput(addr uint16) (bool, error) {
	items, err := m.ReadDiscreteInputs(addr, 1)
	return single("ReadDiscreteInput", items, err)
}
