package telemetry

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allbin/go-rtu"
)

type stubReader struct {
	regs  []uint16
	coils []bool
	err   error
	addrs []uint16
}

func (s *stubReader) ReadHoldingRegisters(addr, count uint16) ([]uint16, error) {
	s.addrs = append(s.addrs, addr, count)
	return s.regs, s.err
}

func (s *stubReader) ReadCoils(addr, count uint16) ([]bool, error) {
	s.addrs = append(s.addrs, addr, count)
	return s.coils, s.err
}

func TestDecodeBattery(t *testing.T) {
	b, err := DecodeBattery([]uint16{482, 0xFF38, 875, 0xFFFB})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("48.2").Equal(b.Voltage), b.Voltage.String())
	assert.True(t, decimal.RequireFromString("-2").Equal(b.Current), b.Current.String())
	assert.True(t, decimal.RequireFromString("87.5").Equal(b.SOC), b.SOC.String())
	assert.Equal(t, -5, b.Temperature)
	assert.Equal(t, "BattV=48.2V BattI=-2.00A SOC=87.5% T=-5°C", b.String())

	_, err = DecodeBattery([]uint16{1, 2, 3})
	assert.ErrorIs(t, err, rtu.ErrUnexpectedCount)
}

func TestReadBattery(t *testing.T) {
	r := &stubReader{regs: []uint16{240, 150, 1000, 25}}
	b, err := ReadBattery(r)
	require.NoError(t, err)
	assert.Equal(t, []uint16{10, 4}, r.addrs)
	assert.Equal(t, 25, b.Temperature)

	r = &stubReader{err: errors.New("bus down")}
	_, err = ReadBattery(r)
	assert.EqualError(t, err, "bus down")
}

func TestChargerErrors(t *testing.T) {
	r := &stubReader{coils: []bool{false, true, false, false, false, true}}
	c, err := ReadChargerErrors(r)
	require.NoError(t, err)
	assert.Equal(t, []uint16{4, 6}, r.addrs)
	assert.True(t, c.Any())
	assert.Equal(t, "ChargerErrs=[0,1,0,0,0,1]", c.String())

	assert.False(t, ChargerErrors{}.Any())

	_, err = DecodeChargerErrors(make([]bool, 8))
	assert.ErrorIs(t, err, rtu.ErrUnexpectedCount)
}
