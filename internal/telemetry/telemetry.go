// Package telemetry decodes the controller's battery and charger status.
// Registers arrive as raw uint16; signed fields are reinterpreted here.
package telemetry

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/allbin/go-rtu"
)

// Register and coil layout
const (
	BatteryAddr       = 10
	BatteryCount      = 4
	ChargerErrorAddr  = 4
	ChargerErrorCount = 6
)

// Reader is the subset of the resilient manager needed to poll telemetry
type Reader interface {
	ReadHoldingRegisters(addr, count uint16) ([]uint16, error)
	ReadCoils(addr, count uint16) ([]bool, error)
}

// Battery is the decoded battery block. Scaled fields keep the device's
// fixed-point precision.
type Battery struct {
	Voltage     decimal.Decimal // V
	Current     decimal.Decimal // A, negative while discharging
	SOC         decimal.Decimal // percent
	Temperature int             // °C
}

func (b Battery) String() string {
	return fmt.Sprintf("BattV=%sV BattI=%sA SOC=%s%% T=%d°C",
		b.Voltage.StringFixed(1), b.Current.StringFixed(2), b.SOC.StringFixed(1), b.Temperature)
}

// DecodeBattery decodes registers 10-13: V/10, signed A/100, SOC/10 and
// signed °C
func DecodeBattery(regs []uint16) (Battery, error) {
	if len(regs) != BatteryCount {
		return Battery{}, fmt.Errorf("%w: battery block has %d registers, want %d", rtu.ErrUnexpectedCount, len(regs), BatteryCount)
	}
	return Battery{
		Voltage:     decimal.New(int64(regs[0]), -1),
		Current:     decimal.New(int64(int16(regs[1])), -2),
		SOC:         decimal.New(int64(regs[2]), -1),
		Temperature: int(int16(regs[3])),
	}, nil
}

// ReadBattery polls and decodes the battery block
func ReadBattery(r Reader) (Battery, error) {
	regs, err := r.ReadHoldingRegisters(BatteryAddr, BatteryCount)
	if err != nil {
		return Battery{}, err
	}
	return DecodeBattery(regs)
}

// ChargerErrors are the six charger fault flags at coils 4-9
type ChargerErrors [ChargerErrorCount]bool

// Any reports whether at least one fault is raised
func (c ChargerErrors) Any() bool {
	for _, e := range c {
		if e {
			return true
		}
	}
	return false
}

func (c ChargerErrors) String() string {
	parts := make([]string, len(c))
	for i, e := range c {
		parts[i] = "0"
		if e {
			parts[i] = "1"
		}
	}
	return "ChargerErrs=[" + strings.Join(parts, ",") + "]"
}

// DecodeChargerErrors requires exactly six flags
func DecodeChargerErrors(bits []bool) (ChargerErrors, error) {
	var c ChargerErrors
	if len(bits) != ChargerErrorCount {
		return c, fmt.Errorf("%w: %d charger flags, want %d", rtu.ErrUnexpectedCount, len(bits), ChargerErrorCount)
	}
	copy(c[:], bits)
	return c, nil
}

// ReadChargerErrors polls and decodes the charger fault coils
func ReadChargerErrors(r Reader) (ChargerErrors, error) {
	bits, err := r.ReadCoils(ChargerErrorAddr, ChargerErrorCount)
	if err != nil {
		return ChargerErrors{}, err
	}
	return DecodeChargerErrors(bits)
}
