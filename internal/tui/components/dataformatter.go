package components

import (
	"fmt"
	"strconv"
)

// ValueFormat selects how register values are rendered
type ValueFormat int

const (
	FormatDecimal ValueFormat = iota
	FormatSigned
	FormatHex
	FormatBinary
	formatCount
)

func (f ValueFormat) String() string {
	switch f {
	case FormatDecimal:
		return "dec"
	case FormatSigned:
		return "int16"
	case FormatHex:
		return "hex"
	case FormatBinary:
		return "bin"
	default:
		return "ValueFormat(" + strconv.Itoa(int(f)) + ")"
	}
}

// Next cycles dec → int16 → hex → bin → dec
func (f ValueFormat) Next() ValueFormat {
	return (f + 1) % formatCount
}

// FormatRegister renders one 16-bit register
func FormatRegister(v uint16, f ValueFormat) string {
	switch f {
	case FormatSigned:
		return strconv.Itoa(int(int16(v)))
	case FormatHex:
		return fmt.Sprintf("0x%04X", v)
	case FormatBinary:
		return fmt.Sprintf("%08b %08b", v>>8, v&0xFF)
	default:
		return strconv.Itoa(int(v))
	}
}

// FormatBit renders a coil or discrete input
func FormatBit(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}
