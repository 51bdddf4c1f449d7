package modbus

import (
	"encoding/binary"
	"fmt"

	"github.com/allbin/go-rtu"
)

// Function codes
const (
	FuncReadCoils                  = 0x01
	FuncReadDiscreteInputs         = 0x02
	FuncReadHoldingRegisters       = 0x03
	FuncReadInputRegisters         = 0x04
	FuncWriteSingleCoil            = 0x05
	FuncWriteSingleRegister        = 0x06
	FuncWriteMultipleCoils         = 0x0F
	FuncWriteMultipleRegisters     = 0x10
	FuncMaskWriteRegister          = 0x16
	FuncReadWriteMultipleRegisters = 0x17
)

// Quantity limits per request
const (
	MaxReadBits         = 2000
	MaxReadRegisters    = 125
	MaxWriteCoils       = 1968
	MaxWriteRegisters   = 123
	MaxRWWriteRegisters = 121
)

// MaxADU is the largest RTU frame: address, 253-byte PDU, CRC
const MaxADU = 256

const (
	coilOn  = 0xFF00
	coilOff = 0x0000
)

func checkQuantity(what string, n, max int) error {
	if n < 1 || n > max {
		return fmt.Errorf("%w: %s quantity %d outside 1-%d", rtu.ErrInvalidArgument, what, n, max)
	}
	return nil
}

// pdu assembles a function code followed by big-endian 16-bit fields
func pdu(function byte, fields ...uint16) []byte {
	out := make([]byte, 1, 1+2*len(fields))
	out[0] = function
	for _, f := range fields {
		out = binary.BigEndian.AppendUint16(out, f)
	}
	return out
}

// packBits packs bools LSB first, eight per byte
func packBits(values []bool) []byte {
	out := make([]byte, (len(values)+7)/8)
	for i, v := range values {
		if v {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}

// unpackBits returns the first n bits of data
func unpackBits(data []byte, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = data[i/8]&(1<<(i%8)) != 0
	}
	return out
}

func encodeRegisters(values []uint16) []byte {
	out := make([]byte, 0, 2*len(values))
	for _, v := range values {
		out = binary.BigEndian.AppendUint16(out, v)
	}
	return out
}

func decodeRegisters(data []byte) ([]uint16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: odd register byte count %d", ErrMalformed, len(data))
	}
	out := make([]uint16, len(data)/2)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(data[2*i:])
	}
	return out, nil
}

// responseLength predicts the full ADU length of a reply from its first
// bytes. It returns 0 when more header bytes are needed and -1 when the
// function has no fixed layout.
func responseLength(adu []byte) int {
	if len(adu) < 2 {
		return 0
	}
	function := adu[1]
	if function&0x80 != 0 {
		return 5 // address, function, exception code, CRC
	}
	switch function {
	case FuncReadCoils, FuncReadDiscreteInputs, FuncReadHoldingRegisters,
		FuncReadInputRegisters, FuncReadWriteMultipleRegisters:
		if len(adu) < 3 {
			return 0
		}
		return 3 + int(adu[2]) + 2
	case FuncWriteSingleCoil, FuncWriteSingleRegister,
		FuncWriteMultipleCoils, FuncWriteMultipleRegisters:
		return 8
	case FuncMaskWriteRegister:
		return 10
	default:
		return -1
	}
}

// byteCountPayload validates a [function, count, data...] response PDU and
// returns data
func byteCountPayload(resp []byte) ([]byte, error) {
	if len(resp) < 2 {
		return nil, fmt.Errorf("%w: response PDU too short (%d bytes)", ErrMalformed, len(resp))
	}
	count := int(resp[1])
	if len(resp) != 2+count {
		return nil, fmt.Errorf("%w: byte count %d, payload %d", ErrMalformed, count, len(resp)-2)
	}
	return resp[2:], nil
}
