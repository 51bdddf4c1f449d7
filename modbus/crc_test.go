package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC16(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{"check string", []byte("123456789"), 0x4B37},
		{"read holding 0x0A", []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A}, 0xCDC5},
		{"write single register", []byte{0x01, 0x06, 0x00, 0x01, 0x00, 0x03}, 0x0B98},
		{"empty", nil, 0xFFFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CRC16(tt.data))
		})
	}
}

func TestAppendCRCWireOrder(t *testing.T) {
	adu := appendCRC([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A})
	assert.Equal(t, []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A, 0xC5, 0xCD}, adu)
	assert.True(t, checkCRC(adu))

	adu[3] ^= 0x10
	assert.False(t, checkCRC(adu))
	assert.False(t, checkCRC([]byte{0x01, 0x02}))
}
