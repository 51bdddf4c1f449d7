package modbus

// crcTable is the CRC-16/MODBUS lookup table (reflected polynomial 0xA001)
var crcTable = func() (table [256]uint16) {
	const polynomial = 0xA001
	for i := range table {
		crc := uint16(i)
		for j := 0; j < 8; j++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ polynomial
			} else {
				crc >>= 1
			}
		}
		table[i] = crc
	}
	return table
}()

// CRC16 computes the Modbus RTU checksum of data. On the wire the low byte
// is sent first.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc = (crc >> 8) ^ crcTable[byte(crc)^b]
	}
	return crc
}

// appendCRC appends the checksum of frame in wire order
func appendCRC(frame []byte) []byte {
	crc := CRC16(frame)
	return append(frame, byte(crc), byte(crc>>8))
}

// checkCRC verifies the trailing two checksum bytes of adu
func checkCRC(adu []byte) bool {
	if len(adu) < 3 {
		return false
	}
	n := len(adu) - 2
	crc := CRC16(adu[:n])
	return adu[n] == byte(crc) && adu[n+1] == byte(crc>>8)
}
