// Package wire implements the framed, checksummed packet format spoken by
// the arm controller: `$J1:12.3;...;G:90.0;CRC:37#` outbound and
// `$ACTUAL:J1:...;CRC:XX#` for inbound state reports.
package wire

// CRC8 computes the checksum carried in the CRC field: polynomial 0x31,
// zero initial value, most significant bit first.
func CRC8(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
