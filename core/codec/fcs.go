package codec

import "encoding/binary"

const (
	// FCSSize is the size of the frame check sequence at the end of a frame.
	FCSSize = 2

	fcsInit = 0xFFFF
	fcsPoly = 0x8408 // 0x1021 bit-reversed
)

// FCS computes the AX.25 frame check sequence (CRC-16/X.25) of the given data.
// Bits are processed least significant first and the result is complemented.
func FCS(data []byte) uint16 {
	crc := uint16(fcsInit)
	for _, b := range data {
		crc ^= uint16(b)
		for range 8 {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ fcsPoly
			} else {
				crc >>= 1
			}
		}
	}
	return ^crc
}

// VerifyFCS reports whether the trailing two bytes of body hold the FCS of
// the bytes before them. The FCS is sent least significant byte first.
// Bodies shorter than three bytes never verify.
func VerifyFCS(body []byte) bool {
	if len(body) < FCSSize+1 {
		return false
	}
	n := len(body) - FCSSize
	return FCS(body[:n]) == binary.LittleEndian.Uint16(body[n:])
}
