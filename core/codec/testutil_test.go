package codec

import "encoding/binary"

// encodeAddr builds an on-air address slot. Only tests construct frames.
func encodeAddr(call string, ssid uint8, last bool) []byte {
	slot := make([]byte, AddressSize)
	for i := range CallsignSize {
		c := byte(' ')
		if i < len(call) {
			c = call[i]
		}
		slot[i] = c << 1
	}
	slot[CallsignSize] = SSIDReservedMask | (ssid<<SSIDShift)&SSIDMask
	if last {
		slot[CallsignSize] |= SSIDLastMask
	}
	return slot
}

// appendFCS returns body followed by its FCS, least significant byte first.
func appendFCS(body []byte) []byte {
	out := append([]byte{}, body...)
	return binary.LittleEndian.AppendUint16(out, FCS(body))
}

// exampleFrame is APRS <- N0CALL, UI, PID 0xF0, payload "TEST".
func exampleFrame() []byte {
	var body []byte
	body = append(body, encodeAddr("APRS", 0, false)...)
	body = append(body, encodeAddr("N0CALL", 0, true)...)
	body = append(body, ControlUI, PIDNoLayer3)
	body = append(body, "TEST"...)
	return appendFCS(body)
}
