package codec

import (
	"fmt"
	"strconv"
)

const (
	// AddressSize is the size of one on-air address slot.
	AddressSize = 7
	// CallsignSize is the number of callsign characters in an address slot.
	CallsignSize = 6
	// MaxRelays is the maximum number of digipeater addresses in a frame.
	MaxRelays = 8
	// MinAddressFieldSize covers the destination and source slots.
	MinAddressFieldSize = 2 * AddressSize

	// SSID octet bit masks
	SSIDLastMask     = 0x01 // extension bit, set on the final address
	SSIDMask         = 0x1E // 4-bit SSID
	SSIDShift        = 1
	SSIDReservedMask = 0x60
	SSIDRepeatedMask = 0x80 // H bit on relays, C bit on destination/source
)

// Address is one station address decoded from a 7-octet slot.
type Address struct {
	Callsign string
	SSID     uint8 // 0-15
	Last     bool  // extension bit: no further addresses follow this one
	Octet    byte  // raw SSID octet as received
}

// DecodeAddress decodes a single address slot. Callsign characters are sent
// shifted left by one bit and padded with spaces; only the trailing run of
// padding is removed.
func DecodeAddress(slot [AddressSize]byte) Address {
	var call [CallsignSize]byte
	end := 0
	for i := range CallsignSize {
		c := slot[i] >> 1
		call[i] = c
		if c != ' ' {
			end = i + 1
		}
	}

	octet := slot[CallsignSize]
	return Address{
		Callsign: string(call[:end]),
		SSID:     (octet & SSIDMask) >> SSIDShift,
		Last:     octet&SSIDLastMask != 0,
		Octet:    octet,
	}
}

// Repeated returns the high bit of the SSID octet. On a relay address this is
// the "has been repeated" flag; on destination and source it is the
// command/response bit.
func (a Address) Repeated() bool {
	return a.Octet&SSIDRepeatedMask != 0
}

// String returns the address in CALL or CALL-SSID form.
func (a Address) String() string {
	if a.SSID == 0 {
		return a.Callsign
	}
	return a.Callsign + "-" + strconv.Itoa(int(a.SSID))
}

// AddressField holds the decoded address field of a frame.
type AddressField struct {
	Destination Address
	Source      Address
	Relays      []Address // on-air order, at most MaxRelays
}

// DecodeAddressField decodes the destination, source and relay addresses at
// the start of buf. The relay chain has no length prefix: it ends at the first
// slot with the extension bit set. Returns the field and the number of bytes
// consumed.
func DecodeAddressField(buf []byte) (AddressField, int, error) {
	var field AddressField
	if len(buf) < MinAddressFieldSize {
		return field, 0, fmt.Errorf("%w: %d bytes, need %d",
			ErrMalformedAddressField, len(buf), MinAddressFieldSize)
	}

	field.Destination = DecodeAddress([AddressSize]byte(buf[0:AddressSize]))
	field.Source = DecodeAddress([AddressSize]byte(buf[AddressSize:MinAddressFieldSize]))

	off := MinAddressFieldSize
	if field.Source.Last {
		return field, off, nil
	}

	relays := make([]Address, 0, MaxRelays)
	for off+AddressSize <= len(buf) && len(relays) < MaxRelays {
		relay := DecodeAddress([AddressSize]byte(buf[off : off+AddressSize]))
		relays = append(relays, relay)
		off += AddressSize
		if relay.Last {
			break
		}
	}

	if len(relays) == 0 {
		return field, 0, fmt.Errorf("%w: source expects relays but none present",
			ErrMalformedAddressField)
	}
	if !relays[len(relays)-1].Last {
		return field, 0, fmt.Errorf("%w: relay chain not terminated after %d addresses",
			ErrMalformedAddressField, len(relays))
	}

	field.Relays = relays
	return field, off, nil
}
