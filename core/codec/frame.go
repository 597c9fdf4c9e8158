// Package codec decodes AX.25 frames and the KISS framing used to carry them
// over a serial link.
package codec

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ControlSize is the size of a modulo-8 control field.
	ControlSize = 1
	// PIDSize is the size of the protocol identifier field.
	PIDSize = 1

	// MinFrameSize is the smallest buffer that can hold a frame: destination
	// and source addresses, a control octet and the FCS.
	MinFrameSize = MinAddressFieldSize + ControlSize + FCSSize
)

// Protocol identifiers
const (
	PIDSegment    = 0x08 // segmentation fragment
	PIDTexNet     = 0xC3
	PIDLQP        = 0xC4 // link quality protocol
	PIDAppletalk  = 0xCA
	PIDAppleARP   = 0xCB
	PIDIP         = 0xCC // ARPA Internet Protocol
	PIDARP        = 0xCD // ARPA Address Resolution
	PIDFlexNet    = 0xCE
	PIDNetROM     = 0xCF
	PIDNoLayer3   = 0xF0 // used by APRS
	PIDEscapeChar = 0xFF
)

var (
	ErrTooShort              = errors.New("frame too short")
	ErrChecksumMismatch      = errors.New("frame check sequence mismatch")
	ErrMalformedAddressField = errors.New("malformed address field")
	ErrTruncated             = errors.New("frame truncated")
)

// Frame is a decoded AX.25 frame.
//
// Payload and Raw are slices of the buffer passed to Decode and are only
// valid while that buffer is. Use Clone to retain a frame past the buffer's
// lifetime.
type Frame struct {
	Destination Address
	Source      Address
	Relays      []Address // digipeater path in on-air order, at most MaxRelays
	Control     byte
	Kind        Kind
	PID         byte // only meaningful when HasPID is true
	HasPID      bool
	Payload     []byte // information field, may be empty
	Raw         []byte // complete buffer including the FCS
}

// Decode decodes a frame from a buffer that has had its flags and bit
// stuffing removed but still ends with the two FCS bytes.
func Decode(data []byte) (*Frame, error) {
	f := new(Frame)
	if err := f.ReadFrom(data); err != nil {
		return nil, err
	}
	return f, nil
}

// ReadFrom decodes a frame from raw bytes into f. On error f is left
// unchanged.
func (f *Frame) ReadFrom(data []byte) error {
	if len(data) < MinFrameSize {
		return fmt.Errorf("%w: %d bytes, need %d", ErrTooShort, len(data), MinFrameSize)
	}

	if !VerifyFCS(data) {
		n := len(data) - FCSSize
		return fmt.Errorf("%w: computed %04x, received %02x%02x",
			ErrChecksumMismatch, FCS(data[:n]), data[n+1], data[n])
	}

	body := data[:len(data)-FCSSize]
	field, i, err := DecodeAddressField(body)
	if err != nil {
		return err
	}

	if i+ControlSize > len(body) {
		return fmt.Errorf("%w: no control field after %d address bytes", ErrTruncated, i)
	}
	control := body[i]
	i++

	out := Frame{
		Destination: field.Destination,
		Source:      field.Source,
		Relays:      field.Relays,
		Control:     control,
		Kind:        Classify(control),
		Raw:         data[:len(data):len(data)],
	}

	if HasPID(control) {
		if i+PIDSize > len(body) {
			return fmt.Errorf("%w: %s frame missing protocol id", ErrTruncated, ControlName(control))
		}
		out.PID = body[i]
		out.HasPID = true
		i++
	}

	// Capped so an append cannot write into the FCS or past the buffer.
	out.Payload = body[i:len(body):len(body)]

	*f = out
	return nil
}

// ProtocolID returns the protocol identifier and whether the frame has one.
func (f *Frame) ProtocolID() (byte, bool) {
	return f.PID, f.HasPID
}

// Clone returns a deep copy of the frame that does not share memory with the
// decoded buffer.
func (f *Frame) Clone() *Frame {
	clone := *f
	if f.Relays != nil {
		clone.Relays = make([]Address, len(f.Relays), MaxRelays)
		copy(clone.Relays, f.Relays)
	}
	if f.Raw != nil {
		clone.Raw = make([]byte, len(f.Raw))
		copy(clone.Raw, f.Raw)
	}
	if f.Payload != nil {
		clone.Payload = make([]byte, len(f.Payload))
		copy(clone.Payload, f.Payload)
	}
	return &clone
}

// Path returns the monitor-style address header, e.g.
// "N0CALL-7>APRS,WIDE1-1*,WIDE2-1". Relays that have repeated the frame are
// marked with an asterisk.
func (f *Frame) Path() string {
	var b strings.Builder
	b.WriteString(f.Source.String())
	b.WriteByte('>')
	b.WriteString(f.Destination.String())
	for _, r := range f.Relays {
		b.WriteByte(',')
		b.WriteString(r.String())
		if r.Repeated() {
			b.WriteByte('*')
		}
	}
	return b.String()
}

// String returns the frame in monitor format: the address header, a colon,
// and the payload with non-printable bytes shown as <0xNN>.
func (f *Frame) String() string {
	var b strings.Builder
	b.WriteString(f.Path())
	b.WriteByte(':')
	for _, c := range f.Payload {
		if c >= ' ' && c <= '~' {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "<0x%02x>", c)
		}
	}
	return b.String()
}

// PIDName returns a human-readable name for a protocol identifier.
func PIDName(pid byte) string {
	switch pid {
	case PIDSegment:
		return "SEGMENT"
	case PIDTexNet:
		return "TEXNET"
	case PIDLQP:
		return "LQP"
	case PIDAppletalk:
		return "APPLETALK"
	case PIDAppleARP:
		return "APPLETALK_ARP"
	case PIDIP:
		return "IP"
	case PIDARP:
		return "ARP"
	case PIDFlexNet:
		return "FLEXNET"
	case PIDNetROM:
		return "NETROM"
	case PIDNoLayer3:
		return "NONE"
	case PIDEscapeChar:
		return "ESCAPE"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", pid)
	}
}
