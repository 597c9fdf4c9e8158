package codec

import "fmt"

const (
	// ControlUI is the control octet of an unnumbered information frame
	// with the poll/final bit clear.
	ControlUI = 0x03

	// ControlPF is the poll/final bit for modulo-8 control octets.
	ControlPF = 0x10

	controlIMask  = 0x01
	controlSUMask = 0x03
	controlSBits  = 0x01
)

// Supervisory frame subtypes (control & 0x0F).
const (
	SubtypeRR   = 0x01
	SubtypeRNR  = 0x05
	SubtypeREJ  = 0x09
	SubtypeSREJ = 0x0D
)

// Unnumbered frame subtypes (control with the P/F bit masked off).
const (
	SubtypeUI    = 0x03
	SubtypeDM    = 0x0F
	SubtypeSABM  = 0x2F
	SubtypeDISC  = 0x43
	SubtypeUA    = 0x63
	SubtypeSABME = 0x6F
	SubtypeFRMR  = 0x87
	SubtypeXID   = 0xAF
	SubtypeTEST  = 0xE3
)

// Kind is the frame category derived from the control octet.
type Kind uint8

const (
	KindInformation Kind = iota
	KindSupervisory
	KindUnnumbered
)

func (k Kind) String() string {
	switch k {
	case KindInformation:
		return "I"
	case KindSupervisory:
		return "S"
	case KindUnnumbered:
		return "U"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
	}
}

// Classify returns the frame category of a control octet. Every octet maps
// to exactly one category: bit 0 clear is an I frame, and the two low bits
// 01 and 11 select S and U frames.
func Classify(control byte) Kind {
	switch {
	case control&controlIMask == 0:
		return KindInformation
	case control&controlSUMask == controlSBits:
		return KindSupervisory
	default:
		return KindUnnumbered
	}
}

// HasPID reports whether a frame with this control octet carries a protocol
// identifier: all I frames, and U frames whose control octet is exactly UI.
func HasPID(control byte) bool {
	switch Classify(control) {
	case KindInformation:
		return true
	case KindUnnumbered:
		return control == ControlUI
	default:
		return false
	}
}

// ControlName returns a human-readable name for the frame subtype. The
// poll/final bit is ignored.
func ControlName(control byte) string {
	switch Classify(control) {
	case KindInformation:
		return "I"
	case KindSupervisory:
		switch control & 0x0F {
		case SubtypeRR:
			return "RR"
		case SubtypeRNR:
			return "RNR"
		case SubtypeREJ:
			return "REJ"
		case SubtypeSREJ:
			return "SREJ"
		}
	case KindUnnumbered:
		switch control &^ ControlPF {
		case SubtypeUI:
			return "UI"
		case SubtypeDM:
			return "DM"
		case SubtypeSABM:
			return "SABM"
		case SubtypeDISC:
			return "DISC"
		case SubtypeUA:
			return "UA"
		case SubtypeSABME:
			return "SABME"
		case SubtypeFRMR:
			return "FRMR"
		case SubtypeXID:
			return "XID"
		case SubtypeTEST:
			return "TEST"
		}
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", control)
}
