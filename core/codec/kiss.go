package codec

import (
	"bytes"
	"errors"
	"fmt"
)

const (
	// KISS special characters
	KISSFEND  = 0xC0 // frame end
	KISSFESC  = 0xDB // frame escape
	KISSTFEND = 0xDC // transposed frame end
	KISSTFESC = 0xDD // transposed frame escape

	// KISSCmdData is the command nibble of a data frame.
	KISSCmdData = 0x00
	// KISSMaxPort is the highest port number that fits in the command byte.
	KISSMaxPort = 0x0F
)

var (
	ErrKISSIncomplete = errors.New("incomplete KISS frame")
	ErrKISSBadEscape  = errors.New("invalid KISS escape sequence")

	// ErrKISSOverrun is reported by readers that give up on a frame whose
	// closing FEND never arrived within their buffer limit.
	ErrKISSOverrun = errors.New("KISS frame overran receive buffer")
)

// KISSFrame is a single frame received over a KISS link.
type KISSFrame struct {
	Port    uint8 // high nibble of the command byte
	Command uint8 // low nibble of the command byte
	Data    []byte
}

// IsData returns true if the frame carries a received radio frame.
func (k *KISSFrame) IsData() bool {
	return k.Command == KISSCmdData
}

// DecodeKISSFrame decodes the first complete KISS frame in data.
// Returns the decoded frame, the bytes following it, and an error if decoding
// failed. Bytes before the first FEND are discarded. ErrKISSIncomplete means
// the caller should append more input to the returned remainder and retry.
// Frame format: [FEND][port<<4 | command][escaped data][FEND]
func DecodeKISSFrame(data []byte) (*KISSFrame, []byte, error) {
	start := bytes.IndexByte(data, KISSFEND)
	if start < 0 {
		return nil, nil, ErrKISSIncomplete
	}

	// Back-to-back FENDs are idle fill between frames.
	i := start
	for i < len(data) && data[i] == KISSFEND {
		i++
	}

	end := bytes.IndexByte(data[i:], KISSFEND)
	if end < 0 {
		return nil, data[i-1:], ErrKISSIncomplete
	}

	content := data[i : i+end]
	// The closing FEND may also open the next frame.
	remaining := data[i+end:]

	unescaped, err := kissUnescape(content)
	if err != nil {
		return nil, remaining, err
	}

	cmd := unescaped[0]
	return &KISSFrame{
		Port:    cmd >> 4,
		Command: cmd & 0x0F,
		Data:    unescaped[1:],
	}, remaining, nil
}

// EncodeKISSFrame wraps data in a KISS data frame for the given port.
func EncodeKISSFrame(port uint8, data []byte) ([]byte, error) {
	if port > KISSMaxPort {
		return nil, fmt.Errorf("KISS port %d out of range", port)
	}

	frame := make([]byte, 0, len(data)+4)
	frame = append(frame, KISSFEND, port<<4|KISSCmdData)
	for _, b := range data {
		switch b {
		case KISSFEND:
			frame = append(frame, KISSFESC, KISSTFEND)
		case KISSFESC:
			frame = append(frame, KISSFESC, KISSTFESC)
		default:
			frame = append(frame, b)
		}
	}
	frame = append(frame, KISSFEND)
	return frame, nil
}

func kissUnescape(content []byte) ([]byte, error) {
	out := make([]byte, 0, len(content))
	for i := 0; i < len(content); i++ {
		b := content[i]
		if b != KISSFESC {
			out = append(out, b)
			continue
		}
		i++
		if i >= len(content) {
			return nil, fmt.Errorf("%w: escape at end of frame", ErrKISSBadEscape)
		}
		switch content[i] {
		case KISSTFEND:
			out = append(out, KISSFEND)
		case KISSTFESC:
			out = append(out, KISSFESC)
		default:
			return nil, fmt.Errorf("%w: FESC followed by %02x", ErrKISSBadEscape, content[i])
		}
	}
	return out, nil
}
