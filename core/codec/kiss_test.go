package codec

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecodeKISSFrame(t *testing.T) {
	tests := []struct {
		name       string
		data       []byte
		wantPort   uint8
		wantCmd    uint8
		wantData   []byte
		wantRemain []byte
		wantErr    error
	}{
		{
			name:    "no FEND",
			data:    []byte{0x01, 0x02},
			wantErr: ErrKISSIncomplete,
		},
		{
			name:       "unterminated",
			data:       []byte{0x55, KISSFEND, 0x00, 0x01},
			wantRemain: []byte{KISSFEND, 0x00, 0x01},
			wantErr:    ErrKISSIncomplete,
		},
		{
			name:       "data frame",
			data:       []byte{KISSFEND, 0x00, 0x01, 0x02, KISSFEND},
			wantData:   []byte{0x01, 0x02},
			wantRemain: []byte{KISSFEND},
		},
		{
			name:       "idle FENDs and port",
			data:       []byte{KISSFEND, KISSFEND, KISSFEND, 0x20, 0xAA, KISSFEND},
			wantPort:   2,
			wantData:   []byte{0xAA},
			wantRemain: []byte{KISSFEND},
		},
		{
			name:       "escapes",
			data:       []byte{KISSFEND, 0x00, KISSFESC, KISSTFEND, KISSFESC, KISSTFESC, KISSFEND},
			wantData:   []byte{KISSFEND, KISSFESC},
			wantRemain: []byte{KISSFEND},
		},
		{
			name:       "command frame",
			data:       []byte{KISSFEND, 0x01, 0x32, KISSFEND},
			wantCmd:    1,
			wantData:   []byte{0x32},
			wantRemain: []byte{KISSFEND},
		},
		{
			name:       "bad escape",
			data:       []byte{KISSFEND, 0x00, KISSFESC, 0x42, KISSFEND, 0x99},
			wantRemain: []byte{KISSFEND, 0x99},
			wantErr:    ErrKISSBadEscape,
		},
		{
			name:       "escape at end",
			data:       []byte{KISSFEND, 0x00, KISSFESC, KISSFEND},
			wantRemain: []byte{KISSFEND},
			wantErr:    ErrKISSBadEscape,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, remaining, err := DecodeKISSFrame(tt.data)
			if !bytes.Equal(remaining, tt.wantRemain) {
				t.Errorf("remaining = %x, want %x", remaining, tt.wantRemain)
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("DecodeKISSFrame() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeKISSFrame() unexpected error = %v", err)
			}
			if frame.Port != tt.wantPort || frame.Command != tt.wantCmd {
				t.Errorf("port/cmd = %d/%d, want %d/%d", frame.Port, frame.Command, tt.wantPort, tt.wantCmd)
			}
			if !bytes.Equal(frame.Data, tt.wantData) {
				t.Errorf("data = %x, want %x", frame.Data, tt.wantData)
			}
		})
	}
}

func TestEncodeDecodeKISSFrame(t *testing.T) {
	testCases := []struct {
		name string
		port uint8
		data []byte
	}{
		{
			name: "empty data",
			data: []byte{},
		},
		{
			name: "special bytes",
			port: 3,
			data: []byte{KISSFEND, KISSFESC, KISSTFEND, KISSTFESC, 0x00},
		},
		{
			name: "ax25 frame",
			port: KISSMaxPort,
			data: exampleFrame(),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := EncodeKISSFrame(tc.port, tc.data)
			if err != nil {
				t.Fatalf("EncodeKISSFrame() error = %v", err)
			}
			if bytes.IndexByte(encoded[1:len(encoded)-1], KISSFEND) >= 0 {
				t.Errorf("FEND inside encoded frame: %x", encoded)
			}

			frame, remaining, err := DecodeKISSFrame(encoded)
			if err != nil {
				t.Fatalf("DecodeKISSFrame() error = %v", err)
			}
			if !frame.IsData() {
				t.Errorf("expected data frame, got command %d", frame.Command)
			}
			if frame.Port != tc.port {
				t.Errorf("port = %d, want %d", frame.Port, tc.port)
			}
			if !bytes.Equal(frame.Data, tc.data) {
				t.Errorf("decoded data = %x, want %x", frame.Data, tc.data)
			}
			if !bytes.Equal(remaining, []byte{KISSFEND}) {
				t.Errorf("remaining = %x, want closing FEND", remaining)
			}
		})
	}
}

func TestEncodeKISSFrame_BadPort(t *testing.T) {
	if _, err := EncodeKISSFrame(KISSMaxPort+1, []byte{0x01}); err == nil {
		t.Error("expected error for port out of range")
	}
}

func TestDecodeKISSFrame_SharedFEND(t *testing.T) {
	a, _ := EncodeKISSFrame(0, []byte{0x01})
	b, _ := EncodeKISSFrame(1, []byte{0x02})
	// Drop b's opening FEND so both frames share one delimiter.
	stream := append(a, b[1:]...)

	first, rest, err := DecodeKISSFrame(stream)
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	second, rest, err := DecodeKISSFrame(rest)
	if err != nil {
		t.Fatalf("second frame: %v", err)
	}
	if first.Data[0] != 0x01 || second.Data[0] != 0x02 || second.Port != 1 {
		t.Errorf("got %+v, %+v", first, second)
	}
	if _, _, err := DecodeKISSFrame(rest); err != ErrKISSIncomplete {
		t.Errorf("trailing FEND: error = %v, want %v", err, ErrKISSIncomplete)
	}
}
