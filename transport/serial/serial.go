// Package serial provides a serial transport for radio receivers that speak
// KISS.
//
// The receiver writes every frame it hears, still carrying its FCS, as a KISS
// data frame. This transport reassembles KISS frames from raw serial data,
// decodes the AX.25 frame inside each one and exposes the same Transport
// interface as the MQTT transport.
package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/kabili207/ax25-go/core/codec"
	"github.com/kabili207/ax25-go/transport"
	"go.bug.st/serial"
)

// Compile-time interface check.
var _ transport.Transport = (*Transport)(nil)

const (
	// DefaultBaudRate is the default baud rate for receiver serial connections.
	DefaultBaudRate = 115200

	// readBufSize is the size of the serial read buffer.
	readBufSize = 1024

	// maxKISSFrame bounds the bytes held while waiting for a closing FEND.
	maxKISSFrame = 4096
)

// Config holds the configuration for a serial transport.
type Config struct {
	// Port is the serial port path (e.g., "/dev/ttyUSB0" or "COM3").
	Port string
	// BaudRate is the serial baud rate. Defaults to 115200.
	BaudRate int
	// TxPort is the KISS port SendFrame addresses on a multi-port TNC.
	TxPort uint8
	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Transport implements transport.Transport over a serial connection.
type Transport struct {
	cfg          Config
	port         serial.Port
	log          *slog.Logger
	mu           sync.RWMutex
	connected    bool
	cancel       context.CancelFunc
	done         chan struct{}
	frameHandler transport.FrameHandler
	stateHandler transport.StateHandler
	errorHandler transport.ErrorHandler
	now          func() time.Time
}

// New creates a new serial transport with the given configuration.
func New(cfg Config) *Transport {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Transport{
		cfg: cfg,
		log: cfg.Logger.WithGroup("serial"),
		now: time.Now,
	}
}

// Start opens the serial port and begins reading frames.
func (t *Transport) Start(ctx context.Context) error {
	if t.cfg.Port == "" {
		return errors.New("serial port is required")
	}
	if t.cfg.TxPort > codec.KISSMaxPort {
		return fmt.Errorf("KISS port %d out of range", t.cfg.TxPort)
	}

	mode := &serial.Mode{
		BaudRate: t.cfg.BaudRate,
	}

	port, err := serial.Open(t.cfg.Port, mode)
	if err != nil {
		return fmt.Errorf("opening serial port: %w", err)
	}

	t.mu.Lock()
	t.port = port
	t.connected = true
	t.done = make(chan struct{})
	handler := t.stateHandler
	t.mu.Unlock()

	readCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	go t.readLoop(readCtx)

	t.log.Info("KISS receiver connected", "port", t.cfg.Port, "baud", t.cfg.BaudRate)

	if handler != nil {
		handler(t, transport.EventConnected)
	}

	return nil
}

// Stop closes the serial port and stops the read loop.
func (t *Transport) Stop() error {
	t.mu.Lock()
	handler := t.stateHandler
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	t.mu.Lock()
	t.connected = false
	port := t.port
	t.port = nil
	done := t.done
	t.mu.Unlock()

	var err error
	if port != nil {
		err = port.Close()
	}

	// Wait for read loop to finish
	if done != nil {
		<-done
	}

	if handler != nil {
		handler(t, transport.EventDisconnected)
	}

	return err
}

// IsConnected returns true if the serial port is open.
func (t *Transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// SetFrameHandler sets the callback for incoming AX.25 frames.
func (t *Transport) SetFrameHandler(fn transport.FrameHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frameHandler = fn
}

// SetStateHandler sets the callback for transport state changes.
func (t *Transport) SetStateHandler(fn transport.StateHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stateHandler = fn
}

// SetErrorHandler sets the callback for KISS framing errors and AX.25 frames
// that fail to decode.
func (t *Transport) SetErrorHandler(fn transport.ErrorHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = fn
}

// SendFrame wraps the frame's raw bytes in a KISS data frame and writes it to
// the serial port.
func (t *Transport) SendFrame(frame *codec.Frame) error {
	t.mu.RLock()
	port := t.port
	connected := t.connected
	t.mu.RUnlock()

	if !connected || port == nil {
		return errors.New("not connected")
	}

	data, err := codec.EncodeKISSFrame(t.cfg.TxPort, frame.Raw)
	if err != nil {
		return fmt.Errorf("encoding KISS frame: %w", err)
	}

	_, err = port.Write(data)
	if err != nil {
		return fmt.Errorf("writing to serial port: %w", err)
	}

	return nil
}

// readLoop continuously reads from the serial port and assembles KISS frames.
func (t *Transport) readLoop(ctx context.Context) {
	defer close(t.done)

	buf := make([]byte, readBufSize)
	var assemblyBuf []byte

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := t.port.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return // context cancelled, clean shutdown
			}
			t.abandonPartial(assemblyBuf)
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				t.handleDisconnect(err)
				return
			}
			t.log.Error("serial read error", "error", err)
			t.handleDisconnect(err)
			return
		}

		if n == 0 {
			continue
		}

		assemblyBuf = append(assemblyBuf, buf[:n]...)
		assemblyBuf = t.processFrames(assemblyBuf)
	}
}

// processFrames extracts complete KISS frames from the buffer and dispatches
// the AX.25 frames they carry. Framing and decode failures go to the error
// handler. Returns any bytes that don't yet form a complete KISS frame.
func (t *Transport) processFrames(data []byte) []byte {
	for len(data) > 0 {
		kf, remaining, err := codec.DecodeKISSFrame(data)
		if errors.Is(err, codec.ErrKISSIncomplete) {
			if len(remaining) > maxKISSFrame {
				t.log.Warn("discarding KISS frame with no closing FEND", "bytes", len(remaining))
				t.reportError(fmt.Errorf("%w: %d bytes", codec.ErrKISSOverrun, len(remaining)), 0)
				return nil
			}
			return remaining // wait for more data
		}
		data = remaining
		if err != nil {
			t.log.Debug("dropping bad KISS frame", "error", err)
			t.reportError(err, 0)
			continue
		}

		if !kf.IsData() {
			t.log.Debug("ignoring KISS command frame", "command", kf.Command, "port", kf.Port)
			continue
		}

		frame, err := codec.Decode(kf.Data)
		if err != nil {
			t.log.Debug("failed to decode AX.25 frame", "error", err, "bytes", len(kf.Data))
			t.reportError(err, kf.Port)
			continue
		}

		t.mu.RLock()
		handler := t.frameHandler
		t.mu.RUnlock()

		if handler != nil {
			handler(frame, t.rxMeta(kf.Port))
		}
	}

	return data
}

// abandonPartial reports a KISS frame cut off by the port closing. A buffer
// holding only FENDs is idle fill, not a frame.
func (t *Transport) abandonPartial(data []byte) {
	for _, b := range data {
		if b != codec.KISSFEND {
			t.reportError(fmt.Errorf("%w: port closed mid-frame", codec.ErrKISSIncomplete), 0)
			return
		}
	}
}

func (t *Transport) rxMeta(port uint8) transport.RxMeta {
	return transport.RxMeta{
		Source:     transport.FrameSourceSerial,
		Port:       port,
		ReceivedAt: t.now(),
	}
}

func (t *Transport) reportError(err error, port uint8) {
	t.mu.RLock()
	onErr := t.errorHandler
	t.mu.RUnlock()
	if onErr != nil {
		onErr(err, t.rxMeta(port))
	}
}

func (t *Transport) handleDisconnect(err error) {
	t.mu.Lock()
	t.connected = false
	handler := t.stateHandler
	t.mu.Unlock()

	if err != nil {
		t.log.Error("serial disconnected", "error", err)
	}

	if handler != nil {
		handler(t, transport.EventDisconnected)
	}
}
