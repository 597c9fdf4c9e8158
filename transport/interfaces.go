// Package transport provides transport interfaces and implementations for
// receiving AX.25 frames from radio receivers and forwarding them to other
// links.
package transport

import (
	"context"
	"time"

	"github.com/kabili207/ax25-go/core/codec"
)

// Transport is the base interface for all transport implementations.
type Transport interface {
	// Start begins the transport's connection and message handling.
	// The provided context controls the transport's lifetime.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the transport.
	Stop() error
	// IsConnected returns true if the transport is currently connected.
	IsConnected() bool
	// SetFrameHandler sets the callback for successfully decoded frames.
	SetFrameHandler(fn FrameHandler)
	// SetStateHandler sets the callback for transport state changes.
	SetStateHandler(fn StateHandler)
	// SetErrorHandler sets the callback for buffers that failed to decode.
	SetErrorHandler(fn ErrorHandler)
	// SendFrame transmits the frame's raw bytes, FCS included, over the
	// transport. The frame is not re-encoded.
	SendFrame(frame *codec.Frame) error
}

// RxMeta describes how and where a frame was received.
type RxMeta struct {
	Source     FrameSource
	Port       uint8   // receiver port (KISS port nibble)
	RSSI       int16   // dBm, zero when unknown
	SNR        float32 // dB, zero when unknown
	ReceivedAt time.Time
}

// FrameHandler is called when an AX.25 frame is received. The frame's Payload
// and Raw slices are only valid for the duration of the call; handlers that
// keep the frame must Clone it.
type FrameHandler func(frame *codec.Frame, meta RxMeta)

// ErrorHandler is called when a received buffer fails to decode. err wraps
// one of the codec decode or KISS framing errors.
type ErrorHandler func(err error, meta RxMeta)

// StateHandler is called when the transport state changes.
type StateHandler func(transport Transport, event Event)

// Event represents transport state change events.
type Event int

const (
	// EventConnected is fired when the transport connects.
	EventConnected Event = iota
	// EventDisconnected is fired when the transport disconnects.
	EventDisconnected
	// EventReconnecting is fired when the transport is attempting to reconnect.
	EventReconnecting
	// EventError is fired when an error occurs.
	EventError
)

func (e Event) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventReconnecting:
		return "reconnecting"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// FrameSource indicates where a frame originated from.
type FrameSource int

const (
	// FrameSourceMQTT indicates the frame came from MQTT.
	FrameSourceMQTT FrameSource = iota
	// FrameSourceSerial indicates the frame came from a serial receiver.
	FrameSourceSerial
	// FrameSourceLocal indicates the frame was injected locally, e.g. from
	// the command line.
	FrameSourceLocal
)

func (s FrameSource) String() string {
	switch s {
	case FrameSourceMQTT:
		return "mqtt"
	case FrameSourceSerial:
		return "serial"
	case FrameSourceLocal:
		return "local"
	default:
		return "unknown"
	}
}
