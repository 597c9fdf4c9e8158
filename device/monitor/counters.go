package monitor

import (
	"errors"
	"sync/atomic"

	"github.com/kabili207/ax25-go/core/codec"
)

// Counters tracks monitor statistics using atomic counters.
// All fields are safe for concurrent access.
type Counters struct {
	FramesRecv    atomic.Uint32 // Frames that decoded successfully
	RecvInfo      atomic.Uint32 // I frames received
	RecvSuper     atomic.Uint32 // S frames received
	RecvUnnum     atomic.Uint32 // U frames received
	Duplicates    atomic.Uint32 // Frames suppressed by the deduplicator
	Echoes        atomic.Uint32 // Own forwarded frames delivered back, not counted as received
	Forwarded     atomic.Uint32 // Frame copies handed to other transports
	ForwardErrors atomic.Uint32 // Forwarding attempts that failed
	QueueDropped  atomic.Uint32 // Frames dropped because the forward queue was full

	ErrTooShort     atomic.Uint32 // Decode failures by cause
	ErrChecksum     atomic.Uint32
	ErrAddressField atomic.Uint32
	ErrTruncated    atomic.Uint32
	ErrFraming      atomic.Uint32 // KISS frames that could not be unwrapped
	ErrUnclassified atomic.Uint32
}

// CountersSnapshot is a plain-value copy of Counters for reading.
type CountersSnapshot struct {
	FramesRecv    uint32
	RecvInfo      uint32
	RecvSuper     uint32
	RecvUnnum     uint32
	Duplicates    uint32
	Echoes        uint32
	Forwarded     uint32
	ForwardErrors uint32
	QueueDropped  uint32

	ErrTooShort     uint32
	ErrChecksum     uint32
	ErrAddressField uint32
	ErrTruncated    uint32
	ErrFraming      uint32
	ErrUnclassified uint32
}

// DecodeErrors returns the total number of buffers that failed to decode.
func (s CountersSnapshot) DecodeErrors() uint32 {
	return s.ErrTooShort + s.ErrChecksum + s.ErrAddressField + s.ErrTruncated + s.ErrFraming +
		s.ErrUnclassified
}

// Snapshot returns a point-in-time copy of all counters.
func (c *Counters) Snapshot() CountersSnapshot {
	return CountersSnapshot{
		FramesRecv:      c.FramesRecv.Load(),
		RecvInfo:        c.RecvInfo.Load(),
		RecvSuper:       c.RecvSuper.Load(),
		RecvUnnum:       c.RecvUnnum.Load(),
		Duplicates:      c.Duplicates.Load(),
		Echoes:          c.Echoes.Load(),
		Forwarded:       c.Forwarded.Load(),
		ForwardErrors:   c.ForwardErrors.Load(),
		QueueDropped:    c.QueueDropped.Load(),
		ErrTooShort:     c.ErrTooShort.Load(),
		ErrChecksum:     c.ErrChecksum.Load(),
		ErrAddressField: c.ErrAddressField.Load(),
		ErrTruncated:    c.ErrTruncated.Load(),
		ErrFraming:      c.ErrFraming.Load(),
		ErrUnclassified: c.ErrUnclassified.Load(),
	}
}

// Reset zeroes all counters.
func (c *Counters) Reset() {
	c.FramesRecv.Store(0)
	c.RecvInfo.Store(0)
	c.RecvSuper.Store(0)
	c.RecvUnnum.Store(0)
	c.Duplicates.Store(0)
	c.Echoes.Store(0)
	c.Forwarded.Store(0)
	c.ForwardErrors.Store(0)
	c.QueueDropped.Store(0)
	c.ErrTooShort.Store(0)
	c.ErrChecksum.Store(0)
	c.ErrAddressField.Store(0)
	c.ErrTruncated.Store(0)
	c.ErrFraming.Store(0)
	c.ErrUnclassified.Store(0)
}

func (c *Counters) countKind(k codec.Kind) {
	switch k {
	case codec.KindInformation:
		c.RecvInfo.Add(1)
	case codec.KindSupervisory:
		c.RecvSuper.Add(1)
	case codec.KindUnnumbered:
		c.RecvUnnum.Add(1)
	}
}

func (c *Counters) countError(err error) {
	switch {
	case errors.Is(err, codec.ErrTooShort):
		c.ErrTooShort.Add(1)
	case errors.Is(err, codec.ErrChecksumMismatch):
		c.ErrChecksum.Add(1)
	case errors.Is(err, codec.ErrMalformedAddressField):
		c.ErrAddressField.Add(1)
	case errors.Is(err, codec.ErrTruncated):
		c.ErrTruncated.Add(1)
	case errors.Is(err, codec.ErrKISSBadEscape),
		errors.Is(err, codec.ErrKISSOverrun),
		errors.Is(err, codec.ErrKISSIncomplete):
		c.ErrFraming.Add(1)
	default:
		c.ErrUnclassified.Add(1)
	}
}
