// Package monitor watches AX.25 traffic arriving from one or more transports.
//
// The Monitor sits between transports (serial, MQTT) and application logic.
// For every frame a transport decodes it:
//   - Deduplication: digipeated copies of a frame are reported once
//   - Statistics: atomic counters by frame kind and by decode failure cause
//   - Heard list: per-station count, last heard time, relay path and signal
//   - Forwarding: optional bridging of new frames to every other transport,
//     through a bounded send queue
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kabili207/ax25-go/core/codec"
	"github.com/kabili207/ax25-go/core/dedupe"
	"github.com/kabili207/ax25-go/transport"
)

// DefaultDrainInterval is the default interval for the send queue drain loop.
const DefaultDrainInterval = 10 * time.Millisecond

// FrameHandler is called for every frame that is not a duplicate. The frame
// borrows the transport's buffer; handlers that keep it must Clone it.
type FrameHandler func(frame *codec.Frame, meta transport.RxMeta)

// Config configures a Monitor.
type Config struct {
	// Forward enables bridging: each new frame is sent to every connected
	// transport other than the one it arrived on. Serial transports are
	// skipped unless ForwardToRF is also set.
	Forward bool

	// ForwardToRF allows forwarding to serial transports. A KISS TNC
	// transmits every data frame it is given, so this puts MQTT traffic on
	// the air. Default: false.
	ForwardToRF bool

	// ForwardDelay holds forwarded frames in the queue before sending.
	ForwardDelay time.Duration

	// DedupeSize is the number of frame fingerprints remembered.
	// Default: dedupe.DefaultMaxFrameHashes.
	DedupeSize int

	// MaxHeard bounds the heard list. Default: DefaultMaxHeard.
	MaxHeard int

	// MaxQueue bounds the forward queue. Default: DefaultMaxQueue.
	MaxQueue int

	// DrainInterval is how often the queue drain goroutine checks for ready
	// frames. Default: 10ms. Only used when Start() is called.
	DrainInterval time.Duration

	// Logger for monitor events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// Monitor receives frames from transports and keeps statistics about them.
type Monitor struct {
	cfg      Config
	log      *slog.Logger
	counters Counters
	heard    *HeardList
	queue    *SendQueue

	dedupMu sync.Mutex
	dedup   *dedupe.FrameDeduplicator
	echoes  map[transport.FrameSource]*dedupe.FrameDeduplicator // frames forwarded, by destination

	mu         sync.RWMutex
	transports []transportEntry
	onFrame    FrameHandler

	cancel    context.CancelFunc
	drainDone chan struct{}
	started   atomic.Bool
}

type transportEntry struct {
	transport transport.Transport
	source    transport.FrameSource
}

// metaPublisher is implemented by transports that can carry the receive
// metadata along with the frame, such as the MQTT envelope.
type metaPublisher interface {
	Publish(frame *codec.Frame, meta transport.RxMeta) error
}

// New creates a Monitor with the given configuration.
func New(cfg Config) *Monitor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dedup := dedupe.New()
	if cfg.DedupeSize > 0 {
		dedup = dedupe.NewWithCapacity(cfg.DedupeSize)
	}

	return &Monitor{
		cfg:    cfg,
		log:    logger.WithGroup("monitor"),
		dedup:  dedup,
		echoes: make(map[transport.FrameSource]*dedupe.FrameDeduplicator),
		heard:  NewHeardList(cfg.MaxHeard),
		queue:  NewSendQueue(cfg.MaxQueue),
	}
}

// Start begins the queue drain goroutine. If Start is never called,
// forwarding happens synchronously inside HandleFrame.
func (m *Monitor) Start(ctx context.Context) {
	interval := m.cfg.DrainInterval
	if interval <= 0 {
		interval = DefaultDrainInterval
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.drainDone = make(chan struct{})
	m.started.Store(true)
	go m.drainLoop(ctx, interval)
}

// Stop cancels the drain goroutine and waits for it to finish. Frames still
// queued are discarded.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.drainDone
		m.cancel = nil
		m.started.Store(false)
	}
}

func (m *Monitor) drainLoop(ctx context.Context, interval time.Duration) {
	defer close(m.drainDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				frame, meta, ok := m.queue.Pop()
				if !ok {
					break
				}
				m.broadcast(frame, meta)
			}
		}
	}
}

// SetFrameHandler sets the callback for frames that pass deduplication.
func (m *Monitor) SetFrameHandler(fn FrameHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFrame = fn
}

// AddTransport registers a transport with the monitor. The monitor installs
// itself as the transport's frame and error handler.
func (m *Monitor) AddTransport(t transport.Transport, source transport.FrameSource) {
	m.mu.Lock()
	m.transports = append(m.transports, transportEntry{transport: t, source: source})
	m.mu.Unlock()

	t.SetFrameHandler(m.HandleFrame)
	t.SetErrorHandler(m.HandleError)
}

// HandleFrame processes one decoded frame: it is counted, checked against the
// deduplicator, recorded in the heard list, dispatched to the application
// handler and, when forwarding is enabled, queued for the other transports.
// A frame this monitor forwarded to meta.Source and that comes straight back,
// such as a broker delivering our own publish, is dropped uncounted.
func (m *Monitor) HandleFrame(frame *codec.Frame, meta transport.RxMeta) {
	m.dedupMu.Lock()
	if echoes := m.echoes[meta.Source]; echoes != nil && echoes.Contains(frame) {
		m.dedupMu.Unlock()
		m.counters.Echoes.Add(1)
		m.log.Debug("dropping own forwarded frame", "path", frame.Path(), "source", meta.Source)
		return
	}
	seen := m.dedup.HasSeen(frame)
	m.dedupMu.Unlock()

	m.counters.FramesRecv.Add(1)
	m.counters.countKind(frame.Kind)
	if seen {
		m.counters.Duplicates.Add(1)
		m.log.Debug("duplicate frame", "path", frame.Path(), "source", meta.Source)
		return
	}

	m.heard.Update(frame, meta)

	m.mu.RLock()
	handler := m.onFrame
	m.mu.RUnlock()
	if handler != nil {
		handler(frame, meta)
	}

	if m.cfg.Forward {
		m.forward(frame, meta)
	}
}

// HandleError counts a buffer that failed to decode or to unwrap from KISS.
func (m *Monitor) HandleError(err error, meta transport.RxMeta) {
	m.counters.countError(err)
	m.log.Debug("frame decode failed", "error", err, "source", meta.Source, "port", meta.Port)
}

func (m *Monitor) forward(frame *codec.Frame, meta transport.RxMeta) {
	if !m.started.Load() {
		m.broadcast(frame, meta)
		return
	}
	if m.queue.Push(frame.Clone(), meta, m.cfg.ForwardDelay) {
		m.counters.QueueDropped.Add(1)
		m.log.Warn("forward queue full, dropped oldest frame")
	}
}

// broadcast sends a frame to every connected transport except the one
// identified by meta.Source, so a frame is never echoed back where it came
// from. Serial transports only receive frames when ForwardToRF is set.
func (m *Monitor) broadcast(frame *codec.Frame, meta transport.RxMeta) {
	m.mu.RLock()
	entries := make([]transportEntry, len(m.transports))
	copy(entries, m.transports)
	m.mu.RUnlock()

	for _, entry := range entries {
		if entry.source == meta.Source {
			continue
		}
		if entry.source == transport.FrameSourceSerial && !m.cfg.ForwardToRF {
			continue
		}
		if !entry.transport.IsConnected() {
			continue
		}

		var err error
		if p, ok := entry.transport.(metaPublisher); ok {
			err = p.Publish(frame, meta)
		} else {
			err = entry.transport.SendFrame(frame)
		}
		if err != nil {
			m.counters.ForwardErrors.Add(1)
			m.log.Warn("failed to forward frame",
				"transport", entry.source, "error", err)
			continue
		}
		m.recordEcho(entry.source, frame)
		m.counters.Forwarded.Add(1)
	}
}

func (m *Monitor) recordEcho(dest transport.FrameSource, frame *codec.Frame) {
	m.dedupMu.Lock()
	defer m.dedupMu.Unlock()
	echoes := m.echoes[dest]
	if echoes == nil {
		echoes = dedupe.New()
		if m.cfg.DedupeSize > 0 {
			echoes = dedupe.NewWithCapacity(m.cfg.DedupeSize)
		}
		m.echoes[dest] = echoes
	}
	echoes.Insert(frame)
}

// Counters returns a snapshot of the monitor's counters.
func (m *Monitor) Counters() CountersSnapshot {
	return m.counters.Snapshot()
}

// Heard returns the heard list, most recently heard first.
func (m *Monitor) Heard() []Station {
	return m.heard.List()
}

// Station returns the heard list entry for a callsign.
func (m *Monitor) Station(call string) (Station, bool) {
	return m.heard.Get(call)
}

// Reset zeroes the counters and clears the heard list and deduplicator.
func (m *Monitor) Reset() {
	m.counters.Reset()
	m.heard.Clear()
	m.dedupMu.Lock()
	m.dedup.Clear()
	clear(m.echoes)
	m.dedupMu.Unlock()
}
