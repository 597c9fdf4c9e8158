package monitor

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kabili207/ax25-go/core/codec"
	"github.com/kabili207/ax25-go/transport"
)

// DefaultMaxHeard is the default number of stations kept in the heard list.
const DefaultMaxHeard = 256

// Station is one entry in the heard list, keyed by source address.
type Station struct {
	Callsign   string // source address, e.g. "N0CALL-7"
	Count      uint32
	FirstHeard time.Time
	LastHeard  time.Time
	// Hops is the number of relays that had repeated the most recent frame
	// before it reached us. Zero means heard directly.
	Hops   int
	Path   string // most recent relay path, e.g. "WIDE1-1*,WIDE2-1"
	Source transport.FrameSource
	Port   uint8
	RSSI   int16
	SNR    float32
}

// HeardList tracks stations by source address. When full, the station heard
// least recently is evicted.
type HeardList struct {
	mu       sync.Mutex
	stations map[string]*Station
	limit    int
}

// NewHeardList creates a heard list holding at most limit stations.
func NewHeardList(limit int) *HeardList {
	if limit < 1 {
		limit = DefaultMaxHeard
	}
	return &HeardList{
		stations: make(map[string]*Station),
		limit:    limit,
	}
}

// Update records that frame was heard. A zero meta.ReceivedAt is replaced by
// the current time.
func (h *HeardList) Update(frame *codec.Frame, meta transport.RxMeta) {
	now := meta.ReceivedAt
	if now.IsZero() {
		now = time.Now()
	}
	call := frame.Source.String()

	h.mu.Lock()
	defer h.mu.Unlock()

	st, ok := h.stations[call]
	if !ok {
		if len(h.stations) >= h.limit {
			h.evictOldest()
		}
		st = &Station{Callsign: call, FirstHeard: now}
		h.stations[call] = st
	}

	st.Count++
	st.LastHeard = now
	st.Hops = hops(frame.Relays)
	st.Path = relayPath(frame.Relays)
	st.Source = meta.Source
	st.Port = meta.Port
	st.RSSI = meta.RSSI
	st.SNR = meta.SNR
}

// Get returns the entry for a callsign in "CALL" or "CALL-SSID" form.
func (h *HeardList) Get(call string) (Station, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.stations[call]
	if !ok {
		return Station{}, false
	}
	return *st, true
}

// List returns a copy of all stations, most recently heard first.
func (h *HeardList) List() []Station {
	h.mu.Lock()
	out := make([]Station, 0, len(h.stations))
	for _, st := range h.stations {
		out = append(out, *st)
	}
	h.mu.Unlock()

	slices.SortFunc(out, func(a, b Station) int {
		if c := b.LastHeard.Compare(a.LastHeard); c != 0 {
			return c
		}
		return cmp.Compare(a.Callsign, b.Callsign)
	})
	return out
}

// Len returns the number of stations in the list.
func (h *HeardList) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.stations)
}

// Clear removes all stations.
func (h *HeardList) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.stations)
}

// evictOldest must be called with h.mu held.
func (h *HeardList) evictOldest() {
	var oldest *Station
	for _, st := range h.stations {
		if oldest == nil || st.LastHeard.Before(oldest.LastHeard) {
			oldest = st
		}
	}
	if oldest != nil {
		delete(h.stations, oldest.Callsign)
	}
}

// hops counts relays up to and including the last one with its H bit set.
func hops(relays []codec.Address) int {
	for i := len(relays) - 1; i >= 0; i-- {
		if relays[i].Repeated() {
			return i + 1
		}
	}
	return 0
}

func relayPath(relays []codec.Address) string {
	if len(relays) == 0 {
		return ""
	}
	var b strings.Builder
	for i, r := range relays {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(r.String())
		if r.Repeated() {
			b.WriteByte('*')
		}
	}
	return b.String()
}
