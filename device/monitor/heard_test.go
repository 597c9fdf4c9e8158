package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kabili207/ax25-go/core/codec"
	"github.com/kabili207/ax25-go/transport"
)

func TestHeardList_Update(t *testing.T) {
	h := NewHeardList(0)
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	f := makeFrame(t, "N0CALL", 9, "x")
	h.Update(f, transport.RxMeta{Source: transport.FrameSourceMQTT, RSSI: -90, SNR: 4.5, ReceivedAt: t0})
	h.Update(f, transport.RxMeta{Source: transport.FrameSourceSerial, Port: 1, ReceivedAt: t0.Add(time.Minute)})

	st, ok := h.Get("N0CALL-9")
	require.True(t, ok)
	assert.Equal(t, uint32(2), st.Count)
	assert.Equal(t, t0, st.FirstHeard)
	assert.Equal(t, t0.Add(time.Minute), st.LastHeard)
	assert.Equal(t, transport.FrameSourceSerial, st.Source)
	assert.Equal(t, uint8(1), st.Port)
	assert.Zero(t, st.RSSI, "signal report follows the latest frame")
	assert.Zero(t, st.Hops)
	assert.Empty(t, st.Path)
}

func TestHeardList_ZeroTimeUsesNow(t *testing.T) {
	h := NewHeardList(0)
	before := time.Now()
	h.Update(makeFrame(t, "N0CALL", 0, "x"), transport.RxMeta{})

	st, ok := h.Get("N0CALL")
	require.True(t, ok)
	assert.False(t, st.LastHeard.Before(before))
}

func TestHeardList_ListOrder(t *testing.T) {
	h := NewHeardList(0)
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	h.Update(makeFrame(t, "AAA", 0, "x"), transport.RxMeta{ReceivedAt: t0})
	h.Update(makeFrame(t, "BBB", 0, "x"), transport.RxMeta{ReceivedAt: t0.Add(2 * time.Second)})
	h.Update(makeFrame(t, "CCC", 0, "x"), transport.RxMeta{ReceivedAt: t0.Add(time.Second)})

	var calls []string
	for _, st := range h.List() {
		calls = append(calls, st.Callsign)
	}
	assert.Equal(t, []string{"BBB", "CCC", "AAA"}, calls)
}

func TestHeardList_EvictsOldest(t *testing.T) {
	h := NewHeardList(2)
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	h.Update(makeFrame(t, "AAA", 0, "x"), transport.RxMeta{ReceivedAt: t0.Add(time.Second)})
	h.Update(makeFrame(t, "BBB", 0, "x"), transport.RxMeta{ReceivedAt: t0})
	h.Update(makeFrame(t, "CCC", 0, "x"), transport.RxMeta{ReceivedAt: t0.Add(2 * time.Second)})

	assert.Equal(t, 2, h.Len())
	_, ok := h.Get("BBB")
	assert.False(t, ok, "least recently heard station should be evicted")
	_, ok = h.Get("AAA")
	assert.True(t, ok)
}

func TestHeardList_Clear(t *testing.T) {
	h := NewHeardList(0)
	h.Update(makeFrame(t, "AAA", 0, "x"), transport.RxMeta{})
	h.Clear()
	assert.Zero(t, h.Len())
}

func TestHops(t *testing.T) {
	tests := []struct {
		name   string
		relays []relay
		want   int
	}{
		{"direct", nil, 0},
		{"not yet repeated", []relay{{"WIDE1", 1, false}}, 0},
		{"first repeated", []relay{{"WIDE1", 1, true}, {"WIDE2", 2, false}}, 1},
		{"both repeated", []relay{{"K1ABC", 0, true}, {"WIDE2", 1, true}}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := makeFrame(t, "N0CALL", 0, "x", tt.relays...)
			assert.Equal(t, tt.want, hops(f.Relays))
		})
	}
}

func TestRelayPath(t *testing.T) {
	assert.Empty(t, relayPath(nil))

	f := makeFrame(t, "N0CALL", 0, "x", relay{"K1ABC", 0, true}, relay{"WIDE2", 1, false})
	assert.Equal(t, "K1ABC*,WIDE2-1", relayPath(f.Relays))
}

func TestQueue_FIFO(t *testing.T) {
	q := NewSendQueue(0)
	_, _, ok := q.Pop()
	assert.False(t, ok, "empty queue")

	q.Push(makeFrame(t, "AAA", 0, "1"), transport.RxMeta{}, 0)
	q.Push(makeFrame(t, "BBB", 0, "2"), transport.RxMeta{Port: 3}, 0)
	assert.Equal(t, 2, q.Len())

	f, _, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "AAA", f.Source.Callsign)

	f, meta, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "BBB", f.Source.Callsign)
	assert.Equal(t, uint8(3), meta.Port)
	assert.Zero(t, q.Len())
}

func TestQueue_Delay(t *testing.T) {
	q := NewSendQueue(0)
	q.Push(makeFrame(t, "LATE", 0, "x"), transport.RxMeta{}, time.Hour)
	q.Push(makeFrame(t, "NOW", 0, "x"), transport.RxMeta{}, 0)

	f, _, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "NOW", f.Source.Callsign)

	_, _, ok = q.Pop()
	assert.False(t, ok, "delayed frame is not ready")
	assert.Equal(t, 1, q.Len())
}

func TestQueue_DropsOldestWhenFull(t *testing.T) {
	q := NewSendQueue(2)
	assert.False(t, q.Push(makeFrame(t, "AAA", 0, "x"), transport.RxMeta{}, 0))
	assert.False(t, q.Push(makeFrame(t, "BBB", 0, "x"), transport.RxMeta{}, 0))
	assert.True(t, q.Push(makeFrame(t, "CCC", 0, "x"), transport.RxMeta{}, 0))

	var calls []string
	for {
		f, _, ok := q.Pop()
		if !ok {
			break
		}
		calls = append(calls, f.Source.Callsign)
	}
	assert.Equal(t, []string{"BBB", "CCC"}, calls)
}

func TestCounters_KindSplit(t *testing.T) {
	var c Counters
	c.countKind(codec.KindInformation)
	c.countKind(codec.KindSupervisory)
	c.countKind(codec.KindSupervisory)
	c.countKind(codec.KindUnnumbered)

	snap := c.Snapshot()
	assert.Equal(t, uint32(1), snap.RecvInfo)
	assert.Equal(t, uint32(2), snap.RecvSuper)
	assert.Equal(t, uint32(1), snap.RecvUnnum)

	c.Reset()
	assert.Equal(t, CountersSnapshot{}, c.Snapshot())
}
