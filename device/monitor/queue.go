package monitor

import (
	"sync"
	"time"

	"github.com/kabili207/ax25-go/core/codec"
	"github.com/kabili207/ax25-go/transport"
)

// DefaultMaxQueue is the default number of frames held for forwarding.
const DefaultMaxQueue = 64

// SendQueue is a bounded FIFO of frames waiting to be forwarded. Items with a
// future readyAt time are held until that time has passed. When the queue is
// full the oldest item is dropped.
type SendQueue struct {
	mu    sync.Mutex
	items []queueItem
	limit int
}

type queueItem struct {
	frame   *codec.Frame
	meta    transport.RxMeta
	readyAt time.Time
}

// NewSendQueue creates an empty send queue holding at most limit frames.
func NewSendQueue(limit int) *SendQueue {
	if limit < 1 {
		limit = DefaultMaxQueue
	}
	return &SendQueue{limit: limit}
}

// Push appends a frame that becomes ready after delay. The frame must not
// borrow a buffer that will be reused; callers push clones. Push reports
// whether an older frame was dropped to make room.
func (q *SendQueue) Push(frame *codec.Frame, meta transport.RxMeta, delay time.Duration) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := false
	if len(q.items) >= q.limit {
		q.items = q.items[1:]
		dropped = true
	}
	q.items = append(q.items, queueItem{
		frame:   frame,
		meta:    meta,
		readyAt: time.Now().Add(delay),
	})
	return dropped
}

// Pop returns the oldest frame whose delay has elapsed. ok is false when no
// frame is ready.
func (q *SendQueue) Pop() (frame *codec.Frame, meta transport.RxMeta, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for i, item := range q.items {
		if now.Before(item.readyAt) {
			continue
		}
		q.items = append(q.items[:i], q.items[i+1:]...)
		return item.frame, item.meta, true
	}
	return nil, transport.RxMeta{}, false
}

// Len returns the total number of items in the queue (ready or not).
func (q *SendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
