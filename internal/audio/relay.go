package audio

import (
	"sync"
	"sync/atomic"
)

// DefaultRelayCapacity absorbs scheduling jitter, not a whole session.
const DefaultRelayCapacity = 32

// Relay hands blocks from the hardware callback to the resampler worker.
//
// Push never blocks: when the buffer is full the newest block is dropped and
// counted. The producer must stop calling Push before Close is called.
type Relay struct {
	ch      chan []float32
	drops   chan struct{}
	dropped atomic.Uint64
	pushed  atomic.Uint64
	closed  atomic.Bool
	once    sync.Once
}

// NewRelay returns a relay holding at most capacity blocks.
func NewRelay(capacity int) *Relay {
	if capacity <= 0 {
		capacity = DefaultRelayCapacity
	}
	return &Relay{
		ch:    make(chan []float32, capacity),
		drops: make(chan struct{}, 1),
	}
}

// Push enqueues frame and reports whether it was accepted. Ownership of frame
// passes to the consumer.
func (r *Relay) Push(frame []float32) bool {
	if r.closed.Load() {
		return false
	}
	select {
	case r.ch <- frame:
		r.pushed.Add(1)
		return true
	default:
		r.dropped.Add(1)
		select {
		case r.drops <- struct{}{}:
		default:
		}
		return false
	}
}

// Frames is the consumer side. It is closed by Close.
func (r *Relay) Frames() <-chan []float32 { return r.ch }

// Drops fires at least once after any number of drops since the last receive.
func (r *Relay) Drops() <-chan struct{} { return r.drops }

// Dropped is the total number of blocks dropped so far. It never decreases.
func (r *Relay) Dropped() uint64 { return r.dropped.Load() }

// Pushed is the total number of blocks accepted so far.
func (r *Relay) Pushed() uint64 { return r.pushed.Load() }

// Close stops accepting blocks and closes Frames. Already queued blocks stay
// readable.
func (r *Relay) Close() {
	r.once.Do(func() {
		r.closed.Store(true)
		close(r.ch)
	})
}
