// Package events provides an ordered, non-blocking fan-out of values to
// subscribers. Health reports and system summaries flow through it.
package events

import (
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is used when a subscriber asks for a non-positive buffer.
const DefaultBufferSize = 100

type subscriber[T any] struct {
	ch      chan T
	dropped atomic.Uint64
}

// Emitter delivers each emitted value to every current subscriber in
// emission order. A subscriber whose buffer is full misses the value and
// its drop counter is incremented; emission never blocks.
type Emitter[T any] struct {
	mu      sync.Mutex
	subs    map[uint64]*subscriber[T]
	nextID  uint64
	closed  bool
	emitted atomic.Uint64
	dropped atomic.Uint64
}

// NewEmitter creates an emitter with no subscribers.
func NewEmitter[T any]() *Emitter[T] {
	return &Emitter[T]{subs: make(map[uint64]*subscriber[T])}
}

// Subscribe registers a new subscriber. The returned cancel function
// unregisters it and closes the channel; it is safe to call more than once.
// Subscribing to a closed emitter returns an already closed channel.
func (e *Emitter[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer < 1 {
		buffer = DefaultBufferSize
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan T, buffer)
	if e.closed {
		close(ch)
		return ch, func() {}
	}

	id := e.nextID
	e.nextID++
	e.subs[id] = &subscriber[T]{ch: ch}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if s, ok := e.subs[id]; ok {
				delete(e.subs, id)
				close(s.ch)
			}
		})
	}
}

// Emit sends v to all subscribers without blocking.
// Sends happen under the emitter lock so concurrent emitters cannot
// interleave a single subscriber's stream out of order.
func (e *Emitter[T]) Emit(v T) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.emitted.Add(1)
	for _, s := range e.subs {
		select {
		case s.ch <- v:
		default:
			s.dropped.Add(1)
			e.dropped.Add(1)
		}
	}
}

// Subscribers returns the current subscriber count.
func (e *Emitter[T]) Subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// Emitted returns the number of values emitted so far.
func (e *Emitter[T]) Emitted() uint64 {
	return e.emitted.Load()
}

// Dropped returns the total number of deliveries skipped because a
// subscriber buffer was full.
func (e *Emitter[T]) Dropped() uint64 {
	return e.dropped.Load()
}

// Close closes every subscriber channel. Later emits are ignored.
func (e *Emitter[T]) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for id, s := range e.subs {
		close(s.ch)
		delete(e.subs, id)
	}
}
