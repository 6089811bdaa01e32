// Package eventbus provides an in-process publish/subscribe bus. Delivery is
// non-blocking: a subscriber whose buffer is full misses the event and the
// drop is counted.
package eventbus

import (
	"sync"
	"sync/atomic"
)

const defaultBuffer = 16

type subscriber[T any] struct {
	ch     chan T
	accept func(T) bool
}

// TypedBus is a type-safe publish/subscribe bus for events of type T.
type TypedBus[T any] struct {
	mu      sync.RWMutex
	subs    []subscriber[T]
	closed  bool
	buffer  int
	dropped atomic.Int64
}

// NewTyped creates a new TypedBus. buffer sizes each subscriber channel;
// zero uses the default.
func NewTyped[T any](buffer ...int) *TypedBus[T] {
	b := &TypedBus[T]{buffer: defaultBuffer}
	if len(buffer) > 0 && buffer[0] > 0 {
		b.buffer = buffer[0]
	}
	return b
}

// Publish sends the event to every subscriber that accepts it.
func (b *TypedBus[T]) Publish(e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		if s.accept != nil && !s.accept(e) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber receiving every event.
func (b *TypedBus[T]) Subscribe() <-chan T { return b.SubscribeFunc(nil) }

// SubscribeFunc registers a subscriber receiving the events accept returns true for.
func (b *TypedBus[T]) SubscribeFunc(accept func(T) bool) <-chan T {
	ch := make(chan T, b.buffer)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs = append(b.subs, subscriber[T]{ch: ch, accept: accept})
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *TypedBus[T]) Unsubscribe(sub <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if !b.closed {
				close(s.ch)
			}
			return
		}
	}
}

// Dropped returns how many deliveries were skipped because a buffer was full.
func (b *TypedBus[T]) Dropped() int64 { return b.dropped.Load() }

// Close closes the bus and all subscriber channels.
func (b *TypedBus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.ch)
	}
	b.subs = nil
	b.mu.Unlock()
}
