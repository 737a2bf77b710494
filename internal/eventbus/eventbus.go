// Package eventbus implements the four typed, multi-producer/multi-consumer
// publish/subscribe streams the Event Processor multiplexes (spec.md §4.1).
//
// Each stream preserves per-producer FIFO order; there is no cross-stream
// ordering guarantee. Publication is non-blocking: the bus is backed by a
// buffered channel and publish() returns ErrChannelClosed or
// ErrChannelFull rather than ever blocking a producer, matching the design
// note that "capacity is unbounded at the design level" while still being
// an implementation that must bound it somewhere.
package eventbus

import (
	"errors"
	"sync"
)

// ErrChannelClosed is returned by Publish once Close has been called.
var ErrChannelClosed = errors.New("eventbus: channel closed")

// ErrChannelFull is returned by Publish when the stream's bounded buffer
// is saturated; the event is dropped.
var ErrChannelFull = errors.New("eventbus: channel full, event dropped")

// defaultCapacity bounds each stream's buffer. Generous enough that a
// reconcile-in-progress coordinator never backs up a producer under normal
// load; an implementation detail, not part of the public contract.
const defaultCapacity = 256

// Bus[T] is a single typed multi-producer/multi-consumer stream.
type Bus[T any] struct {
	mu     sync.Mutex
	ch     chan T
	closed bool
}

// New creates a Bus with the default buffer capacity.
func New[T any]() *Bus[T] {
	return &Bus[T]{ch: make(chan T, defaultCapacity)}
}

// Publish enqueues an event. It never blocks: a full buffer drops the event
// and returns ErrChannelFull, a closed bus returns ErrChannelClosed.
func (b *Bus[T]) Publish(event T) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}

	select {
	case b.ch <- event:
		return nil
	default:
		return ErrChannelFull
	}
}

// ProducerChan exposes the bus's send side as a plain channel, for
// collaborators (e.g. a subagent.Builder) that are handed a channel to
// publish into directly rather than a Bus value. Unlike Publish, a send on
// this channel blocks if the buffer is full rather than dropping the
// event; producers that need non-blocking semantics should use Publish
// instead.
func (b *Bus[T]) ProducerChan() chan<- T {
	return b.ch
}

// Recv returns the bus's receive-only channel for use in a select statement.
// A closed bus yields a zero-value, ok=false receive, matching how the Go
// "closed channel" idiom already signals end-of-stream — callers that want
// the "never-ready" substitution for an absent stream should use NeverReady
// instead of a Bus they never publish to.
func (b *Bus[T]) Recv() <-chan T {
	return b.ch
}

// Close marks the bus closed. Already-buffered events remain receivable;
// subsequent Publish calls fail with ErrChannelClosed. Safe to call more
// than once.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.ch)
}

// NeverReady returns a receive channel that never yields a value. The Event
// Processor substitutes this for any stream whose producer side is absent,
// so a uniform four-armed select never starves on a channel that will
// legitimately never fire (spec.md §9 "Select across heterogeneous
// channels").
func NeverReady[T any]() <-chan T {
	return make(chan T)
}
