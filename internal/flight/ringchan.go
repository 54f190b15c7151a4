package flight

import "sync/atomic"

// RingChannel is a bounded channel-like buffer with overwrite-oldest semantics.
//
// Producers never block: if the buffer is full, the oldest element is
// discarded to make room. This is the delivery buffer behind every
// NotifierReceiver - a slow subscriber loses old notifications instead of
// stalling the platform callback thread.
type RingChannel[T any] struct {
	ch      chan T
	metrics RingMetrics
}

// NewRingChannel creates a RingChannel with the given capacity.
func NewRingChannel[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("flight: ring channel capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel.
// Consumers can range over this until it is closed.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts an item, discarding the oldest buffered item if the buffer is
// full. It never blocks indefinitely. Reports whether an item was dropped.
func (rc *RingChannel[T]) Send(v T) bool {
	dropped := false
	select {
	case rc.ch <- v:
	default:
		select {
		case <-rc.ch: // drop oldest
			rc.metrics.addDropped(1)
			dropped = true
		default:
		}
		rc.ch <- v
	}
	rc.metrics.addDelivered(1)
	return dropped
}

// TryReceive attempts a non-blocking receive.
// Returns (zero, false) if no value is ready.
func (rc *RingChannel[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-rc.ch:
		return
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the channel capacity.
func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Close closes the underlying channel. After this, Send panics.
func (rc *RingChannel[T]) Close() {
	close(rc.ch)
}

// Metrics returns a snapshot of current counters. Reads are atomic.
func (rc *RingChannel[T]) Metrics() RingMetrics {
	return RingMetrics{
		Delivered: atomic.LoadInt64(&rc.metrics.Delivered),
		Dropped:   atomic.LoadInt64(&rc.metrics.Dropped),
	}
}

// RingMetrics provides lock-free counters for a RingChannel.
type RingMetrics struct {
	Delivered int64
	Dropped   int64
}

func (m *RingMetrics) addDelivered(n int) {
	atomic.AddInt64(&m.Delivered, int64(n))
}

func (m *RingMetrics) addDropped(n int) {
	atomic.AddInt64(&m.Dropped, int64(n))
}
