package flight

import (
	"context"
	"sync"
)

// DefaultNotifyCapacity is the per-subscriber buffer depth used when a
// Notifier is created with a non-positive capacity.
const DefaultNotifyCapacity = 16

// Notifier fans platform callback values out to any number of subscribers.
//
// The subscription state exists only while at least one receiver is alive.
// The first Subscribe runs onStart and creates the state; when the last
// receiver goes away the stored onStop runs exactly once. The Notifier itself
// holds only a non-owning reference to the state, so IsNotifying answers
// without affecting its lifetime.
type Notifier[T any] struct {
	capacity int
	mu       sync.Mutex
	state    *notifierState[T]
}

// notifierState is the shared-ownership subscription state: a set of
// receiver buffers plus the deactivation hook.
type notifierState[T any] struct {
	mu     sync.Mutex
	refs   int
	rings  []*RingChannel[T]
	onStop func()
	ended  bool
}

// NotifierReceiver owns one receiving end plus a strong reference to the
// subscription state, released once a terminal signal is observed.
type NotifierReceiver[T any] struct {
	state   *notifierState[T]
	ring    *RingChannel[T]
	release sync.Once
	mu      sync.Mutex
	ended   bool
}

// NewNotifier creates an inactive Notifier.
func NewNotifier[T any](capacity int) *Notifier[T] {
	if capacity <= 0 {
		capacity = DefaultNotifyCapacity
	}
	return &Notifier[T]{capacity: capacity}
}

// IsNotifying reports whether a subscription state currently exists.
// Point-in-time answer; never blocks for long.
func (n *Notifier[T]) IsNotifying() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state != nil && n.state.alive()
}

// Subscribe attaches a new receiver. If no subscription state exists,
// onStart runs first (its error aborts the subscription) and onStop is
// stored to run once the state dies. If a state already exists the hooks are
// ignored and the receiver joins it.
func (n *Notifier[T]) Subscribe(onStart func() error, onStop func()) (*NotifierReceiver[T], error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if st := n.state; st != nil {
		if rx := st.attach(n.capacity); rx != nil {
			return rx, nil
		}
	}

	if onStart != nil {
		if err := onStart(); err != nil {
			return nil, err
		}
	}
	st := &notifierState[T]{onStop: onStop}
	n.state = st
	ring := NewRingChannel[T](n.capacity)
	st.refs = 1
	st.rings = append(st.rings, ring)
	return &NotifierReceiver[T]{state: st, ring: ring}, nil
}

// Notify pushes a value to all current subscribers. With no active
// subscription state it is a silent no-op. Never blocks; slow subscribers
// lose their oldest buffered value instead.
func (n *Notifier[T]) Notify(v T) {
	n.mu.Lock()
	st := n.state
	n.mu.Unlock()
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.refs == 0 || st.ended {
		return
	}
	for _, ring := range st.rings {
		ring.Send(v)
	}
}

// Close pushes the terminal signal to any active subscription state: every
// live receiver ends its stream, which in turn drops the strong references
// and eventually runs onStop. The Notifier must not be used afterwards.
func (n *Notifier[T]) Close() {
	n.mu.Lock()
	st := n.state
	n.state = nil
	n.mu.Unlock()
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.ended {
		return
	}
	st.ended = true
	for _, ring := range st.rings {
		ring.Close()
	}
}

func (st *notifierState[T]) alive() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.refs > 0 && !st.ended
}

// attach adds a receiver to a live state, or reports nil if the state is
// already dead (caller should create a fresh one).
func (st *notifierState[T]) attach(capacity int) *NotifierReceiver[T] {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.refs == 0 || st.ended {
		return nil
	}
	ring := NewRingChannel[T](capacity)
	st.refs++
	st.rings = append(st.rings, ring)
	return &NotifierReceiver[T]{state: st, ring: ring}
}

// drop releases one strong reference; the last one out runs onStop.
func (st *notifierState[T]) drop(ring *RingChannel[T]) {
	st.mu.Lock()
	st.refs--
	for i, r := range st.rings {
		if r == ring {
			st.rings = append(st.rings[:i], st.rings[i+1:]...)
			break
		}
	}
	last := st.refs == 0
	onStop := st.onStop
	if last {
		st.onStop = nil
	}
	st.mu.Unlock()

	if last && onStop != nil {
		onStop()
	}
}

// Next blocks until a notification value arrives or the stream ends.
// It returns (zero, false) exactly once the terminal signal is observed or
// ctx is done; after the stream has ended all further calls return false
// without touching the channel.
func (r *NotifierReceiver[T]) Next(ctx context.Context) (T, bool) {
	var zero T
	r.mu.Lock()
	ended := r.ended
	r.mu.Unlock()
	if ended {
		return zero, false
	}
	select {
	case v, ok := <-r.ring.C():
		if !ok {
			r.end()
			return zero, false
		}
		return v, true
	case <-ctx.Done():
		return zero, false
	}
}

// TryNext performs a non-blocking receive. ok is false when no value is
// buffered or the stream has ended.
func (r *NotifierReceiver[T]) TryNext() (T, bool) {
	var zero T
	r.mu.Lock()
	ended := r.ended
	r.mu.Unlock()
	if ended {
		return zero, false
	}
	v, ok := r.ring.TryReceive()
	if !ok {
		return zero, false
	}
	return v, true
}

// Close releases the receiver's reference to the subscription state without
// waiting for a terminal signal. Idempotent.
func (r *NotifierReceiver[T]) Close() {
	r.end()
}

// Dropped reports how many buffered values this receiver lost to overflow.
func (r *NotifierReceiver[T]) Dropped() int64 {
	return r.ring.Metrics().Dropped
}

func (r *NotifierReceiver[T]) end() {
	r.mu.Lock()
	r.ended = true
	r.mu.Unlock()
	r.release.Do(func() { r.state.drop(r.ring) })
}
