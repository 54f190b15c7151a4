package flight

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTimeout is the fallback callback timeout for an Excluder created
// without an explicit value.
const DefaultTimeout = 5 * time.Second

// Lock generation ids are process-wide so a waiter can always tell whether
// the generation it observed is still the active one.
var nextLockID atomic.Uint64

// Excluder serializes one in-flight correlated operation at a time and keeps
// the last value delivered by the platform callback.
//
// Call Lock right before issuing the platform call that will produce the
// callback, then call Wait on the returned ResultWaiter in the same task.
// The callback boundary calls Unlock from any goroutine. If a caller locks
// but never waits, competing Lock calls reclaim the lock after the default
// timeout instead of hanging.
type Excluder[T any] struct {
	mu      sync.Mutex
	mark    *lockMark
	closed  bool
	last    *lastHolder[T]
	timeout time.Duration
}

// lockMark is one instance of "the lock is held": a strictly increasing id,
// a broadcast wake channel and a lazily committed deadline.
type lockMark struct {
	id       uint64
	unlocked chan struct{}
	once     sync.Once
	deadline lockDeadline

	// completed is set only by Unlock. A waiter woken without it sees "no
	// result" (its generation was reclaimed or abandoned, not completed).
	completed atomic.Bool
}

// release wakes everyone waiting on this generation. Idempotent.
func (m *lockMark) release() {
	m.once.Do(func() { close(m.unlocked) })
}

// lockDeadline is a set-once deadline instant. The first commit wins; later
// commits report false and leave the stored instant untouched.
type lockDeadline struct {
	mu  sync.Mutex
	set bool
	at  time.Time
}

func (d *lockDeadline) commit(at time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.set {
		return false
	}
	d.set = true
	d.at = at
	return true
}

func (d *lockDeadline) get() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.at, d.set
}

// lastHolder stores the most recent callback value. A ResultWaiter reads it
// through this shared holder so a closed Excluder resolves to "no result"
// instead of a stale value.
type lastHolder[T any] struct {
	mu   sync.Mutex
	val  T
	ok   bool
	gone bool
}

func (h *lastHolder[T]) store(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.gone {
		return
	}
	h.val = v
	h.ok = true
}

func (h *lastHolder[T]) load() (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.gone || !h.ok {
		var zero T
		return zero, false
	}
	return h.val, true
}

func (h *lastHolder[T]) clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	var zero T
	h.val = zero
	h.ok = false
	h.gone = true
}

// NewExcluder creates an unlocked Excluder with the given callback timeout.
// A non-positive timeout falls back to DefaultTimeout.
func NewExcluder[T any](callbackTimeout time.Duration) *Excluder[T] {
	if callbackTimeout <= 0 {
		callbackTimeout = DefaultTimeout
	}
	return &Excluder[T]{
		last:    &lastHolder[T]{},
		timeout: callbackTimeout,
	}
}

// LastValue returns the last value delivered by the callback, if any.
func (e *Excluder[T]) LastValue() (T, bool) {
	return e.last.load()
}

// Lock waits until the excluder is unlocked, installs a new lock generation
// and returns the waiter bound to it.
//
// If the active generation has a committed deadline, Lock waits out that
// deadline at most. If it has none, the first Lock call to observe it waits
// the excluder's own timeout and then reclaims the generation unconditionally;
// this protects against a holder that locked but never issued the matching
// operation. Whenever the generation changes mid-wait the decision restarts.
func (e *Excluder[T]) Lock(ctx context.Context) (*ResultWaiter[T], error) {
	var waitedID uint64
	waited := false
	for {
		e.mu.Lock()
		mark := e.mark
		if e.closed || mark == nil {
			return e.installLocked(), nil
		}
		if waited && waitedID != mark.id {
			waited = false
		}
		var wait time.Duration
		if at, ok := mark.deadline.get(); ok {
			wait = time.Until(at)
			if wait <= 0 {
				return e.installLocked(), nil
			}
		} else if !waited {
			waited = true
			waitedID = mark.id
			wait = e.timeout
		} else {
			// Same generation, still no committed deadline after a full
			// default timeout: the holder never produced an operation.
			return e.installLocked(), nil
		}
		unlocked := mark.unlocked
		e.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-unlocked:
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
		timer.Stop()
	}
}

// TryLock installs a new lock generation only if the excluder is currently
// unlocked (or the active generation's deadline has already passed).
// Returns nil, false otherwise. Never blocks.
func (e *Excluder[T]) TryLock() (*ResultWaiter[T], bool) {
	e.mu.Lock()
	if mark := e.mark; !e.closed && mark != nil {
		at, ok := mark.deadline.get()
		if !ok || time.Now().Before(at) {
			e.mu.Unlock()
			return nil, false
		}
	}
	return e.installLocked(), true
}

// installLocked replaces the current generation with a fresh one, waking any
// waiter still bound to the old generation (it resolves to "no result").
// Caller must hold e.mu; it is released before returning.
func (e *Excluder[T]) installLocked() *ResultWaiter[T] {
	old := e.mark
	mark := &lockMark{
		id:       nextLockID.Add(1),
		unlocked: make(chan struct{}),
	}
	e.mark = mark
	e.mu.Unlock()
	if old != nil {
		old.release()
	}
	return &ResultWaiter[T]{
		mark:    mark,
		last:    e.last,
		timeout: e.timeout,
	}
}

// Unlock delivers the callback result: it stores v as the last completed
// value, clears the current generation (if any) and wakes anyone waiting.
// Callable from any goroutine; never blocks.
func (e *Excluder[T]) Unlock(v T) {
	e.last.store(v)

	e.mu.Lock()
	mark := e.mark
	e.mark = nil
	e.mu.Unlock()
	if mark != nil {
		mark.completed.Store(true)
		mark.release()
	}
}

// Obtain locks the excluder, runs the operation that will produce the
// callback, then waits for the callback's result. The operation's error
// aborts the wait and releases the lock.
func (e *Excluder[T]) Obtain(ctx context.Context, operation func() error) (T, bool, error) {
	var zero T
	waiter, err := e.Lock(ctx)
	if err != nil {
		return zero, false, err
	}
	if err := operation(); err != nil {
		waiter.Cancel()
		return zero, false, err
	}
	v, ok := waiter.Wait(ctx)
	return v, ok, nil
}

// Close clears the last-value holder and force-unlocks any active generation
// so every extant ResultWaiter resolves to "no result" rather than hanging.
// The excluder must not be locked again afterwards.
func (e *Excluder[T]) Close() {
	e.last.clear()

	e.mu.Lock()
	mark := e.mark
	e.mark = nil
	e.closed = true
	e.mu.Unlock()
	if mark != nil {
		mark.release()
	}
}

// ResultWaiter is the single-use capability returned by Lock. Exactly one of
// Wait or Cancel must be called, in the same logical task that issued the
// platform call.
type ResultWaiter[T any] struct {
	mark     *lockMark
	last     *lastHolder[T]
	timeout  time.Duration
	consumed atomic.Bool
}

// Wait blocks until the unlock signal arrives or the waiter's deadline
// passes. It commits the deadline (now + timeout) first so that competing
// Lock callers know how long this generation may stay valid. Returns the
// last completed value on signal, or (zero, false) on timeout, context
// cancellation, excluder closure, or repeated calls.
func (w *ResultWaiter[T]) Wait(ctx context.Context) (T, bool) {
	var zero T
	if !w.consumed.CompareAndSwap(false, true) {
		return zero, false
	}
	deadline := time.Now().Add(w.timeout)
	w.mark.deadline.commit(deadline)

	wait := time.Until(deadline)
	if wait <= 0 {
		wait = time.Millisecond
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-w.mark.unlocked:
		if !w.mark.completed.Load() {
			return zero, false
		}
		return w.last.load()
	case <-timer.C:
		return zero, false
	case <-ctx.Done():
		return zero, false
	}
}

// Cancel abandons the waiter without consuming the result. It commits an
// immediate deadline and wakes competing lockers so the lock is not held
// open. Safe to call after Wait (it becomes a no-op).
func (w *ResultWaiter[T]) Cancel() {
	if !w.consumed.CompareAndSwap(false, true) {
		return
	}
	if w.mark.deadline.commit(time.Now()) {
		w.mark.release()
	}
}
