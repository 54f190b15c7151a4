package flight

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierStartStopExactlyOnce(t *testing.T) {
	n := NewNotifier[int](4)
	var starts, stops atomic.Int32

	onStart := func() error { starts.Add(1); return nil }
	onStop := func() { stops.Add(1) }

	rx1, err := n.Subscribe(onStart, onStop)
	require.NoError(t, err)
	require.True(t, n.IsNotifying())

	rx2, err := n.Subscribe(onStart, onStop)
	require.NoError(t, err)

	assert.Equal(t, int32(1), starts.Load(), "onStart runs once across both subscribes")
	assert.Equal(t, int32(0), stops.Load())

	rx1.Close()
	assert.Equal(t, int32(0), stops.Load(), "state stays alive while a receiver remains")
	assert.True(t, n.IsNotifying())

	rx2.Close()
	assert.Equal(t, int32(1), stops.Load(), "onStop runs once after the last receiver is gone")
	assert.False(t, n.IsNotifying())
}

func TestNotifierRestartAfterStop(t *testing.T) {
	n := NewNotifier[int](4)
	var starts atomic.Int32

	rx, err := n.Subscribe(func() error { starts.Add(1); return nil }, nil)
	require.NoError(t, err)
	rx.Close()

	rx2, err := n.Subscribe(func() error { starts.Add(1); return nil }, nil)
	require.NoError(t, err)
	defer rx2.Close()

	assert.Equal(t, int32(2), starts.Load(), "a fresh subscription re-activates")
}

func TestNotifierStartError(t *testing.T) {
	n := NewNotifier[int](4)

	_, err := n.Subscribe(func() error { return assert.AnError }, nil)
	require.ErrorIs(t, err, assert.AnError)
	assert.False(t, n.IsNotifying())
}

func TestNotifierFanOut(t *testing.T) {
	n := NewNotifier[int](8)

	rx1, err := n.Subscribe(nil, nil)
	require.NoError(t, err)
	rx2, err := n.Subscribe(nil, nil)
	require.NoError(t, err)
	defer rx1.Close()
	defer rx2.Close()

	n.Notify(1)
	n.Notify(2)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for _, rx := range []*NotifierReceiver[int]{rx1, rx2} {
		v, ok := rx.Next(ctx)
		require.True(t, ok)
		assert.Equal(t, 1, v)
		v, ok = rx.Next(ctx)
		require.True(t, ok)
		assert.Equal(t, 2, v)
	}
}

func TestNotifierNotifyWithoutSubscribersIsNoop(t *testing.T) {
	n := NewNotifier[int](4)
	assert.NotPanics(t, func() {
		n.Notify(1)
		n.Notify(2)
	})
	assert.False(t, n.IsNotifying())
}

func TestNotifierOverflowDropsOldest(t *testing.T) {
	n := NewNotifier[int](2)

	rx, err := n.Subscribe(nil, nil)
	require.NoError(t, err)
	defer rx.Close()

	for i := 1; i <= 5; i++ {
		n.Notify(i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, ok := rx.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, 4, v, "oldest values are discarded on overflow")
	v, ok = rx.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, 5, v)
	assert.Equal(t, int64(3), rx.Dropped())
}

func TestNotifierCloseEndsReceivers(t *testing.T) {
	n := NewNotifier[int](4)
	var stops atomic.Int32

	rx, err := n.Subscribe(nil, func() { stops.Add(1) })
	require.NoError(t, err)

	n.Notify(1)
	n.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Buffered value still drains, then the terminal signal ends the stream.
	v, ok := rx.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = rx.Next(ctx)
	assert.False(t, ok, "terminal signal MUST end the stream")

	// Once ended, further polls return ended without touching the channel.
	_, ok = rx.Next(ctx)
	assert.False(t, ok)

	assert.Equal(t, int32(1), stops.Load(), "ending the last receiver triggers onStop")
}

func TestNotifierReceiverNextContext(t *testing.T) {
	n := NewNotifier[int](4)

	rx, err := n.Subscribe(nil, nil)
	require.NoError(t, err)
	defer rx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, ok := rx.Next(ctx)
	assert.False(t, ok, "context expiry unblocks Next")
}
