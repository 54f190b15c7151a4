package flight

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect[T any](t *testing.T, ch <-chan T) []T {
	t.Helper()
	var out []T
	timeout := time.After(time.Second)
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, v)
		case <-timeout:
			t.Fatal("stream did not terminate")
		}
	}
}

func TestStreamUntilPrimaryEnds(t *testing.T) {
	primary := make(chan int, 3)
	events := make(chan string)
	primary <- 1
	primary <- 2
	primary <- 3
	close(primary)

	out := StreamUntil(context.Background(), primary, events, func(string) bool { return true })
	assert.Equal(t, []int{1, 2, 3}, collect(t, out))
}

func TestStreamUntilEventMatches(t *testing.T) {
	primary := make(chan int)
	events := make(chan string, 2)

	out := StreamUntil(context.Background(), primary, events, func(ev string) bool { return ev == "stop" })

	primary <- 1
	v, ok := <-out
	require.True(t, ok)
	assert.Equal(t, 1, v)

	events <- "keep-going"
	primary <- 2
	v, ok = <-out
	require.True(t, ok)
	assert.Equal(t, 2, v)

	events <- "stop"
	_, ok = <-out
	assert.False(t, ok, "matching event terminates the stream")

	// Terminated means terminated: the channel stays closed.
	_, ok = <-out
	assert.False(t, ok)
}

func TestStreamUntilEventStreamEnds(t *testing.T) {
	primary := make(chan int)
	events := make(chan string)

	out := StreamUntil(context.Background(), primary, events, func(string) bool { return false })
	close(events)

	_, ok := <-out
	assert.False(t, ok, "event stream closing terminates the stream")
}

func TestStreamUntilContextCancel(t *testing.T) {
	primary := make(chan int)
	events := make(chan string)

	ctx, cancel := context.WithCancel(context.Background())
	out := StreamUntil(ctx, primary, events, func(string) bool { return false })
	cancel()

	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream did not observe context cancellation")
	}
}

func TestStreamUntilCutOffWhileDelivering(t *testing.T) {
	// The terminator must win even when a value is pending delivery and no
	// consumer is reading.
	primary := make(chan int, 1)
	events := make(chan string, 1)

	out := StreamUntil(context.Background(), primary, events, func(ev string) bool { return ev == "stop" })
	primary <- 1
	// Let the combinator pick the value up, then terminate before consuming it.
	time.Sleep(10 * time.Millisecond)
	events <- "stop"

	vals := collect(t, out)
	assert.LessOrEqual(t, len(vals), 1, "at most the already-buffered value leaks through")
}
