package flight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingChannelSendNeverBlocks(t *testing.T) {
	rc := NewRingChannel[int](3)

	for i := 1; i <= 10; i++ {
		rc.Send(i)
	}

	assert.Equal(t, 3, rc.Len())

	v, ok := rc.TryReceive()
	require.True(t, ok)
	assert.Equal(t, 8, v, "oldest values were overwritten")

	m := rc.Metrics()
	assert.Equal(t, int64(10), m.Delivered)
	assert.Equal(t, int64(7), m.Dropped)
}

func TestRingChannelCloseEndsRange(t *testing.T) {
	rc := NewRingChannel[string](2)
	rc.Send("a")
	rc.Close()

	var got []string
	for v := range rc.C() {
		got = append(got, v)
	}
	assert.Equal(t, []string{"a"}, got)
}

func TestRingChannelZeroCapacityPanics(t *testing.T) {
	assert.Panics(t, func() { NewRingChannel[int](0) })
}
