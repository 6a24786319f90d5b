package ringchan_test

import (
	"testing"

	"github.com/srg/soilsense/internal/ringchan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// GOAL: Verify overwrite-oldest semantics so a slow consumer never blocks a
// producer and always observes the most recent values.
func TestRingChannelOverwritesOldest(t *testing.T) {
	rc := ringchan.New[int](3)

	for i := 0; i < 10; i++ {
		rc.Send(i)
	}
	rc.Close()

	var got []int
	for v := range rc.C() {
		got = append(got, v)
	}

	assert.Equal(t, []int{7, 8, 9}, got)

	m := rc.GetMetrics()
	assert.Equal(t, int64(10), m.Written)
	assert.Equal(t, int64(7), m.Overwritten)
}

func TestRingChannelTrySend(t *testing.T) {
	rc := ringchan.New[string](2)

	assert.True(t, rc.TrySend("a"))
	assert.True(t, rc.TrySend("b"))
	assert.False(t, rc.TrySend("c"), "TrySend must fail on a full buffer")
	assert.Equal(t, 2, rc.Len())
}

func TestRingChannelReceive(t *testing.T) {
	rc := ringchan.New[int](2)
	rc.Send(1)
	rc.Send(2)

	v, ok := rc.Receive()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = rc.TryReceive()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	// Empty buffer: non-blocking receive reports no value.
	_, ok = rc.TryReceive()
	assert.False(t, ok)

	rc.Close()
	_, ok = rc.Receive()
	assert.False(t, ok, "Receive must report closed channel")

	m := rc.GetMetrics()
	assert.Equal(t, int64(2), m.Processed)
}

func TestRingChannelCapacityValidation(t *testing.T) {
	assert.Panics(t, func() { ringchan.New[int](0) })
	assert.Equal(t, 4, ringchan.New[int](4).Cap())
}
