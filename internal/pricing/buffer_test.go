package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferBinaryComplementCompletesOnce(t *testing.T) {
	b := NewBuffer(time.Second, 0)
	tokenToIndex := map[string]int{"111": 0, "222": 1}

	prices := b.AddPrice("m1", "111", 0.6, -1, 2, tokenToIndex)
	require.NotNil(t, prices)
	assert.InDelta(t, 0.6, prices[0], 1e-9)
	assert.InDelta(t, 0.4, prices[1], 1e-9)

	// Completion purges the entry; nothing lingers.
	assert.Equal(t, 0, b.Len())
}

func TestBufferMultiOutcomeAccumulates(t *testing.T) {
	b := NewBuffer(time.Second, 0)

	assert.Nil(t, b.AddPrice("m1", "", 0.5, 0, 3, nil))
	assert.Nil(t, b.AddPrice("m1", "", 0.3, 1, 3, nil))

	prices := b.AddPrice("m1", "", 0.2, 2, 3, nil)
	require.NotNil(t, prices)
	assert.Equal(t, []float64{0.5, 0.3, 0.2}, prices)
	assert.Equal(t, 0, b.Len())
}

func TestBufferUnresolvableTokenDropped(t *testing.T) {
	b := NewBuffer(time.Second, 0)

	assert.Nil(t, b.AddPrice("m1", "999", 0.5, -1, 2, map[string]int{"111": 0}))
	assert.Equal(t, 0, b.Len())
}

func TestBufferSweepEvictsStale(t *testing.T) {
	b := NewBuffer(20*time.Millisecond, 0)

	b.AddPrice("m1", "", 0.5, 0, 3, nil)
	require.Equal(t, 1, b.Len())

	time.Sleep(30 * time.Millisecond)
	removed := b.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, b.Len())
}

func TestBufferCapacityEvictsOldest(t *testing.T) {
	b := NewBuffer(time.Minute, 2)

	b.AddPrice("m1", "", 0.5, 0, 3, nil)
	time.Sleep(2 * time.Millisecond)
	b.AddPrice("m2", "", 0.5, 0, 3, nil)
	time.Sleep(2 * time.Millisecond)
	b.AddPrice("m3", "", 0.5, 0, 3, nil) // evicts m1

	require.Equal(t, 2, b.Len())

	// m1's first fragment was evicted, so two more are needed to complete.
	assert.Nil(t, b.AddPrice("m1", "", 0.3, 1, 3, nil))
	assert.Nil(t, b.AddPrice("m1", "", 0.2, 2, 3, nil))
}

func TestBufferRemoveMarket(t *testing.T) {
	b := NewBuffer(time.Second, 0)

	b.AddPrice("m1", "", 0.5, 0, 3, nil)
	b.RemoveMarket("m1")
	assert.Equal(t, 0, b.Len())

	// A later fragment starts a fresh accumulator instead of completing
	// against stale data.
	assert.Nil(t, b.AddPrice("m1", "", 0.3, 1, 3, nil))
}
