package pricing

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flushRecorder struct {
	mu    sync.Mutex
	calls []struct {
		key     string
		payload any
	}
}

func (r *flushRecorder) record(key string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, struct {
		key     string
		payload any
	}{key, payload})
}

func (r *flushRecorder) snapshot() []struct {
	key     string
	payload any
} {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]struct {
		key     string
		payload any
	}, len(r.calls))
	copy(out, r.calls)
	return out
}

func TestDebouncerCoalescesSameKey(t *testing.T) {
	d := NewDebouncer(30*time.Millisecond, 0)
	defer d.Close()

	rec := &flushRecorder{}
	for i := 1; i <= 5; i++ {
		d.ScheduleUpdate("market:1", i, rec.record)
	}

	time.Sleep(100 * time.Millisecond)

	calls := rec.snapshot()
	require.Len(t, calls, 1, "5 updates for one key collapse into one callback")
	assert.Equal(t, "market:1", calls[0].key)
	assert.Equal(t, 5, calls[0].payload, "last-write-wins payload")
}

func TestDebouncerSingleFlushWaveAcrossKeys(t *testing.T) {
	d := NewDebouncer(30*time.Millisecond, 0)
	defer d.Close()

	rec := &flushRecorder{}
	for i := 0; i < 10; i++ {
		d.ScheduleUpdate(fmt.Sprintf("market:%d", i), i, rec.record)
	}

	time.Sleep(100 * time.Millisecond)

	calls := rec.snapshot()
	require.Len(t, calls, 10, "every key present exactly once in one wave")

	seen := make(map[string]any, len(calls))
	for _, c := range calls {
		seen[c.key] = c.payload
	}
	assert.Len(t, seen, 10)
	assert.Equal(t, 0, d.PendingLen())
}

func TestDebouncerSharedTimerResetsOnAnyKey(t *testing.T) {
	d := NewDebouncer(50*time.Millisecond, 0)
	defer d.Close()

	rec := &flushRecorder{}
	d.ScheduleUpdate("a", 1, rec.record)
	time.Sleep(30 * time.Millisecond)

	// A different key within the delay re-arms the shared timer, so "a" has
	// not flushed yet.
	d.ScheduleUpdate("b", 2, rec.record)
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, rec.snapshot(), "quiescence not yet reached")

	time.Sleep(60 * time.Millisecond)
	assert.Len(t, rec.snapshot(), 2, "both keys flush in the same wave")
}

func TestDebouncerRateSpacing(t *testing.T) {
	// 20 updates/second -> 50ms between callbacks within a wave.
	d := NewDebouncer(10*time.Millisecond, 20)
	defer d.Close()

	rec := &flushRecorder{}
	d.ScheduleUpdate("a", 1, rec.record)
	d.ScheduleUpdate("b", 2, rec.record)
	d.ScheduleUpdate("c", 3, rec.record)

	start := time.Now()
	for time.Since(start) < time.Second {
		if len(rec.snapshot()) == 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	require.Len(t, rec.snapshot(), 3)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond,
		"three callbacks spaced at 50ms drain over at least 100ms")
}

func TestDebouncerCloseDiscardsPending(t *testing.T) {
	d := NewDebouncer(time.Hour, 0)

	rec := &flushRecorder{}
	d.ScheduleUpdate("a", 1, rec.record)
	d.Close()

	assert.Equal(t, 0, d.PendingLen())
	assert.Empty(t, rec.snapshot())

	// Scheduling after close is a no-op.
	d.ScheduleUpdate("b", 2, rec.record)
	assert.Equal(t, 0, d.PendingLen())
}
