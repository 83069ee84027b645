package pricing

import (
	"sync"
	"time"
)

// FlushFunc is invoked with a key's most recent payload when the debouncer
// flushes.
type FlushFunc func(key string, payload any)

type pendingUpdate struct {
	payload  any
	callback FlushFunc
}

// Debouncer coalesces bursts of updates into batched flushes. It keeps one
// pending payload per key (last-write-wins) behind a single shared timer:
// any new call for any key re-arms the timer, and when the whole manager has
// been quiet for the delay, every pending key is flushed in one wave.
// Intermediate payloads are intentionally dropped; the guarantee is that the
// last payload before an idle period is always applied, not that every
// payload is.
//
// Within a flush wave, successive callback invocations are spaced by
// 1/maxUpdatesPerSecond so a large burst drains at a bounded rate.
type Debouncer struct {
	mu      sync.Mutex
	pending map[string]pendingUpdate
	timer   *time.Timer
	closed  bool

	delay   time.Duration
	spacing time.Duration

	// wg tracks in-flight flush waves so Close can wait them out.
	wg sync.WaitGroup
}

// NewDebouncer creates a Debouncer. Zero delay falls back to 500ms; zero
// maxUpdatesPerSecond disables rate spacing.
func NewDebouncer(delay time.Duration, maxUpdatesPerSecond int) *Debouncer {
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	var spacing time.Duration
	if maxUpdatesPerSecond > 0 {
		spacing = time.Second / time.Duration(maxUpdatesPerSecond)
	}
	return &Debouncer{
		pending: make(map[string]pendingUpdate),
		delay:   delay,
		spacing: spacing,
	}
}

// ScheduleUpdate records the payload for a key, overwriting any not-yet
// flushed payload for the same key, and re-arms the shared flush timer.
func (d *Debouncer) ScheduleUpdate(key string, payload any, callback FlushFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	d.pending[key] = pendingUpdate{payload: payload, callback: callback}

	if d.timer == nil {
		d.timer = time.AfterFunc(d.delay, d.flush)
	} else {
		d.timer.Reset(d.delay)
	}
}

// PendingLen returns the number of keys awaiting a flush.
func (d *Debouncer) PendingLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close stops the timer, discards pending updates and waits for any
// in-flight flush wave to finish. Further ScheduleUpdate calls are no-ops.
func (d *Debouncer) Close() {
	d.mu.Lock()
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = make(map[string]pendingUpdate)
	d.mu.Unlock()

	d.wg.Wait()
}

// flush drains all pending keys in one wave. Updates scheduled while the
// wave is running land in a fresh pending set and arm a new timer.
func (d *Debouncer) flush() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	batch := d.pending
	d.pending = make(map[string]pendingUpdate)
	d.timer = nil
	d.wg.Add(1)
	d.mu.Unlock()

	defer d.wg.Done()

	first := true
	for key, upd := range batch {
		if !first && d.spacing > 0 {
			time.Sleep(d.spacing)
		}
		first = false
		upd.callback(key, upd.payload)
	}
}
