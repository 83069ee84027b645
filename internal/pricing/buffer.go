package pricing

import (
	"context"
	"sync"
	"time"
)

const (
	defaultBufferTimeout  = 2 * time.Second
	defaultBufferCapacity = 1000
)

type bufferEntry struct {
	prices   map[int]float64 // outcome index -> price
	expected int
	updated  time.Time
}

// Buffer accumulates partial single-outcome price updates until a complete
// per-market vector is available. Feeds that quote one token at a time pass
// through here before validation; feeds that deliver full vectors skip it.
type Buffer struct {
	mu       sync.Mutex
	entries  map[string]*bufferEntry
	timeout  time.Duration
	capacity int
}

// NewBuffer creates a Buffer. Zero timeout and capacity fall back to 2s and
// 1000 markets.
func NewBuffer(timeout time.Duration, capacity int) *Buffer {
	if timeout <= 0 {
		timeout = defaultBufferTimeout
	}
	if capacity <= 0 {
		capacity = defaultBufferCapacity
	}
	return &Buffer{
		entries:  make(map[string]*bufferEntry),
		timeout:  timeout,
		capacity: capacity,
	}
}

// AddPrice merges one outcome's price into the market's accumulator and
// returns the complete index-ordered vector once every expected outcome has
// a price. For binary markets a single price completes immediately via the
// complement. A nil return means the vector is still incomplete.
//
// outcomeIndex takes precedence when >= 0; otherwise tokenID is resolved
// through tokenToIndex. Unresolvable updates are dropped.
func (b *Buffer) AddPrice(marketID, tokenID string, price float64, outcomeIndex, expectedOutcomes int, tokenToIndex map[string]int) []float64 {
	idx := outcomeIndex
	if idx < 0 {
		var ok bool
		idx, ok = tokenToIndex[tokenID]
		if !ok {
			return nil
		}
	}
	if expectedOutcomes <= 0 || idx >= expectedOutcomes {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[marketID]
	if !ok {
		if len(b.entries) >= b.capacity {
			b.evictOldestLocked()
		}
		entry = &bufferEntry{
			prices:   make(map[int]float64, expectedOutcomes),
			expected: expectedOutcomes,
		}
		b.entries[marketID] = entry
	}

	entry.prices[idx] = price
	entry.updated = time.Now()

	// Binary complement: one known price determines the other.
	if entry.expected == 2 && len(entry.prices) == 1 {
		comp := 1.0 - price
		if comp >= 0 && comp <= 1 {
			entry.prices[1-idx] = comp
		}
	}

	if len(entry.prices) < entry.expected {
		return nil
	}

	out := make([]float64, entry.expected)
	for i := 0; i < entry.expected; i++ {
		out[i] = entry.prices[i]
	}
	delete(b.entries, marketID)
	return out
}

// RemoveMarket drops any buffered fragments for a market. Called on
// unsubscribe so stale partials never complete with irrelevant data.
func (b *Buffer) RemoveMarket(marketID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, marketID)
}

// Len returns the number of markets with pending fragments.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Sweep evicts entries older than the buffer timeout and returns how many
// were removed.
func (b *Buffer) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := time.Now().Add(-b.timeout)
	removed := 0
	for id, entry := range b.entries {
		if entry.updated.Before(cutoff) {
			delete(b.entries, id)
			removed++
		}
	}
	return removed
}

// Run sweeps stale entries until the context is cancelled.
func (b *Buffer) Run(ctx context.Context) {
	ticker := time.NewTicker(b.timeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Sweep()
		}
	}
}

// evictOldestLocked removes the entry with the oldest update time. Caller
// must hold b.mu.
func (b *Buffer) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, entry := range b.entries {
		if oldestID == "" || entry.updated.Before(oldest) {
			oldestID = id
			oldest = entry.updated
		}
	}
	if oldestID != "" {
		delete(b.entries, oldestID)
	}
}
