// Package memory provides process-local, bounded, TTL-evicting key-value
// stores. These back the deduplication, resolution and failure caches, which
// are deliberately not shared across instances.
package memory

import (
	"context"
	"sync"
	"time"
)

type entry[V any] struct {
	value   V
	addedAt time.Time
}

// TTLMap is a mutex-guarded map whose entries expire after a time-to-live
// and whose size is capped. When the cap is exceeded the oldest entry is
// evicted first. It is safe for concurrent use.
type TTLMap[V any] struct {
	mu       sync.Mutex
	entries  map[string]entry[V]
	ttl      time.Duration
	capacity int
}

// NewTTLMap creates a TTLMap with the given time-to-live and capacity.
// A capacity of 0 means unbounded.
func NewTTLMap[V any](ttl time.Duration, capacity int) *TTLMap[V] {
	return &TTLMap[V]{
		entries:  make(map[string]entry[V]),
		ttl:      ttl,
		capacity: capacity,
	}
}

// Get returns the value for key if present and not expired.
func (m *TTLMap[V]) Get(key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || time.Since(e.addedAt) >= m.ttl {
		var zero V
		if ok {
			delete(m.entries, key)
		}
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, evicting the oldest entry if the map is full.
func (m *TTLMap[V]) Set(key string, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(key, value)
}

// SetIfAbsent stores value under key only when no live entry exists. It
// returns true when the value was stored, meaning the key had not been seen
// within the TTL window. This is the deduplication primitive.
func (m *TTLMap[V]) SetIfAbsent(key string, value V) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok && time.Since(e.addedAt) < m.ttl {
		return false
	}
	m.set(key, value)
	return true
}

// Delete removes key.
func (m *TTLMap[V]) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Len returns the number of stored entries, expired ones included until the
// next sweep.
func (m *TTLMap[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweep removes entries that have expired beyond the TTL.
func (m *TTLMap[V]) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for k, e := range m.entries {
		if now.Sub(e.addedAt) >= m.ttl {
			delete(m.entries, k)
		}
	}
}

// Run sweeps expired entries at the given interval until ctx is cancelled.
func (m *TTLMap[V]) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// set inserts and enforces the capacity bound. Caller must hold m.mu.
func (m *TTLMap[V]) set(key string, value V) {
	if m.capacity > 0 && len(m.entries) >= m.capacity {
		if _, exists := m.entries[key]; !exists {
			m.evictOldest()
		}
	}
	m.entries[key] = entry[V]{value: value, addedAt: time.Now()}
}

// evictOldest removes the entry with the oldest addedAt. Caller must hold m.mu.
func (m *TTLMap[V]) evictOldest() {
	var oldestKey string
	var oldest time.Time
	first := true
	for k, e := range m.entries {
		if first || e.addedAt.Before(oldest) {
			oldestKey, oldest = k, e.addedAt
			first = false
		}
	}
	if !first {
		delete(m.entries, oldestKey)
	}
}
