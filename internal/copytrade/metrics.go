package copytrade

import "sync/atomic"

// Metrics tracks listener throughput. Counters only; the durable record per
// copy attempt lives in the copy_trades journal.
type Metrics struct {
	tradesProcessed atomic.Int64
	dedupDrops      atomic.Int64
	copiesExecuted  atomic.Int64
	copiesSkipped   atomic.Int64
	copiesFailed    atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of the listener counters.
type MetricsSnapshot struct {
	TradesProcessed int64
	DedupDrops      int64
	CopiesExecuted  int64
	CopiesSkipped   int64
	CopiesFailed    int64
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TradesProcessed: m.tradesProcessed.Load(),
		DedupDrops:      m.dedupDrops.Load(),
		CopiesExecuted:  m.copiesExecuted.Load(),
		CopiesSkipped:   m.copiesSkipped.Load(),
		CopiesFailed:    m.copiesFailed.Load(),
	}
}
