package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/polyecho/echobot/internal/domain"
	"github.com/polyecho/echobot/internal/feed"
)

// ticksDDL creates the tick table. MergeTree ordered by (market, time) keeps
// per-market range scans cheap; TTL caps retention at 90 days.
const ticksDDL = `
CREATE TABLE IF NOT EXISTS price_ticks (
	market_id     String,
	outcome_index UInt8,
	price         Float64,
	source        LowCardinality(String),
	ts            DateTime64(3)
) ENGINE = MergeTree()
ORDER BY (market_id, ts)
TTL toDateTime(ts) + INTERVAL 90 DAY
`

// TickStore appends validated price vectors to the price_ticks table, one
// row per outcome.
type TickStore struct {
	conn *Conn
}

// NewTickStore creates a TickStore and ensures the table exists.
func NewTickStore(ctx context.Context, conn *Conn) (*TickStore, error) {
	if err := conn.Exec(ctx, ticksDDL); err != nil {
		return nil, fmt.Errorf("clickhouse: create price_ticks: %w", err)
	}
	return &TickStore{conn: conn}, nil
}

var _ feed.TickSink = (*TickStore)(nil)

// WriteTicks appends one row per outcome price.
func (s *TickStore) WriteTicks(ctx context.Context, marketID string, prices []float64, source domain.MarketSource, ts time.Time) error {
	if len(prices) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_ticks (market_id, outcome_index, price, source, ts)
	`)
	if err != nil {
		return fmt.Errorf("clickhouse: prepare ticks batch: %w", err)
	}

	for i, p := range prices {
		if err := batch.Append(marketID, uint8(i), p, string(source), ts); err != nil {
			return fmt.Errorf("clickhouse: append tick: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("clickhouse: send ticks batch: %w", err)
	}
	return nil
}

// LatestTicks returns the most recent tick per outcome for one market.
func (s *TickStore) LatestTicks(ctx context.Context, marketID string) ([]domain.PriceTick, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT outcome_index, argMax(price, ts), argMax(source, ts), max(ts)
		FROM price_ticks
		WHERE market_id = ?
		GROUP BY outcome_index
		ORDER BY outcome_index
	`, marketID)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: query latest ticks: %w", err)
	}
	defer rows.Close()

	var ticks []domain.PriceTick
	for rows.Next() {
		t := domain.PriceTick{MarketID: marketID}
		var idx uint8
		var source string
		if err := rows.Scan(&idx, &t.Price, &source, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("clickhouse: scan tick: %w", err)
		}
		t.OutcomeIndex = int(idx)
		t.Source = domain.MarketSource(source)
		ticks = append(ticks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clickhouse: iterate ticks: %w", err)
	}
	return ticks, nil
}
