package domain

import (
	"context"
	"time"
)

// MarketCache provides fast market metadata lookups with secondary indexes
// by clob token ID and condition ID.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, id string) (Market, error)
	GetByToken(ctx context.Context, tokenID string) (Market, error)
	GetByCondition(ctx context.Context, conditionID string) (Market, error)
	Invalidate(ctx context.Context, id string) error
}

// PriceVector is a cached per-market price snapshot.
type PriceVector struct {
	Prices    []float64
	Source    MarketSource
	Timestamp time.Time
}

// PriceCache stores the latest validated price vector per market.
type PriceCache interface {
	SetVector(ctx context.Context, marketID string, vec PriceVector) error
	GetVector(ctx context.Context, marketID string) (PriceVector, error)
	Invalidate(ctx context.Context, marketID string) error
}

// StreamMessage is a single entry read from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub (pattern subscriptions included) and durable
// streams. Pub/sub delivery is at-least-once from the consumer's point of
// view across reconnects; consumers deduplicate.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
