package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/polyecho/echobot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each market's
// latest validated price vector is stored at "price:{marketID}" with fields
// "prices" (JSON array), "source", and "ts" (Unix nanoseconds).
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache backed by the given Client. A zero ttl
// falls back to one minute.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func priceKey(marketID string) string { return "price:" + marketID }

// SetVector stores the latest price vector for a market.
func (pc *PriceCache) SetVector(ctx context.Context, marketID string, vec domain.PriceVector) error {
	prices, err := json.Marshal(vec.Prices)
	if err != nil {
		return fmt.Errorf("redis: marshal prices %s: %w", marketID, err)
	}

	key := priceKey(marketID)
	fields := map[string]interface{}{
		"prices": prices,
		"source": string(vec.Source),
		"ts":     strconv.FormatInt(vec.Timestamp.UnixNano(), 10),
	}

	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, pc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price vector %s: %w", marketID, err)
	}
	return nil
}

// GetVector retrieves the latest price vector for a market. It returns
// domain.ErrNotFound when no vector is cached.
func (pc *PriceCache) GetVector(ctx context.Context, marketID string) (domain.PriceVector, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(marketID)).Result()
	if err != nil {
		return domain.PriceVector{}, fmt.Errorf("redis: get price vector %s: %w", marketID, err)
	}
	if len(vals) == 0 {
		return domain.PriceVector{}, domain.ErrNotFound
	}

	var vec domain.PriceVector
	if raw, ok := vals["prices"]; ok {
		if err := json.Unmarshal([]byte(raw), &vec.Prices); err != nil {
			return domain.PriceVector{}, fmt.Errorf("redis: unmarshal prices %s: %w", marketID, err)
		}
	}
	vec.Source = domain.MarketSource(vals["source"])
	if tsStr, ok := vals["ts"]; ok {
		if tsNano, err := strconv.ParseInt(tsStr, 10, 64); err == nil {
			vec.Timestamp = time.Unix(0, tsNano)
		}
	}
	return vec, nil
}

// Invalidate removes the cached vector for a market.
func (pc *PriceCache) Invalidate(ctx context.Context, marketID string) error {
	if err := pc.rdb.Del(ctx, priceKey(marketID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis: invalidate price %s: %w", marketID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
