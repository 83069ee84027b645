package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/polyecho/echobot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// MarketCache implements domain.MarketCache using JSON values plus two
// secondary indexes so that WebSocket identifiers resolve without touching
// the store.
//
// Key schema:
//
//	market:{id}         - JSON-serialized Market
//	market:token:{tok}  - string value of the market ID, one per clob token
//	market:cond:{cid}   - string value of the market ID, keyed by condition ID
type MarketCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMarketCache creates a MarketCache backed by the given Client. A zero
// ttl falls back to five minutes.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MarketCache{rdb: c.Underlying(), ttl: ttl}
}

func marketKey(id string) string        { return "market:" + id }
func marketTokenKey(tok string) string  { return "market:token:" + tok }
func marketCondKey(cid string) string   { return "market:cond:" + cid }

// Set stores a Market and refreshes its token and condition indexes.
func (mc *MarketCache) Set(ctx context.Context, market domain.Market) error {
	data, err := json.Marshal(market)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", market.ID, err)
	}

	pipe := mc.rdb.TxPipeline()
	pipe.Set(ctx, marketKey(market.ID), data, mc.ttl)
	for _, tok := range market.ClobTokenIDs {
		if tok == "" {
			continue
		}
		pipe.Set(ctx, marketTokenKey(tok), market.ID, mc.ttl)
	}
	if market.ConditionID != "" {
		pipe.Set(ctx, marketCondKey(market.ConditionID), market.ID, mc.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set market %s: %w", market.ID, err)
	}
	return nil
}

// Get retrieves a Market by its ID. It returns domain.ErrNotFound when the
// key does not exist.
func (mc *MarketCache) Get(ctx context.Context, id string) (domain.Market, error) {
	data, err := mc.rdb.Get(ctx, marketKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %s: %w", id, err)
	}

	var market domain.Market
	if err := json.Unmarshal(data, &market); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %s: %w", id, err)
	}
	return market, nil
}

// GetByToken looks up a Market by one of its clob token IDs.
func (mc *MarketCache) GetByToken(ctx context.Context, tokenID string) (domain.Market, error) {
	marketID, err := mc.rdb.Get(ctx, marketTokenKey(tokenID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market by token %s: %w", tokenID, err)
	}
	return mc.Get(ctx, marketID)
}

// GetByCondition looks up a Market by its on-chain condition ID.
func (mc *MarketCache) GetByCondition(ctx context.Context, conditionID string) (domain.Market, error) {
	marketID, err := mc.rdb.Get(ctx, marketCondKey(conditionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market by condition %s: %w", conditionID, err)
	}
	return mc.Get(ctx, marketID)
}

// Invalidate removes a Market and its index entries.
func (mc *MarketCache) Invalidate(ctx context.Context, id string) error {
	market, err := mc.Get(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("redis: invalidate market %s: %w", id, err)
	}

	pipe := mc.rdb.TxPipeline()
	pipe.Del(ctx, marketKey(id))
	if err == nil {
		for _, tok := range market.ClobTokenIDs {
			if tok == "" {
				continue
			}
			pipe.Del(ctx, marketTokenKey(tok))
		}
		if market.ConditionID != "" {
			pipe.Del(ctx, marketCondKey(market.ConditionID))
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
