// Package service contains the domain services: market resolution, position
// maintenance, balance lookups and copy-trade execution bookkeeping.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/polyecho/echobot/internal/cache/memory"
	"github.com/polyecho/echobot/internal/domain"
)

// MarketStats is a snapshot of the market service's resolution counters.
type MarketStats struct {
	CacheHits       int64
	CacheMisses     int64
	FetchAttempts   int64
	FetchSuccesses  int64
	FetchFailures   int64
	ResolveFailures int64
}

// MarketService resolves heterogeneous market identifiers (numeric ID,
// condition ID, clob token ID) to canonical markets, fetching unknown
// markets from the upstream API on demand.
type MarketService struct {
	markets domain.MarketStore
	cache   domain.MarketCache
	fetcher domain.MarketFetcher
	logger  *slog.Logger

	// resolutions caches identifier -> market ID; failures caches
	// identifiers whose upstream fetch failed so a permanently-missing
	// market is not retried on every message.
	resolutions *memory.TTLMap[string]
	failures    *memory.TTLMap[struct{}]

	cacheHits       atomic.Int64
	cacheMisses     atomic.Int64
	fetchAttempts   atomic.Int64
	fetchSuccesses  atomic.Int64
	fetchFailures   atomic.Int64
	resolveFailures atomic.Int64
}

// NewMarketService creates a MarketService. resolutionTTL bounds how long a
// resolved identifier mapping is trusted; failureTTL bounds how long a
// failed upstream fetch suppresses retries.
func NewMarketService(
	markets domain.MarketStore,
	cache domain.MarketCache,
	fetcher domain.MarketFetcher,
	resolutionTTL, failureTTL time.Duration,
	logger *slog.Logger,
) *MarketService {
	if resolutionTTL <= 0 {
		resolutionTTL = 10 * time.Minute
	}
	if failureTTL <= 0 {
		failureTTL = time.Hour
	}
	return &MarketService{
		markets:     markets,
		cache:       cache,
		fetcher:     fetcher,
		logger:      logger.With(slog.String("component", "market_service")),
		resolutions: memory.NewTTLMap[string](resolutionTTL, 10000),
		failures:    memory.NewTTLMap[struct{}](failureTTL, 10000),
	}
}

// isNumeric reports whether s is a non-empty all-digit string.
func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ResolveMarketIdentifier classifies an incoming identifier and resolves it
// to a market ID. Numeric strings are already market IDs; "0x"-prefixed or
// long identifiers are condition IDs requiring a lookup; anything else is
// attempted as a condition ID by default. Returns ErrMarketUnresolved when
// no market matches; callers must drop the update.
func (s *MarketService) ResolveMarketIdentifier(ctx context.Context, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", domain.ErrMarketUnresolved
	}

	if isNumeric(identifier) && len(identifier) <= 20 {
		return identifier, nil
	}

	if id, ok := s.resolutions.Get(identifier); ok {
		s.cacheHits.Add(1)
		return id, nil
	}
	s.cacheMisses.Add(1)

	m, err := s.lookupByCondition(ctx, identifier)
	if err != nil {
		s.resolveFailures.Add(1)
		return "", fmt.Errorf("market_service: resolve %q: %w", identifier, domain.ErrMarketUnresolved)
	}

	s.resolutions.Set(identifier, m.ID)
	return m.ID, nil
}

// ResolveByToken finds the market whose clob_token_ids contain the given
// token ID, checking the cache before the store.
func (s *MarketService) ResolveByToken(ctx context.Context, tokenID string) (domain.Market, error) {
	if m, err := s.cache.GetByToken(ctx, tokenID); err == nil {
		s.cacheHits.Add(1)
		return m, nil
	}
	s.cacheMisses.Add(1)

	m, err := s.markets.GetByTokenID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Market{}, fmt.Errorf("market_service: token %s: %w", tokenID, domain.ErrMarketUnresolved)
		}
		return domain.Market{}, fmt.Errorf("market_service: get by token %s: %w", tokenID, err)
	}

	s.backfillCache(ctx, m)
	return m, nil
}

// GetMarket retrieves a market by ID, cache first, store second.
func (s *MarketService) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	if m, err := s.cache.Get(ctx, id); err == nil {
		s.cacheHits.Add(1)
		return m, nil
	}
	s.cacheMisses.Add(1)

	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get by id %q: %w", id, err)
	}

	s.backfillCache(ctx, m)
	return m, nil
}

// GetOrFetchMarket retrieves a market locally and, if entirely unknown,
// fetches it from the upstream API and inserts it. Failed fetches are
// cached so a missing market does not hot-loop retries.
func (s *MarketService) GetOrFetchMarket(ctx context.Context, id string) (domain.Market, error) {
	m, err := s.GetMarket(ctx, id)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Market{}, err
	}

	if _, failed := s.failures.Get(id); failed {
		return domain.Market{}, fmt.Errorf("market_service: fetch suppressed for %q: %w", id, domain.ErrNotFound)
	}

	s.fetchAttempts.Add(1)
	m, err = s.fetcher.FetchMarket(ctx, id)
	if err != nil {
		s.fetchFailures.Add(1)
		s.failures.Set(id, struct{}{})
		s.logger.WarnContext(ctx, "upstream market fetch failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		return domain.Market{}, fmt.Errorf("market_service: fetch market %q: %w", id, err)
	}
	s.fetchSuccesses.Add(1)

	if err := s.markets.Upsert(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: insert fetched market %q: %w", id, err)
	}
	s.backfillCache(ctx, m)

	s.logger.InfoContext(ctx, "fetched and inserted unknown market",
		slog.String("market_id", m.ID),
		slog.String("title", m.Title),
	)
	return m, nil
}

// InvalidateMarket drops the cached entry for a market.
func (s *MarketService) InvalidateMarket(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "cache invalidate failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		// Non-fatal: the cache entry expires on its own.
	}
}

// Stats returns a snapshot of the resolution counters.
func (s *MarketService) Stats() MarketStats {
	return MarketStats{
		CacheHits:       s.cacheHits.Load(),
		CacheMisses:     s.cacheMisses.Load(),
		FetchAttempts:   s.fetchAttempts.Load(),
		FetchSuccesses:  s.fetchSuccesses.Load(),
		FetchFailures:   s.fetchFailures.Load(),
		ResolveFailures: s.resolveFailures.Load(),
	}
}

// RunSweeper expires stale resolution and failure cache entries until the
// context is cancelled.
func (s *MarketService) RunSweeper(ctx context.Context, interval time.Duration) {
	go s.resolutions.Run(ctx, interval)
	s.failures.Run(ctx, interval)
}

func (s *MarketService) lookupByCondition(ctx context.Context, conditionID string) (domain.Market, error) {
	if m, err := s.cache.GetByCondition(ctx, conditionID); err == nil {
		return m, nil
	}
	m, err := s.markets.GetByConditionID(ctx, conditionID)
	if err != nil {
		return domain.Market{}, err
	}
	s.backfillCache(ctx, m)
	return m, nil
}

// backfillCache writes a market into the cache; failures are logged, never
// propagated.
func (s *MarketService) backfillCache(ctx context.Context, m domain.Market) {
	if err := s.cache.Set(ctx, m); err != nil {
		s.logger.WarnContext(ctx, "cache set failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}
