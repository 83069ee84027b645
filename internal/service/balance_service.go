package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/polyecho/echobot/internal/cache/memory"
	"github.com/polyecho/echobot/internal/domain"
)

// BalanceService reads wallet balances from the venue's data API with a
// freshness-bounded cache. Copy sizing tolerates slightly stale balances;
// hammering the data API on every leader trade does not.
type BalanceService struct {
	provider domain.BalanceProvider
	cache    *memory.TTLMap[float64]
	logger   *slog.Logger
}

// NewBalanceService creates a BalanceService. freshness bounds how long a
// cached balance is trusted; zero falls back to two hours.
func NewBalanceService(provider domain.BalanceProvider, freshness time.Duration, logger *slog.Logger) *BalanceService {
	if freshness <= 0 {
		freshness = 2 * time.Hour
	}
	return &BalanceService{
		provider: provider,
		cache:    memory.NewTTLMap[float64](freshness, 10000),
		logger:   logger.With(slog.String("component", "balance_service")),
	}
}

// LeaderBalance returns a leader wallet's total portfolio USD value, cached
// within the freshness window. A zero balance is returned with a nil error
// when the wallet is empty; lookup failures propagate so sizing can degrade.
func (s *BalanceService) LeaderBalance(ctx context.Context, address string) (float64, error) {
	key := "wallet:" + address
	if v, ok := s.cache.Get(key); ok {
		return v, nil
	}

	v, err := s.provider.WalletBalance(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("balance_service: leader %s: %w", address, err)
	}

	s.cache.Set(key, v)
	return v, nil
}

// FollowerBalance returns a follower's portfolio USD value, cached within
// the freshness window.
func (s *BalanceService) FollowerBalance(ctx context.Context, userID string) (float64, error) {
	key := "user:" + userID
	if v, ok := s.cache.Get(key); ok {
		return v, nil
	}

	v, err := s.provider.UserBalance(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("balance_service: follower %s: %w", userID, err)
	}

	s.cache.Set(key, v)
	return v, nil
}

// LeaderPosition returns the leader wallet's current token holding for one
// clob token. Not cached: sell sizing reconstructs the leader's pre-sell
// position from it, and staleness there directly skews the sold fraction.
func (s *BalanceService) LeaderPosition(ctx context.Context, address, tokenID string) (float64, error) {
	v, err := s.provider.WalletPosition(ctx, address, tokenID)
	if err != nil {
		return 0, fmt.Errorf("balance_service: leader position %s/%s: %w", address, tokenID, err)
	}
	return v, nil
}

// Invalidate drops the cached balances for a user, called after that user's
// own trade executes and changes their balance materially.
func (s *BalanceService) Invalidate(userID string) {
	s.cache.Delete("user:" + userID)
	s.cache.Delete("wallet:" + userID)
}

// RunSweeper expires stale balance entries until the context is cancelled.
func (s *BalanceService) RunSweeper(ctx context.Context, interval time.Duration) {
	s.cache.Run(ctx, interval)
}
