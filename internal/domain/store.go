package domain

import (
	"context"
	"time"
)

// MarketStore persists canonical market state. Markets are created by the
// external polling ingester or the on-demand fetch path; price handlers only
// update existing rows.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	GetByConditionID(ctx context.Context, conditionID string) (Market, error)
	GetByTokenID(ctx context.Context, tokenID string) (Market, error)
	// UpdatePrices writes a validated price vector and the source that
	// produced it. It never creates a market.
	UpdatePrices(ctx context.Context, id string, prices []float64, source MarketSource) error
	UpdateMidPrice(ctx context.Context, id string, mid float64, source MarketSource) error
	UpdateLastTradePrice(ctx context.Context, id string, price float64, source MarketSource) error
	MarkResolved(ctx context.Context, id string, resolvedOutcome string) error
	ListActive(ctx context.Context, limit int) ([]Market, error)
}

// PositionStore persists positions.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	// ListActiveByMarket returns all active positions on a market.
	ListActiveByMarket(ctx context.Context, marketID string) ([]Position, error)
	// ListActiveByUserToken returns the active rows for one (user, token)
	// group; callers aggregate Amount across rows for sell sizing.
	ListActiveByUserToken(ctx context.Context, userID, tokenID string) ([]Position, error)
	// UpdatePriceBatch writes current price and PnL for many positions at once.
	UpdatePriceBatch(ctx context.Context, positions []Position) error
	SetExitRules(ctx context.Context, id string, takeProfit, stopLoss *float64) error
	// ReduceAmount subtracts sold tokens from a position, closing it when the
	// remainder reaches zero.
	ReduceAmount(ctx context.Context, id string, tokens float64) error
	Close(ctx context.Context, id string) error
}

// AllocationStore persists copy-trading allocations.
type AllocationStore interface {
	Create(ctx context.Context, alloc CopyTradingAllocation) error
	GetByID(ctx context.Context, id string) (CopyTradingAllocation, error)
	// ListActiveByLeader returns every active allocation following the given
	// watched address.
	ListActiveByLeader(ctx context.Context, leaderAddressID string) ([]CopyTradingAllocation, error)
	// RecordCopy increments the copy counters after a successful execution.
	RecordCopy(ctx context.Context, id string, investedUSD float64) error
	UpdateBudget(ctx context.Context, id string, budget float64) error
	SetActive(ctx context.Context, id string, active bool) error
}

// WatchedAddressStore persists monitored on-chain addresses.
type WatchedAddressStore interface {
	Create(ctx context.Context, addr WatchedAddress) error
	// GetActiveByAddress returns the active watched address matching the
	// checksummed address, or ErrNotFound.
	GetActiveByAddress(ctx context.Context, address string) (WatchedAddress, error)
	ListActive(ctx context.Context, addrType AddressType) ([]WatchedAddress, error)
}

// CopyTradeStore persists the copy-trade journal.
type CopyTradeStore interface {
	Insert(ctx context.Context, ct CopyTrade) error
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]CopyTrade, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
