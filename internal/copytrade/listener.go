// Package copytrade mirrors watched leaders' trades onto follower accounts.
// Trade events arrive over the pub/sub bus at least once; the listener
// deduplicates, verifies the leader, fans out one task per follower and
// sizes, executes and journals each copy independently.
package copytrade

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/polyecho/echobot/internal/cache/memory"
	"github.com/polyecho/echobot/internal/config"
	"github.com/polyecho/echobot/internal/domain"
	"github.com/polyecho/echobot/internal/pricing"
	"github.com/polyecho/echobot/internal/service"
)

const defaultDedupTTL = 5 * time.Minute

// marketResolver resolves trade events to markets, fetching unknown markets
// on demand.
type marketResolver interface {
	ResolveByToken(ctx context.Context, tokenID string) (domain.Market, error)
	GetOrFetchMarket(ctx context.Context, id string) (domain.Market, error)
}

// balanceReader reads leader and follower balances for sizing.
type balanceReader interface {
	LeaderBalance(ctx context.Context, address string) (float64, error)
	FollowerBalance(ctx context.Context, userID string) (float64, error)
	LeaderPosition(ctx context.Context, address, tokenID string) (float64, error)
}

// positionReader aggregates a follower's holding for sell sizing.
type positionReader interface {
	EffectivePositionSize(ctx context.Context, userID, tokenID string) (float64, []domain.Position, error)
}

// copyExecutor executes and journals copy attempts.
type copyExecutor interface {
	ExecuteCopy(ctx context.Context, exec service.CopyExecution) (domain.OrderResult, error)
	RecordSkip(ctx context.Context, exec service.CopyExecution, reason string)
}

// Listener consumes leader trade events and drives the copy pipeline.
type Listener struct {
	bus         domain.SignalBus
	watched     domain.WatchedAddressStore
	allocations domain.AllocationStore
	markets     marketResolver
	balances    balanceReader
	positions   positionReader
	trades      copyExecutor
	sizer       Sizer
	dedup       *memory.TTLMap[struct{}]
	metrics     *Metrics
	cfg         config.CopyTradeConfig
	logger      *slog.Logger
}

// NewListener creates a Listener.
func NewListener(
	bus domain.SignalBus,
	watched domain.WatchedAddressStore,
	allocations domain.AllocationStore,
	markets marketResolver,
	balances balanceReader,
	positions positionReader,
	trades copyExecutor,
	cfg config.CopyTradeConfig,
	logger *slog.Logger,
) *Listener {
	dedupTTL := cfg.DedupTTL.Duration
	if dedupTTL <= 0 {
		dedupTTL = defaultDedupTTL
	}
	return &Listener{
		bus:         bus,
		watched:     watched,
		allocations: allocations,
		markets:     markets,
		balances:    balances,
		positions:   positions,
		trades:      trades,
		sizer:       NewSizer(cfg.MinBuyUSD, cfg.MinSellUSD),
		dedup:       memory.NewTTLMap[struct{}](dedupTTL, 100000),
		metrics:     &Metrics{},
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "copy_listener")),
	}
}

// Metrics returns the listener's counters.
func (l *Listener) Metrics() MetricsSnapshot { return l.metrics.Snapshot() }

// Run subscribes to the leader trade channel and processes events until the
// context is cancelled. Individual event failures are logged and never stop
// the loop.
func (l *Listener) Run(ctx context.Context) error {
	channel := l.cfg.Channel
	if channel == "" {
		channel = "copy_trade:*"
	}

	msgs, err := l.bus.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("copytrade: subscribe %s: %w", channel, err)
	}

	l.logger.InfoContext(ctx, "copy trading listener started",
		slog.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-msgs:
			if !ok {
				return nil
			}
			l.handleMessage(ctx, payload)
		}
	}
}

// handleMessage runs one trade event through dedup, leader verification and
// the per-follower fan-out.
func (l *Listener) handleMessage(ctx context.Context, payload []byte) {
	var ev domain.TradeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		l.logger.WarnContext(ctx, "dropping malformed trade event",
			slog.String("error", err.Error()))
		return
	}
	if ev.TxID == "" {
		l.logger.WarnContext(ctx, "dropping trade event without tx_id")
		return
	}

	l.metrics.tradesProcessed.Add(1)

	// Pub/sub delivery is at-least-once; a replayed tx_id inside the TTL
	// window must never produce a second copy.
	if !l.dedup.SetIfAbsent(ev.TxID, struct{}{}) {
		l.metrics.dedupDrops.Add(1)
		l.logger.DebugContext(ctx, "duplicate trade event dropped",
			slog.String("tx_id", ev.TxID))
		return
	}

	if !common.IsHexAddress(ev.UserAddress) {
		l.logger.WarnContext(ctx, "dropping trade event with invalid address",
			slog.String("tx_id", ev.TxID),
			slog.String("address", ev.UserAddress))
		return
	}
	address := common.HexToAddress(ev.UserAddress).Hex()

	leader, err := l.watched.GetActiveByAddress(ctx, address)
	if err != nil {
		// Not a watched address; most venue-wide trades end up here.
		return
	}
	if leader.Type != domain.AddressTypeCopyLeader {
		// Smart traders are alert-only, never copied.
		return
	}

	allocs, err := l.allocations.ListActiveByLeader(ctx, leader.ID)
	if err != nil {
		l.logger.ErrorContext(ctx, "list allocations failed",
			slog.String("leader", address),
			slog.String("error", err.Error()))
		return
	}
	if len(allocs) == 0 {
		return
	}

	l.logger.InfoContext(ctx, "copying leader trade",
		slog.String("tx_id", ev.TxID),
		slog.String("leader", address),
		slog.String("side", string(ev.TxType)),
		slog.Int("followers", len(allocs)),
	)

	// One task per follower. Errors are contained per task so one bad
	// follower never cancels the siblings.
	var g errgroup.Group
	for _, alloc := range allocs {
		alloc := alloc
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					l.metrics.copiesFailed.Add(1)
					l.logger.ErrorContext(ctx, "copy task panicked",
						slog.String("tx_id", ev.TxID),
						slog.String("user_id", alloc.UserID),
						slog.Any("panic", r),
					)
				}
			}()
			l.copyForFollower(ctx, address, alloc, ev)
			return nil
		})
	}
	g.Wait()
}

// copyForFollower resolves, sizes and executes one follower's copy of the
// leader trade. All failure paths journal their outcome.
func (l *Listener) copyForFollower(ctx context.Context, leaderAddr string, alloc domain.CopyTradingAllocation, ev domain.TradeEvent) {
	market, outcomeIdx, ok := l.resolveMarketAndToken(ctx, ev)
	exec := service.CopyExecution{
		Allocation:    alloc,
		TxID:          ev.TxID,
		LeaderAddress: leaderAddr,
		Order: domain.MarketOrder{
			UserID:   alloc.UserID,
			MarketID: market.ID,
		},
	}
	if !ok {
		l.metrics.copiesSkipped.Add(1)
		l.trades.RecordSkip(ctx, exec, "market unresolved")
		return
	}

	tokenID := ""
	if outcomeIdx < len(market.ClobTokenIDs) {
		tokenID = market.ClobTokenIDs[outcomeIdx]
	}
	exec.Order.Outcome = market.Outcomes[outcomeIdx]
	exec.Order.TokenID = tokenID

	switch ev.TxType {
	case domain.TradeSideBuy:
		l.copyBuy(ctx, exec, ev)
	case domain.TradeSideSell:
		l.copySell(ctx, exec, ev, leaderAddr, market, outcomeIdx)
	default:
		l.metrics.copiesSkipped.Add(1)
		l.trades.RecordSkip(ctx, exec, "unknown trade side")
	}
}

func (l *Listener) copyBuy(ctx context.Context, exec service.CopyExecution, ev domain.TradeEvent) {
	followerBalance, err := l.balances.FollowerBalance(ctx, exec.Allocation.UserID)
	if err != nil {
		l.metrics.copiesFailed.Add(1)
		l.logger.ErrorContext(ctx, "follower balance lookup failed",
			slog.String("user_id", exec.Allocation.UserID),
			slog.String("error", err.Error()))
		return
	}

	leaderBalance, lbErr := l.balances.LeaderBalance(ctx, exec.LeaderAddress)
	if lbErr != nil {
		l.logger.WarnContext(ctx, "leader balance unavailable, degrading proportional sizing",
			slog.String("leader", exec.LeaderAddress),
			slog.String("error", lbErr.Error()))
	}

	usd, reason := l.sizer.BuySize(ev, exec.Allocation, leaderBalance, lbErr == nil, followerBalance)
	if reason != "" {
		l.metrics.copiesSkipped.Add(1)
		l.trades.RecordSkip(ctx, exec, reason)
		return
	}

	exec.Order.Side = domain.OrderSideBuy
	exec.Order.AmountUSD = usd
	l.execute(ctx, exec)
}

func (l *Listener) copySell(ctx context.Context, exec service.CopyExecution, ev domain.TradeEvent, leaderAddr string, market domain.Market, outcomeIdx int) {
	followerTokens, rows, err := l.positions.EffectivePositionSize(ctx, exec.Allocation.UserID, exec.Order.TokenID)
	if err != nil {
		l.metrics.copiesFailed.Add(1)
		l.logger.ErrorContext(ctx, "follower position lookup failed",
			slog.String("user_id", exec.Allocation.UserID),
			slog.String("error", err.Error()))
		return
	}

	leaderCurrent, err := l.balances.LeaderPosition(ctx, leaderAddr, exec.Order.TokenID)
	if err != nil {
		// Treat an unknown holding as fully sold; the fraction degrades to 1
		// and the follower exits alongside.
		l.logger.WarnContext(ctx, "leader position unavailable, assuming full exit",
			slog.String("leader", leaderAddr),
			slog.String("error", err.Error()))
		leaderCurrent = 0
	}

	currentPrice := ev.Price
	if outcomeIdx < len(market.OutcomePrices) && market.OutcomePrices[outcomeIdx] > 0 {
		currentPrice = market.OutcomePrices[outcomeIdx]
	}

	tokens, usdEstimate, reason := l.sizer.SellSize(ev, leaderCurrent, followerTokens, currentPrice)
	if reason != "" {
		l.metrics.copiesSkipped.Add(1)
		l.trades.RecordSkip(ctx, exec, reason)
		return
	}

	exec.Order.Side = domain.OrderSideSell
	exec.Order.Tokens = tokens
	exec.Order.AmountUSD = usdEstimate
	exec.FollowerRows = rows
	l.execute(ctx, exec)
}

func (l *Listener) execute(ctx context.Context, exec service.CopyExecution) {
	result, err := l.trades.ExecuteCopy(ctx, exec)
	if err != nil {
		l.metrics.copiesFailed.Add(1)
		l.logger.ErrorContext(ctx, "copy execution failed",
			slog.String("tx_id", exec.TxID),
			slog.String("user_id", exec.Order.UserID),
			slog.String("error", err.Error()))
		return
	}
	if !result.Success {
		l.metrics.copiesFailed.Add(1)
		return
	}
	l.metrics.copiesExecuted.Add(1)
}

// resolveMarketAndToken resolves the traded market and outcome index. The
// clob token ID on the event is venue ground truth and wins; market id plus
// outcome label is the fallback, with an on-demand fetch when the market is
// unknown locally.
func (l *Listener) resolveMarketAndToken(ctx context.Context, ev domain.TradeEvent) (domain.Market, int, bool) {
	if ev.PositionID != "" {
		if m, err := l.markets.ResolveByToken(ctx, ev.PositionID); err == nil {
			idx := pricing.ResolveOutcomeIndex(ev.PositionID, ev.Outcome, m.Outcomes, m.ClobTokenIDs)
			if idx >= 0 && idx < len(m.Outcomes) {
				return m, idx, true
			}
		}
	}

	if ev.MarketID == "" {
		return domain.Market{}, 0, false
	}
	m, err := l.markets.GetOrFetchMarket(ctx, ev.MarketID)
	if err != nil {
		return domain.Market{}, 0, false
	}

	if ev.OutcomeIndex != nil {
		idx := *ev.OutcomeIndex
		if idx >= 0 && idx < len(m.Outcomes) {
			return m, idx, true
		}
	}
	if idx := pricing.NormalizeOutcome(ev.Outcome, m.Outcomes); idx >= 0 {
		return m, idx, true
	}
	return domain.Market{}, 0, false
}
