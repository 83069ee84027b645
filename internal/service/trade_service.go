package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/polyecho/echobot/internal/domain"
)

// CopyExecution bundles everything the trade service needs to execute and
// journal one follower's copy of a leader trade.
type CopyExecution struct {
	Allocation    domain.CopyTradingAllocation
	Order         domain.MarketOrder
	TxID          string
	LeaderAddress string
	// FollowerRows are the follower's active position rows for the token,
	// oldest first, used to apply sell reductions. Empty for buys.
	FollowerRows []domain.Position
}

// TradeService executes copy orders against the venue and performs the
// bookkeeping around them: position rows, allocation counters, the
// copy-trade journal and best-effort notifications.
type TradeService struct {
	executor    domain.TradeExecutor
	positions   domain.PositionStore
	allocations domain.AllocationStore
	journal     domain.CopyTradeStore
	notify      domain.NotificationQueue
	logger      *slog.Logger
}

// NewTradeService creates a TradeService.
func NewTradeService(
	executor domain.TradeExecutor,
	positions domain.PositionStore,
	allocations domain.AllocationStore,
	journal domain.CopyTradeStore,
	notify domain.NotificationQueue,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		executor:    executor,
		positions:   positions,
		allocations: allocations,
		journal:     journal,
		notify:      notify,
		logger:      logger.With(slog.String("component", "trade_service")),
	}
}

// ExecuteCopy submits the order and records the outcome. Venue rejections
// are journaled as failed and returned with a nil error; only transport
// failures propagate. On success, position rows and allocation counters are
// updated and a fire-and-forget notification is queued.
func (s *TradeService) ExecuteCopy(ctx context.Context, exec CopyExecution) (domain.OrderResult, error) {
	order := exec.Order

	result, err := s.executor.ExecuteMarketOrder(ctx, order)
	if err != nil {
		s.journalEntry(ctx, exec, domain.CopyTradeFailed, err.Error(), domain.OrderResult{})
		return domain.OrderResult{}, fmt.Errorf("trade_service: execute %s %s: %w", order.Side, order.TokenID, err)
	}
	if !result.Success {
		s.journalEntry(ctx, exec, domain.CopyTradeFailed, result.Err, result)
		s.logger.WarnContext(ctx, "copy order rejected",
			slog.String("user_id", order.UserID),
			slog.String("token_id", order.TokenID),
			slog.String("side", string(order.Side)),
			slog.String("error", result.Err),
		)
		return result, nil
	}

	switch order.Side {
	case domain.OrderSideBuy:
		if err := s.openPosition(ctx, order, result); err != nil {
			s.logger.ErrorContext(ctx, "record bought position failed",
				slog.String("user_id", order.UserID),
				slog.String("error", err.Error()),
			)
		}
	case domain.OrderSideSell:
		s.applySellReduction(ctx, exec.FollowerRows, result.Tokens)
	}

	invested := 0.0
	if order.Side == domain.OrderSideBuy {
		invested = order.AmountUSD
	}
	if err := s.allocations.RecordCopy(ctx, exec.Allocation.ID, invested); err != nil {
		s.logger.ErrorContext(ctx, "record copy counters failed",
			slog.String("allocation_id", exec.Allocation.ID),
			slog.String("error", err.Error()),
		)
	}

	s.journalEntry(ctx, exec, domain.CopyTradeExecuted, "", result)

	s.logger.InfoContext(ctx, "copy order executed",
		slog.String("user_id", order.UserID),
		slog.String("market_id", order.MarketID),
		slog.String("side", string(order.Side)),
		slog.Float64("amount_usd", order.AmountUSD),
		slog.Float64("tokens", result.Tokens),
		slog.String("order_id", result.OrderID),
	)
	s.notify.QueueNotification(ctx, order.UserID, "Copy trade executed",
		fmt.Sprintf("%s %s for $%.2f following %s", order.Side, order.Outcome, order.AmountUSD, exec.LeaderAddress))

	return result, nil
}

// RecordSkip journals a business-rule skip (below floor, no position, market
// unresolvable). Skips are normal outcomes, not failures.
func (s *TradeService) RecordSkip(ctx context.Context, exec CopyExecution, reason string) {
	s.journalEntry(ctx, exec, domain.CopyTradeSkipped, reason, domain.OrderResult{})
}

// openPosition records a new active position row for an executed buy.
func (s *TradeService) openPosition(ctx context.Context, order domain.MarketOrder, result domain.OrderResult) error {
	entryPrice := result.Price
	if entryPrice <= 0 && result.Tokens > 0 {
		entryPrice = order.AmountUSD / result.Tokens
	}

	pos := domain.Position{
		ID:           uuid.NewString(),
		UserID:       order.UserID,
		MarketID:     order.MarketID,
		Outcome:      order.Outcome,
		PositionID:   order.TokenID,
		Amount:       result.Tokens,
		EntryPrice:   entryPrice,
		CurrentPrice: entryPrice,
		Status:       domain.PositionStatusActive,
		OpenedAt:     time.Now(),
	}
	if err := s.positions.Create(ctx, pos); err != nil {
		return fmt.Errorf("create position: %w", err)
	}
	return nil
}

// applySellReduction distributes sold tokens across the follower's position
// rows oldest-first. Rows drained to zero are closed by the store.
func (s *TradeService) applySellReduction(ctx context.Context, rows []domain.Position, tokensSold float64) {
	remaining := tokensSold
	for _, row := range rows {
		if remaining <= 0 {
			break
		}
		take := row.Amount
		if take > remaining {
			take = remaining
		}
		if err := s.positions.ReduceAmount(ctx, row.ID, take); err != nil {
			s.logger.ErrorContext(ctx, "reduce position failed",
				slog.String("position_id", row.ID),
				slog.Float64("tokens", take),
				slog.String("error", err.Error()),
			)
			continue
		}
		remaining -= take
	}
}

func (s *TradeService) journalEntry(ctx context.Context, exec CopyExecution, status domain.CopyTradeStatus, reason string, result domain.OrderResult) {
	ct := domain.CopyTrade{
		ID:            uuid.NewString(),
		TxID:          exec.TxID,
		LeaderAddress: exec.LeaderAddress,
		UserID:        exec.Order.UserID,
		MarketID:      exec.Order.MarketID,
		TokenID:       exec.Order.TokenID,
		Outcome:       exec.Order.Outcome,
		Side:          exec.Order.Side,
		AmountUSD:     exec.Order.AmountUSD,
		Tokens:        exec.Order.Tokens,
		Price:         result.Price,
		Status:        status,
		Reason:        reason,
		OrderID:       result.OrderID,
		CreatedAt:     time.Now(),
	}
	if err := s.journal.Insert(ctx, ct); err != nil {
		// Journal writes are best effort; the trade itself already settled.
		s.logger.WarnContext(ctx, "journal insert failed",
			slog.String("tx_id", exec.TxID),
			slog.String("error", err.Error()),
		)
	}
}
