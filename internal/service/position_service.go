package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/polyecho/echobot/internal/domain"
	"github.com/polyecho/echobot/internal/pricing"
)

// priceMoveThreshold is the relative price move below which position rows
// are not rewritten. Negligible ticks would otherwise amplify every feed
// flush into a database write per position.
const priceMoveThreshold = 0.001

// PositionService maintains position prices and PnL and runs the push-path
// take-profit/stop-loss trigger.
type PositionService struct {
	positions domain.PositionStore
	executor  domain.TradeExecutor
	notify    domain.NotificationQueue
	logger    *slog.Logger
}

// NewPositionService creates a PositionService.
func NewPositionService(
	positions domain.PositionStore,
	executor domain.TradeExecutor,
	notify domain.NotificationQueue,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		positions: positions,
		executor:  executor,
		notify:    notify,
		logger:    logger.With(slog.String("component", "position_service")),
	}
}

// UpdatePositionsForMarket refreshes current price and PnL for every active
// position on a market given a validated price vector. Positions whose
// outcome cannot be resolved are skipped with a log line. Rows are only
// rewritten when the price moved more than the relative threshold, or on
// cold start; the returned slice carries every considered position (updated
// in memory) so the exit-rule trigger can evaluate all of them.
func (s *PositionService) UpdatePositionsForMarket(ctx context.Context, market domain.Market, prices []float64) ([]domain.Position, error) {
	active, err := s.positions.ListActiveByMarket(ctx, market.ID)
	if err != nil {
		return nil, fmt.Errorf("position_service: list active for market %s: %w", market.ID, err)
	}
	if len(active) == 0 {
		return nil, nil
	}

	var dirty []domain.Position
	for i := range active {
		p := &active[i]

		idx := pricing.ResolveOutcomeIndex(p.PositionID, p.Outcome, market.Outcomes, market.ClobTokenIDs)
		if idx < 0 || idx >= len(prices) {
			s.logger.WarnContext(ctx, "position outcome unresolvable, skipping",
				slog.String("position_id", p.ID),
				slog.String("outcome", p.Outcome),
				slog.String("market_id", market.ID),
			)
			continue
		}

		newPrice := prices[idx]
		if p.CurrentPrice > 0 {
			if math.Abs(newPrice-p.CurrentPrice)/p.CurrentPrice <= priceMoveThreshold {
				continue
			}
		}

		p.CurrentPrice = newPrice
		p.PnLAmount = (newPrice - p.EntryPrice) * p.Amount
		if p.EntryPrice > 0 {
			p.PnLPercentage = (newPrice - p.EntryPrice) / p.EntryPrice * 100
		}
		dirty = append(dirty, *p)
	}

	if len(dirty) > 0 {
		if err := s.positions.UpdatePriceBatch(ctx, dirty); err != nil {
			return nil, fmt.Errorf("position_service: update price batch: %w", err)
		}
	}

	return active, nil
}

// CheckExitRules evaluates take-profit and stop-loss triggers against the
// just-updated current prices and executes all triggered exits as one batch.
// TP triggers at current >= take_profit; SL at current <= stop_loss. A
// failed exit order is logged and counted, never propagated, so one stuck
// position cannot stall the feed.
func (s *PositionService) CheckExitRules(ctx context.Context, market domain.Market, positions []domain.Position) int {
	var triggered []domain.Position
	var reasons []string

	for _, p := range positions {
		if !p.HasExitRules() || p.CurrentPrice <= 0 {
			continue
		}
		switch {
		case p.TakeProfitPrice != nil && p.CurrentPrice >= *p.TakeProfitPrice:
			triggered = append(triggered, p)
			reasons = append(reasons, "take_profit")
		case p.StopLossPrice != nil && p.CurrentPrice <= *p.StopLossPrice:
			triggered = append(triggered, p)
			reasons = append(reasons, "stop_loss")
		}
	}

	executed := 0
	for i, p := range triggered {
		order := domain.MarketOrder{
			UserID:    p.UserID,
			MarketID:  p.MarketID,
			Outcome:   p.Outcome,
			TokenID:   p.PositionID,
			Side:      domain.OrderSideSell,
			Tokens:    p.Amount,
			AmountUSD: p.Amount * p.CurrentPrice,
		}

		result, err := s.executor.ExecuteMarketOrder(ctx, order)
		if err != nil || !result.Success {
			errMsg := result.Err
			if err != nil {
				errMsg = err.Error()
			}
			s.logger.ErrorContext(ctx, "exit order failed",
				slog.String("position_id", p.ID),
				slog.String("trigger", reasons[i]),
				slog.String("error", errMsg),
			)
			continue
		}

		if err := s.positions.Close(ctx, p.ID); err != nil {
			s.logger.ErrorContext(ctx, "close position after exit failed",
				slog.String("position_id", p.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		executed++

		s.logger.InfoContext(ctx, "exit rule executed",
			slog.String("position_id", p.ID),
			slog.String("market_id", p.MarketID),
			slog.String("trigger", reasons[i]),
			slog.Float64("price", p.CurrentPrice),
			slog.Float64("usd_received", result.USDReceived),
		)
		s.notify.QueueNotification(ctx, p.UserID, "Exit triggered",
			fmt.Sprintf("%s exit on %s at %.3f", reasons[i], market.Title, p.CurrentPrice))
	}

	return executed
}

// SetExitRules stores take-profit and stop-loss trigger prices for a
// position. When both are set, the stop loss must be strictly below the
// take profit; misordered rules would misfire on every tick, so they are
// rejected here at set time.
func (s *PositionService) SetExitRules(ctx context.Context, id string, takeProfit, stopLoss *float64) error {
	if takeProfit != nil && stopLoss != nil && *stopLoss >= *takeProfit {
		return fmt.Errorf("position_service: tp=%.3f sl=%.3f: %w", *takeProfit, *stopLoss, domain.ErrInvalidExitRules)
	}
	for _, v := range []*float64{takeProfit, stopLoss} {
		if v != nil && (*v <= 0 || *v >= 1) {
			return fmt.Errorf("position_service: exit price %.3f out of (0,1): %w", *v, domain.ErrInvalidExitRules)
		}
	}

	if err := s.positions.SetExitRules(ctx, id, takeProfit, stopLoss); err != nil {
		return fmt.Errorf("position_service: set exit rules %s: %w", id, err)
	}
	return nil
}

// EffectivePositionSize aggregates a user's active token holding across the
// multiple rows that successive buys create for the same clob token.
func (s *PositionService) EffectivePositionSize(ctx context.Context, userID, tokenID string) (float64, []domain.Position, error) {
	rows, err := s.positions.ListActiveByUserToken(ctx, userID, tokenID)
	if err != nil {
		return 0, nil, fmt.Errorf("position_service: list user %s token %s: %w", userID, tokenID, err)
	}

	var total float64
	for _, p := range rows {
		total += p.Amount
	}
	return total, rows, nil
}
