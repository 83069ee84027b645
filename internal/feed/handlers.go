// Package feed runs the real-time market price reconciliation pipeline:
// WebSocket events are resolved, extracted, buffered, validated, debounced
// and finally applied to the market store, caches and open positions.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/polyecho/echobot/internal/domain"
	"github.com/polyecho/echobot/internal/service"
)

// wsPrecedenceWindow is how long a WebSocket-sourced write shields a market
// from being overwritten by polled data. WS state is near-real-time; polled
// snapshots may be seconds old.
const wsPrecedenceWindow = 10 * time.Second

// TickSink receives validated price vectors for historical storage. Writes
// are best effort; the live pipeline never blocks on history.
type TickSink interface {
	WriteTicks(ctx context.Context, marketID string, prices []float64, source domain.MarketSource, ts time.Time) error
}

// UpdateHandlers applies resolved feed updates to canonical market state.
// Each handler honors source precedence (ws overwrites poll, poll never
// overwrites fresh ws) and invalidates the affected cache entries. Missing
// markets are logged and skipped: price updates never create market rows,
// only the polling ingester and on-demand fetch do.
type UpdateHandlers struct {
	markets   domain.MarketStore
	marketSvc *service.MarketService
	positions *service.PositionService
	prices    domain.PriceCache
	ticks     TickSink // optional
	apiMode   bool
	logger    *slog.Logger
}

// NewUpdateHandlers creates UpdateHandlers. ticks may be nil. apiMode skips
// market store writes so an instance can serve caches without owning rows.
func NewUpdateHandlers(
	markets domain.MarketStore,
	marketSvc *service.MarketService,
	positions *service.PositionService,
	prices domain.PriceCache,
	ticks TickSink,
	apiMode bool,
	logger *slog.Logger,
) *UpdateHandlers {
	return &UpdateHandlers{
		markets:   markets,
		marketSvc: marketSvc,
		positions: positions,
		prices:    prices,
		ticks:     ticks,
		apiMode:   apiMode,
		logger:    logger.With(slog.String("component", "feed_handlers")),
	}
}

// sourceMayWrite reports whether a write from the given source is allowed to
// land on the market's current state. WS always writes; poll writes only
// when the current state is not fresh WS data.
func sourceMayWrite(m domain.Market, source domain.MarketSource) bool {
	if source == domain.MarketSourceWS {
		return true
	}
	if m.Source == domain.MarketSourceWS && time.Since(m.UpdatedAt) < wsPrecedenceWindow {
		return false
	}
	return true
}

// HandleMarketUpdate persists a validated price vector, refreshes the price
// cache, updates open positions and evaluates exit rules.
func (h *UpdateHandlers) HandleMarketUpdate(ctx context.Context, market domain.Market, prices []float64, source domain.MarketSource) {
	if market.IsResolved {
		h.logger.DebugContext(ctx, "dropping update for resolved market",
			slog.String("market_id", market.ID))
		return
	}
	if !sourceMayWrite(market, source) {
		h.logger.DebugContext(ctx, "poll update shadowed by fresh ws data",
			slog.String("market_id", market.ID))
		return
	}

	if !h.apiMode {
		if err := h.markets.UpdatePrices(ctx, market.ID, prices, source); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				h.logger.WarnContext(ctx, "market not found for price update",
					slog.String("market_id", market.ID))
				return
			}
			h.logger.ErrorContext(ctx, "persist prices failed",
				slog.String("market_id", market.ID),
				slog.String("error", err.Error()),
			)
			return
		}
	}

	if err := h.prices.SetVector(ctx, market.ID, domain.PriceVector{
		Prices:    prices,
		Source:    source,
		Timestamp: time.Now(),
	}); err != nil {
		h.logger.WarnContext(ctx, "price cache write failed",
			slog.String("market_id", market.ID),
			slog.String("error", err.Error()),
		)
	}
	h.marketSvc.InvalidateMarket(ctx, market.ID)

	if h.ticks != nil {
		if err := h.ticks.WriteTicks(ctx, market.ID, prices, source, time.Now()); err != nil {
			h.logger.WarnContext(ctx, "tick history write failed",
				slog.String("market_id", market.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	considered, err := h.positions.UpdatePositionsForMarket(ctx, market, prices)
	if err != nil {
		h.logger.ErrorContext(ctx, "position update failed",
			slog.String("market_id", market.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if len(considered) > 0 {
		h.positions.CheckExitRules(ctx, market, considered)
	}
}

// HandleOrderbook persists the best-bid/best-ask midpoint from a book
// snapshot.
func (h *UpdateHandlers) HandleOrderbook(ctx context.Context, market domain.Market, ev domain.BookEvent) {
	if ev.MidPrice <= 0 || !sourceMayWrite(market, domain.MarketSourceWS) {
		return
	}

	if !h.apiMode {
		if err := h.markets.UpdateMidPrice(ctx, market.ID, ev.MidPrice, domain.MarketSourceWS); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				h.logger.WarnContext(ctx, "market not found for book update",
					slog.String("market_id", market.ID))
				return
			}
			h.logger.ErrorContext(ctx, "persist mid price failed",
				slog.String("market_id", market.ID),
				slog.String("error", err.Error()),
			)
			return
		}
	}
	h.marketSvc.InvalidateMarket(ctx, market.ID)
}

// HandleTrade persists the latest trade print.
func (h *UpdateHandlers) HandleTrade(ctx context.Context, market domain.Market, ev domain.LastTradeEvent) {
	if ev.Price <= 0 || !sourceMayWrite(market, domain.MarketSourceWS) {
		return
	}

	if !h.apiMode {
		if err := h.markets.UpdateLastTradePrice(ctx, market.ID, ev.Price, domain.MarketSourceWS); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				h.logger.WarnContext(ctx, "market not found for trade update",
					slog.String("market_id", market.ID))
				return
			}
			h.logger.ErrorContext(ctx, "persist last trade price failed",
				slog.String("market_id", market.ID),
				slog.String("error", err.Error()),
			)
			return
		}
	}
	h.marketSvc.InvalidateMarket(ctx, market.ID)
}
