package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/polyecho/echobot/internal/config"
	"github.com/polyecho/echobot/internal/domain"
	"github.com/polyecho/echobot/internal/platform/polymarket"
	"github.com/polyecho/echobot/internal/pricing"
	"github.com/polyecho/echobot/internal/service"
)

// feedChannels are the WebSocket channels the feed subscribes to.
var feedChannels = []string{"price_change", "book", "last_trade_price"}

// pollInterval drives the slower polling refresh that backfills market
// metadata and prices for markets whose WS coverage goes quiet.
const pollInterval = 60 * time.Second

// StreamSource abstracts the WebSocket client for testing.
type StreamSource interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, channels, assetIDs []string) error
	Unsubscribe(ctx context.Context, channels, assetIDs []string) error
	OnEvent(handler polymarket.EventHandler)
	Close() error
}

// MarketLister lists active markets from the upstream API for the polling
// refresh path.
type MarketLister interface {
	ListMarkets(ctx context.Context, limit, offset int) ([]domain.Market, error)
}

type priceUpdate struct {
	market domain.Market
	prices []float64
}

// MarketFeed owns the end-to-end price pipeline for one venue connection.
type MarketFeed struct {
	source    StreamSource
	lister    MarketLister
	markets   domain.MarketStore
	marketSvc *service.MarketService
	handlers  *UpdateHandlers
	extractor *pricing.Extractor
	buffer    *pricing.Buffer
	debouncer *pricing.Debouncer
	cfg       config.FeedConfig
	logger    *slog.Logger

	runCtx context.Context

	// subscribed tracks the token IDs currently on the wire so the polling
	// refresh can diff subscriptions.
	subscribed map[string]string // token ID -> market ID
}

// NewMarketFeed creates a MarketFeed.
func NewMarketFeed(
	source StreamSource,
	lister MarketLister,
	markets domain.MarketStore,
	marketSvc *service.MarketService,
	handlers *UpdateHandlers,
	cfg config.FeedConfig,
	logger *slog.Logger,
) *MarketFeed {
	return &MarketFeed{
		source:     source,
		lister:     lister,
		markets:    markets,
		marketSvc:  marketSvc,
		handlers:   handlers,
		extractor:  pricing.NewExtractor(logger),
		buffer:     pricing.NewBuffer(cfg.BufferTimeout.Duration, cfg.BufferCapacity),
		debouncer:  pricing.NewDebouncer(cfg.DebounceDelay.Duration, cfg.MaxUpdatesPerSecond),
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "market_feed")),
		subscribed: make(map[string]string),
	}
}

// Run connects, subscribes to all active markets and processes events until
// the context is cancelled. The partial-price buffer sweeper and the polling
// refresh run alongside.
func (f *MarketFeed) Run(ctx context.Context) error {
	f.runCtx = ctx
	f.source.OnEvent(f.handleEvent)

	if err := f.source.Connect(ctx); err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}
	defer f.source.Close()
	defer f.debouncer.Close()

	if err := f.syncSubscriptions(ctx); err != nil {
		return fmt.Errorf("feed: initial subscribe: %w", err)
	}

	go f.buffer.Run(ctx)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	f.logger.InfoContext(ctx, "market feed started",
		slog.Int("subscribed_tokens", len(f.subscribed)))

	for {
		select {
		case <-ctx.Done():
			f.logger.InfoContext(ctx, "market feed stopping")
			return nil
		case <-ticker.C:
			f.pollRefresh(ctx)
		}
	}
}

// handleEvent routes one decoded stream event through the pipeline. Parsing
// and validation are synchronous and cheap; persistence is deferred to the
// debouncer.
func (f *MarketFeed) handleEvent(ev domain.StreamEvent) {
	ctx := f.runCtx

	switch e := ev.(type) {
	case domain.PriceChangeEvent:
		f.handlePriceChange(ctx, e)

	case domain.BookEvent:
		market, err := f.marketSvc.ResolveByToken(ctx, e.AssetID)
		if err != nil {
			return
		}
		f.debouncer.ScheduleUpdate("book:"+market.ID, e, func(_ string, payload any) {
			f.handlers.HandleOrderbook(ctx, market, payload.(domain.BookEvent))
		})

	case domain.LastTradeEvent:
		market, err := f.marketSvc.ResolveByToken(ctx, e.AssetID)
		if err != nil {
			return
		}
		f.debouncer.ScheduleUpdate("trade:"+market.ID, e, func(_ string, payload any) {
			f.handlers.HandleTrade(ctx, market, payload.(domain.LastTradeEvent))
		})
	}
}

func (f *MarketFeed) handlePriceChange(ctx context.Context, ev domain.PriceChangeEvent) {
	market, ok := f.resolveEventMarket(ctx, ev)
	if !ok {
		f.logger.DebugContext(ctx, "dropping unresolvable price change",
			slog.String("identifier", ev.Market))
		return
	}

	prices := f.extractor.ExtractPrices(ev, &market)
	if prices == nil {
		// Partial vector: accumulate per-token fragments until complete.
		prices = f.bufferFragments(market, ev)
	}
	if prices == nil {
		return
	}

	if !pricing.ValidatePrices(prices, &market) {
		f.logger.WarnContext(ctx, "rejecting invalid price vector",
			slog.String("market_id", market.ID),
			slog.Any("prices", prices),
		)
		return
	}

	f.debouncer.ScheduleUpdate("market:"+market.ID, priceUpdate{market: market, prices: prices},
		func(_ string, payload any) {
			upd := payload.(priceUpdate)
			f.handlers.HandleMarketUpdate(ctx, upd.market, upd.prices, domain.MarketSourceWS)
		})
}

// resolveEventMarket resolves a price-change frame to a market, preferring
// the frame's market identifier and falling back to per-quote token lookups.
func (f *MarketFeed) resolveEventMarket(ctx context.Context, ev domain.PriceChangeEvent) (domain.Market, bool) {
	if ev.Market != "" {
		if id, err := f.marketSvc.ResolveMarketIdentifier(ctx, ev.Market); err == nil {
			if m, err := f.marketSvc.GetMarket(ctx, id); err == nil {
				return m, true
			}
		}
	}
	for _, q := range ev.Changes {
		if m, err := f.marketSvc.ResolveByToken(ctx, q.AssetID); err == nil {
			return m, true
		}
	}
	return domain.Market{}, false
}

// bufferFragments feeds single-outcome quotes into the partial-price buffer
// and returns the completed vector, if any.
func (f *MarketFeed) bufferFragments(market domain.Market, ev domain.PriceChangeEvent) []float64 {
	tokenToIndex := market.TokenToOutcomeIndex()
	for _, q := range ev.Changes {
		p, ok := pricing.QuotePrice(q)
		if !ok {
			continue
		}
		if complete := f.buffer.AddPrice(market.ID, q.AssetID, p, -1, len(market.Outcomes), tokenToIndex); complete != nil {
			return complete
		}
	}
	return nil
}

// pollRefresh upserts market metadata from the upstream list endpoint and
// applies polled prices. Poll-sourced prices lose to fresh WS data inside
// the handlers; this path mainly keeps quiet markets from going stale and
// flags resolved markets.
func (f *MarketFeed) pollRefresh(ctx context.Context) {
	if f.lister == nil {
		if err := f.syncSubscriptions(ctx); err != nil {
			f.logger.WarnContext(ctx, "subscription refresh failed",
				slog.String("error", err.Error()))
		}
		return
	}

	listed, err := f.lister.ListMarkets(ctx, f.cfg.SubscribeLimit, 0)
	if err != nil {
		f.logger.WarnContext(ctx, "poll refresh failed",
			slog.String("error", err.Error()))
		return
	}

	for _, m := range listed {
		if err := f.markets.Upsert(ctx, m); err != nil {
			f.logger.WarnContext(ctx, "poll upsert failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		if m.IsResolved {
			f.dropMarket(ctx, m)
			continue
		}

		if len(m.OutcomePrices) > 0 && pricing.ValidatePrices(m.OutcomePrices, &m) {
			current, err := f.marketSvc.GetMarket(ctx, m.ID)
			if err != nil {
				current = m
			}
			f.handlers.HandleMarketUpdate(ctx, current, m.OutcomePrices, domain.MarketSourcePoll)
		}
	}

	if err := f.syncSubscriptions(ctx); err != nil {
		f.logger.WarnContext(ctx, "subscription refresh failed",
			slog.String("error", err.Error()))
	}
}

// dropMarket unsubscribes a resolved market's tokens and clears any
// buffered fragments so stale partials never complete later.
func (f *MarketFeed) dropMarket(ctx context.Context, m domain.Market) {
	var tokens []string
	for tok, marketID := range f.subscribed {
		if marketID == m.ID {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		return
	}

	if err := f.source.Unsubscribe(ctx, feedChannels, tokens); err != nil {
		f.logger.WarnContext(ctx, "unsubscribe failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
	for _, tok := range tokens {
		delete(f.subscribed, tok)
	}
	f.buffer.RemoveMarket(m.ID)

	f.logger.InfoContext(ctx, "dropped resolved market from feed",
		slog.String("market_id", m.ID),
		slog.String("resolved_outcome", m.ResolvedOutcome),
	)
}

// syncSubscriptions subscribes tokens for active markets that are not yet
// on the wire, up to the configured limit.
func (f *MarketFeed) syncSubscriptions(ctx context.Context) error {
	active, err := f.markets.ListActive(ctx, f.cfg.SubscribeLimit)
	if err != nil {
		return fmt.Errorf("list active markets: %w", err)
	}

	var fresh []string
	for _, m := range active {
		for _, tok := range m.ClobTokenIDs {
			if tok == "" {
				continue
			}
			if _, ok := f.subscribed[tok]; !ok {
				fresh = append(fresh, tok)
				f.subscribed[tok] = m.ID
			}
		}
	}

	if len(fresh) == 0 {
		return nil
	}
	if err := f.source.Subscribe(ctx, feedChannels, fresh); err != nil {
		return fmt.Errorf("subscribe %d tokens: %w", len(fresh), err)
	}

	f.logger.InfoContext(ctx, "subscribed new tokens", slog.Int("count", len(fresh)))
	return nil
}
