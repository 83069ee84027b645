package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polyecho/echobot/internal/copytrade"
	"github.com/polyecho/echobot/internal/feed"
)

// cacheSweepInterval paces the in-memory TTL cache sweepers.
const cacheSweepInterval = time.Minute

// FeedMode runs the price reconciliation pipeline: WebSocket feed, update
// handlers, position updates and exit rules.
func (a *App) FeedMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	marketFeed := a.buildMarketFeed(deps)
	g.Go(func() error { return marketFeed.Run(ctx) })
	g.Go(func() error {
		deps.MarketService.RunSweeper(ctx, cacheSweepInterval)
		return nil
	})
	g.Go(func() error {
		deps.Queue.Pump(ctx, deps.Notifier)
		return nil
	})

	return g.Wait()
}

// CopyMode runs the copy trading listener alone.
func (a *App) CopyMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	listener := a.buildListener(deps)
	g.Go(func() error { return listener.Run(ctx) })
	g.Go(func() error {
		deps.BalanceService.RunSweeper(ctx, cacheSweepInterval)
		return nil
	})
	g.Go(func() error {
		deps.MarketService.RunSweeper(ctx, cacheSweepInterval)
		return nil
	})
	g.Go(func() error {
		deps.Queue.Pump(ctx, deps.Notifier)
		return nil
	})

	return g.Wait()
}

// FullMode runs the feed, the copy listener and the background journal
// archiver together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	marketFeed := a.buildMarketFeed(deps)
	listener := a.buildListener(deps)

	g.Go(func() error { return marketFeed.Run(ctx) })
	g.Go(func() error { return listener.Run(ctx) })
	g.Go(func() error {
		deps.MarketService.RunSweeper(ctx, cacheSweepInterval)
		return nil
	})
	g.Go(func() error {
		deps.BalanceService.RunSweeper(ctx, cacheSweepInterval)
		return nil
	})
	g.Go(func() error {
		deps.Queue.Pump(ctx, deps.Notifier)
		return nil
	})
	if deps.Archiver != nil {
		g.Go(func() error {
			deps.Archiver.Run(ctx)
			return nil
		})
	}

	return g.Wait()
}

func (a *App) buildMarketFeed(deps *Dependencies) *feed.MarketFeed {
	handlers := feed.NewUpdateHandlers(
		deps.MarketStore,
		deps.MarketService,
		deps.PositionService,
		deps.PriceCache,
		deps.TickSink,
		a.cfg.Feed.APIMode,
		a.logger,
	)
	return feed.NewMarketFeed(
		deps.WSClient,
		deps.Gamma,
		deps.MarketStore,
		deps.MarketService,
		handlers,
		a.cfg.Feed,
		a.logger,
	)
}

func (a *App) buildListener(deps *Dependencies) *copytrade.Listener {
	return copytrade.NewListener(
		deps.SignalBus,
		deps.WatchedAddressStore,
		deps.AllocationStore,
		deps.MarketService,
		deps.BalanceService,
		deps.PositionService,
		deps.TradeService,
		a.cfg.CopyTrade,
		a.logger,
	)
}
