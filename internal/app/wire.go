package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/polyecho/echobot/internal/blob/s3"
	"github.com/polyecho/echobot/internal/cache/redis"
	"github.com/polyecho/echobot/internal/config"
	"github.com/polyecho/echobot/internal/crypto"
	"github.com/polyecho/echobot/internal/domain"
	"github.com/polyecho/echobot/internal/feed"
	"github.com/polyecho/echobot/internal/history/clickhouse"
	"github.com/polyecho/echobot/internal/notify"
	"github.com/polyecho/echobot/internal/platform/polymarket"
	"github.com/polyecho/echobot/internal/service"
	"github.com/polyecho/echobot/internal/store/postgres"
)

// Dependencies bundles everything the operating modes need. Constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	MarketStore         domain.MarketStore
	PositionStore       domain.PositionStore
	AllocationStore     domain.AllocationStore
	WatchedAddressStore domain.WatchedAddressStore
	CopyTradeStore      domain.CopyTradeStore

	// Caches and messaging
	MarketCache domain.MarketCache
	PriceCache  domain.PriceCache
	SignalBus   domain.SignalBus

	// Venue clients
	WSClient  *polymarket.WSClient
	Gamma     *polymarket.GammaClient
	DataAPI   *polymarket.DataClient
	Clob      *polymarket.ClobClient

	// Services
	MarketService   *service.MarketService
	PositionService *service.PositionService
	BalanceService  *service.BalanceService
	TradeService    *service.TradeService

	// History and archiving
	TickSink feed.TickSink
	Archiver *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier
	Queue    *notify.StreamQueue
}

// needsS3 reports whether the mode runs the journal archiver.
func needsS3(mode string) bool {
	return mode == "full"
}

// Wire constructs every concrete dependency from the configuration. The
// returned cleanup releases resources in reverse acquisition order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.PositionStore = postgres.NewPositionStore(pool)
	deps.AllocationStore = postgres.NewAllocationStore(pool)
	deps.WatchedAddressStore = postgres.NewWatchedAddressStore(pool)
	deps.CopyTradeStore = postgres.NewCopyTradeStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	marketTTL := time.Duration(cfg.Redis.MarketTTLSeconds) * time.Second
	priceTTL := time.Duration(cfg.Redis.PriceTTLSeconds) * time.Second
	deps.MarketCache = redis.NewMarketCache(redisClient, marketTTL)
	deps.PriceCache = redis.NewPriceCache(redisClient, priceTTL)
	deps.SignalBus = redis.NewSignalBus(redisClient, 0)

	// --- Venue clients ---
	deps.Gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaHost)
	deps.DataAPI = polymarket.NewDataClient(cfg.Polymarket.DataHost)
	deps.Clob = polymarket.NewClobClient(cfg.Polymarket.ClobHost, cfg.Polymarket.Address, &crypto.HMACAuth{
		Key:        cfg.Polymarket.ApiKey,
		Secret:     cfg.Polymarket.ApiSecret,
		Passphrase: cfg.Polymarket.Passphrase,
	})
	deps.WSClient = polymarket.NewWSClient(cfg.Polymarket.WsHost, logger)
	closers = append(closers, func() { _ = deps.WSClient.Close() })

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Queue = notify.NewStreamQueue(deps.SignalBus, logger)

	// --- Services ---
	deps.MarketService = service.NewMarketService(
		deps.MarketStore, deps.MarketCache, deps.Gamma,
		cfg.CopyTrade.ResolutionCacheTTL.Duration, cfg.CopyTrade.FailureCacheTTL.Duration,
		logger,
	)
	deps.PositionService = service.NewPositionService(deps.PositionStore, deps.Clob, deps.Queue, logger)
	deps.BalanceService = service.NewBalanceService(deps.DataAPI, cfg.CopyTrade.BalanceFreshness.Duration, logger)
	deps.TradeService = service.NewTradeService(
		deps.Clob, deps.PositionStore, deps.AllocationStore, deps.CopyTradeStore, deps.Queue, logger,
	)

	// --- ClickHouse tick history (optional) ---
	if cfg.ClickHouse.Enabled {
		chConn, err := clickhouse.NewConn(ctx, cfg.ClickHouse)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: clickhouse: %w", err)
		}
		closers = append(closers, func() { _ = chConn.Close() })

		ticks, err := clickhouse.NewTickStore(ctx, chConn)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: clickhouse tick store: %w", err)
		}
		deps.TickSink = ticks
	}

	// --- S3 journal archiver (full mode only) ---
	if cfg.S3.Enabled && needsS3(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, cfg.S3)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3Client, deps.CopyTradeStore, cfg.S3.RetentionDays, logger)
	}

	return deps, cleanup, nil
}
