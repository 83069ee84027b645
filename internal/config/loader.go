package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ECHOBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ECHOBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ECHOBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ECHOBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ECHOBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ECHOBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ECHOBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ECHOBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ECHOBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ECHOBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ECHOBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ECHOBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ECHOBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ECHOBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ECHOBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ECHOBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ECHOBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ECHOBOT_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.MarketTTLSeconds, "ECHOBOT_REDIS_MARKET_TTL_SECONDS")
	setInt(&cfg.Redis.PriceTTLSeconds, "ECHOBOT_REDIS_PRICE_TTL_SECONDS")

	// ── ClickHouse ──
	setBool(&cfg.ClickHouse.Enabled, "ECHOBOT_CLICKHOUSE_ENABLED")
	setStr(&cfg.ClickHouse.Addr, "ECHOBOT_CLICKHOUSE_ADDR")
	setStr(&cfg.ClickHouse.Database, "ECHOBOT_CLICKHOUSE_DATABASE")
	setStr(&cfg.ClickHouse.User, "ECHOBOT_CLICKHOUSE_USER")
	setStr(&cfg.ClickHouse.Password, "ECHOBOT_CLICKHOUSE_PASSWORD")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ECHOBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ECHOBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ECHOBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "ECHOBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ECHOBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ECHOBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ECHOBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ECHOBOT_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "ECHOBOT_S3_RETENTION_DAYS")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "ECHOBOT_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "ECHOBOT_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.DataHost, "ECHOBOT_POLYMARKET_DATA_HOST")
	setStr(&cfg.Polymarket.WsHost, "ECHOBOT_POLYMARKET_WS_HOST")
	setStr(&cfg.Polymarket.Address, "ECHOBOT_POLYMARKET_ADDRESS")
	setStr(&cfg.Polymarket.ApiKey, "ECHOBOT_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.ApiSecret, "ECHOBOT_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.Passphrase, "ECHOBOT_POLYMARKET_API_PASSPHRASE")

	// ── Feed ──
	setBool(&cfg.Feed.APIMode, "ECHOBOT_FEED_API_MODE")
	setDuration(&cfg.Feed.DebounceDelay, "ECHOBOT_FEED_DEBOUNCE_DELAY")
	setInt(&cfg.Feed.MaxUpdatesPerSecond, "ECHOBOT_FEED_MAX_UPDATES_PER_SECOND")
	setDuration(&cfg.Feed.BufferTimeout, "ECHOBOT_FEED_BUFFER_TIMEOUT")
	setInt(&cfg.Feed.BufferCapacity, "ECHOBOT_FEED_BUFFER_CAPACITY")
	setInt(&cfg.Feed.SubscribeLimit, "ECHOBOT_FEED_SUBSCRIBE_LIMIT")

	// ── CopyTrade ──
	setStr(&cfg.CopyTrade.Channel, "ECHOBOT_COPYTRADE_CHANNEL")
	setDuration(&cfg.CopyTrade.DedupTTL, "ECHOBOT_COPYTRADE_DEDUP_TTL")
	setDuration(&cfg.CopyTrade.FailureCacheTTL, "ECHOBOT_COPYTRADE_FAILURE_CACHE_TTL")
	setDuration(&cfg.CopyTrade.BalanceFreshness, "ECHOBOT_COPYTRADE_BALANCE_FRESHNESS")
	setFloat64(&cfg.CopyTrade.MinBuyUSD, "ECHOBOT_COPYTRADE_MIN_BUY_USD")
	setFloat64(&cfg.CopyTrade.MinSellUSD, "ECHOBOT_COPYTRADE_MIN_SELL_USD")
	setDuration(&cfg.CopyTrade.ResolutionCacheTTL, "ECHOBOT_COPYTRADE_RESOLUTION_CACHE_TTL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ECHOBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ECHOBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStringSlice(&cfg.Notify.Events, "ECHOBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ECHOBOT_MODE")
	setStr(&cfg.LogLevel, "ECHOBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
