// Package config defines the top-level configuration for echobot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ECHOBOT_* environment
// variables.
type Config struct {
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	ClickHouse ClickHouseConfig `toml:"clickhouse"`
	S3         S3Config         `toml:"s3"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Feed       FeedConfig       `toml:"feed"`
	CopyTrade  CopyTradeConfig  `toml:"copytrade"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// TTL classes per cached data type, in seconds.
	MarketTTLSeconds int `toml:"market_ttl_seconds"`
	PriceTTLSeconds  int `toml:"price_ttl_seconds"`
}

// ClickHouseConfig holds the optional price-tick history sink parameters.
type ClickHouseConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

// S3Config holds S3-compatible object storage parameters for the copy-trade
// journal archiver.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
}

// PolymarketConfig holds venue API endpoints and CLOB credentials.
type PolymarketConfig struct {
	ClobHost   string `toml:"clob_host"`
	GammaHost  string `toml:"gamma_host"`
	DataHost   string `toml:"data_host"`
	WsHost     string `toml:"ws_host"`
	Address    string `toml:"address"` // wallet address sent in L2 auth headers
	ApiKey     string `toml:"api_key"`
	ApiSecret  string `toml:"api_secret"`
	Passphrase string `toml:"api_passphrase"`
}

// FeedConfig holds the price reconciliation pipeline parameters.
type FeedConfig struct {
	// APIMode skips market store writes; handlers maintain caches only.
	APIMode             bool     `toml:"api_mode"`
	DebounceDelay       duration `toml:"debounce_delay"`
	MaxUpdatesPerSecond int      `toml:"max_updates_per_second"`
	BufferTimeout       duration `toml:"buffer_timeout"`
	BufferCapacity      int      `toml:"buffer_capacity"`
	SubscribeLimit      int      `toml:"subscribe_limit"`
}

// CopyTradeConfig holds copy-trading listener parameters.
type CopyTradeConfig struct {
	Channel            string   `toml:"channel"` // pub/sub pattern, e.g. "copy_trade:*"
	DedupTTL           duration `toml:"dedup_ttl"`
	FailureCacheTTL    duration `toml:"failure_cache_ttl"`
	BalanceFreshness   duration `toml:"balance_freshness"`
	MinBuyUSD          float64  `toml:"min_buy_usd"`
	MinSellUSD         float64  `toml:"min_sell_usd"`
	ResolutionCacheTTL duration `toml:"resolution_cache_ttl"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	Events         []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "750ms").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML decoder.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "echobot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:             "localhost:6379",
			DB:               0,
			PoolSize:         20,
			MaxRetries:       3,
			MarketTTLSeconds: 300,
			PriceTTLSeconds:  60,
		},
		ClickHouse: ClickHouseConfig{
			Enabled:  false,
			Addr:     "localhost:9000",
			Database: "echobot",
			User:     "default",
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "echobot-archive",
			ForcePathStyle: true,
			RetentionDays:  90,
		},
		Polymarket: PolymarketConfig{
			ClobHost:  "https://clob.polymarket.com",
			GammaHost: "https://gamma-api.polymarket.com",
			DataHost:  "https://data-api.polymarket.com",
			WsHost:    "wss://ws-subscriptions-clob.polymarket.com/ws/market",
		},
		Feed: FeedConfig{
			APIMode:             false,
			DebounceDelay:       duration{500 * time.Millisecond},
			MaxUpdatesPerSecond: 20,
			BufferTimeout:       duration{2 * time.Second},
			BufferCapacity:      1000,
			SubscribeLimit:      200,
		},
		CopyTrade: CopyTradeConfig{
			Channel:            "copy_trade:*",
			DedupTTL:           duration{5 * time.Minute},
			FailureCacheTTL:    duration{time.Hour},
			BalanceFreshness:   duration{2 * time.Hour},
			MinBuyUSD:          1.00,
			MinSellUSD:         0.50,
			ResolutionCacheTTL: duration{10 * time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"copy_executed", "copy_failed", "exit_triggered", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"feed": true,
	"copy": true,
	"full": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: feed, copy, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// ClickHouse
	if c.ClickHouse.Enabled {
		if c.ClickHouse.Addr == "" {
			errs = append(errs, "clickhouse: addr must not be empty when enabled")
		}
		if c.ClickHouse.Database == "" {
			errs = append(errs, "clickhouse: database must not be empty when enabled")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
		if c.S3.RetentionDays < 1 {
			errs = append(errs, "s3: retention_days must be >= 1 when enabled")
		}
	}

	// Polymarket endpoints
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.WsHost == "" && (c.Mode == "feed" || c.Mode == "full") {
		errs = append(errs, "polymarket: ws_host is required for mode "+c.Mode)
	}
	if c.Mode == "copy" || c.Mode == "full" {
		if c.Polymarket.ClobHost == "" {
			errs = append(errs, "polymarket: clob_host is required for mode "+c.Mode)
		}
		// CLOB credentials must be set together, or all empty.
		ak := c.Polymarket.ApiKey != ""
		as := c.Polymarket.ApiSecret != ""
		ap := c.Polymarket.Passphrase != ""
		if (ak || as || ap) && !(ak && as && ap) {
			errs = append(errs, "polymarket: api_key, api_secret, and api_passphrase must all be set together")
		}
	}

	// Feed
	if c.Feed.DebounceDelay.Duration <= 0 {
		errs = append(errs, "feed: debounce_delay must be > 0")
	}
	if c.Feed.MaxUpdatesPerSecond < 1 {
		errs = append(errs, "feed: max_updates_per_second must be >= 1")
	}
	if c.Feed.BufferTimeout.Duration <= 0 {
		errs = append(errs, "feed: buffer_timeout must be > 0")
	}
	if c.Feed.BufferCapacity < 1 {
		errs = append(errs, "feed: buffer_capacity must be >= 1")
	}

	// CopyTrade
	if c.CopyTrade.Channel == "" {
		errs = append(errs, "copytrade: channel must not be empty")
	}
	if c.CopyTrade.DedupTTL.Duration <= 0 {
		errs = append(errs, "copytrade: dedup_ttl must be > 0")
	}
	if c.CopyTrade.MinBuyUSD <= 0 {
		errs = append(errs, "copytrade: min_buy_usd must be > 0")
	}
	if c.CopyTrade.MinSellUSD <= 0 {
		errs = append(errs, "copytrade: min_sell_usd must be > 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
