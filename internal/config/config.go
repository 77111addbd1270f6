// Package config defines the top-level configuration for the arbitrage
// monitor and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by CROSSARB_* environment
// variables.
type Config struct {
	Exchanges ExchangesConfig `toml:"exchanges"`
	Arbitrage ArbitrageConfig `toml:"arbitrage"`
	Trading   TradingConfig   `toml:"trading"`
	Monitor   MonitorConfig   `toml:"monitor"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Feed      FeedConfig      `toml:"feed"`
	Archive   ArchiveConfig   `toml:"archive"`
	Notify    NotifyConfig    `toml:"notify"`
	Secrets   SecretsConfig   `toml:"secrets"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ExchangesConfig selects the venues the pool registers and how their
// adapters are driven in paper mode.
type ExchangesConfig struct {
	// Names lists the exchanges to aggregate, e.g. ["binance", "bybit"].
	Names []string `toml:"names"`
	// Reference names the exchange used for liquidity scoring, volatility
	// history, and grid pricing.
	Reference string `toml:"reference"`
	// MaxRetries and RetryDelay shape the per-exchange retry policy.
	MaxRetries int      `toml:"max_retries"`
	RetryDelay duration `toml:"retry_delay"`
	// Paper seeds the paper adapters: symbol -> mid price.
	Paper PaperConfig `toml:"paper"`
}

// PaperConfig seeds the simulated venues used in paper mode.
type PaperConfig struct {
	// BasePrices maps symbol to mid price shared by all simulated venues.
	BasePrices map[string]float64 `toml:"base_prices"`
	// SpreadBps is the quoted spread in basis points.
	SpreadBps float64 `toml:"spread_bps"`
	// BaseVolume is the reported 24h volume per symbol.
	BaseVolume float64 `toml:"base_volume"`
	// QuoteBalance is the starting USDT balance per venue.
	QuoteBalance float64 `toml:"quote_balance"`
}

// ArbitrageConfig holds detection and risk thresholds.
type ArbitrageConfig struct {
	// MinProfit is the minimum net profit percent to emit an opportunity.
	MinProfit float64 `toml:"min_profit"`
	// Commission is the total round-trip fee percent subtracted from the
	// gross spread.
	Commission float64 `toml:"commission"`
	// MinVolume is the minimum opportunity notional accepted by risk
	// validation.
	MinVolume float64 `toml:"min_volume"`
	// MaxProfitPercent rejects spreads too good to be true.
	MaxProfitPercent float64 `toml:"max_profit_percent"`
	// MaxVolatility rejects symbols whose annualized hourly volatility
	// exceeds this ceiling.
	MaxVolatility float64 `toml:"max_volatility"`
}

// TradingConfig sizes automatic executions.
type TradingConfig struct {
	// MinOrderSize is the USDT notional at risk level 1.
	MinOrderSize float64 `toml:"min_order_size"`
	// MaxOrderSize caps the notional for any risk level.
	MaxOrderSize float64 `toml:"max_order_size"`
	// DefaultLeverage applies to futures orders.
	DefaultLeverage int `toml:"default_leverage"`
	// MaxLeverage caps leverage per exchange.
	MaxLeverage map[string]int `toml:"max_leverage"`
}

// MonitorConfig drives the monitoring cycle.
type MonitorConfig struct {
	// Pairs are the symbols to scan; ":"-suffixed symbols route to futures.
	Pairs []string `toml:"pairs"`
	// Interval is the tick period.
	Interval duration `toml:"interval"`
	// MinLiquidity is the liquidity score floor per pair.
	MinLiquidity float64 `toml:"min_liquidity"`
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

// RedisConfig holds Redis connection parameters. Redis is optional; with
// Enabled false the monitor runs with in-process locks and no tick cache.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// FeedConfig holds the optional WebSocket ticker stream parameters.
type FeedConfig struct {
	Enabled bool   `toml:"enabled"`
	WsURL   string `toml:"ws_url"`
}

// ArchiveConfig controls opportunity history archival to object storage.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// SecretsConfig holds the key-encryption password for stored user API keys.
type SecretsConfig struct {
	KeyPassword string `toml:"key_password"`
}

// duration wraps time.Duration so it can be written as "90s" in TOML.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the stock thresholds. These match
// the values in config.example.toml.
func Defaults() Config {
	return Config{
		Exchanges: ExchangesConfig{
			Names:      []string{"binance", "bybit", "bingx"},
			Reference:  "binance",
			MaxRetries: 3,
			RetryDelay: duration{1500 * time.Millisecond},
			Paper: PaperConfig{
				BasePrices:   map[string]float64{},
				SpreadBps:    10,
				BaseVolume:   25000,
				QuoteBalance: 100000,
			},
		},
		Arbitrage: ArbitrageConfig{
			MinProfit:        0.3,
			Commission:       0.2,
			MinVolume:        10000,
			MaxProfitPercent: 5.0,
			MaxVolatility:    10.0,
		},
		Trading: TradingConfig{
			MinOrderSize:    10,
			MaxOrderSize:    10000,
			DefaultLeverage: 10,
			MaxLeverage: map[string]int{
				"binance": 20,
				"bybit":   100,
				"bingx":   50,
				"kucoin":  10,
				"okx":     5,
			},
		},
		Monitor: MonitorConfig{
			Pairs:        []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"},
			Interval:     duration{90 * time.Second},
			MinLiquidity: 0.5,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "crossarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "crossarb-data",
			ForcePathStyle: true,
		},
		Feed: FeedConfig{
			Enabled: false,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{6 * time.Hour},
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity", "error"},
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor": true,
	"paper":   true,
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
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, paper)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Exchanges
	if len(c.Exchanges.Names) == 0 {
		errs = append(errs, "exchanges: names must not be empty")
	}
	if c.Exchanges.Reference == "" {
		errs = append(errs, "exchanges: reference must not be empty")
	} else {
		found := false
		for _, name := range c.Exchanges.Names {
			if name == c.Exchanges.Reference {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, fmt.Sprintf("exchanges: reference %q is not in names", c.Exchanges.Reference))
		}
	}
	if c.Exchanges.MaxRetries < 1 {
		errs = append(errs, "exchanges: max_retries must be >= 1")
	}
	if c.Exchanges.RetryDelay.Duration < 0 {
		errs = append(errs, "exchanges: retry_delay must not be negative")
	}

	// Arbitrage
	if c.Arbitrage.MinProfit <= 0 {
		errs = append(errs, "arbitrage: min_profit must be > 0")
	}
	if c.Arbitrage.Commission < 0 {
		errs = append(errs, "arbitrage: commission must not be negative")
	}
	if c.Arbitrage.MaxProfitPercent <= c.Arbitrage.MinProfit {
		errs = append(errs, "arbitrage: max_profit_percent must exceed min_profit")
	}
	if c.Arbitrage.MinVolume <= 0 {
		errs = append(errs, "arbitrage: min_volume must be > 0")
	}

	// Trading
	if c.Trading.MinOrderSize <= 0 {
		errs = append(errs, "trading: min_order_size must be > 0")
	}
	if c.Trading.MaxOrderSize < c.Trading.MinOrderSize {
		errs = append(errs, "trading: max_order_size must be >= min_order_size")
	}
	if c.Trading.DefaultLeverage < 0 {
		errs = append(errs, "trading: default_leverage must not be negative")
	}

	// Monitor
	if len(c.Monitor.Pairs) == 0 {
		errs = append(errs, "monitor: pairs must not be empty")
	}
	if c.Monitor.Interval.Duration <= 0 {
		errs = append(errs, "monitor: interval must be > 0")
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
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
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
	}

	// Feed
	if c.Feed.Enabled && c.Feed.WsURL == "" {
		errs = append(errs, "feed: ws_url must not be empty when enabled")
	}

	// Archive
	if c.Archive.Enabled {
		if !c.S3.Enabled {
			errs = append(errs, "archive: s3 must be enabled for archival")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
