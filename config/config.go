package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/vtruhin/StockFlux/internal/adapters/logger" // Import the logger package for LogLevel
	"github.com/vtruhin/StockFlux/internal/indicators"
	"github.com/vtruhin/StockFlux/internal/ohlc"
)

// Data sources selectable with SOURCE.
const (
	SourceBinance   = "binance"
	SourceCoinbase  = "coinbase"
	SourceArchive   = "archive"
	SourceGenerated = "generated"
)

// defaultProducts is the product shown when PRODUCT is not set.
var defaultProducts = map[string]string{
	SourceBinance:   "BTCUSDT",
	SourceCoinbase:  "BTC-USD",
	SourceGenerated: "Data Generator",
}

// Config holds all application configuration.
type Config struct {
	// Chart
	Source              string   `envconfig:"SOURCE" default:"generated"`
	Product             string   `envconfig:"PRODUCT"`
	GranularitySeconds  int      `envconfig:"GRANULARITY_SECONDS" default:"0"` // 0 selects the product's default period
	Candles             int      `envconfig:"CANDLES" default:"200"`
	DefaultVisibleRatio float64  `envconfig:"DEFAULT_VISIBLE_RATIO" default:"0.2"`
	AllowPan            bool     `envconfig:"ALLOW_PAN" default:"true"`
	AllowZoom           bool     `envconfig:"ALLOW_ZOOM" default:"true"`
	ViewWidth           float64  `envconfig:"VIEW_WIDTH" default:"1000"`
	ClosePolicyName     string   `envconfig:"CLOSE_POLICY" default:"arrival"`
	Indicators          []string `envconfig:"INDICATORS"` // e.g. sma,bollinger,rsi,macd

	// Logging
	LogLevelName string `envconfig:"LOG_LEVEL" default:"INFO"`
	LogFormat    string `envconfig:"LOG_FORMAT" default:"console"`

	// Binance API (market data endpoints are public, keys are optional)
	APIKey               string        `envconfig:"BINANCE_API_KEY"`
	SecretKey            string        `envconfig:"BINANCE_API_SECRET"`
	IsTestnet            bool          `envconfig:"IS_TESTNET" default:"false"`
	ReconnectDelay       time.Duration `envconfig:"RECONNECT_DELAY" default:"5s"`
	MaxReconnectAttempts int           `envconfig:"MAX_RECONNECT_ATTEMPTS" default:"10"`

	// Coinbase (empty URLs use the public endpoints)
	CoinbaseRESTURL           string  `envconfig:"COINBASE_REST_URL"`
	CoinbaseWSURL             string  `envconfig:"COINBASE_WS_URL"`
	CoinbaseRequestsPerSecond float64 `envconfig:"COINBASE_REQUESTS_PER_SECOND" default:"1"`

	// Candle archive
	ArchiveDBPath       string `envconfig:"ARCHIVE_DB_PATH" default:"./data/candles.db"`
	ArchiveSkipWeekends bool   `envconfig:"ARCHIVE_SKIP_WEEKENDS" default:"false"`

	// Parsed from the string settings above
	LogLevel    logger.LogLevel  `ignored:"true"`
	ClosePolicy ohlc.ClosePolicy `ignored:"true"`
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()
	return loadFromEnv()
}

func loadFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("configuration parsing failed: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate normalizes cfg and collects every problem into one error.
func (cfg *Config) validate() error {
	var errs []string

	cfg.Source = strings.ToLower(strings.TrimSpace(cfg.Source))
	switch cfg.Source {
	case SourceBinance, SourceCoinbase, SourceGenerated:
		if cfg.Product == "" {
			cfg.Product = defaultProducts[cfg.Source]
		}
	case SourceArchive:
		if cfg.Product == "" {
			errs = append(errs, "PRODUCT must be set for the archive source")
		}
	default:
		errs = append(errs, fmt.Sprintf("SOURCE must be one of binance, coinbase, archive, generated (got %q)", cfg.Source))
	}

	if cfg.GranularitySeconds < 0 {
		errs = append(errs, "GRANULARITY_SECONDS cannot be negative")
	}
	if cfg.Candles <= 0 {
		errs = append(errs, "CANDLES must be positive")
	}
	if cfg.DefaultVisibleRatio <= 0 || cfg.DefaultVisibleRatio > 1 {
		errs = append(errs, "DEFAULT_VISIBLE_RATIO must be between 0.0 (exclusive) and 1.0")
	}
	if cfg.ViewWidth <= 0 {
		errs = append(errs, "VIEW_WIDTH must be positive")
	}

	policy, err := ohlc.ParseClosePolicy(strings.ToLower(cfg.ClosePolicyName))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CLOSE_POLICY: %v", err))
	}
	cfg.ClosePolicy = policy

	if _, err := indicators.Parse(cfg.Indicators); err != nil {
		errs = append(errs, fmt.Sprintf("invalid INDICATORS: %v", err))
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(cfg.LogLevelName) // Use the parser from the logger package
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if cfg.LogFormat != string(logger.FormatConsole) && cfg.LogFormat != string(logger.FormatJSON) {
		errs = append(errs, "LOG_FORMAT must be console or json")
	}

	// Connection Settings
	if cfg.ReconnectDelay <= 0 {
		errs = append(errs, "RECONNECT_DELAY must be positive")
	}
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}
	if cfg.CoinbaseRequestsPerSecond <= 0 {
		errs = append(errs, "COINBASE_REQUESTS_PER_SECOND must be positive")
	}
	if cfg.Source == SourceArchive && cfg.ArchiveDBPath == "" {
		errs = append(errs, "ARCHIVE_DB_PATH must be set")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
