// Package config handles application configuration management using Viper
package config

import (
	"fmt"
	"time"

	"github.com/raykavin/solspot/strategy"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	str2duration "github.com/xhit/go-str2duration/v2"
)

// Defaults
const (
	DefaultPair         = "SOLUSDC"
	DefaultTimeframe    = "3m"
	DefaultPollInterval = 7 * time.Second
	DefaultWatchdog     = 15 * time.Minute
	DefaultStatePath    = "./solspot.db"
)

// AppConfig holds the application configuration. It is immutable after Load.
type AppConfig struct {
	Binance  BinanceConfig
	Telegram TelegramConfig
	Trading  TradingConfig
	Log      LogConfig

	StatePath string

	// OrderDBPath switches the order history to a SQLite database when set
	OrderDBPath string
}

// BinanceConfig holds Binance exchange configuration
type BinanceConfig struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	Enabled bool
	Token   string
	ChatID  int64
}

// TradingConfig holds the pair, cadence and strategy thresholds
type TradingConfig struct {
	Pair         string
	Timeframe    string
	PollInterval time.Duration
	Watchdog     time.Duration
	Strategy     strategy.Params
}

// LogConfig holds logger output settings
type LogConfig struct {
	Level      string
	TimeFormat string
	Colored    bool
	JSONFormat bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load() (*AppConfig, error) {
	// Missing .env is fine, real deployments set the environment directly
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("BINANCE_USE_TESTNET", false)
	viper.SetDefault("TELEGRAM_ENABLED", false)
	viper.SetDefault("SOLSPOT_PAIR", DefaultPair)
	viper.SetDefault("SOLSPOT_TIMEFRAME", DefaultTimeframe)
	viper.SetDefault("SOLSPOT_POLL_INTERVAL", "7s")
	viper.SetDefault("SOLSPOT_WATCHDOG_TIMEOUT", "15m")
	viper.SetDefault("SOLSPOT_STATE_PATH", DefaultStatePath)
	viper.SetDefault("SOLSPOT_FOUR_CANDLE_ENTRY", false)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_TIME_FORMAT", "2006-01-02 15:04:05")
	viper.SetDefault("LOG_COLORED", true)
	viper.SetDefault("LOG_JSON", false)

	pollInterval, err := parseDuration("SOLSPOT_POLL_INTERVAL")
	if err != nil {
		return nil, err
	}
	watchdog, err := parseDuration("SOLSPOT_WATCHDOG_TIMEOUT")
	if err != nil {
		return nil, err
	}

	params, err := loadStrategyParams()
	if err != nil {
		return nil, err
	}

	config := &AppConfig{
		Binance: BinanceConfig{
			APIKey:     viper.GetString("BINANCE_API_KEY"),
			SecretKey:  viper.GetString("BINANCE_API_SECRET"),
			UseTestnet: viper.GetBool("BINANCE_USE_TESTNET"),
		},
		Telegram: TelegramConfig{
			Enabled: viper.GetBool("TELEGRAM_ENABLED"),
			Token:   viper.GetString("TELEGRAM_TOKEN"),
			ChatID:  viper.GetInt64("TELEGRAM_CHAT_ID"),
		},
		Trading: TradingConfig{
			Pair:         viper.GetString("SOLSPOT_PAIR"),
			Timeframe:    viper.GetString("SOLSPOT_TIMEFRAME"),
			PollInterval: pollInterval,
			Watchdog:     watchdog,
			Strategy:     params,
		},
		Log: LogConfig{
			Level:      viper.GetString("LOG_LEVEL"),
			TimeFormat: viper.GetString("LOG_TIME_FORMAT"),
			Colored:    viper.GetBool("LOG_COLORED"),
			JSONFormat: viper.GetBool("LOG_JSON"),
		},
		StatePath:   viper.GetString("SOLSPOT_STATE_PATH"),
		OrderDBPath: viper.GetString("SOLSPOT_ORDER_DB"),
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *AppConfig) validate() error {
	if c.Binance.APIKey == "" || c.Binance.SecretKey == "" {
		return fmt.Errorf("BINANCE_API_KEY and BINANCE_API_SECRET are required")
	}
	if c.Telegram.Enabled && (c.Telegram.Token == "" || c.Telegram.ChatID == 0) {
		return fmt.Errorf("TELEGRAM_TOKEN and TELEGRAM_CHAT_ID are required when telegram is enabled")
	}
	if c.Trading.PollInterval <= 0 {
		return fmt.Errorf("SOLSPOT_POLL_INTERVAL must be positive")
	}
	return nil
}

// loadStrategyParams overlays env thresholds onto the stock parameter set
func loadStrategyParams() (strategy.Params, error) {
	params := strategy.DefaultParams()

	overrides := []struct {
		key    string
		target *decimal.Decimal
	}{
		{"SOLSPOT_ENTRY_TOTAL_MOVE", &params.EntryTotalMove},
		{"SOLSPOT_ENTRY_MIN_SECOND", &params.EntryMinSecond},
		{"SOLSPOT_FOUR_CANDLE_TOTAL_MOVE", &params.FourCandleTotalMove},
		{"SOLSPOT_STOP_LOSS_PCT", &params.StopLossPct},
		{"SOLSPOT_TRAILING_SHARE", &params.TrailingShare},
	}

	for _, override := range overrides {
		raw := viper.GetString(override.key)
		if raw == "" {
			continue
		}
		value, err := decimal.NewFromString(raw)
		if err != nil {
			return strategy.Params{}, fmt.Errorf("invalid %s %q: %w", override.key, raw, err)
		}
		*override.target = value
	}

	params.FourCandleEntry = viper.GetBool("SOLSPOT_FOUR_CANDLE_ENTRY")

	if mode := viper.GetString("SOLSPOT_TRAILING_MODE"); mode != "" {
		switch strategy.TrailingMode(mode) {
		case strategy.TrailingRelative, strategy.TrailingAbsolute:
			params.TrailingMode = strategy.TrailingMode(mode)
		default:
			return strategy.Params{}, fmt.Errorf("invalid SOLSPOT_TRAILING_MODE %q", mode)
		}
	}

	return params, nil
}

// parseDuration reads a duration env value in extended notation (1d12h30m)
func parseDuration(key string) (time.Duration, error) {
	raw := viper.GetString(key)
	value, err := str2duration.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return value, nil
}
