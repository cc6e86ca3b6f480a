// Package config binds the server's required configuration keys (§6) from
// environment variables, a config file, or flags, grounded on
// 0xtitan6-polymarket-mm's internal/config viper usage pattern.
package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the top-level server configuration: the required keys
// enumerated in §6, plus DataDir, MetricsAddr and MarketDataAddr (the
// persistence directory and the two HTTP listen addresses).
type Config struct {
	Products       []string `mapstructure:"products"`
	Port           int      `mapstructure:"port"`
	TradingSession string   `mapstructure:"trading_session"`
	QuoteSession   string   `mapstructure:"quote_session"`
	InitialBudget  string   `mapstructure:"initial_budget"`
	FixedFee       string   `mapstructure:"fixed_fee"`
	PercentageFee  string   `mapstructure:"percentage_fee"`
	DataDir        string   `mapstructure:"data_dir"`
	MetricsAddr    string   `mapstructure:"metrics_addr"`
	MarketDataAddr string   `mapstructure:"market_data_addr"`
}

// Load reads config from an optional file at path (if non-empty) with
// LOBX_-prefixed environment variable overrides, falling back to defaults
// for anything unset.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LOBX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", 7000)
	v.SetDefault("initial_budget", "10000.00")
	v.SetDefault("fixed_fee", "0.00")
	v.SetDefault("percentage_fee", "0.00")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("market_data_addr", ":7002")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if len(cfg.Products) == 0 {
		if raw := v.GetString("products"); raw != "" {
			cfg.Products = strings.Split(raw, ",")
		}
	}

	// PORT is the single gateway port the original config format named;
	// TRADING_SESSION/QUOTE_SESSION split it into the two listener
	// endpoints this server actually binds. When only PORT is set, derive
	// the trading session from it and the quote session from the next
	// port up rather than silently ignoring PORT.
	if !v.IsSet("trading_session") {
		cfg.TradingSession = fmt.Sprintf(":%d", cfg.Port)
	}
	if !v.IsSet("quote_session") {
		cfg.QuoteSession = fmt.Sprintf(":%d", cfg.Port+1)
	}

	return &cfg, nil
}

// Validate checks that every required key (§6) is present and well-formed.
func (c *Config) Validate() error {
	if len(c.Products) == 0 {
		return fmt.Errorf("config: PRODUCTS must list at least one product")
	}
	if c.Port <= 0 {
		return fmt.Errorf("config: PORT must be positive")
	}
	if c.TradingSession == "" || c.QuoteSession == "" {
		return fmt.Errorf("config: TRADING_SESSION and QUOTE_SESSION are required")
	}
	if c.TradingSession == c.QuoteSession {
		return fmt.Errorf("config: TRADING_SESSION and QUOTE_SESSION must be distinct endpoints")
	}
	for name, raw := range map[string]string{
		"INITIAL_BUDGET": c.InitialBudget,
		"FIXED_FEE":      c.FixedFee,
		"PERCENTAGE_FEE": c.PercentageFee,
	} {
		if _, err := decimal.NewFromString(raw); err != nil {
			return fmt.Errorf("config: %s must be a decimal: %w", name, err)
		}
	}
	return nil
}

// InitialBudgetDecimal parses InitialBudget; callers validate first.
func (c *Config) InitialBudgetDecimal() decimal.Decimal {
	d, _ := decimal.NewFromString(c.InitialBudget)
	return d
}

// FixedFeeDecimal parses FixedFee; callers validate first.
func (c *Config) FixedFeeDecimal() decimal.Decimal {
	d, _ := decimal.NewFromString(c.FixedFee)
	return d
}

// PercentageFeeDecimal parses PercentageFee; callers validate first.
func (c *Config) PercentageFeeDecimal() decimal.Decimal {
	d, _ := decimal.NewFromString(c.PercentageFee)
	return d
}
