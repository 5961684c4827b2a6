// Package config loads application configuration from two YAML files:
// settings.yaml (safe to commit) and secrets.yaml (API keys, account
// numbers; never committed). Secrets overlay settings, environment
// variables override both, and the result is a plain struct passed
// into constructors; nothing reads configuration ambiently.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"hsms-trader/internal/domain"
	"hsms-trader/internal/strategy"
)

// Config holds all application configuration.
type Config struct {
	Trading struct {
		FillMode    string  `yaml:"fill_mode"`
		FeeBps      float64 `yaml:"fee_bps"`
		TaxBps      float64 `yaml:"tax_bps"`
		SlippageBps float64 `yaml:"slippage_bps"`
		InitialCash float64 `yaml:"initial_cash"`
		MinBars     int     `yaml:"min_bars"`
	} `yaml:"trading"`

	Strategy struct {
		Version          string  `yaml:"version"`
		MAWindow         int     `yaml:"ma_window"`
		MomentumWindow   int     `yaml:"momentum_window"`
		VolumeLookback   int     `yaml:"volume_lookback"`
		VolumeMultiplier float64 `yaml:"volume_multiplier"`
		ForeignLookback  int     `yaml:"foreign_lookback"`
		ForeignMinSum    float64 `yaml:"foreign_min_sum"`
	} `yaml:"strategy"`

	Regime struct {
		BenchmarkSymbol string  `yaml:"benchmark_symbol"`
		MAWindow        int     `yaml:"ma_window"`
		SlopeDays       int     `yaml:"slope_days"`
		MinVolumeRatio  float64 `yaml:"min_volume_ratio"`
		MinAbsReturnMA  float64 `yaml:"min_abs_return_ma"`
	} `yaml:"regime"`

	Screener struct {
		LookbackDays int     `yaml:"lookback_days"`
		TopN         int     `yaml:"top_n"`
		MinPrice     float64 `yaml:"min_price"`
		MinAvgVolume float64 `yaml:"min_avg_volume"`
	} `yaml:"screener"`

	KoreaInvest struct {
		AppKey             string `yaml:"app_key"`
		AppSecret          string `yaml:"app_secret"`
		AccountNo          string `yaml:"account_no"`
		AccountProductCode string `yaml:"account_product_code"`
		BaseURL            string `yaml:"base_url"`
		WSURL              string `yaml:"ws_url"`
		Virtual            bool   `yaml:"virtual"`
	} `yaml:"korea_invest"`

	Telegram struct {
		Enabled  bool   `yaml:"enabled"`
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`

	Storage struct {
		PostgresDSN   string `yaml:"postgres_dsn"`
		ClickHouseDSN string `yaml:"clickhouse_dsn"`
		CSVDir        string `yaml:"csv_dir"`
	} `yaml:"storage"`

	Live struct {
		Cron string `yaml:"cron"`
	} `yaml:"live"`
}

// Load reads settings from settingsPath, overlays secrets from
// secretsPath when it exists, then applies environment overrides and
// defaults. A missing settings file is not an error; a present but
// unparseable file is.
func Load(settingsPath, secretsPath string) (*Config, error) {
	cfg := &Config{}

	if err := overlayFile(cfg, settingsPath); err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	if err := overlayFile(cfg, secretsPath); err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}

	// Environment variable overrides
	if v := os.Getenv("KIS_APP_KEY"); v != "" {
		cfg.KoreaInvest.AppKey = v
	}
	if v := os.Getenv("KIS_APP_SECRET"); v != "" {
		cfg.KoreaInvest.AppSecret = v
	}
	if v := os.Getenv("KIS_ACCOUNT_NO"); v != "" {
		cfg.KoreaInvest.AccountNo = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		cfg.Storage.ClickHouseDSN = v
	}

	cfg.applyDefaults()
	return cfg, nil
}

func overlayFile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func (c *Config) applyDefaults() {
	if c.Trading.FillMode == "" {
		c.Trading.FillMode = string(domain.FillNextDayOpen)
	}
	if c.Trading.InitialCash == 0 {
		c.Trading.InitialCash = 10_000_000
	}
	if c.Trading.MinBars == 0 {
		c.Trading.MinBars = 20
	}

	if c.Strategy.Version == "" {
		c.Strategy.Version = strategy.VersionHSMS1
	}
	if c.Strategy.MAWindow == 0 {
		c.Strategy.MAWindow = 20
	}
	if c.Strategy.MomentumWindow == 0 {
		c.Strategy.MomentumWindow = 5
	}
	if c.Strategy.VolumeLookback == 0 {
		c.Strategy.VolumeLookback = 20
	}
	if c.Strategy.VolumeMultiplier == 0 {
		c.Strategy.VolumeMultiplier = 1.1
	}
	if c.Strategy.ForeignLookback == 0 {
		c.Strategy.ForeignLookback = 5
	}

	if c.Regime.BenchmarkSymbol == "" {
		c.Regime.BenchmarkSymbol = "229200"
	}
	if c.Regime.MAWindow == 0 {
		c.Regime.MAWindow = 200
	}
	if c.Regime.SlopeDays == 0 {
		c.Regime.SlopeDays = 20
	}
	if c.Regime.MinVolumeRatio == 0 {
		c.Regime.MinVolumeRatio = 1.3
	}
	if c.Regime.MinAbsReturnMA == 0 {
		c.Regime.MinAbsReturnMA = 0.012
	}

	if c.Screener.LookbackDays == 0 {
		c.Screener.LookbackDays = 20
	}
	if c.Screener.TopN == 0 {
		c.Screener.TopN = 30
	}
	if c.Screener.MinPrice == 0 {
		c.Screener.MinPrice = 1_000
	}
	if c.Screener.MinAvgVolume == 0 {
		c.Screener.MinAvgVolume = 50_000
	}

	if c.KoreaInvest.BaseURL == "" {
		if c.KoreaInvest.Virtual {
			c.KoreaInvest.BaseURL = "https://openapivts.koreainvestment.com:29443"
		} else {
			c.KoreaInvest.BaseURL = "https://openapi.koreainvestment.com:9443"
		}
	}
	if c.KoreaInvest.AccountProductCode == "" {
		c.KoreaInvest.AccountProductCode = "01"
	}

	if c.Storage.CSVDir == "" {
		c.Storage.CSVDir = "data"
	}
	if c.Live.Cron == "" {
		// Weekdays at 15:40 KST, ten minutes after the KRX close.
		c.Live.Cron = "40 15 * * 1-5"
	}
}

// CostConfig converts the bps-denominated trading section into the
// fraction-denominated config the engine consumes.
func (c *Config) CostConfig() domain.CostConfig {
	return domain.CostConfig{
		FillMode:     domain.FillMode(c.Trading.FillMode),
		FeeRate:      c.Trading.FeeBps / 10_000,
		TaxRate:      c.Trading.TaxBps / 10_000,
		SlippageRate: c.Trading.SlippageBps / 10_000,
	}
}

// StrategyConfig builds the full strategy parameter bundle; the HSMS
// 1.0 path ignores the foreign-flow fields.
func (c *Config) StrategyConfig() strategy.Config2 {
	return strategy.Config2{
		Config: strategy.Config{
			MAWindow:         c.Strategy.MAWindow,
			MomentumWindow:   c.Strategy.MomentumWindow,
			VolumeLookback:   c.Strategy.VolumeLookback,
			VolumeMultiplier: c.Strategy.VolumeMultiplier,
		},
		ForeignLookback: c.Strategy.ForeignLookback,
		ForeignMinSum:   c.Strategy.ForeignMinSum,
	}
}

// Validate checks the fields every run needs. Broker and Telegram
// credentials are validated by their consumers, not here, so backtest
// runs work without secrets.
func (c *Config) Validate() error {
	if err := c.CostConfig().Validate(); err != nil {
		return err
	}
	if _, err := strategy.FromVersion(c.Strategy.Version, c.StrategyConfig()); err != nil {
		return fmt.Errorf("strategy %q: %w", c.Strategy.Version, err)
	}
	if c.Trading.InitialCash <= 0 {
		return fmt.Errorf("trading.initial_cash must be positive")
	}
	return nil
}

// ValidateBroker checks the fields a live/paper trading run needs.
func (c *Config) ValidateBroker() error {
	if c.KoreaInvest.AppKey == "" {
		return fmt.Errorf("korea_invest.app_key is required")
	}
	if c.KoreaInvest.AppSecret == "" {
		return fmt.Errorf("korea_invest.app_secret is required")
	}
	if c.KoreaInvest.AccountNo == "" {
		return fmt.Errorf("korea_invest.account_no is required")
	}
	return nil
}
