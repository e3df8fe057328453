package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration, loaded from YAML with environment
// overrides for secrets.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Binance  BinanceConfig  `yaml:"binance"`
	Notion   NotionConfig   `yaml:"notion"`
	Resolver ResolverConfig `yaml:"resolver"`
	Updater  UpdaterConfig  `yaml:"updater"`
	Stream   StreamConfig   `yaml:"stream"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
}

// BinanceConfig covers both the spot and futures REST hosts plus the
// request-weight accounting used by the rate governor.
type BinanceConfig struct {
	SpotURL    string        `yaml:"spot_url"`
	FuturesURL string        `yaml:"futures_url"`
	Timeout    time.Duration `yaml:"timeout"`
	Weights    WeightConfig  `yaml:"weights"`
	Budget     BudgetConfig  `yaml:"budget"`
}

// WeightConfig holds the documented request weight of each endpoint.
type WeightConfig struct {
	Ticker       int `yaml:"ticker"`
	PremiumIndex int `yaml:"premium_index"`
	OpenInterest int `yaml:"open_interest"`
	FundingRate  int `yaml:"funding_rate"`
	Constituents int `yaml:"constituents"`
	ExchangeInfo int `yaml:"exchange_info"`
}

type BudgetConfig struct {
	WeightPerMinute int           `yaml:"weight_per_minute"`
	MinInterval     time.Duration `yaml:"min_interval"`
	MaxConcurrent   int           `yaml:"max_concurrent"`
	AutoDetect      bool          `yaml:"auto_detect"`
}

type NotionConfig struct {
	APIKey        string        `yaml:"api_key"`
	DatabaseID    string        `yaml:"database_id"`
	BaseURL       string        `yaml:"base_url"`
	Version       string        `yaml:"version"`
	Timeout       time.Duration `yaml:"timeout"`
	WriteInterval time.Duration `yaml:"write_interval"`
	PageRetries   int           `yaml:"page_retries"`
}

// ResolverConfig drives identity and supply lookups against CoinMarketCap
// with CoinGecko as fallback.
type ResolverConfig struct {
	CMCAPIKey         string        `yaml:"cmc_api_key"`
	CMCURL            string        `yaml:"cmc_url"`
	CoinGeckoURL      string        `yaml:"coingecko_url"`
	MappingFile       string        `yaml:"mapping_file"`
	CMCInterval       time.Duration `yaml:"cmc_interval"`
	CoinGeckoInterval time.Duration `yaml:"coingecko_interval"`
}

type UpdaterConfig struct {
	Workers       int           `yaml:"workers"`
	RetryRounds   int           `yaml:"retry_rounds"`
	RetryPause    time.Duration `yaml:"retry_pause"`
	BlacklistFile string        `yaml:"blacklist_file"`
}

type StreamConfig struct {
	Enabled bool          `yaml:"enabled"`
	URL     string        `yaml:"url"`
	MaxAge  time.Duration `yaml:"max_age"`
}

type ArchiveConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Dir      string `yaml:"dir"`
	S3Bucket string `yaml:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix"`
	Region   string `yaml:"region"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	CloudWatchEnabled bool          `yaml:"cloudwatch_enabled"`
	Region            string        `yaml:"region"`
	ReportInterval    time.Duration `yaml:"report_interval"`
}

// LoadConfig reads the YAML file, fills defaults and applies environment
// overrides for all secrets.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvironment()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "notion-dashboard"
	}
	if c.Binance.SpotURL == "" {
		c.Binance.SpotURL = "https://api.binance.com"
	}
	if c.Binance.FuturesURL == "" {
		c.Binance.FuturesURL = "https://fapi.binance.com"
	}
	if c.Binance.Timeout <= 0 {
		c.Binance.Timeout = 10 * time.Second
	}
	if c.Binance.Weights.Ticker <= 0 {
		c.Binance.Weights.Ticker = 40
	}
	if c.Binance.Weights.PremiumIndex <= 0 {
		c.Binance.Weights.PremiumIndex = 10
	}
	if c.Binance.Weights.OpenInterest <= 0 {
		c.Binance.Weights.OpenInterest = 1
	}
	if c.Binance.Weights.FundingRate <= 0 {
		c.Binance.Weights.FundingRate = 1
	}
	if c.Binance.Weights.Constituents <= 0 {
		c.Binance.Weights.Constituents = 2
	}
	if c.Binance.Weights.ExchangeInfo <= 0 {
		c.Binance.Weights.ExchangeInfo = 20
	}
	if c.Binance.Budget.WeightPerMinute <= 0 {
		c.Binance.Budget.WeightPerMinute = 2400
	}
	if c.Binance.Budget.MinInterval <= 0 {
		c.Binance.Budget.MinInterval = 50 * time.Millisecond
	}
	if c.Binance.Budget.MaxConcurrent <= 0 {
		c.Binance.Budget.MaxConcurrent = 20
	}
	if c.Notion.BaseURL == "" {
		c.Notion.BaseURL = "https://api.notion.com/v1"
	}
	if c.Notion.Version == "" {
		c.Notion.Version = "2022-06-28"
	}
	if c.Notion.Timeout <= 0 {
		c.Notion.Timeout = 30 * time.Second
	}
	if c.Notion.WriteInterval < 0 {
		c.Notion.WriteInterval = 0
	}
	if c.Notion.PageRetries <= 0 {
		c.Notion.PageRetries = 3
	}
	if c.Resolver.CMCURL == "" {
		c.Resolver.CMCURL = "https://pro-api.coinmarketcap.com"
	}
	if c.Resolver.CoinGeckoURL == "" {
		c.Resolver.CoinGeckoURL = "https://api.coingecko.com/api/v3"
	}
	if c.Resolver.CMCInterval <= 0 {
		c.Resolver.CMCInterval = 2 * time.Second
	}
	if c.Resolver.CoinGeckoInterval <= 0 {
		c.Resolver.CoinGeckoInterval = 6 * time.Second
	}
	if c.Updater.Workers <= 0 {
		c.Updater.Workers = 20
	}
	if c.Updater.RetryRounds <= 0 {
		c.Updater.RetryRounds = 5
	}
	if c.Updater.RetryPause <= 0 {
		c.Updater.RetryPause = 2 * time.Second
	}
	if c.Stream.URL == "" {
		c.Stream.URL = "wss://fstream.binance.com/ws/!miniTicker@arr"
	}
	if c.Stream.MaxAge <= 0 {
		c.Stream.MaxAge = 30 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
	if c.Metrics.Region == "" {
		c.Metrics.Region = "us-east-1"
	}
	if c.Metrics.ReportInterval <= 0 {
		c.Metrics.ReportInterval = 5 * time.Minute
	}
	if c.Archive.Region == "" {
		c.Archive.Region = c.Metrics.Region
	}
}

func (c *Config) applyEnvironment() {
	if v := os.Getenv("NOTION_API_KEY"); v != "" {
		c.Notion.APIKey = v
	}
	if v := os.Getenv("NOTION_DATABASE_ID"); v != "" {
		c.Notion.DatabaseID = v
	}
	if v := os.Getenv("CMC_API_KEY"); v != "" {
		c.Resolver.CMCAPIKey = v
	}
}

func (c *Config) validate() error {
	if c.Notion.APIKey == "" {
		return fmt.Errorf("notion api key is required (set NOTION_API_KEY or notion.api_key)")
	}
	if c.Notion.DatabaseID == "" {
		return fmt.Errorf("notion database id is required (set NOTION_DATABASE_ID or notion.database_id)")
	}
	if c.Updater.Workers > 200 {
		return fmt.Errorf("updater.workers %d exceeds sane bound", c.Updater.Workers)
	}
	if c.Binance.Budget.WeightPerMinute > 6000 {
		return fmt.Errorf("binance.budget.weight_per_minute %d exceeds exchange maximum", c.Binance.Budget.WeightPerMinute)
	}
	return nil
}
