package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Currency string        `mapstructure:"currency"`
	Deribit  DeribitConfig `mapstructure:"deribit"`
	Engine   EngineConfig  `mapstructure:"engine"`
	Enrich   EnrichConfig  `mapstructure:"enrich"`
	Archive  ArchiveConfig `mapstructure:"archive"`
	Poll     PollConfig    `mapstructure:"poll"`
	Logging  LoggingConfig `mapstructure:"logging"`
}

type DeribitConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	WSURL         string `mapstructure:"ws_url"`
	Transport     string `mapstructure:"transport"` // "http" or "ws"
	TimeoutSec    int    `mapstructure:"timeout_sec"`
	RetryCount    int    `mapstructure:"retry_count"`
	RatePerSecond int    `mapstructure:"rate_per_second"`
}

type EngineConfig struct {
	RiskFreeRate float64 `mapstructure:"risk_free_rate"`
	TopN         int     `mapstructure:"top_n"`
}

type EnrichConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	BatchSize int  `mapstructure:"batch_size"`
}

type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
}

type PollConfig struct {
	IntervalSec int `mapstructure:"interval_sec"`
}

type LoggingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("currency", "BTC")
	v.SetDefault("deribit.base_url", "https://www.deribit.com/api/v2")
	v.SetDefault("deribit.ws_url", "wss://www.deribit.com/ws/api/v2")
	v.SetDefault("deribit.transport", "http")
	v.SetDefault("deribit.timeout_sec", 15)
	v.SetDefault("deribit.retry_count", 2)
	v.SetDefault("deribit.rate_per_second", 10)
	v.SetDefault("engine.risk_free_rate", 0.0)
	v.SetDefault("engine.top_n", 10)
	v.SetDefault("enrich.enabled", false)
	v.SetDefault("enrich.batch_size", 50)
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.directory", "data")
	v.SetDefault("poll.interval_sec", 60)
	v.SetDefault("logging.enabled", true)
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")

	// Environment variable support
	v.SetEnvPrefix("GEXD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Explicitly bind nested keys to env vars
	_ = v.BindEnv("currency", "GEXD_CURRENCY")
	_ = v.BindEnv("deribit.base_url", "GEXD_DERIBIT_BASE_URL")

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Currency = strings.ToUpper(cfg.Currency)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	if !IsSupportedCurrency(c.Currency) {
		errs.InvalidCurrencies = append(errs.InvalidCurrencies, c.Currency)
	}
	if c.Deribit.Transport != "http" && c.Deribit.Transport != "ws" {
		errs.InvalidFields = append(errs.InvalidFields,
			InvalidField{Name: "deribit.transport", Reason: "must be 'http' or 'ws'"})
	}
	if c.Deribit.TimeoutSec < 1 {
		errs.InvalidFields = append(errs.InvalidFields,
			InvalidField{Name: "deribit.timeout_sec", Reason: "must be >= 1"})
	}
	if c.Deribit.RetryCount < 0 {
		errs.InvalidFields = append(errs.InvalidFields,
			InvalidField{Name: "deribit.retry_count", Reason: "must be >= 0"})
	}
	if c.Deribit.RatePerSecond < 1 {
		errs.InvalidFields = append(errs.InvalidFields,
			InvalidField{Name: "deribit.rate_per_second", Reason: "must be >= 1"})
	}
	if c.Enrich.BatchSize < 1 {
		errs.InvalidFields = append(errs.InvalidFields,
			InvalidField{Name: "enrich.batch_size", Reason: "must be >= 1"})
	}
	if c.Poll.IntervalSec < 1 {
		errs.InvalidFields = append(errs.InvalidFields,
			InvalidField{Name: "poll.interval_sec", Reason: "must be >= 1"})
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
