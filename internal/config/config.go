package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log      LoggingConfig  `yaml:"log"`
	Gamma    GammaConfig    `yaml:"gamma"`
	Clob     ClobConfig     `yaml:"clob"`
	WS       WSConfig       `yaml:"ws"`
	State    StateConfig    `yaml:"state"`
	Market   MarketConfig   `yaml:"market"`
	Strategy StrategyConfig `yaml:"strategy"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Research ResearchConfig `yaml:"research"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type GammaConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type ClobConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type WSConfig struct {
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	MaxRetries     int           `yaml:"max_retries"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// MarketConfig describes how the active round is discovered. SeriesSlug drives
// dynamic discovery through Gamma; the fallback block pins a static round for
// when discovery returns nothing.
type MarketConfig struct {
	SeriesSlug         string        `yaml:"series_slug"`
	RoundCheckInterval time.Duration `yaml:"round_check_interval"`

	FallbackSlug      string    `yaml:"fallback_slug"`
	FallbackUpToken   string    `yaml:"fallback_up_token"`
	FallbackDownToken string    `yaml:"fallback_down_token"`
	FallbackStart     time.Time `yaml:"fallback_start"`
	FallbackEnd       time.Time `yaml:"fallback_end"`
}

// StrategyConfig carries every tunable the dump-hedge strategy reads. The same
// ranges are enforced on load and on any runtime update, so an in-flight tick
// never observes a half-applied or out-of-range snapshot.
type StrategyConfig struct {
	DropThreshold    float64       `yaml:"drop_threshold"`
	MonitorWindowMin int           `yaml:"monitor_window_min"`
	SubWindow        time.Duration `yaml:"sub_window"`
	HedgeSumTarget   float64       `yaml:"hedge_sum_target"`
	Shares           int           `yaml:"shares"`
	FeeRate          float64       `yaml:"fee_rate"`
	BufferSize       int           `yaml:"buffer_size"`
	TickInterval     time.Duration `yaml:"tick_interval"`
	DryRun           bool          `yaml:"dry_run"`
	AutoStart        bool          `yaml:"auto_start"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type ResearchConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
	Schema  string `yaml:"schema"`
}

type TelegramConfig struct {
	Enabled                bool          `yaml:"enabled"`
	Token                  string        `yaml:"token"`
	ChatID                 string        `yaml:"chat_id"`
	OperatorEnabled        bool          `yaml:"operator_enabled"`
	OperatorPollInterval   time.Duration `yaml:"operator_poll_interval"`
	OperatorAllowedUserIDs []int64       `yaml:"operator_allowed_user_ids"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Gamma.BaseURL == "" {
		cfg.Gamma.BaseURL = "https://gamma-api.polymarket.com"
	}
	if cfg.Gamma.Timeout == 0 {
		cfg.Gamma.Timeout = 10 * time.Second
	}
	if cfg.Clob.BaseURL == "" {
		cfg.Clob.BaseURL = "https://clob.polymarket.com"
	}
	if cfg.Clob.Timeout == 0 {
		cfg.Clob.Timeout = 10 * time.Second
	}
	if cfg.WS.URL == "" {
		cfg.WS.URL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	}
	if cfg.WS.ReconnectDelay == 0 {
		cfg.WS.ReconnectDelay = 3 * time.Second
	}
	if cfg.WS.MaxRetries == 0 {
		cfg.WS.MaxRetries = 10
	}
	if cfg.WS.PingInterval == 0 {
		cfg.WS.PingInterval = 10 * time.Second
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/poly-dump-hedge.db"
	}
	if cfg.Market.RoundCheckInterval == 0 {
		cfg.Market.RoundCheckInterval = 15 * time.Second
	}
	if cfg.Strategy.DropThreshold == 0 {
		cfg.Strategy.DropThreshold = 0.15
	}
	if cfg.Strategy.MonitorWindowMin == 0 {
		cfg.Strategy.MonitorWindowMin = 2
	}
	if cfg.Strategy.SubWindow == 0 {
		cfg.Strategy.SubWindow = 5 * time.Second
	}
	if cfg.Strategy.HedgeSumTarget == 0 {
		cfg.Strategy.HedgeSumTarget = 0.95
	}
	if cfg.Strategy.Shares == 0 {
		cfg.Strategy.Shares = 100
	}
	if cfg.Strategy.BufferSize == 0 {
		cfg.Strategy.BufferSize = 300
	}
	if cfg.Strategy.TickInterval == 0 {
		cfg.Strategy.TickInterval = 3 * time.Second
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9102"
	}
	if cfg.Research.Schema == "" {
		cfg.Research.Schema = "public"
	}
	if cfg.Telegram.OperatorPollInterval == 0 {
		cfg.Telegram.OperatorPollInterval = 3 * time.Second
	}
}

func validate(cfg *Config) error {
	if cfg.Market.SeriesSlug == "" && cfg.Market.FallbackSlug == "" {
		return errors.New("market.series_slug or market.fallback_slug is required")
	}
	if cfg.Market.FallbackSlug != "" {
		if cfg.Market.FallbackUpToken == "" || cfg.Market.FallbackDownToken == "" {
			return errors.New("market fallback requires fallback_up_token and fallback_down_token")
		}
	}
	return ValidateStrategy(cfg.Strategy)
}

// ValidateStrategy enforces the strategy parameter ranges. It is shared by
// startup validation and runtime overrides so both paths reject the same inputs.
func ValidateStrategy(s StrategyConfig) error {
	if s.DropThreshold < 0.01 || s.DropThreshold > 0.30 {
		return fmt.Errorf("strategy.drop_threshold must be within [0.01, 0.30], got %v", s.DropThreshold)
	}
	if s.MonitorWindowMin < 1 || s.MonitorWindowMin > 15 {
		return fmt.Errorf("strategy.monitor_window_min must be within [1, 15], got %d", s.MonitorWindowMin)
	}
	if s.HedgeSumTarget < 0.5 || s.HedgeSumTarget > 1.0 {
		return fmt.Errorf("strategy.hedge_sum_target must be within [0.5, 1.0], got %v", s.HedgeSumTarget)
	}
	if s.Shares <= 0 {
		return fmt.Errorf("strategy.shares must be a positive integer, got %d", s.Shares)
	}
	if s.FeeRate < 0 {
		return fmt.Errorf("strategy.fee_rate must be >= 0, got %v", s.FeeRate)
	}
	if s.SubWindow <= 0 {
		return fmt.Errorf("strategy.sub_window must be > 0, got %v", s.SubWindow)
	}
	if s.BufferSize <= 0 {
		return fmt.Errorf("strategy.buffer_size must be > 0, got %d", s.BufferSize)
	}
	if s.TickInterval <= 0 {
		return fmt.Errorf("strategy.tick_interval must be > 0, got %v", s.TickInterval)
	}
	return nil
}
