package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"PaperDesk/internal/cache"
	"PaperDesk/internal/risk"
)

// Market data providers.
const (
	ProviderBinance = "binance"
	ProviderYahoo   = "yahoo"
	ProviderMock    = "mock"
)

// Execution backends.
const (
	BackendSimulated = "simulated"
	BackendTicker    = "ticker"
)

// ChatSource configures one OpenAI-compatible decision source.
type ChatSource struct {
	Name          string        `yaml:"name"`
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	APIKeyEnv     string        `yaml:"api_key_env"`
	Model         string        `yaml:"model"`
	Temperature   float64       `yaml:"temperature"`
	MaxTokens     int           `yaml:"max_tokens"`
	CostPerKToken float64       `yaml:"cost_per_k_token"`
	Timeout       time.Duration `yaml:"timeout"`
}

// FusedSource combines member sources by confidence-weighted vote.
type FusedSource struct {
	Name    string   `yaml:"name"`
	Members []string `yaml:"members"`
}

// Account configures one paper-trading account.
type Account struct {
	ID             string            `yaml:"id"`
	Name           string            `yaml:"name"`
	Source         string            `yaml:"source"`
	Symbols        []string          `yaml:"symbols"`
	Bindings       map[string]string `yaml:"bindings"`     // symbol -> source
	CacheLevels    map[string]string `yaml:"cache_levels"` // symbol -> cache level
	InitialBalance float64           `yaml:"initial_balance"`
	Backend        string            `yaml:"backend"`
	SlippageBps    float64           `yaml:"slippage_bps"`
}

// Config holds all application configuration.
type Config struct {
	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
	Scheduler struct {
		Interval       time.Duration `yaml:"interval"`
		CallTimeout    time.Duration `yaml:"call_timeout"`
		Concurrency    int           `yaml:"concurrency"`
		UnhealthyAfter int           `yaml:"unhealthy_after"`
		PriceDigits    int           `yaml:"price_digits"`
		FeeRate        float64       `yaml:"fee_rate"`
	} `yaml:"scheduler"`
	Cache struct {
		Levels map[string]time.Duration `yaml:"levels"`
	} `yaml:"cache"`
	Risk    risk.Limits `yaml:"risk"`
	Sources struct {
		Priority []string      `yaml:"priority"`
		Rules    string        `yaml:"rules"` // name of the local rule source, empty disables it
		Chat     []ChatSource  `yaml:"chat"`
		Fused    []FusedSource `yaml:"fused"`
	} `yaml:"sources"`
	Market struct {
		Provider      string        `yaml:"provider"`
		BaseURL       string        `yaml:"base_url"`
		LongInterval  string        `yaml:"long_interval"`
		ShortInterval string        `yaml:"short_interval"`
		Limit         int           `yaml:"limit"`
		Timeout       time.Duration `yaml:"timeout"`
		MockPrice     float64       `yaml:"mock_price"`
	} `yaml:"market"`
	Accounts []Account `yaml:"accounts"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	State struct {
		Dir string `yaml:"dir"`
	} `yaml:"state"`
	Schedule struct {
		SnapshotCron string `yaml:"snapshot_cron"`
		SweepCron    string `yaml:"sweep_cron"`
		ReportCron   string `yaml:"report_cron"`
	} `yaml:"schedule"`
	Telegram struct {
		BaseURL  string `yaml:"base_url"`
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
	Proxy string `yaml:"proxy"`
}

// Load reads .env (when present), then the YAML file, then applies
// environment variable overrides and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Proxy = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("STATE_DIR"); v != "" {
		c.State.Dir = v
	}
	if v := os.Getenv("MARKET_PROVIDER"); v != "" {
		c.Market.Provider = v
	}
	if v := os.Getenv("MARKET_BASE_URL"); v != "" {
		c.Market.BaseURL = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CYCLE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CYCLE_INTERVAL: %w", err)
		}
		c.Scheduler.Interval = d
	}
	if v := os.Getenv("FEE_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("FEE_RATE: %w", err)
		}
		c.Scheduler.FeeRate = f
	}
	for i := range c.Sources.Chat {
		if env := c.Sources.Chat[i].APIKeyEnv; env != "" {
			if v := os.Getenv(env); v != "" {
				c.Sources.Chat[i].APIKey = v
			}
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = 5 * time.Minute
	}
	if c.Scheduler.CallTimeout == 0 {
		c.Scheduler.CallTimeout = 60 * time.Second
	}
	if c.Scheduler.Concurrency == 0 {
		c.Scheduler.Concurrency = 4
	}
	if c.Scheduler.UnhealthyAfter == 0 {
		c.Scheduler.UnhealthyAfter = 3
	}
	if c.Scheduler.PriceDigits == 0 {
		c.Scheduler.PriceDigits = cache.DefaultPriceDigits
	}
	if c.Scheduler.FeeRate == 0 {
		c.Scheduler.FeeRate = 0.001
	}
	if len(c.Cache.Levels) == 0 {
		c.Cache.Levels = cache.DefaultLevels()
	}
	c.Risk = fillLimits(c.Risk)
	if c.Sources.Rules == "" && len(c.Sources.Chat) == 0 && len(c.Sources.Fused) == 0 {
		c.Sources.Rules = "rules"
	}
	if c.Market.Provider == "" {
		c.Market.Provider = ProviderBinance
	}
	if c.Market.Timeout == 0 {
		c.Market.Timeout = 30 * time.Second
	}
	if c.Market.MockPrice == 0 {
		c.Market.MockPrice = 50000
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/paperdesk.db"
	}
	if c.State.Dir == "" {
		c.State.Dir = "data/state"
	}
	if c.Schedule.SnapshotCron == "" {
		c.Schedule.SnapshotCron = "0 */15 * * * *"
	}
	if c.Schedule.SweepCron == "" {
		c.Schedule.SweepCron = "0 * * * * *"
	}
	if c.Schedule.ReportCron == "" {
		c.Schedule.ReportCron = "0 0 9 * * *"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	for i := range c.Accounts {
		a := &c.Accounts[i]
		if a.Name == "" {
			a.Name = a.ID
		}
		if a.Source == "" {
			a.Source = c.Sources.Rules
		}
		if a.InitialBalance == 0 {
			a.InitialBalance = 100000
		}
		if a.Backend == "" {
			a.Backend = BackendSimulated
		}
	}
}

// fillLimits fills unset limits with the built-in ones. A zero default
// correlation is kept since it is a meaningful setting.
func fillLimits(l risk.Limits) risk.Limits {
	d := risk.DefaultLimits()
	if l.MaxPositionSize == 0 {
		l.MaxPositionSize = d.MaxPositionSize
	}
	if l.MaxLeverage == 0 {
		l.MaxLeverage = d.MaxLeverage
	}
	if l.MaxPortfolioRisk == 0 {
		l.MaxPortfolioRisk = d.MaxPortfolioRisk
	}
	if l.MaxCorrelation == 0 {
		l.MaxCorrelation = d.MaxCorrelation
	}
	if l.PositionVolatility == 0 {
		l.PositionVolatility = d.PositionVolatility
	}
	return l
}

// SourceNames returns every configured source name.
func (c *Config) SourceNames() map[string]bool {
	names := make(map[string]bool)
	if c.Sources.Rules != "" {
		names[c.Sources.Rules] = true
	}
	for _, s := range c.Sources.Chat {
		names[s.Name] = true
	}
	for _, f := range c.Sources.Fused {
		names[f.Name] = true
	}
	return names
}

// StateFile returns the book state path of an account.
func (c *Config) StateFile(accountID string) string {
	return filepath.Join(c.State.Dir, accountID+".json")
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive")
	}
	if c.Scheduler.CallTimeout <= 0 {
		return fmt.Errorf("scheduler.call_timeout must be positive")
	}
	if c.Scheduler.Concurrency < 1 {
		return fmt.Errorf("scheduler.concurrency must be at least 1")
	}
	if c.Scheduler.UnhealthyAfter < 1 {
		return fmt.Errorf("scheduler.unhealthy_after must be at least 1")
	}
	if c.Scheduler.PriceDigits < 1 {
		return fmt.Errorf("scheduler.price_digits must be at least 1")
	}
	if c.Scheduler.FeeRate < 0 || c.Scheduler.FeeRate >= 1 {
		return fmt.Errorf("scheduler.fee_rate must be in [0,1)")
	}
	for name, ttl := range c.Cache.Levels {
		if ttl <= 0 {
			return fmt.Errorf("cache.levels.%s must be positive", name)
		}
	}
	if err := c.validateRisk(); err != nil {
		return err
	}
	if err := c.validateSources(); err != nil {
		return err
	}
	switch c.Market.Provider {
	case ProviderBinance, ProviderYahoo, ProviderMock:
	default:
		return fmt.Errorf("market.provider %q unknown", c.Market.Provider)
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return c.validateAccounts()
}

func (c *Config) validateRisk() error {
	r := c.Risk
	if r.MaxPositionSize <= 0 || r.MaxPositionSize > 1 {
		return fmt.Errorf("risk.max_position_size must be in (0,1]")
	}
	if r.MaxLeverage < 1 {
		return fmt.Errorf("risk.max_leverage must be at least 1")
	}
	if r.MaxPortfolioRisk <= 0 {
		return fmt.Errorf("risk.max_portfolio_risk must be positive")
	}
	if r.MaxCorrelation <= 0 || r.MaxCorrelation > 1 {
		return fmt.Errorf("risk.max_correlation must be in (0,1]")
	}
	if r.DefaultCorrelation < 0 || r.DefaultCorrelation > 1 {
		return fmt.Errorf("risk.default_correlation must be in [0,1]")
	}
	for pair, v := range r.Correlations {
		if _, _, ok := risk.ParsePair(pair); !ok {
			return fmt.Errorf("risk.correlations: bad pair %q, want A/B", pair)
		}
		if v < -1 || v > 1 {
			return fmt.Errorf("risk.correlations.%s must be in [-1,1]", pair)
		}
	}
	return nil
}

func (c *Config) validateSources() error {
	seen := make(map[string]bool)
	add := func(name string) error {
		if name == "" {
			return fmt.Errorf("sources: empty source name")
		}
		if seen[name] {
			return fmt.Errorf("sources: duplicate source %q", name)
		}
		seen[name] = true
		return nil
	}
	if c.Sources.Rules != "" {
		if err := add(c.Sources.Rules); err != nil {
			return err
		}
	}
	for _, s := range c.Sources.Chat {
		if err := add(s.Name); err != nil {
			return err
		}
		if s.BaseURL == "" || s.Model == "" {
			return fmt.Errorf("sources.chat.%s: base_url and model are required", s.Name)
		}
	}
	for _, f := range c.Sources.Fused {
		if err := add(f.Name); err != nil {
			return err
		}
	}
	for _, f := range c.Sources.Fused {
		if len(f.Members) < 2 {
			return fmt.Errorf("sources.fused.%s: needs at least two members", f.Name)
		}
		for _, m := range f.Members {
			if !seen[m] || m == f.Name {
				return fmt.Errorf("sources.fused.%s: unknown member %q", f.Name, m)
			}
		}
	}
	for _, p := range c.Sources.Priority {
		if !seen[p] {
			return fmt.Errorf("sources.priority: unknown source %q", p)
		}
	}
	return nil
}

func (c *Config) validateAccounts() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account is required")
	}
	names := c.SourceNames()
	ids := make(map[string]bool)
	for _, a := range c.Accounts {
		if a.ID == "" {
			return fmt.Errorf("accounts: id is required")
		}
		if ids[a.ID] {
			return fmt.Errorf("accounts: duplicate id %q", a.ID)
		}
		ids[a.ID] = true
		if len(a.Symbols) == 0 {
			return fmt.Errorf("accounts.%s: symbols are required", a.ID)
		}
		if a.InitialBalance <= 0 {
			return fmt.Errorf("accounts.%s: initial_balance must be positive", a.ID)
		}
		if !names[a.Source] {
			return fmt.Errorf("accounts.%s: unknown source %q", a.ID, a.Source)
		}
		for sym, src := range a.Bindings {
			if !names[src] {
				return fmt.Errorf("accounts.%s: symbol %s bound to unknown source %q", a.ID, sym, src)
			}
		}
		for sym, level := range a.CacheLevels {
			if _, ok := c.Cache.Levels[level]; !ok && level != cache.DefaultLevel {
				return fmt.Errorf("accounts.%s: symbol %s uses unknown cache level %q", a.ID, sym, level)
			}
		}
		switch a.Backend {
		case BackendSimulated, BackendTicker:
		default:
			return fmt.Errorf("accounts.%s: backend %q unknown", a.ID, a.Backend)
		}
		if a.SlippageBps < 0 {
			return fmt.Errorf("accounts.%s: slippage_bps must not be negative", a.ID)
		}
	}
	return nil
}
