package main

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"PaperDesk/internal/account"
	"PaperDesk/internal/book"
	"PaperDesk/internal/cache"
	"PaperDesk/internal/collector"
	"PaperDesk/internal/config"
	"PaperDesk/internal/notifier"
	"PaperDesk/internal/recorder"
	"PaperDesk/internal/risk"
	"PaperDesk/internal/scheduler"
	"PaperDesk/internal/source"
)

// app holds everything built from the configuration.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	fetcher  collector.Fetcher
	registry *source.Registry
	recorder recorder.Recorder
	notifier notifier.Notifier
	telegram *notifier.TelegramNotifier
	manager  *account.Manager
}

func newLogger(level string, development bool) (*zap.Logger, error) {
	var zc zap.Config
	if development {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zc = zap.NewProductionConfig()
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc.Level = lvl
	return zc.Build()
}

func loadApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	logger, err := newLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	if err := a.build(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) build() error {
	cfg := a.cfg

	switch cfg.Market.Provider {
	case config.ProviderYahoo:
		a.fetcher = collector.NewYahooFetcher(cfg.Market.BaseURL, cfg.Proxy, cfg.Market.Timeout)
	case config.ProviderMock:
		a.fetcher = &collector.MockFetcher{Price: cfg.Market.MockPrice, Step: 0.001}
	default:
		a.fetcher = collector.NewBinanceFetcher(cfg.Market.BaseURL, cfg.Proxy, cfg.Market.Timeout)
	}
	a.logger.Info("market data source", zap.String("fetcher", a.fetcher.Name()))
	col := collector.NewCollector(a.fetcher, collector.Options{
		LongInterval:  cfg.Market.LongInterval,
		ShortInterval: cfg.Market.ShortInterval,
		Limit:         cfg.Market.Limit,
	}, a.logger)

	reg, err := buildRegistry(cfg, a.logger)
	if err != nil {
		return err
	}
	a.registry = reg

	a.recorder = recorder.NewNoopRecorder()
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, a.logger)
		if err != nil {
			a.logger.Warn("init sqlite recorder failed, using noop", zap.Error(err))
		} else {
			a.recorder = sr
		}
	}

	a.notifier = notifier.NoopNotifier{}
	if cfg.Telegram.BotToken != "" {
		a.telegram = notifier.NewTelegramNotifier(cfg.Telegram.BaseURL, cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, a.logger)
		a.notifier = a.telegram
	}

	a.manager = account.NewManager(account.Options{Logger: a.logger, Recorder: a.recorder, Notifier: a.notifier})
	gate := risk.NewGate(cfg.Risk)
	for _, ac := range cfg.Accounts {
		acct, err := a.buildAccount(ac, gate, col)
		if err != nil {
			return err
		}
		if err := a.manager.Add(acct); err != nil {
			return err
		}
	}
	return nil
}

func buildRegistry(cfg *config.Config, logger *zap.Logger) (*source.Registry, error) {
	reg, err := source.NewRegistry()
	if err != nil {
		return nil, err
	}
	if cfg.Sources.Rules != "" {
		if err := reg.Register(source.NewRuleSource(cfg.Sources.Rules)); err != nil {
			return nil, err
		}
	}
	for _, c := range cfg.Sources.Chat {
		s := source.NewChatSource(source.ChatConfig{
			Name:          c.Name,
			BaseURL:       c.BaseURL,
			APIKey:        c.APIKey,
			Model:         c.Model,
			Temperature:   c.Temperature,
			MaxTokens:     c.MaxTokens,
			CostPerKToken: c.CostPerKToken,
			Timeout:       c.Timeout,
			ProxyURL:      cfg.Proxy,
		}, logger)
		if err := reg.Register(s); err != nil {
			return nil, err
		}
	}
	for _, f := range cfg.Sources.Fused {
		members := make([]source.Source, 0, len(f.Members))
		for _, name := range f.Members {
			m, ok := reg.Get(name)
			if !ok {
				return nil, fmt.Errorf("fused source %s: member %s is not registered", f.Name, name)
			}
			members = append(members, m)
		}
		if err := reg.Register(source.NewFusedSource(f.Name, members...)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (a *app) buildAccount(ac config.Account, gate *risk.Gate, features scheduler.FeatureProvider) (*account.Account, error) {
	var backend book.ExecutionBackend = book.Simulated{SlippageBps: ac.SlippageBps}
	if ac.Backend == config.BackendTicker {
		backend = book.Brokered{Broker: collector.TickerBroker{Fetcher: a.fetcher}}
	}
	b := book.New(ac.ID, ac.InitialBalance, a.cfg.Scheduler.FeeRate, backend, book.WithLogger(a.logger))

	stateFile := a.cfg.StateFile(ac.ID)
	state, err := book.LoadState(stateFile)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", ac.ID, err)
	}
	if state != nil {
		if err := b.Restore(state); err != nil {
			return nil, fmt.Errorf("account %s: %w", ac.ID, err)
		}
		a.logger.Info("account restored",
			zap.String("account", ac.ID),
			zap.Int("positions", len(state.Positions)),
			zap.Int("trades", len(state.Trades)))
	}

	s, err := scheduler.New(scheduler.Options{
		AccountID:      ac.ID,
		Symbols:        ac.Symbols,
		Source:         ac.Source,
		Bindings:       ac.Bindings,
		Priority:       a.cfg.Sources.Priority,
		Interval:       a.cfg.Scheduler.Interval,
		CallTimeout:    a.cfg.Scheduler.CallTimeout,
		Concurrency:    a.cfg.Scheduler.Concurrency,
		CacheLevels:    ac.CacheLevels,
		UnhealthyAfter: a.cfg.Scheduler.UnhealthyAfter,
		PriceDigits:    a.cfg.Scheduler.PriceDigits,
		StateFile:      stateFile,
		Logger:         a.logger,
		Recorder:       a.recorder,
		Notifier:       a.notifier,
	}, b, cache.New(a.cfg.Cache.Levels), a.registry, gate, features)
	if err != nil {
		return nil, err
	}
	return &account.Account{ID: ac.ID, Name: ac.Name, Source: ac.Source, Scheduler: s}, nil
}

func (a *app) Close() {
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			a.logger.Warn("close recorder", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
