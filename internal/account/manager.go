// Package account runs several independent paper-trading accounts side by
// side and compares how their decision sources perform.
package account

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"PaperDesk/internal/metrics"
	"PaperDesk/internal/model"
	"PaperDesk/internal/notifier"
	"PaperDesk/internal/recorder"
	"PaperDesk/internal/scheduler"
)

// Account is one configured account: its scheduler owns the book and cache.
type Account struct {
	ID        string
	Name      string
	Source    string
	Scheduler *scheduler.Scheduler
}

// Options configures a Manager.
type Options struct {
	Logger   *zap.Logger
	Recorder recorder.Recorder
	Notifier notifier.Notifier
}

// Manager owns N independent accounts.
type Manager struct {
	mu       sync.RWMutex
	accounts []*Account
	byID     map[string]*Account

	logger   *zap.Logger
	recorder recorder.Recorder
	notifier notifier.Notifier
}

// NewManager creates an empty manager.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Recorder == nil {
		opts.Recorder = recorder.NewNoopRecorder()
	}
	if opts.Notifier == nil {
		opts.Notifier = notifier.NoopNotifier{}
	}
	return &Manager{
		byID:     make(map[string]*Account),
		logger:   opts.Logger.With(zap.String("component", "accounts")),
		recorder: opts.Recorder,
		notifier: opts.Notifier,
	}
}

// Add registers an account. Ids must be unique.
func (m *Manager) Add(a *Account) error {
	if a == nil || a.Scheduler == nil {
		return errors.New("account: nil account or scheduler")
	}
	if a.ID == "" {
		a.ID = a.Scheduler.AccountID()
	}
	if a.Name == "" {
		a.Name = a.ID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[a.ID]; ok {
		return fmt.Errorf("account %q already exists", a.ID)
	}
	m.byID[a.ID] = a
	m.accounts = append(m.accounts, a)
	return nil
}

// Get returns the account with the given id.
func (m *Manager) Get(id string) (*Account, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.byID[id]
	return a, ok
}

// Accounts returns the accounts in registration order.
func (m *Manager) Accounts() []*Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Account(nil), m.accounts...)
}

// RunCycleAll runs one cycle of every account concurrently and joins. It
// returns the stats of the accounts that completed and the first invariant
// violation, if any.
func (m *Manager) RunCycleAll(ctx context.Context) (map[string]scheduler.CycleStats, error) {
	accounts := m.Accounts()
	stats := make([]scheduler.CycleStats, len(accounts))
	errs := make([]error, len(accounts))

	var g errgroup.Group
	for i, a := range accounts {
		i, a := i, a
		g.Go(func() error {
			stats[i], errs[i] = a.Scheduler.RunCycle(ctx)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]scheduler.CycleStats, len(accounts))
	for i, a := range accounts {
		if errs[i] != nil {
			m.logger.Error("account cycle halted", zap.String("account", a.ID), zap.Error(errs[i]))
			continue
		}
		out[a.ID] = stats[i]
	}
	return out, errors.Join(errs...)
}

// Run runs every account's loop until Stop is called or ctx is done. An
// account halted by an invariant violation does not stop the others.
func (m *Manager) Run(ctx context.Context) error {
	accounts := m.Accounts()
	errs := make([]error, len(accounts))

	var g errgroup.Group
	for i, a := range accounts {
		i, a := i, a
		g.Go(func() error {
			if err := a.Scheduler.Run(ctx); err != nil {
				errs[i] = fmt.Errorf("account %s: %w", a.ID, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Stop stops every account loop.
func (m *Manager) Stop() {
	for _, a := range m.Accounts() {
		a.Scheduler.Stop()
	}
}

// SubmitCycle wakes every account loop for an immediate cycle.
func (m *Manager) SubmitCycle() {
	for _, a := range m.Accounts() {
		a.Scheduler.SubmitCycle()
	}
}

// OnPriceTick forwards an external price to every account holding symbol
// and returns the stop-loss and take-profit exits it caused.
func (m *Manager) OnPriceTick(ctx context.Context, symbol string, price float64) ([]model.Trade, error) {
	var exits []model.Trade
	var errs []error
	for _, a := range m.Accounts() {
		b := a.Scheduler.Book()
		if _, ok := b.Position(symbol); !ok {
			continue
		}
		t, err := b.UpdatePrice(ctx, symbol, price)
		if err != nil {
			errs = append(errs, fmt.Errorf("account %s: %w", a.ID, err))
			continue
		}
		if t == nil {
			continue
		}
		exits = append(exits, *t)
		metrics.Trade(a.ID, t.Reason)
		if err := m.recorder.RecordTrade(*t); err != nil {
			m.logger.Error("record trade", zap.String("account", a.ID), zap.Error(err))
		}
		if err := m.notifier.Send(ctx, notifier.FormatExit(*t)); err != nil {
			m.logger.Warn("notify exit", zap.String("account", a.ID), zap.Error(err))
		}
	}
	return exits, errors.Join(errs...)
}

// SnapshotAll persists a snapshot of every account.
func (m *Manager) SnapshotAll() error {
	var errs []error
	for _, a := range m.Accounts() {
		snap := a.Scheduler.Book().Snapshot()
		metrics.Equity(a.ID, snap.Equity)
		if err := m.recorder.RecordSnapshot(snap); err != nil {
			errs = append(errs, fmt.Errorf("account %s: %w", a.ID, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("snapshot accounts: %w", err)
	}
	m.logger.Info("accounts snapshotted", zap.Int("count", len(m.Accounts())))
	return nil
}

// EvictExpired sweeps expired entries from every account's cache.
func (m *Manager) EvictExpired() int {
	n := 0
	for _, a := range m.Accounts() {
		n += a.Scheduler.Cache().EvictExpired()
	}
	return n
}

// Health returns the symbol health of every account.
func (m *Manager) Health() map[string][]model.SymbolHealth {
	out := make(map[string][]model.SymbolHealth)
	for _, a := range m.Accounts() {
		out[a.ID] = a.Scheduler.Health()
	}
	return out
}

// ComparePerformance ranks the accounts by realized plus unrealized PnL.
func (m *Manager) ComparePerformance() []model.Performance {
	accounts := m.Accounts()
	perfs := make([]model.Performance, 0, len(accounts))
	for _, a := range accounts {
		perfs = append(perfs, performanceOf(a))
	}
	sort.SliceStable(perfs, func(i, j int) bool { return perfs[i].TotalPnL > perfs[j].TotalPnL })
	for i := range perfs {
		perfs[i].Rank = i + 1
	}
	return perfs
}

// BestPerformer returns the top-ranked account.
func (m *Manager) BestPerformer() (model.Performance, bool) {
	perfs := m.ComparePerformance()
	if len(perfs) == 0 {
		return model.Performance{}, false
	}
	return perfs[0], true
}

func performanceOf(a *Account) model.Performance {
	b := a.Scheduler.Book()
	snap := b.Snapshot()
	stats := tradeStats(b.Trades())
	counters := a.Scheduler.Counters()

	p := model.Performance{
		AccountID:     a.ID,
		Name:          a.Name,
		Source:        a.Source,
		Balance:       snap.Balance,
		Equity:        snap.Equity,
		RealizedPnL:   snap.RealizedPnL,
		UnrealizedPnL: snap.UnrealizedPnL,
		TotalPnL:      snap.TotalPnL(),
		OpenPositions: len(snap.Positions),
		TotalTrades:   stats.total,
		WinRate:       stats.winRate(),
		TotalCost:     counters.TotalCost,
		CacheHitRate:  counters.CacheHitRate(),
	}
	if snap.InitialBalance > 0 {
		p.ReturnPct = (snap.Equity - snap.InitialBalance) / snap.InitialBalance * 100
	}
	return p
}

type tradeCounts struct {
	total  int
	closes int
	wins   int
}

func (c tradeCounts) winRate() float64 {
	if c.closes == 0 {
		return 0
	}
	return float64(c.wins) / float64(c.closes)
}

// tradeStats counts all trades; wins are closing trades with positive realized PnL.
func tradeStats(trades []model.Trade) tradeCounts {
	c := tradeCounts{total: len(trades)}
	for _, t := range trades {
		if t.Opening {
			continue
		}
		c.closes++
		if t.RealizedPnL > 0 {
			c.wins++
		}
	}
	return c
}
