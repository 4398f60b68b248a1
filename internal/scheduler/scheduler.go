package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"PaperDesk/internal/book"
	"PaperDesk/internal/cache"
	"PaperDesk/internal/metrics"
	"PaperDesk/internal/model"
	"PaperDesk/internal/notifier"
	"PaperDesk/internal/recorder"
	"PaperDesk/internal/risk"
	"PaperDesk/internal/source"
)

// FeatureProvider supplies market features for a symbol.
type FeatureProvider interface {
	GetFeatures(ctx context.Context, symbol string) (model.MarketFeatures, error)
}

// Options configures a Scheduler.
type Options struct {
	AccountID string
	Symbols   []string
	// Source is the default source bound to every symbol without an entry in Bindings.
	Source   string
	Bindings map[string]string
	Priority []string

	Interval    time.Duration
	CallTimeout time.Duration
	Concurrency int
	// CacheLevels maps a symbol to its cache level; unset symbols use the default level.
	CacheLevels    map[string]string
	UnhealthyAfter int
	PriceDigits    int
	// StateFile, when set, receives the book state after every cycle.
	StateFile string

	Logger   *zap.Logger
	Recorder recorder.Recorder
	Notifier notifier.Notifier
	Clock    func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Minute
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 30 * time.Second
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.UnhealthyAfter <= 0 {
		o.UnhealthyAfter = 3
	}
	if o.PriceDigits <= 0 {
		o.PriceDigits = cache.DefaultPriceDigits
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Recorder == nil {
		o.Recorder = recorder.NewNoopRecorder()
	}
	if o.Notifier == nil {
		o.Notifier = notifier.NoopNotifier{}
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// CycleStats summarizes one cycle.
type CycleStats struct {
	Cycle     int            `json:"cycle"`
	StartedAt time.Time      `json:"started_at"`
	Elapsed   time.Duration  `json:"elapsed"`
	Outcomes  map[string]int `json:"outcomes"`
	Failures  int            `json:"failures"`
	CacheHits int            `json:"cache_hits"`
}

// Counters are the cumulative decision statistics of one scheduler.
type Counters struct {
	Cycles       int     `json:"cycles"`
	CacheHits    int     `json:"cache_hits"`
	CacheLookups int     `json:"cache_lookups"`
	SourceCalls  int     `json:"source_calls"`
	Tokens       int     `json:"tokens"`
	TotalCost    float64 `json:"total_cost"`
}

// CacheHitRate is hits over lookups, 0 before the first lookup.
func (c Counters) CacheHitRate() float64 {
	if c.CacheLookups == 0 {
		return 0
	}
	return float64(c.CacheHits) / float64(c.CacheLookups)
}

type symbolHealth struct {
	failures    int
	unhealthy   bool
	lastOutcome string
	lastErr     string
	lastRun     time.Time
}

// Scheduler runs the decision cycle of one account over its symbols.
type Scheduler struct {
	opts     Options
	book     *book.Book
	cache    *cache.Cache
	registry *source.Registry
	gate     *risk.Gate
	features FeatureProvider
	logger   *zap.Logger

	mu       sync.Mutex
	health   map[string]*symbolHealth
	counters Counters

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a scheduler for one account.
func New(opts Options, b *book.Book, c *cache.Cache, reg *source.Registry, gate *risk.Gate, features FeatureProvider) (*Scheduler, error) {
	opts = opts.withDefaults()
	if b == nil || c == nil || reg == nil || gate == nil || features == nil {
		return nil, errors.New("scheduler: book, cache, registry, gate and features are required")
	}
	if len(opts.Symbols) == 0 {
		return nil, fmt.Errorf("scheduler %s: no symbols", opts.AccountID)
	}
	for _, sym := range opts.Symbols {
		if opts.bound(sym) == "" {
			return nil, fmt.Errorf("scheduler %s: symbol %s has no bound source", opts.AccountID, sym)
		}
	}
	health := make(map[string]*symbolHealth, len(opts.Symbols))
	for _, sym := range opts.Symbols {
		health[sym] = &symbolHealth{}
	}
	return &Scheduler{
		opts:     opts,
		book:     b,
		cache:    c,
		registry: reg,
		gate:     gate,
		features: features,
		logger:   opts.Logger.With(zap.String("account", opts.AccountID)),
		health:   health,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}, nil
}

func (o Options) bound(symbol string) string {
	if s, ok := o.Bindings[symbol]; ok && s != "" {
		return s
	}
	return o.Source
}

// AccountID returns the account this scheduler drives.
func (s *Scheduler) AccountID() string { return s.opts.AccountID }

// Book returns the account's position book.
func (s *Scheduler) Book() *book.Book { return s.book }

// Cache returns the account's decision cache.
func (s *Scheduler) Cache() *cache.Cache { return s.cache }

// Symbols returns the scheduled symbols.
func (s *Scheduler) Symbols() []string { return append([]string(nil), s.opts.Symbols...) }

// BoundSource returns the source bound to symbol.
func (s *Scheduler) BoundSource(symbol string) string { return s.opts.bound(symbol) }

// Run loops cycles until Stop is called or ctx is done. It only returns an
// error when a cycle hits an invariant violation.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		zap.Strings("symbols", s.opts.Symbols),
		zap.Duration("interval", s.opts.Interval))
	for {
		select {
		case <-s.stop:
			s.logger.Info("scheduler stopped")
			return nil
		case <-ctx.Done():
			s.logger.Info("scheduler stopped", zap.Error(ctx.Err()))
			return nil
		default:
		}

		started := s.opts.Clock()
		if _, err := s.RunCycle(ctx); err != nil {
			s.logger.Error("scheduler halted", zap.Error(err))
			return err
		}

		wait := s.opts.Interval - s.opts.Clock().Sub(started)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-s.stop:
			timer.Stop()
			s.logger.Info("scheduler stopped")
			return nil
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopped", zap.Error(ctx.Err()))
			return nil
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// SubmitCycle wakes the loop for an immediate cycle. Requests made while one
// is already pending are coalesced.
func (s *Scheduler) SubmitCycle() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Stop asks the loop to exit. In-flight symbol units finish first.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// RunCycle runs one cycle over all symbols and joins. Symbol units run on a
// context detached from ctx's cancellation so a stop never interrupts a
// unit halfway through its stages.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleStats, error) {
	started := s.opts.Clock()
	unitCtx := context.WithoutCancel(ctx)

	results := make([]unitResult, len(s.opts.Symbols))
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, sym := range s.opts.Symbols {
		i, sym := i, sym
		g.Go(func() error {
			res := s.runSymbol(unitCtx, sym)
			results[i] = res
			return res.fatal
		})
	}
	fatal := g.Wait()

	stats := CycleStats{
		StartedAt: started,
		Outcomes:  make(map[string]int),
	}
	for _, res := range results {
		stats.Outcomes[res.outcome]++
		if res.failed {
			stats.Failures++
		}
		if res.cacheHit {
			stats.CacheHits++
		}
	}
	stats.Elapsed = s.opts.Clock().Sub(started)

	s.mu.Lock()
	s.counters.Cycles++
	stats.Cycle = s.counters.Cycles
	s.mu.Unlock()

	if fatal != nil {
		return stats, fatal
	}

	snap := s.book.Snapshot()
	metrics.CycleDone(s.opts.AccountID)
	metrics.Equity(s.opts.AccountID, snap.Equity)
	s.saveState()

	s.logger.Info("cycle done",
		zap.Int("cycle", stats.Cycle),
		zap.Duration("elapsed", stats.Elapsed),
		zap.Any("outcomes", stats.Outcomes),
		zap.Int("failures", stats.Failures),
		zap.Int("cache_hits", stats.CacheHits),
		zap.Float64("equity", snap.Equity))
	return stats, nil
}

func (s *Scheduler) saveState() {
	if s.opts.StateFile == "" {
		return
	}
	if err := book.SaveState(s.opts.StateFile, s.book.State()); err != nil {
		s.logger.Error("save state", zap.String("path", s.opts.StateFile), zap.Error(err))
	}
}

// Health returns the health of every symbol, sorted by symbol.
func (s *Scheduler) Health() []model.SymbolHealth {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.SymbolHealth, 0, len(s.health))
	for sym, h := range s.health {
		out = append(out, model.SymbolHealth{
			Symbol:              sym,
			Healthy:             !h.unhealthy,
			ConsecutiveFailures: h.failures,
			LastOutcome:         h.lastOutcome,
			LastError:           h.lastErr,
			LastRun:             h.lastRun,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Counters returns a copy of the cumulative counters.
func (s *Scheduler) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// markHealth updates the failure streak of symbol and alerts on the
// transitions into and out of the unhealthy state.
func (s *Scheduler) markHealth(ctx context.Context, symbol string, res unitResult) {
	s.mu.Lock()
	h := s.health[symbol]
	h.lastOutcome = res.outcome
	h.lastRun = s.opts.Clock()
	var alert string
	if res.failed {
		h.failures++
		h.lastErr = res.note
		if !h.unhealthy && h.failures >= s.opts.UnhealthyAfter {
			h.unhealthy = true
			alert = notifier.FormatUnhealthy(s.opts.AccountID, symbol, h.failures, res.note)
		}
	} else {
		if h.unhealthy {
			alert = notifier.FormatRecovered(s.opts.AccountID, symbol)
		}
		h.failures = 0
		h.unhealthy = false
		h.lastErr = ""
	}
	failures := h.failures
	s.mu.Unlock()

	metrics.SymbolFailures(s.opts.AccountID, symbol, failures)
	if alert != "" {
		if res.failed {
			s.logger.Warn("symbol unhealthy", zap.String("symbol", symbol), zap.Int("failures", failures))
		}
		s.notify(ctx, alert)
	}
}

func (s *Scheduler) notify(ctx context.Context, text string) {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	if err := s.opts.Notifier.Send(callCtx, text); err != nil {
		s.logger.Warn("notify failed", zap.Error(err))
	}
}
