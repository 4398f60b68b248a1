package account

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PaperDesk/internal/book"
	"PaperDesk/internal/cache"
	"PaperDesk/internal/model"
	"PaperDesk/internal/recorder"
	"PaperDesk/internal/risk"
	"PaperDesk/internal/scheduler"
	"PaperDesk/internal/source"
)

type staticFeatures struct{ price float64 }

func (f staticFeatures) GetFeatures(_ context.Context, symbol string) (model.MarketFeatures, error) {
	return model.MarketFeatures{
		Symbol:       symbol,
		Trend:        model.TrendUp,
		Momentum:     model.MomentumNeutral,
		CurrentPrice: f.price,
	}, nil
}

type staticSource struct {
	name     string
	decision model.Decision
}

func (s staticSource) Name() string    { return s.name }
func (s staticSource) Available() bool { return true }
func (s staticSource) Decide(_ context.Context, req source.Request) (model.Decision, model.DecisionMetadata, error) {
	d := s.decision
	d.Symbol = req.Symbol
	return d, model.DecisionMetadata{Source: s.name, TotalTokens: 10, Cost: 0.002}, nil
}

type memRecorder struct {
	recorder.NoopRecorder
	mu        sync.Mutex
	trades    []model.Trade
	snapshots []model.AccountSnapshot
}

func (r *memRecorder) RecordTrade(t model.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, t)
	return nil
}

func (r *memRecorder) RecordSnapshot(s model.AccountSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
	return nil
}

var (
	buy = model.Decision{
		Action: model.ActionBuy, Confidence: 80, PositionSize: 50, RiskLevel: model.RiskLow,
		StopLoss: 48500, TakeProfit: 55000, EntryPrice: 50000,
	}
	hold = model.Decision{Action: model.ActionHold, Confidence: 60}
)

func newAccount(t *testing.T, id string, d model.Decision, rec recorder.Recorder) *Account {
	t.Helper()
	src := staticSource{name: "src-" + id, decision: d}
	reg, err := source.NewRegistry(src)
	require.NoError(t, err)
	limits := risk.DefaultLimits()
	limits.MaxPositionSize = 1
	s, err := scheduler.New(scheduler.Options{
		AccountID: id,
		Symbols:   []string{"BTCUSDT"},
		Source:    src.name,
		Interval:  time.Hour,
		Recorder:  rec,
	}, book.New(id, 100000, 0.001, nil), cache.New(cache.DefaultLevels()), reg, risk.NewGate(limits), staticFeatures{price: 50000})
	require.NoError(t, err)
	return &Account{ID: id, Source: src.name, Scheduler: s}
}

func TestAddRejectsDuplicates(t *testing.T) {
	m := NewManager(Options{})
	require.NoError(t, m.Add(newAccount(t, "a", hold, nil)))
	assert.Error(t, m.Add(newAccount(t, "a", hold, nil)))
	assert.Error(t, m.Add(nil))

	a, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", a.Name)
}

func TestRunCycleAllAndCompare(t *testing.T) {
	rec := &memRecorder{}
	m := NewManager(Options{Recorder: rec})
	require.NoError(t, m.Add(newAccount(t, "bull", buy, rec)))
	require.NoError(t, m.Add(newAccount(t, "idle", hold, rec)))

	stats, err := m.RunCycleAll(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, 1, stats["bull"].Outcomes[scheduler.OutcomeOpened])
	assert.Equal(t, 1, stats["idle"].Outcomes[scheduler.OutcomeHold])

	exits, err := m.OnPriceTick(context.Background(), "BTCUSDT", 52000)
	require.NoError(t, err)
	assert.Empty(t, exits)

	perfs := m.ComparePerformance()
	require.Len(t, perfs, 2)
	assert.Equal(t, "bull", perfs[0].AccountID)
	assert.Equal(t, 1, perfs[0].Rank)
	assert.InDelta(t, 2000, perfs[0].TotalPnL, 1e-6)
	assert.Equal(t, 1, perfs[0].OpenPositions)
	assert.Equal(t, "idle", perfs[1].AccountID)
	assert.Equal(t, 2, perfs[1].Rank)

	best, ok := m.BestPerformer()
	require.True(t, ok)
	assert.Equal(t, "bull", best.AccountID)
}

func TestOnPriceTickStopLoss(t *testing.T) {
	rec := &memRecorder{}
	m := NewManager(Options{Recorder: rec})
	require.NoError(t, m.Add(newAccount(t, "bull", buy, rec)))
	require.NoError(t, m.Add(newAccount(t, "idle", hold, rec)))
	_, err := m.RunCycleAll(context.Background())
	require.NoError(t, err)

	exits, err := m.OnPriceTick(context.Background(), "BTCUSDT", 48500)
	require.NoError(t, err)
	require.Len(t, exits, 1)
	assert.Equal(t, "bull", exits[0].AccountID)
	assert.Equal(t, model.ReasonStopLoss, exits[0].Reason)
	assert.InDelta(t, -1500-50-48.5, exits[0].RealizedPnL, 1e-6)

	// the open and the stop exit
	assert.Len(t, rec.trades, 2)

	r := m.Metrics()
	assert.Equal(t, 2, r.Accounts["bull"].TotalTrades)
	assert.Equal(t, 0.0, r.Accounts["bull"].WinRate)
	assert.Equal(t, 2, r.Aggregate.TotalTrades)
	assert.InDelta(t, -1598.5, r.Aggregate.TotalPnL, 1e-6)
	assert.InDelta(t, 0.004, r.Aggregate.TotalCost, 1e-9)
}

func TestMetricsCacheHitRate(t *testing.T) {
	m := NewManager(Options{})
	require.NoError(t, m.Add(newAccount(t, "idle", hold, nil)))
	for i := 0; i < 4; i++ {
		_, err := m.RunCycleAll(context.Background())
		require.NoError(t, err)
	}
	r := m.Metrics()
	assert.InDelta(t, 0.75, r.Accounts["idle"].CacheHitRate, 1e-9)
	assert.InDelta(t, 0.75, r.Aggregate.CacheHitRate, 1e-9)
	assert.InDelta(t, 0.002, r.Aggregate.TotalCost, 1e-9)
}

func TestSnapshotAll(t *testing.T) {
	rec := &memRecorder{}
	m := NewManager(Options{Recorder: rec})
	require.NoError(t, m.Add(newAccount(t, "a", hold, rec)))
	require.NoError(t, m.Add(newAccount(t, "b", hold, rec)))

	require.NoError(t, m.SnapshotAll())
	require.Len(t, rec.snapshots, 2)
	assert.Equal(t, 100000.0, rec.snapshots[0].Balance)
}

func TestHealthAndEvict(t *testing.T) {
	m := NewManager(Options{})
	require.NoError(t, m.Add(newAccount(t, "a", hold, nil)))
	_, err := m.RunCycleAll(context.Background())
	require.NoError(t, err)

	h := m.Health()
	require.Len(t, h["a"], 1)
	assert.True(t, h["a"][0].Healthy)
	assert.Equal(t, 0, m.EvictExpired())
}

func TestRunAndStop(t *testing.T) {
	m := NewManager(Options{})
	require.NoError(t, m.Add(newAccount(t, "a", hold, nil)))
	require.NoError(t, m.Add(newAccount(t, "b", hold, nil)))

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		for _, a := range m.Accounts() {
			if a.Scheduler.Counters().Cycles == 0 {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)

	m.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("manager did not stop")
	}
}
