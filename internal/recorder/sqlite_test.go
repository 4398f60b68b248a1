package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PaperDesk/internal/model"
)

func openTestRecorder(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "db", "desk.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRecordAndQueryTrades(t *testing.T) {
	r := openTestRecorder(t)
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	trades := []model.Trade{
		{ID: "t1", AccountID: "a", Symbol: "BTCUSDT", Direction: model.Long, Opening: true, Size: 1, Price: 50000, Fee: 50, Reason: "open", Timestamp: base},
		{ID: "t2", AccountID: "a", Symbol: "BTCUSDT", Direction: model.Long, Size: 1, Price: 48500, Fee: 48.5, RealizedPnL: -1598.5, Reason: model.ReasonStopLoss, Timestamp: base.Add(time.Minute)},
		{ID: "t3", AccountID: "b", Symbol: "ETHUSDT", Direction: model.Short, Opening: true, Size: 2, Price: 3000, Timestamp: base.Add(2 * time.Minute)},
	}
	for _, tr := range trades {
		require.NoError(t, r.RecordTrade(tr))
	}
	require.NoError(t, r.RecordTrade(trades[0]), "duplicate ids are ignored")

	got, err := r.RecentTrades("a", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t2", got[0].ID)
	assert.Equal(t, model.ReasonStopLoss, got[0].Reason)
	assert.InDelta(t, -1598.5, got[0].RealizedPnL, 1e-9)
	assert.True(t, got[1].Opening)
	assert.True(t, got[1].Timestamp.Equal(base))

	all, err := r.RecentTrades("", 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "t3", all[0].ID)
}

func TestRecordSnapshotAndDecision(t *testing.T) {
	r := openTestRecorder(t)

	require.NoError(t, r.RecordSnapshot(model.AccountSnapshot{
		AccountID: "a", Timestamp: time.Now(), InitialBalance: 100000, Balance: 49950, Equity: 99950,
		Positions: []model.Position{{Symbol: "BTCUSDT", Direction: model.Long, Size: 1, EntryPrice: 50000}},
	}))
	require.NoError(t, r.RecordDecision(&DecisionRecord{
		AccountID: "a", Symbol: "BTCUSDT", Source: "deepseek", Action: model.ActionBuy,
		Confidence: 80, Outcome: "executed", Tokens: 1000, Cost: 0.002, Latency: 1500 * time.Millisecond,
	}))

	var n int
	require.NoError(t, r.db.QueryRow(`SELECT COUNT(*) FROM account_snapshots WHERE account_id = 'a'`).Scan(&n))
	assert.Equal(t, 1, n)

	var positions string
	require.NoError(t, r.db.QueryRow(`SELECT positions FROM account_snapshots`).Scan(&positions))
	assert.Contains(t, positions, `"symbol":"BTCUSDT"`)

	var latency int64
	var outcome string
	require.NoError(t, r.db.QueryRow(`SELECT outcome, latency_ms FROM decisions`).Scan(&outcome, &latency))
	assert.Equal(t, "executed", outcome)
	assert.Equal(t, int64(1500), latency)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	assert.NoError(t, r.RecordTrade(model.Trade{}))
	trades, err := r.RecentTrades("a", 5)
	assert.NoError(t, err)
	assert.Empty(t, trades)
	assert.NoError(t, r.Close())
}
