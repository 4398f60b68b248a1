package book

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PaperDesk/internal/model"
)

func openLong(t *testing.T, b *Book, symbol string, size, price, stop, take float64) []model.Trade {
	t.Helper()
	trades, err := b.Open(context.Background(), OpenRequest{
		Symbol: symbol, Direction: model.Long, Size: size, Price: price, StopLoss: stop, TakeProfit: take, Reason: "test",
	})
	require.NoError(t, err)
	return trades
}

func TestOpenChargesNotionalAndFee(t *testing.T) {
	b := New("acct", 100000, 0.001, nil)
	trades := openLong(t, b, "BTCUSDT", 1.0, 50000, 0, 0)

	require.Len(t, trades, 1)
	assert.True(t, trades[0].Opening)
	assert.InDelta(t, 50.0, trades[0].Fee, 1e-9)
	assert.Zero(t, trades[0].RealizedPnL)
	assert.Equal(t, "acct", trades[0].AccountID)
	assert.NotEmpty(t, trades[0].ID)

	assert.InDelta(t, 49950.0, b.Balance(), 1e-9)
	pos, ok := b.Position("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, model.Long, pos.Direction)
	assert.InDelta(t, 1.0, pos.Size, 1e-12)
	assert.InDelta(t, 50000.0, pos.EntryPrice, 1e-9)
}

func TestStopLossClosesOnPriceUpdate(t *testing.T) {
	b := New("acct", 100000, 0.001, nil)
	openLong(t, b, "BTCUSDT", 1.0, 50000, 49000, 55000)

	trade, err := b.UpdatePrice(context.Background(), "BTCUSDT", 49500)
	require.NoError(t, err)
	assert.Nil(t, trade)

	trade, err = b.UpdatePrice(context.Background(), "BTCUSDT", 48500)
	require.NoError(t, err)
	require.NotNil(t, trade)
	assert.Equal(t, model.ReasonStopLoss, trade.Reason)
	assert.InDelta(t, -1500-50-48.5, trade.RealizedPnL, 1e-9)
	assert.InDelta(t, 48.5, trade.Fee, 1e-9)

	_, ok := b.Position("BTCUSDT")
	assert.False(t, ok)
	assert.InDelta(t, 100000-1598.5, b.Balance(), 1e-9)
}

func TestTakeProfitOnShort(t *testing.T) {
	b := New("acct", 10000, 0, nil)
	_, err := b.Open(context.Background(), OpenRequest{
		Symbol: "ETHUSDT", Direction: model.Short, Size: 2, Price: 3000, StopLoss: 3200, TakeProfit: 2800,
	})
	require.NoError(t, err)

	trade, err := b.UpdatePrice(context.Background(), "ETHUSDT", 2790)
	require.NoError(t, err)
	require.NotNil(t, trade)
	assert.Equal(t, model.ReasonTakeProfit, trade.Reason)
	assert.InDelta(t, 420.0, trade.RealizedPnL, 1e-9)
	assert.InDelta(t, 10420.0, b.Balance(), 1e-9)
}

func TestAddUsesWeightedAverageEntry(t *testing.T) {
	b := New("acct", 10000, 0, nil)
	openLong(t, b, "SOLUSDT", 1, 100, 0, 0)
	openLong(t, b, "SOLUSDT", 3, 200, 90, 0)

	pos, ok := b.Position("SOLUSDT")
	require.True(t, ok)
	assert.InDelta(t, 4.0, pos.Size, 1e-12)
	assert.InDelta(t, 175.0, pos.EntryPrice, 1e-9)
	assert.Equal(t, 90.0, pos.StopLoss)
	assert.Len(t, b.Positions(), 1)
}

func TestPartialCloseKeepsEntry(t *testing.T) {
	b := New("acct", 10000, 0.001, nil)
	openLong(t, b, "BTCUSDT", 2, 100, 0, 0)

	trade, err := b.Close(context.Background(), "BTCUSDT", 50, 110, "trim")
	require.NoError(t, err)
	assert.Equal(t, "trim", trade.Reason)
	assert.InDelta(t, 1.0, trade.Size, 1e-12)
	// gross 10, half of the 0.2 entry fee, exit fee 0.11
	assert.InDelta(t, 10-0.1-0.11, trade.RealizedPnL, 1e-12)

	pos, ok := b.Position("BTCUSDT")
	require.True(t, ok)
	assert.InDelta(t, 1.0, pos.Size, 1e-12)
	assert.InDelta(t, 100.0, pos.EntryPrice, 1e-9)

	_, err = b.Close(context.Background(), "BTCUSDT", 100, 120, "exit")
	require.NoError(t, err)
	assert.Empty(t, b.Positions())
}

func TestOpposingOpenReverses(t *testing.T) {
	b := New("acct", 10000, 0, nil)
	openLong(t, b, "BTCUSDT", 1, 100, 0, 0)

	trades, err := b.Open(context.Background(), OpenRequest{Symbol: "BTCUSDT", Direction: model.Short, Size: 2, Price: 90})
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, model.ReasonReverse, trades[0].Reason)
	assert.InDelta(t, -10.0, trades[0].RealizedPnL, 1e-9)
	assert.True(t, trades[1].Opening)

	pos, ok := b.Position("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, model.Short, pos.Direction)
	assert.InDelta(t, 2.0, pos.Size, 1e-12)
	assert.Len(t, b.Trades(), 3)
}

func TestUnaffordableReversalLeavesStateUntouched(t *testing.T) {
	b := New("acct", 1000, 0.001, nil)
	openLong(t, b, "BTCUSDT", 9, 100, 0, 0)
	before := b.Snapshot()

	_, err := b.Open(context.Background(), OpenRequest{Symbol: "BTCUSDT", Direction: model.Short, Size: 20, Price: 100})
	require.ErrorIs(t, err, model.ErrInsufficientBalance)

	after := b.Snapshot()
	assert.Equal(t, before.Balance, after.Balance)
	assert.Equal(t, before.Positions, after.Positions)
	assert.Equal(t, before.TradeCount, after.TradeCount)
}

func TestOpenErrors(t *testing.T) {
	b := New("acct", 1000, 0.001, nil)
	ctx := context.Background()

	_, err := b.Open(ctx, OpenRequest{Symbol: "BTCUSDT", Direction: model.Long, Size: 1, Price: 5000})
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)

	_, err = b.Open(ctx, OpenRequest{Symbol: "BTCUSDT", Direction: model.Long, Size: 0, Price: 100})
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = b.Open(ctx, OpenRequest{Symbol: "BTCUSDT", Direction: model.Long, Size: 1, Price: 100, StopLoss: 105})
	var verr *model.ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = b.Close(ctx, "BTCUSDT", 100, 100, "exit")
	assert.ErrorIs(t, err, model.ErrNoPosition)

	assert.Empty(t, b.Trades())
	assert.InDelta(t, 1000.0, b.Balance(), 1e-12)
}

func TestBalanceLawHoldsUnderRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	b := New("acct", 100000, 0.001, nil)
	ctx := context.Background()
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}

	for i := 0; i < 500; i++ {
		sym := symbols[rng.Intn(len(symbols))]
		price := 50 + rng.Float64()*100
		var err error
		switch rng.Intn(4) {
		case 0, 1:
			dir := model.Long
			if rng.Intn(2) == 0 {
				dir = model.Short
			}
			_, err = b.Open(ctx, OpenRequest{Symbol: sym, Direction: dir, Size: rng.Float64() * 20, Price: price,
				StopLoss: price * (1 - dir.Sign()*0.05), TakeProfit: price * (1 + dir.Sign()*0.05)})
		case 2:
			_, err = b.Close(ctx, sym, 1+rng.Float64()*99, price, "random")
		case 3:
			_, err = b.UpdatePrice(ctx, sym, price)
		}
		require.False(t, errors.Is(err, model.ErrInvariantViolation), "step %d: %v", i, err)

		seen := map[string]bool{}
		for _, p := range b.Positions() {
			require.False(t, seen[p.Symbol])
			seen[p.Symbol] = true
			require.GreaterOrEqual(t, p.Size, 0.0)
		}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	assert.NoError(t, b.checkLocked())
}

func TestConcurrentPriceUpdatesAndReads(t *testing.T) {
	b := New("acct", 100000, 0.001, nil)
	openLong(t, b, "BTCUSDT", 1, 50000, 40000, 60000)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = b.UpdatePrice(context.Background(), "BTCUSDT", 45000+float64(i*100+j))
				s := b.Snapshot()
				assert.InDelta(t, s.Equity, s.Balance+sumValue(s.Positions), 1e-6)
			}
		}(i)
	}
	wg.Wait()
}

func sumValue(positions []model.Position) float64 {
	total := 0.0
	for _, p := range positions {
		total += p.Size*p.EntryPrice + p.UnrealizedPnL
	}
	return total
}

func TestStateRoundTrip(t *testing.T) {
	b := New("acct", 100000, 0.001, nil)
	openLong(t, b, "BTCUSDT", 0.3, 50000, 48000, 0)
	_, err := b.Close(context.Background(), "BTCUSDT", 33.3, 51000, "trim")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "state", "acct.json")
	require.NoError(t, SaveState(path, b.State()))

	loaded, err := LoadState(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	restored := New("acct", 1, 0.001, nil)
	require.NoError(t, restored.Restore(loaded))
	assert.Equal(t, b.Balance(), restored.Balance())
	assert.Equal(t, b.Positions(), restored.Positions())
	assert.Len(t, restored.Trades(), 2)
}

func TestLoadStateMissingFile(t *testing.T) {
	s, err := LoadState(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestRestoreRejectsInconsistentState(t *testing.T) {
	b := New("acct", 100, 0, nil)
	s := b.State()
	s.Cash = s.Cash.Add(s.Cash)

	err := New("acct", 100, 0, nil).Restore(s)
	assert.ErrorIs(t, err, model.ErrInvariantViolation)

	s.AccountID = "other"
	assert.Error(t, b.Restore(s))
}
