package risk

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PaperDesk/internal/model"
)

func trendingPrices(n int, start, step float64) []float64 {
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = start + float64(i)*step
	}
	return prices
}

func buy(symbol string, pct, confidence float64) model.Decision {
	return model.Decision{Symbol: symbol, Action: model.ActionBuy, Confidence: confidence, PositionSize: pct, RiskLevel: model.RiskLow}
}

func rejectedCheck(t *testing.T, err error) string {
	t.Helper()
	var rej *RejectedError
	require.True(t, errors.As(err, &rej), "expected RejectedError, got %v", err)
	return rej.Check
}

func TestNeutralAssessmentWithShortHistory(t *testing.T) {
	a := Assess(trendingPrices(29, 100, 1), 10, 1)
	assert.Equal(t, NeutralAssessment(), a)
	assert.Equal(t, 50, a.Score)
	assert.Equal(t, model.RiskMedium, a.Level)
}

func TestAssessFlatSeries(t *testing.T) {
	prices := trendingPrices(40, 100, 0)
	a := Assess(prices, 5, 1)
	assert.Zero(t, a.VaR1d)
	assert.Zero(t, a.Volatility)
	assert.Zero(t, a.Sharpe)
	assert.Zero(t, a.MaxDrawdown)
	assert.Equal(t, 6, a.Score) // position 5 + leverage 1
	assert.Equal(t, model.RiskLow, a.Level)
}

func TestAssessVolatileSeries(t *testing.T) {
	prices := make([]float64, 60)
	for i := range prices {
		if i%2 == 0 {
			prices[i] = 100
		} else {
			prices[i] = 110
		}
	}
	a := Assess(prices, 20, 20)
	assert.Less(t, a.VaR1d, 0.0)
	assert.InDelta(t, a.VaR1d*math.Sqrt(5), a.VaR5d, 1e-12)
	assert.InDelta(t, 10.0/110.0, a.MaxDrawdown, 1e-9)
	assert.Equal(t, 84, a.Score)
	assert.Equal(t, model.RiskHigh, a.Level)
}

func TestStatsHelpers(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	assert.InDelta(t, 3.0, mean(xs), 1e-12)
	assert.InDelta(t, math.Sqrt(2), stddev(xs, 3), 1e-12)
	assert.InDelta(t, 1.2, percentile(xs, 0.05), 1e-12)
	assert.InDelta(t, 3.0, percentile(xs, 0.5), 1e-12)
	assert.InDelta(t, 0.5, maxDrawdown([]float64{100, 200, 100, 150}), 1e-12)
}

func TestHoldIsApproved(t *testing.T) {
	g := NewGate(DefaultLimits())
	_, err := g.Evaluate(model.Hold("BTCUSDT", "x", ""), Portfolio{Balance: 1000}, nil)
	assert.NoError(t, err)
}

func TestCloseOnlyValidated(t *testing.T) {
	g := NewGate(Limits{MaxPositionSize: 0.01})
	d := model.Decision{Symbol: "BTCUSDT", Action: model.ActionClose, Confidence: 90, PositionSize: 100}
	_, err := g.Evaluate(d, Portfolio{Balance: 1000}, nil)
	assert.NoError(t, err)

	d.Confidence = 150
	_, err = g.Evaluate(d, Portfolio{Balance: 1000}, nil)
	var verr *model.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestValidationRunsFirst(t *testing.T) {
	g := NewGate(DefaultLimits())
	d := buy("BTCUSDT", 90, 80)
	d.EntryPrice, d.StopLoss = 100, 120
	_, err := g.Evaluate(d, Portfolio{Balance: 1000}, nil)
	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "stop_loss", verr.Field)
}

func TestPositionSizeLimit(t *testing.T) {
	g := NewGate(DefaultLimits())
	_, err := g.Evaluate(buy("BTCUSDT", 15, 80), Portfolio{Balance: 1000}, nil)
	assert.Equal(t, CheckPositionSize, rejectedCheck(t, err))

	_, err = g.Evaluate(buy("BTCUSDT", 10, 80), Portfolio{Balance: 1000}, nil)
	assert.NoError(t, err)
}

func TestLeverageLimit(t *testing.T) {
	g := NewGate(DefaultLimits())
	d := buy("BTCUSDT", 5, 80)
	d.Leverage = 20
	_, err := g.Evaluate(d, Portfolio{Balance: 1000}, nil)
	assert.Equal(t, CheckLeverage, rejectedCheck(t, err))
}

func TestPortfolioRiskLimit(t *testing.T) {
	g := NewGate(Limits{MaxPositionSize: 0.5, MaxPortfolioRisk: 0.01, PositionVolatility: 0.02})
	_, err := g.Evaluate(buy("BTCUSDT", 10, 80), Portfolio{Balance: 1000}, nil)
	assert.Equal(t, CheckPortfolioRisk, rejectedCheck(t, err))
}

func TestPortfolioRiskDiversifies(t *testing.T) {
	g := NewGate(Limits{MaxPositionSize: 0.5, MaxCorrelation: 1})
	p := Portfolio{Balance: 10000, Positions: []model.Position{
		{Symbol: "ETHUSDT", Direction: model.Long, Size: 1, CurrentPrice: 1000},
	}}
	v, err := g.Evaluate(buy("BTCUSDT", 10, 80), p, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.02/math.Sqrt(2), v.PortfolioRisk, 1e-9)
}

func TestCorrelationLimit(t *testing.T) {
	g := NewGate(Limits{
		MaxPositionSize:    0.5,
		DefaultCorrelation: 0.5,
		Correlations:       map[string]float64{"BTCUSDT/ETHUSDT": 0.85},
	})
	held := Portfolio{Balance: 10000, Positions: []model.Position{
		{Symbol: "BTCUSDT", Direction: model.Long, Size: 0.01, CurrentPrice: 50000},
	}}

	_, err := g.Evaluate(buy("ETHUSDT", 10, 80), held, nil)
	assert.Equal(t, CheckCorrelation, rejectedCheck(t, err))

	v, err := g.Evaluate(buy("SOLUSDT", 10, 80), held, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.5, v.Correlation)

	_, err = g.Evaluate(buy("BTCUSDT", 10, 80), held, nil)
	assert.NoError(t, err, "adding to the same symbol is not a correlation breach")
}

func TestSuggestedNotionalWeights(t *testing.T) {
	g := NewGate(Limits{MaxPositionSize: 0.5})
	tests := []struct {
		level model.RiskLevel
		want  float64
	}{
		{model.RiskLow, 100000 * 0.5 * 0.8 * 1.0},
		{model.RiskMedium, 100000 * 0.5 * 0.8 * 0.7},
		{model.RiskHigh, 100000 * 0.5 * 0.8 * 0.4},
		{"", 100000 * 0.5 * 0.8 * 0.7}, // neutral assessment is MEDIUM
	}
	for _, tt := range tests {
		d := buy("BTCUSDT", 50, 80)
		d.RiskLevel = tt.level
		v, err := g.Evaluate(d, Portfolio{Balance: 100000}, nil)
		require.NoError(t, err)
		assert.InDelta(t, tt.want, v.SuggestedNotional, 1e-6, "level %q", tt.level)
	}
}

func TestHeldPositionCountsTowardLimit(t *testing.T) {
	g := NewGate(DefaultLimits())
	p := Portfolio{Balance: 90000, Positions: []model.Position{
		{Symbol: "BTCUSDT", Direction: model.Long, Size: 0.2, CurrentPrice: 50000},
	}}

	_, err := g.Evaluate(buy("BTCUSDT", 10, 80), p, nil)
	assert.Equal(t, CheckPositionSize, rejectedCheck(t, err))

	// the opposite direction reverses the holding instead of adding to it
	sell := buy("BTCUSDT", 10, 80)
	sell.Action = model.ActionSell
	_, err = g.Evaluate(sell, p, nil)
	assert.NoError(t, err)

	p.Positions[0].Size = 0.05
	_, err = g.Evaluate(buy("BTCUSDT", 5, 80), p, nil)
	assert.NoError(t, err, "2500 held + 4500 requested stays under 9000")
}

func TestApprovedNotionalNeverExceedsLimit(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const maxSize = 0.3
	g := NewGate(Limits{MaxPositionSize: maxSize, MaxLeverage: 5, MaxPortfolioRisk: 1, MaxCorrelation: 1})
	levels := []model.RiskLevel{"", model.RiskLow, model.RiskMedium, model.RiskHigh}
	actions := []model.Action{model.ActionBuy, model.ActionSell}
	dirs := []model.Direction{model.Long, model.Short}

	approved := 0
	for i := 0; i < 5000; i++ {
		balance := 1 + rng.Float64()*1e6
		price := 1 + rng.Float64()*1e5
		var positions []model.Position
		if rng.Intn(3) > 0 {
			positions = append(positions, model.Position{
				Symbol:       "BTCUSDT",
				Direction:    dirs[rng.Intn(len(dirs))],
				Size:         rng.Float64() * balance * 0.5 / price,
				CurrentPrice: price,
			})
		}
		d := model.Decision{
			Symbol:       "BTCUSDT",
			Action:       actions[rng.Intn(len(actions))],
			Confidence:   rng.Float64() * 100,
			PositionSize: rng.Float64() * 40,
			Leverage:     rng.Float64() * 10,
			RiskLevel:    levels[rng.Intn(len(levels))],
		}
		if _, err := g.Evaluate(d, Portfolio{Balance: balance, Positions: positions}, nil); err != nil {
			continue
		}
		approved++

		// notional the scheduler orders, plus whatever it adds to
		dir, _ := d.Action.Direction()
		after := balance * d.PositionSize / 100
		for _, pos := range positions {
			if pos.Direction == dir {
				after += pos.Size * pos.CurrentPrice
			}
		}
		require.LessOrEqual(t, after, maxSize*balance*(1+1e-9),
			"case %d: %+v held %+v", i, d, positions)
	}
	assert.Greater(t, approved, 500)
}

func TestNewGateDefaults(t *testing.T) {
	g := NewGate(Limits{})
	assert.Equal(t, DefaultLimits().MaxPositionSize, g.Limits().MaxPositionSize)
	assert.Equal(t, DefaultLimits().MaxLeverage, g.Limits().MaxLeverage)
	assert.Equal(t, 1.0, g.Correlation("X", "X"))
}
