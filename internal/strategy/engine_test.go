package strategy

import (
	"testing"

	"PaperDesk/internal/model"
)

func features(price float64, trend model.Trend, ind model.Indicators) model.MarketFeatures {
	return model.MarketFeatures{Symbol: "BTCUSDT", CurrentPrice: price, Trend: trend, Indicators: ind}
}

func findFactor(sig Signal, name string) model.FactorScore {
	for _, f := range sig.Factors {
		if f.Name == name {
			return f
		}
	}
	return model.FactorScore{}
}

func TestEvaluate_NormalMarket(t *testing.T) {
	f := features(50000, model.TrendNeutral, model.Indicators{
		SMAFast: 49900, SMASlow: 50100, LongRSI: 50, ShortRSI: 50,
		RangeHigh: 52000, RangeLow: 48000, RangePos: 0.5,
	})
	sig := Evaluate(f)
	if len(sig.Factors) != 5 {
		t.Fatalf("expected 5 factors, got %d", len(sig.Factors))
	}
	if sig.Tier.Action != model.ActionHold {
		t.Errorf("expected HOLD, got %s (score %.3f)", sig.Tier.Action, sig.TotalScore)
	}
	if sig.Warning != "" {
		t.Errorf("unexpected warning: %s", sig.Warning)
	}
}

func TestEvaluate_ExtremeOversold(t *testing.T) {
	f := features(45000, model.TrendDown, model.Indicators{
		SMAFast: 47000, SMASlow: 50000, LongRSI: 22, ShortRSI: 12,
		RangeHigh: 52000, RangeLow: 44800, RangePos: 0.03,
	})
	sig := Evaluate(f)
	if sig.TotalScore < 1.0 {
		t.Errorf("expected high score for oversold market, got %.3f", sig.TotalScore)
	}
	if sig.Tier.Action != model.ActionBuy {
		t.Errorf("expected BUY, got %s", sig.Tier.Action)
	}
	if sig.Warning == "" {
		t.Error("expected oversold warning")
	}
}

func TestEvaluate_ExtremeOverbought(t *testing.T) {
	f := features(56000, model.TrendNeutral, model.Indicators{
		SMAFast: 54000, SMASlow: 50000, LongRSI: 88, ShortRSI: 90,
		RangeHigh: 56000, RangeLow: 48000, RangePos: 1.0,
	})
	sig := Evaluate(f)
	if sig.TotalScore > -1.2 {
		t.Errorf("expected strongly negative score for overbought market, got %.3f", sig.TotalScore)
	}
	if sig.Tier.Action != model.ActionSell {
		t.Errorf("expected SELL, got %s", sig.Tier.Action)
	}
	if sig.Warning == "" {
		t.Error("expected overbought warning for RSI > 85")
	}
}

func TestMapTier_AllBoundaries(t *testing.T) {
	tests := []struct {
		score float64
		label string
	}{
		{2.0, "strong buy"},
		{1.2, "strong buy"},
		{1.0, "buy"},
		{0.6, "buy"},
		{0.0, "hold"},
		{-0.6, "hold"},
		{-1.0, "sell"},
		{-1.2, "sell"},
		{-1.3, "strong sell"},
		{-2.0, "strong sell"},
	}
	for _, tt := range tests {
		tier := mapTier(tt.score)
		if tier.Label != tt.label {
			t.Errorf("score %.1f: expected %q, got %q", tt.score, tt.label, tier.Label)
		}
	}
}

func TestRangeFactor_NonlinearLogic(t *testing.T) {
	// Position > 95%, other factors avg >= -1 → caps at -1
	calm := features(50000, model.TrendUp, model.Indicators{
		SMAFast: 49800, SMASlow: 49500, LongRSI: 55, ShortRSI: 55,
		RangeHigh: 50100, RangeLow: 45000, RangePos: 0.99,
	})
	if f4 := findFactor(Evaluate(calm), FactorRange); f4.RawScore < -1.0 {
		t.Errorf("range factor should cap at -1 when other factors avg >= -1, got %.1f", f4.RawScore)
	}

	// Position > 95%, other factors avg < -1 → -2
	hot := features(56000, model.TrendNeutral, model.Indicators{
		SMAFast: 54000, SMASlow: 50000, LongRSI: 82, ShortRSI: 82,
		RangeHigh: 56100, RangeLow: 45000, RangePos: 0.99,
	})
	sig := Evaluate(hot)
	if f4 := findFactor(sig, FactorRange); f4.RawScore != -2.0 {
		t.Errorf("range factor should be -2 when other factors avg < -1, got %.1f (total=%.3f)", f4.RawScore, sig.TotalScore)
	}
}

func TestTrendTracker_BullBear(t *testing.T) {
	bull := features(50000, model.TrendUp, model.Indicators{RangeHigh: 50100, RangeLow: 45000})
	if f5 := findFactor(Evaluate(bull), FactorTrend); f5.RawScore != 1.5 {
		t.Errorf("expected 1.5 for bullish alignment at range high, got %.1f", f5.RawScore)
	}

	bear := features(50000, model.TrendDown, model.Indicators{RangeHigh: 60000, RangeLow: 45000})
	if f5 := findFactor(Evaluate(bear), FactorTrend); f5.RawScore != -1.0 {
		t.Errorf("expected -1.0 for bearish alignment, got %.1f", f5.RawScore)
	}
}

func TestDecide_StopsBracketEntry(t *testing.T) {
	f := features(100, model.TrendNeutral, model.Indicators{})
	buy := Decide(f, Signal{Tier: Tiers[0].Tier})
	if err := buy.Validate(); err != nil {
		t.Fatalf("buy decision invalid: %v", err)
	}
	if buy.StopLoss >= buy.EntryPrice || buy.TakeProfit <= buy.EntryPrice {
		t.Errorf("long stops not bracketing entry: %+v", buy)
	}

	sell := Decide(f, Signal{Tier: DefaultTier})
	if err := sell.Validate(); err != nil {
		t.Fatalf("sell decision invalid: %v", err)
	}
	if sell.StopLoss <= sell.EntryPrice || sell.TakeProfit >= sell.EntryPrice {
		t.Errorf("short stops not bracketing entry: %+v", sell)
	}

	hold := Decide(f, Signal{Tier: Tiers[2].Tier})
	if hold.EntryPrice != 0 || hold.PositionSize != 0 {
		t.Errorf("hold should carry no order: %+v", hold)
	}
}
