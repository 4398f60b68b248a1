package strategy

import "PaperDesk/internal/model"

// Factor names.
const (
	FactorDeviation = "slow_sma_deviation"
	FactorLongRSI   = "long_rsi"
	FactorShortRSI  = "short_rsi"
	FactorRange     = "range_position"
	FactorTrend     = "trend_tracker"
)

// Tier maps a score band to a sized action.
type Tier struct {
	Label        string
	Action       model.Action
	PositionSize float64 // percent of balance
	Confidence   float64
	RiskLevel    model.RiskLevel
}

// Tiers defines the score bands from most bullish to most bearish.
var Tiers = []struct {
	MinScore float64
	Tier     Tier
}{
	{1.2, Tier{Label: "strong buy", Action: model.ActionBuy, PositionSize: 10, Confidence: 80, RiskLevel: model.RiskLow}},
	{0.6, Tier{Label: "buy", Action: model.ActionBuy, PositionSize: 5, Confidence: 65, RiskLevel: model.RiskMedium}},
	{-0.6, Tier{Label: "hold", Action: model.ActionHold, Confidence: 50, RiskLevel: model.RiskMedium}},
	{-1.2, Tier{Label: "sell", Action: model.ActionSell, PositionSize: 5, Confidence: 65, RiskLevel: model.RiskMedium}},
}

// DefaultTier is the tier for scores below every band.
var DefaultTier = Tier{Label: "strong sell", Action: model.ActionSell, PositionSize: 10, Confidence: 80, RiskLevel: model.RiskLow}

// Stop and target distances applied to rule decisions.
const (
	StopDistance   = 0.02
	TargetDistance = 0.04
)

// Signal is the output of the factor engine.
type Signal struct {
	Factors    []model.FactorScore
	TotalScore float64
	Tier       Tier
	Warning    string
}

// mapTier maps a total score to a Tier.
func mapTier(totalScore float64) Tier {
	for _, t := range Tiers {
		if totalScore >= t.MinScore {
			return t.Tier
		}
	}
	return DefaultTier
}

// Evaluate computes the weighted factor signal for the given features.
func Evaluate(f model.MarketFeatures) Signal {
	f1 := scoreSlowDeviation(f)
	f2 := scoreLongRSI(f)
	f3 := scoreShortRSI(f)
	f5 := scoreTrendTracker(f)

	otherFactorsAvg := (f1.RawScore + f2.RawScore + f3.RawScore + f5.RawScore) / 4.0
	f4 := scoreRangePosition(f, otherFactorsAvg)

	sig := Signal{
		Factors:    []model.FactorScore{f1, f2, f3, f4, f5},
		TotalScore: f1.Weighted + f2.Weighted + f3.Weighted + f4.Weighted + f5.Weighted,
	}
	sig.Tier = mapTier(sig.TotalScore)

	if f.Indicators.LongRSI > 85 || f.Indicators.ShortRSI > 85 {
		sig.Warning = "RSI above 85, overbought"
	} else if f.Indicators.LongRSI < 15 || f.Indicators.ShortRSI < 15 {
		sig.Warning = "RSI below 15, oversold"
	}
	return sig
}

// Decide turns a signal into a decision priced at the current price.
func Decide(f model.MarketFeatures, sig Signal) model.Decision {
	d := model.Decision{
		Symbol:       f.Symbol,
		Action:       sig.Tier.Action,
		Confidence:   sig.Tier.Confidence,
		PositionSize: sig.Tier.PositionSize,
		Leverage:     1,
		RiskLevel:    sig.Tier.RiskLevel,
		Reasoning:    sig.Tier.Label,
		Note:         sig.Warning,
	}
	price := f.CurrentPrice
	switch d.Action {
	case model.ActionBuy:
		d.EntryPrice = price
		d.StopLoss = price * (1 - StopDistance)
		d.TakeProfit = price * (1 + TargetDistance)
	case model.ActionSell:
		d.EntryPrice = price
		d.StopLoss = price * (1 + StopDistance)
		d.TakeProfit = price * (1 - TargetDistance)
	}
	return d
}
