package strategy

import (
	"fmt"
	"math"

	"PaperDesk/internal/model"
)

// rsiScore is shared by the long and short RSI factors. Oversold scores positive.
func rsiScore(rsi float64) float64 {
	switch {
	case rsi <= 25:
		return 2.0
	case rsi <= 30:
		return 1.5
	case rsi <= 40:
		return 1.0
	case rsi <= 45:
		return 0.5
	case rsi <= 55:
		return 0
	case rsi <= 60:
		return -0.5
	case rsi <= 70:
		return -1.0
	case rsi <= 80:
		return -1.5
	default:
		return -2.0
	}
}

func factor(name string, score, weight float64, commentary string) model.FactorScore {
	return model.FactorScore{
		Name:       name,
		RawScore:   score,
		Weight:     weight,
		Weighted:   score * weight,
		Commentary: commentary,
	}
}

// scoreSlowDeviation scores how far the price deviates from the slow SMA.
// Weight: 0.30
func scoreSlowDeviation(f model.MarketFeatures) model.FactorScore {
	slow := f.Indicators.SMASlow
	if slow == 0 {
		return factor(FactorDeviation, 0, 0.30, "slow SMA unavailable")
	}
	deviation := (f.CurrentPrice - slow) / slow * 100

	var score float64
	switch {
	case deviation <= -8:
		score = 2.0
	case deviation <= -4:
		score = 1.5
	case deviation <= -2:
		score = 1.0
	case deviation <= 0:
		score = 0.5
	case deviation <= 2:
		score = 0
	case deviation <= 4:
		score = -0.5
	case deviation <= 6:
		score = -1.0
	case deviation <= 8:
		score = -1.5
	default:
		score = -2.0
	}
	return factor(FactorDeviation, score, 0.30, fmt.Sprintf("deviation %+.1f%%", deviation))
}

// scoreLongRSI scores the RSI of the trend bars.
// Weight: 0.20
func scoreLongRSI(f model.MarketFeatures) model.FactorScore {
	rsi := f.Indicators.LongRSI
	return factor(FactorLongRSI, rsiScore(rsi), 0.20, fmt.Sprintf("RSI=%.0f", rsi))
}

// scoreShortRSI scores the RSI of the momentum bars.
// Weight: 0.15
func scoreShortRSI(f model.MarketFeatures) model.FactorScore {
	rsi := f.Indicators.ShortRSI
	return factor(FactorShortRSI, rsiScore(rsi), 0.15, fmt.Sprintf("RSI=%.0f", rsi))
}

// scoreRangePosition scores where the price sits in the observed range.
// Weight: 0.10
// Above 95% only scores -2 when the other factors already average below -1.
func scoreRangePosition(f model.MarketFeatures, otherFactorsAvg float64) model.FactorScore {
	pos := f.Indicators.RangePos * 100

	var score float64
	switch {
	case pos <= 10:
		score = 2.0
	case pos <= 20:
		score = 1.5
	case pos <= 30:
		score = 1.0
	case pos <= 40:
		score = 0.5
	case pos <= 60:
		score = 0
	case pos <= 70:
		score = -0.5
	case pos <= 80:
		score = -1.0
	case pos <= 95:
		score = -1.5
	default:
		if otherFactorsAvg < -1 {
			score = -2.0
		} else {
			score = -1.0
		}
	}
	return factor(FactorRange, score, 0.10, fmt.Sprintf("position=%.0f%%", pos))
}

// scoreTrendTracker follows the SMA alignment and range extremes.
// Weight: 0.25
func scoreTrendTracker(f model.MarketFeatures) model.FactorScore {
	ind := f.Indicators
	nearHigh := ind.RangeHigh > 0 && math.Abs(f.CurrentPrice-ind.RangeHigh)/ind.RangeHigh < 0.01
	nearLow := ind.RangeLow > 0 && math.Abs(f.CurrentPrice-ind.RangeLow)/ind.RangeLow < 0.01

	switch {
	case f.Trend == model.TrendUp && nearHigh:
		return factor(FactorTrend, 1.5, 0.25, "bullish alignment at range high")
	case f.Trend == model.TrendUp:
		return factor(FactorTrend, 1.0, 0.25, "bullish alignment")
	case f.Trend == model.TrendDown && nearLow:
		return factor(FactorTrend, -1.5, 0.25, "bearish alignment at range low")
	case f.Trend == model.TrendDown:
		return factor(FactorTrend, -1.0, 0.25, "bearish alignment")
	default:
		return factor(FactorTrend, 0, 0.25, "ranging")
	}
}
