package risk

import (
	"math"

	"PaperDesk/internal/model"
)

const (
	// MinHistory is the number of prices needed for a real assessment.
	MinHistory = 30

	periodsPerYear = 365
	varConfidence  = 0.05
)

// NeutralAssessment is used when there is not enough price history.
func NeutralAssessment() model.RiskAssessment {
	return model.RiskAssessment{Score: 50, Level: model.RiskMedium}
}

// Assess computes the risk profile of a price history for a decision
// requesting positionPct percent of balance at the given leverage.
func Assess(prices []float64, positionPct, leverage float64) model.RiskAssessment {
	if len(prices) < MinHistory {
		return NeutralAssessment()
	}
	rets := returns(prices)
	if len(rets) == 0 {
		return NeutralAssessment()
	}

	m := mean(rets)
	sd := stddev(rets, m)
	q := percentile(rets, varConfidence)

	a := model.RiskAssessment{
		VaR1d:       q,
		VaR5d:       q * math.Sqrt(5),
		MaxDrawdown: maxDrawdown(prices),
		Volatility:  sd * math.Sqrt(periodsPerYear),
	}
	if sd > 0 {
		a.Sharpe = (m * periodsPerYear) / (sd * math.Sqrt(periodsPerYear))
	}
	a.Score = score(a, positionPct, leverage)
	a.Level = levelFor(a.Score)
	return a
}

func score(a model.RiskAssessment, positionPct, leverage float64) int {
	total := math.Min(math.Abs(a.VaR1d)*1000, 30)
	total += math.Min(a.Volatility*100/2, 25)
	total += math.Min(a.MaxDrawdown*100, 25)
	total += math.Min(positionPct, 10)
	total += math.Min(leverage, 10)
	if total > 100 {
		total = 100
	}
	return int(total)
}

func levelFor(score int) model.RiskLevel {
	switch {
	case score < 30:
		return model.RiskLow
	case score < 70:
		return model.RiskMedium
	default:
		return model.RiskHigh
	}
}

// LevelWeight scales the suggested size by risk level.
func LevelWeight(level model.RiskLevel) float64 {
	switch level {
	case model.RiskLow:
		return 1.0
	case model.RiskHigh:
		return 0.4
	default:
		return 0.7
	}
}
