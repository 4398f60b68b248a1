package risk

import (
	"fmt"
	"math"
	"strings"

	"PaperDesk/internal/model"
)

// Check names reported in RejectedError.
const (
	CheckPositionSize  = "position_size"
	CheckSuggestedSize = "suggested_size"
	CheckLeverage      = "leverage"
	CheckPortfolioRisk = "portfolio_risk"
	CheckCorrelation   = "correlation"
)

// RejectedError is returned when a decision fails a gate check.
type RejectedError struct {
	Check  string
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("risk rejected (%s): %s", e.Check, e.Reason)
}

// Limits holds the account-level risk constraints.
type Limits struct {
	MaxPositionSize    float64            `yaml:"max_position_size"` // fraction of balance
	MaxLeverage        float64            `yaml:"max_leverage"`
	MaxPortfolioRisk   float64            `yaml:"max_portfolio_risk"`
	MaxCorrelation     float64            `yaml:"max_correlation"`
	PositionVolatility float64            `yaml:"position_volatility"` // daily vol assumed per held position
	DefaultCorrelation float64            `yaml:"default_correlation"`
	Correlations       map[string]float64 `yaml:"correlations"` // "BTCUSDT/ETHUSDT": 0.85
}

// DefaultLimits returns the built-in limits.
func DefaultLimits() Limits {
	return Limits{
		MaxPositionSize:    0.1,
		MaxLeverage:        10,
		MaxPortfolioRisk:   0.02,
		MaxCorrelation:     0.7,
		PositionVolatility: 0.02,
		DefaultCorrelation: 0.5,
	}
}

// tolerance absorbs float rounding when a ratio sits exactly on its limit.
const tolerance = 1e-9

// Portfolio is the read-only account view the gate evaluates against.
type Portfolio struct {
	Balance   float64
	Positions []model.Position
}

// Verdict is the result of an approved evaluation.
type Verdict struct {
	SuggestedNotional float64
	Assessment        model.RiskAssessment
	PortfolioRisk     float64
	Correlation       float64
}

// Gate validates and sizes decisions. It has no mutable state.
type Gate struct {
	limits Limits
}

// NewGate creates a gate. Zero limit fields take their defaults; a zero
// DefaultCorrelation is kept as is.
func NewGate(l Limits) *Gate {
	d := DefaultLimits()
	if l.MaxPositionSize <= 0 {
		l.MaxPositionSize = d.MaxPositionSize
	}
	if l.MaxLeverage <= 0 {
		l.MaxLeverage = d.MaxLeverage
	}
	if l.MaxPortfolioRisk <= 0 {
		l.MaxPortfolioRisk = d.MaxPortfolioRisk
	}
	if l.MaxCorrelation <= 0 {
		l.MaxCorrelation = d.MaxCorrelation
	}
	if l.PositionVolatility <= 0 {
		l.PositionVolatility = d.PositionVolatility
	}
	if l.DefaultCorrelation < 0 {
		l.DefaultCorrelation = d.DefaultCorrelation
	}
	return &Gate{limits: l}
}

// Limits returns the effective limits.
func (g *Gate) Limits() Limits { return g.limits }

// Evaluate runs the checks in order and stops at the first failure.
// It returns a *model.ValidationError or *RejectedError on failure.
func (g *Gate) Evaluate(d model.Decision, p Portfolio, prices []float64) (Verdict, error) {
	if err := d.Validate(); err != nil {
		return Verdict{}, err
	}
	if d.Action == model.ActionHold || d.Action == model.ActionClose {
		return Verdict{Assessment: NeutralAssessment()}, nil
	}

	leverage := d.EffectiveLeverage()
	a := Assess(prices, d.PositionSize, leverage)
	v := Verdict{Assessment: a}

	fraction := d.PositionSize / 100
	if fraction > g.limits.MaxPositionSize+tolerance {
		return v, &RejectedError{Check: CheckPositionSize,
			Reason: fmt.Sprintf("requested %.2f%% exceeds max %.2f%%", d.PositionSize, g.limits.MaxPositionSize*100)}
	}

	maxNotional := g.limits.MaxPositionSize * p.Balance
	held := heldNotional(d, p.Positions)
	if after := held + p.Balance*fraction; after > maxNotional*(1+tolerance) {
		return v, &RejectedError{Check: CheckPositionSize,
			Reason: fmt.Sprintf("position would reach %.2f (held %.2f), max %.2f", after, held, maxNotional)}
	}

	level := d.RiskLevel
	if level == "" {
		level = a.Level
	}
	v.SuggestedNotional = p.Balance * fraction * (d.Confidence / 100) * LevelWeight(level)
	if v.SuggestedNotional > maxNotional*(1+tolerance) {
		return v, &RejectedError{Check: CheckSuggestedSize,
			Reason: fmt.Sprintf("suggested %.2f exceeds max %.2f", v.SuggestedNotional, maxNotional)}
	}

	if leverage > g.limits.MaxLeverage {
		return v, &RejectedError{Check: CheckLeverage,
			Reason: fmt.Sprintf("leverage %.1fx exceeds max %.1fx", leverage, g.limits.MaxLeverage)}
	}

	v.PortfolioRisk = g.portfolioRisk(d, p)
	if v.PortfolioRisk > g.limits.MaxPortfolioRisk+tolerance {
		return v, &RejectedError{Check: CheckPortfolioRisk,
			Reason: fmt.Sprintf("portfolio risk %.4f exceeds max %.4f", v.PortfolioRisk, g.limits.MaxPortfolioRisk)}
	}

	v.Correlation = g.maxCorrelation(d.Symbol, p.Positions)
	if v.Correlation > g.limits.MaxCorrelation {
		return v, &RejectedError{Check: CheckCorrelation,
			Reason: fmt.Sprintf("correlation %.2f to held exposure exceeds max %.2f", v.Correlation, g.limits.MaxCorrelation)}
	}
	return v, nil
}

// portfolioRisk is the root-sum-square of per-position dollar volatility
// over total exposure, with the proposed position included.
func (g *Gate) portfolioRisk(d model.Decision, p Portfolio) float64 {
	proposed := p.Balance * d.PositionSize / 100 * d.EffectiveLeverage()
	dir, _ := d.Action.Direction()

	var exposure, variance float64
	for _, pos := range p.Positions {
		notional := pos.Size * pos.CurrentPrice
		if pos.Symbol == d.Symbol {
			if pos.Direction == dir {
				proposed += notional
			}
			continue
		}
		exposure += notional
		dv := notional * g.limits.PositionVolatility
		variance += dv * dv
	}
	exposure += proposed
	dv := proposed * g.limits.PositionVolatility
	variance += dv * dv
	if exposure <= 0 {
		return 0
	}
	return math.Sqrt(variance) / exposure
}

// heldNotional is the marked notional already held in d's symbol and direction.
func heldNotional(d model.Decision, positions []model.Position) float64 {
	dir, _ := d.Action.Direction()
	var n float64
	for _, pos := range positions {
		if pos.Symbol == d.Symbol && pos.Direction == dir {
			n += pos.Size * pos.CurrentPrice
		}
	}
	return n
}

func (g *Gate) maxCorrelation(symbol string, positions []model.Position) float64 {
	worst := 0.0
	for _, pos := range positions {
		if pos.Symbol == symbol {
			continue
		}
		if c := g.Correlation(symbol, pos.Symbol); c > worst {
			worst = c
		}
	}
	return worst
}

// Correlation looks up the configured pair correlation in either order.
func (g *Gate) Correlation(a, b string) float64 {
	if a == b {
		return 1
	}
	if c, ok := g.limits.Correlations[a+"/"+b]; ok {
		return c
	}
	if c, ok := g.limits.Correlations[b+"/"+a]; ok {
		return c
	}
	return g.limits.DefaultCorrelation
}

// ParsePair splits a "A/B" correlation key.
func ParsePair(key string) (string, string, bool) {
	a, b, ok := strings.Cut(key, "/")
	return a, b, ok && a != "" && b != ""
}
