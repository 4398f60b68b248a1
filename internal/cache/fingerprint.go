package cache

import (
	"fmt"
	"math"

	"PaperDesk/internal/model"
)

// DefaultPriceDigits is the number of significant digits kept in a fingerprint price.
const DefaultPriceDigits = 3

// Fingerprint is a lossy summary of market state used as a cache key.
// Two cycles with the same fingerprint are expected to produce the same decision.
type Fingerprint struct {
	Symbol   string
	Trend    model.Trend
	Momentum model.Momentum
	Price    float64
	Source   string
}

// NewFingerprint builds the key for features evaluated by source.
func NewFingerprint(f model.MarketFeatures, source string, digits int) Fingerprint {
	if digits <= 0 {
		digits = DefaultPriceDigits
	}
	return Fingerprint{
		Symbol:   f.Symbol,
		Trend:    f.Trend,
		Momentum: f.Momentum,
		Price:    RoundSignificant(f.CurrentPrice, digits),
		Source:   source,
	}
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%s|%s|%s|%g|%s", f.Symbol, f.Trend, f.Momentum, f.Price, f.Source)
}

// RoundSignificant rounds v to the given number of significant digits.
func RoundSignificant(v float64, digits int) float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	magnitude := int(math.Ceil(math.Log10(math.Abs(v))))
	shift := digits - magnitude
	if shift >= 0 {
		p := math.Pow10(shift)
		return math.Round(v*p) / p
	}
	p := math.Pow10(-shift)
	return math.Round(v/p) * p
}
