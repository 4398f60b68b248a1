package model

import "time"

// OHLCV represents a single candlestick bar.
type OHLCV struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Trend is the discretized direction of the long-interval bars.
type Trend string

const (
	TrendUp      Trend = "up"
	TrendDown    Trend = "down"
	TrendNeutral Trend = "neutral"
)

// Momentum is the discretized direction of the short-interval bars.
type Momentum string

const (
	MomentumBullish Momentum = "bullish"
	MomentumBearish Momentum = "bearish"
	MomentumNeutral Momentum = "neutral"
)

// MarketFeatures is everything a decision cycle knows about one symbol.
type MarketFeatures struct {
	Symbol       string
	Trend        Trend
	Momentum     Momentum
	CurrentPrice float64
	Description  string
	Indicators   Indicators
	PriceHistory []float64 // closes, oldest first
	FetchedAt    time.Time
}
