package model

// Indicators holds the computed technical indicators for one symbol.
type Indicators struct {
	SMAFast    float64 // long bars
	SMASlow    float64 // long bars
	LongRSI    float64
	ShortRSI   float64
	ShortSMA   float64
	RangeHigh  float64
	RangeLow   float64
	RangePos   float64 // 0.0 ~ 1.0
	Change24h  float64 // percent
	LastVolume float64
}
