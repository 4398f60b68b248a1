package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"PaperDesk/internal/calculator"
	"PaperDesk/internal/model"
)

// Options controls which bars are fetched and how they are discretized.
type Options struct {
	LongInterval  string
	ShortInterval string
	Limit         int
	FastPeriod    int
	SlowPeriod    int
	RSIPeriod     int
	BullishRSI    float64
	BearishRSI    float64
}

// DefaultOptions returns 4h trend bars and 3m momentum bars.
func DefaultOptions() Options {
	return Options{
		LongInterval:  "4h",
		ShortInterval: "3m",
		Limit:         100,
		FastPeriod:    20,
		SlowPeriod:    50,
		RSIPeriod:     14,
		BullishRSI:    55,
		BearishRSI:    45,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.LongInterval == "" {
		o.LongInterval = d.LongInterval
	}
	if o.ShortInterval == "" {
		o.ShortInterval = d.ShortInterval
	}
	if o.Limit <= 0 {
		o.Limit = d.Limit
	}
	if o.FastPeriod <= 0 {
		o.FastPeriod = d.FastPeriod
	}
	if o.SlowPeriod <= 0 {
		o.SlowPeriod = d.SlowPeriod
	}
	if o.RSIPeriod <= 0 {
		o.RSIPeriod = d.RSIPeriod
	}
	if o.BullishRSI <= 0 {
		o.BullishRSI = d.BullishRSI
	}
	if o.BearishRSI <= 0 {
		o.BearishRSI = d.BearishRSI
	}
	return o
}

// Collector orchestrates data fetching and indicator computation.
type Collector struct {
	Fetcher Fetcher
	opts    Options
	logger  *zap.Logger
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, opts Options, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		Fetcher: fetcher,
		opts:    opts.withDefaults(),
		logger:  logger.With(zap.String("fetcher", fetcher.Name())),
	}
}

// GetFeatures fetches market data for symbol and computes its features.
// Fetch failures are reported as transient.
func (c *Collector) GetFeatures(ctx context.Context, symbol string) (model.MarketFeatures, error) {
	longBars, err := c.Fetcher.FetchBars(ctx, symbol, c.opts.LongInterval, c.opts.Limit)
	if err != nil {
		return model.MarketFeatures{}, fmt.Errorf("%w: fetch %s bars: %v", model.ErrTransient, c.opts.LongInterval, err)
	}
	shortBars, err := c.Fetcher.FetchBars(ctx, symbol, c.opts.ShortInterval, c.opts.Limit)
	if err != nil {
		return model.MarketFeatures{}, fmt.Errorf("%w: fetch %s bars: %v", model.ErrTransient, c.opts.ShortInterval, err)
	}
	price, err := c.Fetcher.FetchCurrentPrice(ctx, symbol)
	if err != nil {
		return model.MarketFeatures{}, fmt.Errorf("%w: fetch current price: %v", model.ErrTransient, err)
	}
	if price <= 0 {
		return model.MarketFeatures{}, fmt.Errorf("%w: non-positive price %v for %s", model.ErrTransient, price, symbol)
	}

	ind := c.indicators(symbol, price, longBars, shortBars)
	f := model.MarketFeatures{
		Symbol:       symbol,
		Trend:        ClassifyTrend(price, ind.SMAFast, ind.SMASlow),
		Momentum:     ClassifyMomentum(ind.ShortRSI, c.opts.BullishRSI, c.opts.BearishRSI),
		CurrentPrice: price,
		Indicators:   ind,
		PriceHistory: calculator.Closes(longBars),
		FetchedAt:    time.Now(),
	}
	f.Description = Describe(f, c.opts)
	return f, nil
}

func (c *Collector) indicators(symbol string, price float64, longBars, shortBars []model.OHLCV) model.Indicators {
	log := c.logger.With(zap.String("symbol", symbol))
	ind := model.Indicators{}

	if ma, err := calculator.SMAOfBars(longBars, c.opts.FastPeriod); err != nil {
		log.Warn("fast SMA unavailable, using current price", zap.Error(err))
		ind.SMAFast = price
	} else {
		ind.SMAFast = ma
	}

	if ma, err := calculator.SMAOfBars(longBars, c.opts.SlowPeriod); err != nil {
		log.Warn("slow SMA unavailable, using current price", zap.Error(err))
		ind.SMASlow = price
	} else {
		ind.SMASlow = ma
	}

	if rsi, err := calculator.CalculateRSI(longBars, c.opts.RSIPeriod); err != nil {
		ind.LongRSI = 50
	} else {
		ind.LongRSI = rsi
	}

	if rsi, err := calculator.CalculateRSI(shortBars, c.opts.RSIPeriod); err != nil {
		ind.ShortRSI = 50
	} else {
		ind.ShortRSI = rsi
	}

	if ma, err := calculator.SMAOfBars(shortBars, c.opts.FastPeriod); err != nil {
		ind.ShortSMA = price
	} else {
		ind.ShortSMA = ma
	}

	if h, l, err := calculator.CalculateRange(longBars, len(longBars)); err != nil {
		ind.RangeHigh, ind.RangeLow = price, price
	} else {
		ind.RangeHigh, ind.RangeLow = h, l
	}
	if pos, err := calculator.CalculateRangePosition(price, ind.RangeHigh, ind.RangeLow); err != nil {
		ind.RangePos = 0.5
	} else {
		ind.RangePos = pos
	}

	if chg, err := calculator.PercentChange(longBars, barsPerDay(c.opts.LongInterval)); err == nil {
		ind.Change24h = chg
	}
	if n := len(shortBars); n > 0 {
		ind.LastVolume = shortBars[n-1].Volume
	}
	return ind
}

// ClassifyTrend compares the price with its fast and slow averages.
func ClassifyTrend(price, fast, slow float64) model.Trend {
	switch {
	case price > fast && fast > slow:
		return model.TrendUp
	case price < fast && fast < slow:
		return model.TrendDown
	default:
		return model.TrendNeutral
	}
}

// ClassifyMomentum buckets an RSI reading.
func ClassifyMomentum(rsi, bullish, bearish float64) model.Momentum {
	switch {
	case rsi > bullish:
		return model.MomentumBullish
	case rsi < bearish:
		return model.MomentumBearish
	default:
		return model.MomentumNeutral
	}
}

func barsPerDay(interval string) int {
	d, err := time.ParseDuration(interval)
	if err != nil || d <= 0 || d > 24*time.Hour {
		return 1
	}
	return int(24 * time.Hour / d)
}

// Describe renders the features as text for a decision prompt.
func Describe(f model.MarketFeatures, o Options) string {
	ind := f.Indicators
	var b strings.Builder
	fmt.Fprintf(&b, "%s price %.4f (24h %+.2f%%)\n", f.Symbol, f.CurrentPrice, ind.Change24h)
	fmt.Fprintf(&b, "%s trend: %s (SMA%d %.4f, SMA%d %.4f, RSI %.1f)\n",
		o.LongInterval, f.Trend, o.FastPeriod, ind.SMAFast, o.SlowPeriod, ind.SMASlow, ind.LongRSI)
	fmt.Fprintf(&b, "%s momentum: %s (RSI %.1f, SMA%d %.4f, volume %.2f)\n",
		o.ShortInterval, f.Momentum, ind.ShortRSI, o.FastPeriod, ind.ShortSMA, ind.LastVolume)
	fmt.Fprintf(&b, "range: %.4f - %.4f (position %.0f%%)", ind.RangeLow, ind.RangeHigh, ind.RangePos*100)
	return b.String()
}
