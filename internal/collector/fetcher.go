package collector

import (
	"context"
	"time"

	"PaperDesk/internal/model"
)

// Fetcher defines the interface for fetching market data.
type Fetcher interface {
	FetchBars(ctx context.Context, symbol, interval string, limit int) ([]model.OHLCV, error)
	FetchCurrentPrice(ctx context.Context, symbol string) (float64, error)
	Name() string
}

// MockFetcher returns controllable fixed data for development and testing.
// Step is the per-bar relative drift of generated bars.
type MockFetcher struct {
	Price  float64
	Prices map[string]float64 // per-symbol override of Price
	Step   float64
	Bars   map[string][]model.OHLCV // keyed by interval
}

func (m *MockFetcher) price(symbol string) float64 {
	if p, ok := m.Prices[symbol]; ok {
		return p
	}
	return m.Price
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchBars(_ context.Context, symbol string, interval string, limit int) ([]model.OHLCV, error) {
	if bars, ok := m.Bars[interval]; ok {
		return bars, nil
	}
	return generateMockBars(m.price(symbol), m.Step, limit), nil
}

func (m *MockFetcher) FetchCurrentPrice(_ context.Context, symbol string) (float64, error) {
	return m.price(symbol), nil
}

// generateMockBars builds count bars ending at basePrice.
func generateMockBars(basePrice, step float64, count int) []model.OHLCV {
	bars := make([]model.OHLCV, count)
	now := time.Now()
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count+1)*step)
		bars[i] = model.OHLCV{
			Time:   now.Add(-time.Duration(count-i) * time.Hour),
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		}
	}
	return bars
}
