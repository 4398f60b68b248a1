package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PaperDesk/internal/book"
	"PaperDesk/internal/model"
)

func TestGetFeaturesUptrend(t *testing.T) {
	c := NewCollector(&MockFetcher{Price: 50000, Step: 0.002}, Options{}, nil)
	f, err := c.GetFeatures(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", f.Symbol)
	assert.Equal(t, 50000.0, f.CurrentPrice)
	assert.Equal(t, model.TrendUp, f.Trend)
	assert.Equal(t, model.MomentumBullish, f.Momentum)
	assert.Len(t, f.PriceHistory, 100)
	assert.Contains(t, f.Description, "4h trend: up")
}

func TestGetFeaturesDowntrend(t *testing.T) {
	c := NewCollector(&MockFetcher{Price: 3000, Step: -0.002}, Options{}, nil)
	f, err := c.GetFeatures(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, model.TrendDown, f.Trend)
	assert.Equal(t, model.MomentumBearish, f.Momentum)
}

type failingFetcher struct{ MockFetcher }

func (f *failingFetcher) FetchCurrentPrice(context.Context, string) (float64, error) {
	return 0, errors.New("boom")
}

func TestGetFeaturesFailureIsTransient(t *testing.T) {
	c := NewCollector(&failingFetcher{MockFetcher{Price: 1}}, Options{}, nil)
	_, err := c.GetFeatures(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, model.ErrTransient)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, model.TrendUp, ClassifyTrend(110, 105, 100))
	assert.Equal(t, model.TrendDown, ClassifyTrend(90, 95, 100))
	assert.Equal(t, model.TrendNeutral, ClassifyTrend(100, 105, 100))

	assert.Equal(t, model.MomentumBullish, ClassifyMomentum(60, 55, 45))
	assert.Equal(t, model.MomentumBearish, ClassifyMomentum(40, 55, 45))
	assert.Equal(t, model.MomentumNeutral, ClassifyMomentum(50, 55, 45))
}

func TestBarsPerDay(t *testing.T) {
	assert.Equal(t, 6, barsPerDay("4h"))
	assert.Equal(t, 480, barsPerDay("3m"))
	assert.Equal(t, 1, barsPerDay("1d"))
}

func TestBinanceFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v3/klines":
			assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
			assert.Equal(t, "4h", r.URL.Query().Get("interval"))
			assert.Equal(t, "2", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(`[
				[1700003600000,"101.0","103.0","100.0","102.5","12.5",1700007199999,"0",1,"0","0","0"],
				[1700000000000,"100.0","102.0","99.0","101.0","10.0",1700003599999,"0",1,"0","0","0"]
			]`))
		case "/api/v3/ticker/price":
			_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"102.75"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f := NewBinanceFetcher(srv.URL, "", time.Second)
	bars, err := f.FetchBars(context.Background(), "BTCUSDT", "4h", 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 101.0, bars[0].Close, "bars are sorted oldest first")
	assert.Equal(t, 102.5, bars[1].Close)
	assert.Equal(t, 12.5, bars[1].Volume)

	price, err := f.FetchCurrentPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 102.75, price)
}

func TestBinanceFetcherHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewBinanceFetcher(srv.URL, "", time.Second)
	_, err := f.FetchBars(context.Background(), "BTCUSDT", "4h", 2)
	assert.Error(t, err)
	_, err = f.FetchCurrentPrice(context.Background(), "BTCUSDT")
	assert.Error(t, err)
}

func TestYahooFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/BTC-USD", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"chart":{"result":[{"timestamp":[1700000000,1700003600,1700007200],
			"indicators":{"quote":[{"open":[1,null,3],"high":[1,null,3],"low":[1,null,3],"close":[1,null,3],"volume":[5,null,7]}]}}],"error":null}}`))
	}))
	defer srv.Close()

	f := NewYahooFetcher(srv.URL, "", time.Second)
	bars, err := f.FetchBars(context.Background(), "BTCUSDT", "1h", 10)
	require.NoError(t, err)
	require.Len(t, bars, 2, "null bars are skipped")
	assert.Equal(t, 3.0, bars[1].Close)

	price, err := f.FetchCurrentPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 3.0, price)
}

func TestTickerBroker(t *testing.T) {
	b := book.Brokered{Broker: TickerBroker{Fetcher: &MockFetcher{Price: 50000}}}
	assert.Equal(t, "brokered:ticker:mock", b.Name())

	q, err := b.Quote(context.Background(), "BTCUSDT", book.SideBuy, 1)
	require.NoError(t, err)
	assert.Equal(t, 50000.0, q)

	fill, err := b.Settle(context.Background(), book.Order{Symbol: "BTCUSDT", Side: book.SideBuy, Size: 0.5, Price: q})
	require.NoError(t, err)
	assert.NotEmpty(t, fill.OrderID)
	assert.Equal(t, 50000.0, fill.Price)

	_, err = TickerBroker{Fetcher: &MockFetcher{Price: 1}}.PlaceMarketOrder(context.Background(), "BTCUSDT", book.SideSell, 0)
	assert.Error(t, err)
}
