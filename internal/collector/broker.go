package collector

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"PaperDesk/internal/book"
)

// TickerBroker fills market orders at the live ticker price of a Fetcher.
// It lets a paper account execute against real quotes instead of the
// decision-time reference price.
type TickerBroker struct {
	Fetcher Fetcher
}

func (b TickerBroker) Name() string { return "ticker:" + b.Fetcher.Name() }

func (b TickerBroker) GetNowPrice(ctx context.Context, symbol string) (float64, error) {
	return b.Fetcher.FetchCurrentPrice(ctx, symbol)
}

func (b TickerBroker) PlaceMarketOrder(ctx context.Context, symbol string, side book.Side, size float64) (book.Fill, error) {
	if size <= 0 {
		return book.Fill{}, fmt.Errorf("%s %s: size %v must be positive", side, symbol, size)
	}
	price, err := b.Fetcher.FetchCurrentPrice(ctx, symbol)
	if err != nil {
		return book.Fill{}, err
	}
	return book.Fill{OrderID: uuid.NewString(), Price: price}, nil
}
