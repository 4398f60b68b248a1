package book

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"PaperDesk/internal/model"
)

// Side is the side of an order sent to a backend.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func openSide(d model.Direction) Side {
	if d == model.Short {
		return SideSell
	}
	return SideBuy
}

func closeSide(d model.Direction) Side {
	if d == model.Short {
		return SideBuy
	}
	return SideSell
}

// Order is a market order for a fixed base size.
type Order struct {
	Symbol string
	Side   Side
	Size   float64
	Price  float64 // quoted price the book sized against
}

// Fill is the execution report for an Order.
type Fill struct {
	OrderID string
	Price   float64
}

// ExecutionBackend prices and settles the orders a Book produces.
type ExecutionBackend interface {
	Name() string
	Quote(ctx context.Context, symbol string, side Side, ref float64) (float64, error)
	Settle(ctx context.Context, o Order) (Fill, error)
}

// Simulated fills every order at its quoted price. SlippageBps moves the
// quote against the taker.
type Simulated struct {
	SlippageBps float64
}

// Name returns "simulated".
func (s Simulated) Name() string { return "simulated" }

// Quote returns ref moved against the taker by SlippageBps.
func (s Simulated) Quote(_ context.Context, _ string, side Side, ref float64) (float64, error) {
	if s.SlippageBps <= 0 {
		return ref, nil
	}
	adj := s.SlippageBps / 10000
	if side == SideBuy {
		return ref * (1 + adj), nil
	}
	return ref * (1 - adj), nil
}

// Settle fills o at its quoted price.
func (s Simulated) Settle(_ context.Context, o Order) (Fill, error) {
	return Fill{OrderID: uuid.NewString(), Price: o.Price}, nil
}

// Broker is a venue that can price and execute market orders.
type Broker interface {
	Name() string
	GetNowPrice(ctx context.Context, symbol string) (float64, error)
	PlaceMarketOrder(ctx context.Context, symbol string, side Side, size float64) (Fill, error)
}

// Brokered delegates pricing and fills to a Broker. Fills are assumed
// complete; only the fill price is taken from the venue.
type Brokered struct {
	Broker Broker
}

// Name returns "brokered:" followed by the broker name.
func (b Brokered) Name() string { return "brokered:" + b.Broker.Name() }

// Quote returns the venue's current price, ignoring ref.
func (b Brokered) Quote(ctx context.Context, symbol string, _ Side, _ float64) (float64, error) {
	px, err := b.Broker.GetNowPrice(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("%w: quote %s: %v", model.ErrTransient, symbol, err)
	}
	if px <= 0 {
		return 0, fmt.Errorf("%w: quote %s: non-positive price %v", model.ErrTransient, symbol, px)
	}
	return px, nil
}

// Settle places a market order and takes the venue fill price.
func (b Brokered) Settle(ctx context.Context, o Order) (Fill, error) {
	fill, err := b.Broker.PlaceMarketOrder(ctx, o.Symbol, o.Side, o.Size)
	if err != nil {
		return Fill{}, fmt.Errorf("%w: place %s %s: %v", model.ErrTransient, o.Side, o.Symbol, err)
	}
	if fill.Price <= 0 {
		fill.Price = o.Price
	}
	return fill, nil
}
