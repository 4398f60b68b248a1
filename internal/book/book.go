package book

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"PaperDesk/internal/model"
)

// ErrInvalidOrder is returned for non-positive sizes, prices or percentages.
var ErrInvalidOrder = errors.New("invalid order")

var hundred = decimal.NewFromInt(100)

// holding is the book's exact view of one open position.
type holding struct {
	symbol    string
	direction model.Direction
	size      decimal.Decimal
	notional  decimal.Decimal // entry notional of the remaining size
	entryFee  decimal.Decimal // entry fees of the remaining size
	current   float64
	stop      float64
	take      float64
	openedAt  time.Time
}

func (h *holding) cost() decimal.Decimal {
	return h.notional.Add(h.entryFee)
}

func (h *holding) unrealized() decimal.Decimal {
	value := h.size.Mul(decimal.NewFromFloat(h.current))
	if h.direction == model.Short {
		return h.notional.Sub(value)
	}
	return value.Sub(h.notional)
}

func (h *holding) position() model.Position {
	entry := 0.0
	if h.size.IsPositive() {
		entry = h.notional.Div(h.size).InexactFloat64()
	}
	return model.Position{
		Symbol:        h.symbol,
		Direction:     h.direction,
		Size:          h.size.InexactFloat64(),
		EntryPrice:    entry,
		CurrentPrice:  h.current,
		StopLoss:      h.stop,
		TakeProfit:    h.take,
		UnrealizedPnL: h.unrealized().InexactFloat64(),
		OpenedAt:      h.openedAt,
	}
}

// OpenRequest asks the book to open or add to a position.
type OpenRequest struct {
	Symbol     string
	Direction  model.Direction
	Size       float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Reason     string
}

// Book is the position and cash ledger of one account. All mutations are
// serialized by a single mutex and re-verify the balance law:
// cash = initial + realized - cost of open positions.
type Book struct {
	mu        sync.RWMutex
	accountID string
	initial   decimal.Decimal
	cash      decimal.Decimal
	realized  decimal.Decimal
	feeRate   decimal.Decimal
	positions map[string]*holding
	trades    []model.Trade
	backend   ExecutionBackend
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Book.
type Option func(*Book)

// WithLogger sets the book logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Book) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock replaces time.Now for trade timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Book) { b.now = now }
}

// New creates an empty book. A nil backend means Simulated{}.
func New(accountID string, initialBalance, feeRate float64, backend ExecutionBackend, opts ...Option) *Book {
	if backend == nil {
		backend = Simulated{}
	}
	initial := decimal.NewFromFloat(initialBalance)
	b := &Book{
		accountID: accountID,
		initial:   initial,
		cash:      initial,
		realized:  decimal.Zero,
		feeRate:   decimal.NewFromFloat(feeRate),
		positions: make(map[string]*holding),
		backend:   backend,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(zap.String("account", accountID))
	return b
}

// AccountID returns the owning account id.
func (b *Book) AccountID() string { return b.accountID }

// Backend returns the execution backend.
func (b *Book) Backend() ExecutionBackend { return b.backend }

// QuoteOpen prices an order opening dir in symbol without placing it.
func (b *Book) QuoteOpen(ctx context.Context, symbol string, dir model.Direction, ref float64) (float64, error) {
	return b.backend.Quote(ctx, symbol, openSide(dir), ref)
}

// Open opens a position, adds to one in the same direction, or reverses an
// opposite one. A reversal returns the closing trade followed by the opening
// trade. Nothing is mutated when the account cannot afford the result.
func (b *Book) Open(ctx context.Context, req OpenRequest) ([]model.Trade, error) {
	if req.Size <= 0 || req.Price <= 0 {
		return nil, fmt.Errorf("%w: size %v price %v", ErrInvalidOrder, req.Size, req.Price)
	}
	if req.Direction != model.Long && req.Direction != model.Short {
		return nil, fmt.Errorf("%w: direction %q", ErrInvalidOrder, req.Direction)
	}
	if err := model.CheckStops(req.Direction, req.Price, req.StopLoss, req.TakeProfit); err != nil {
		return nil, err
	}
	quote, err := b.backend.Quote(ctx, req.Symbol, openSide(req.Direction), req.Price)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	size := decimal.NewFromFloat(req.Size)
	px := decimal.NewFromFloat(quote)
	notional := size.Mul(px)
	fee := notional.Mul(b.feeRate)

	existing := b.positions[req.Symbol]
	reversing := existing != nil && existing.direction != req.Direction

	available := b.cash
	if reversing {
		available = available.Add(b.closeValue(existing, existing.size, px))
	}
	if need := notional.Add(fee); need.GreaterThan(available) {
		return nil, fmt.Errorf("%w: need %s, available %s", model.ErrInsufficientBalance,
			need.StringFixed(2), available.StringFixed(2))
	}

	var trades []model.Trade
	if reversing {
		t, err := b.closeLocked(ctx, existing, decimal.NewFromInt(1), quote, model.ReasonReverse)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}

	fill, err := b.backend.Settle(ctx, Order{Symbol: req.Symbol, Side: openSide(req.Direction), Size: req.Size, Price: quote})
	if err != nil {
		return trades, err
	}
	if fill.Price != quote {
		px = decimal.NewFromFloat(fill.Price)
		notional = size.Mul(px)
		fee = notional.Mul(b.feeRate)
	}

	b.cash = b.cash.Sub(notional).Sub(fee)
	h := b.positions[req.Symbol]
	if h == nil {
		h = &holding{symbol: req.Symbol, direction: req.Direction, openedAt: b.now()}
		b.positions[req.Symbol] = h
	}
	h.size = h.size.Add(size)
	h.notional = h.notional.Add(notional)
	h.entryFee = h.entryFee.Add(fee)
	h.current = fill.Price
	if req.StopLoss > 0 {
		h.stop = req.StopLoss
	}
	if req.TakeProfit > 0 {
		h.take = req.TakeProfit
	}

	t := b.appendTrade(model.Trade{
		Symbol:    req.Symbol,
		Direction: req.Direction,
		Opening:   true,
		Size:      req.Size,
		Price:     fill.Price,
		Fee:       fee.InexactFloat64(),
		Reason:    req.Reason,
	})
	trades = append(trades, t)

	b.logger.Info("position opened",
		zap.String("symbol", req.Symbol),
		zap.String("direction", string(req.Direction)),
		zap.Float64("size", req.Size),
		zap.Float64("price", fill.Price),
		zap.String("cash", b.cash.StringFixed(2)))

	return trades, b.checkLocked()
}

// Close reduces the position in symbol by pct percent at price.
func (b *Book) Close(ctx context.Context, symbol string, pct, price float64, reason string) (model.Trade, error) {
	if pct <= 0 || price <= 0 {
		return model.Trade{}, fmt.Errorf("%w: pct %v price %v", ErrInvalidOrder, pct, price)
	}
	if pct > 100 {
		pct = 100
	}

	b.mu.RLock()
	h, ok := b.positions[symbol]
	var dir model.Direction
	if ok {
		dir = h.direction
	}
	b.mu.RUnlock()
	if !ok {
		return model.Trade{}, fmt.Errorf("%w: %s", model.ErrNoPosition, symbol)
	}

	quote, err := b.backend.Quote(ctx, symbol, closeSide(dir), price)
	if err != nil {
		return model.Trade{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok = b.positions[symbol]
	if !ok || h.direction != dir {
		return model.Trade{}, fmt.Errorf("%w: %s", model.ErrNoPosition, symbol)
	}
	t, err := b.closeLocked(ctx, h, decimal.NewFromFloat(pct).Div(hundred), quote, reason)
	if err != nil {
		return model.Trade{}, err
	}
	return t, b.checkLocked()
}

// UpdatePrice marks the position in symbol to price and fully closes it when
// its stop loss or take profit is breached. The closing trade is returned.
func (b *Book) UpdatePrice(ctx context.Context, symbol string, price float64) (*model.Trade, error) {
	if price <= 0 {
		return nil, fmt.Errorf("%w: price %v", ErrInvalidOrder, price)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := b.positions[symbol]
	if !ok {
		return nil, nil
	}
	h.current = price

	reason := triggered(h, price)
	if reason == "" {
		return nil, nil
	}
	t, err := b.closeLocked(ctx, h, decimal.NewFromInt(1), price, reason)
	if err != nil {
		return nil, err
	}
	b.logger.Warn("exit triggered",
		zap.String("symbol", symbol),
		zap.String("reason", reason),
		zap.Float64("price", price),
		zap.Float64("realized_pnl", t.RealizedPnL))
	return &t, b.checkLocked()
}

func triggered(h *holding, price float64) string {
	switch h.direction {
	case model.Long:
		if h.stop > 0 && price <= h.stop {
			return model.ReasonStopLoss
		}
		if h.take > 0 && price >= h.take {
			return model.ReasonTakeProfit
		}
	case model.Short:
		if h.stop > 0 && price >= h.stop {
			return model.ReasonStopLoss
		}
		if h.take > 0 && price <= h.take {
			return model.ReasonTakeProfit
		}
	}
	return ""
}

// closeValue is the cash a close of size at px would return.
func (b *Book) closeValue(h *holding, size, px decimal.Decimal) decimal.Decimal {
	f := size.Div(h.size)
	released := h.notional.Mul(f)
	exit := size.Mul(px)
	gross := exit.Sub(released)
	if h.direction == model.Short {
		gross = gross.Neg()
	}
	return released.Add(gross).Sub(exit.Mul(b.feeRate))
}

// closeLocked closes fraction f of h. Entry fees are released pro rata.
func (b *Book) closeLocked(ctx context.Context, h *holding, f decimal.Decimal, price float64, reason string) (model.Trade, error) {
	full := f.GreaterThanOrEqual(decimal.NewFromInt(1))
	closeSize := h.size
	if !full {
		closeSize = h.size.Mul(f)
	}

	fill, err := b.backend.Settle(ctx, Order{
		Symbol: h.symbol,
		Side:   closeSide(h.direction),
		Size:   closeSize.InexactFloat64(),
		Price:  price,
	})
	if err != nil {
		return model.Trade{}, err
	}

	exit := closeSize.Mul(decimal.NewFromFloat(fill.Price))
	releasedNotional, releasedFee := h.notional, h.entryFee
	if !full {
		releasedNotional = h.notional.Mul(f)
		releasedFee = h.entryFee.Mul(f)
	}
	gross := exit.Sub(releasedNotional)
	if h.direction == model.Short {
		gross = gross.Neg()
	}
	exitFee := exit.Mul(b.feeRate)
	realized := gross.Sub(releasedFee).Sub(exitFee)

	b.cash = b.cash.Add(releasedNotional).Add(gross).Sub(exitFee)
	b.realized = b.realized.Add(realized)

	if full {
		delete(b.positions, h.symbol)
	} else {
		h.size = h.size.Sub(closeSize)
		h.notional = h.notional.Sub(releasedNotional)
		h.entryFee = h.entryFee.Sub(releasedFee)
		h.current = fill.Price
	}

	return b.appendTrade(model.Trade{
		Symbol:      h.symbol,
		Direction:   h.direction,
		Size:        closeSize.InexactFloat64(),
		Price:       fill.Price,
		Fee:         exitFee.InexactFloat64(),
		RealizedPnL: realized.InexactFloat64(),
		Reason:      reason,
	}), nil
}

func (b *Book) appendTrade(t model.Trade) model.Trade {
	t.ID = uuid.NewString()
	t.AccountID = b.accountID
	t.Timestamp = b.now()
	b.trades = append(b.trades, t)
	return t
}

// checkLocked verifies the balance law and non-negative sizes.
func (b *Book) checkLocked() error {
	openCost := decimal.Zero
	for sym, h := range b.positions {
		if !h.size.IsPositive() {
			return fmt.Errorf("%w: %s size %s", model.ErrInvariantViolation, sym, h.size)
		}
		openCost = openCost.Add(h.cost())
	}
	want := b.initial.Add(b.realized).Sub(openCost)
	if !b.cash.Equal(want) {
		return fmt.Errorf("%w: cash %s != initial %s + realized %s - open cost %s",
			model.ErrInvariantViolation, b.cash, b.initial, b.realized, openCost)
	}
	return nil
}

// Position returns a copy of the open position in symbol.
func (b *Book) Position(symbol string) (model.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	h, ok := b.positions[symbol]
	if !ok {
		return model.Position{}, false
	}
	return h.position(), true
}

// Positions returns copies of all open positions sorted by symbol.
func (b *Book) Positions() []model.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.positionsLocked()
}

func (b *Book) positionsLocked() []model.Position {
	out := make([]model.Position, 0, len(b.positions))
	for _, h := range b.positions {
		out = append(out, h.position())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Trades returns a copy of the trade log.
func (b *Book) Trades() []model.Trade {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]model.Trade, len(b.trades))
	copy(out, b.trades)
	return out
}

// Balance returns the free cash.
func (b *Book) Balance() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cash.InexactFloat64()
}

// Snapshot returns a self-consistent view of the account.
func (b *Book) Snapshot() model.AccountSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	unrealized := decimal.Zero
	equity := b.cash
	for _, h := range b.positions {
		u := h.unrealized()
		unrealized = unrealized.Add(u)
		equity = equity.Add(h.notional).Add(u)
	}
	return model.AccountSnapshot{
		AccountID:        b.accountID,
		Timestamp:        b.now(),
		InitialBalance:   b.initial.InexactFloat64(),
		Balance:          b.cash.InexactFloat64(),
		AvailableBalance: b.cash.InexactFloat64(),
		Equity:           equity.InexactFloat64(),
		RealizedPnL:      b.realized.InexactFloat64(),
		UnrealizedPnL:    unrealized.InexactFloat64(),
		Positions:        b.positionsLocked(),
		TradeCount:       len(b.trades),
	}
}
