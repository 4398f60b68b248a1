package model

import "time"

// Direction is the side of an open position.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

// Sign is +1 for long and -1 for short.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// Position is an open holding in one symbol.
type Position struct {
	Symbol        string    `json:"symbol"`
	Direction     Direction `json:"direction"`
	Size          float64   `json:"size"`
	EntryPrice    float64   `json:"entry_price"`
	CurrentPrice  float64   `json:"current_price"`
	StopLoss      float64   `json:"stop_loss,omitempty"`
	TakeProfit    float64   `json:"take_profit,omitempty"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	OpenedAt      time.Time `json:"opened_at"`
}

// Notional is the position value at the current price.
func (p Position) Notional() float64 {
	return p.Size * p.CurrentPrice
}

// Trade reasons set by the book itself.
const (
	ReasonStopLoss   = "stop_loss"
	ReasonTakeProfit = "take_profit"
	ReasonReverse    = "reverse"
)

// Trade is an append-only audit record of one book mutation.
type Trade struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	Symbol      string    `json:"symbol"`
	Direction   Direction `json:"direction"`
	Opening     bool      `json:"opening"`
	Size        float64   `json:"size"`
	Price       float64   `json:"price"`
	Fee         float64   `json:"fee"`
	RealizedPnL float64   `json:"realized_pnl"`
	Reason      string    `json:"reason"`
	Timestamp   time.Time `json:"timestamp"`
}

// AccountSnapshot is a self-consistent view of one account.
type AccountSnapshot struct {
	AccountID        string     `json:"account_id"`
	Timestamp        time.Time  `json:"timestamp"`
	InitialBalance   float64    `json:"initial_balance"`
	Balance          float64    `json:"balance"`
	AvailableBalance float64    `json:"available_balance"`
	Equity           float64    `json:"equity"`
	RealizedPnL      float64    `json:"realized_pnl"`
	UnrealizedPnL    float64    `json:"unrealized_pnl"`
	Positions        []Position `json:"positions"`
	TradeCount       int        `json:"trade_count"`
}

// TotalPnL is realized plus unrealized PnL.
func (s AccountSnapshot) TotalPnL() float64 {
	return s.RealizedPnL + s.UnrealizedPnL
}

// Performance is the read-only comparison row of one account.
type Performance struct {
	Rank          int     `json:"rank"`
	AccountID     string  `json:"account_id"`
	Name          string  `json:"name"`
	Source        string  `json:"source"`
	Balance       float64 `json:"balance"`
	Equity        float64 `json:"equity"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	TotalPnL      float64 `json:"total_pnl"`
	ReturnPct     float64 `json:"return_pct"`
	OpenPositions int     `json:"open_positions"`
	TotalTrades   int     `json:"total_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalCost     float64 `json:"total_cost"`
	CacheHitRate  float64 `json:"cache_hit_rate"`
}

// SymbolHealth is the scheduling health of one symbol.
type SymbolHealth struct {
	Symbol              string    `json:"symbol"`
	Healthy             bool      `json:"healthy"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastOutcome         string    `json:"last_outcome"`
	LastError           string    `json:"last_error,omitempty"`
	LastRun             time.Time `json:"last_run"`
}
