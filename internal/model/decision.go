package model

import (
	"fmt"
	"strings"
	"time"
)

// Action is what a decision asks the book to do.
type Action string

const (
	ActionBuy   Action = "BUY"
	ActionSell  Action = "SELL"
	ActionHold  Action = "HOLD"
	ActionClose Action = "CLOSE"
)

// ParseAction normalizes a free-form action string. Unknown values map to HOLD.
func ParseAction(s string) Action {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "LONG":
		return ActionBuy
	case "SELL", "SHORT":
		return ActionSell
	case "CLOSE":
		return ActionClose
	default:
		return ActionHold
	}
}

// Direction returns the position direction a BUY or SELL opens.
func (a Action) Direction() (Direction, bool) {
	switch a {
	case ActionBuy:
		return Long, true
	case ActionSell:
		return Short, true
	}
	return "", false
}

// RiskLevel is a coarse risk bucket.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Valid reports whether r is one of the known levels. The empty level is valid.
func (r RiskLevel) Valid() bool {
	switch r {
	case "", RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// Decision is the output of a decision source for one symbol.
// Zero StopLoss, TakeProfit or EntryPrice means unset.
type Decision struct {
	Symbol       string    `json:"symbol"`
	Action       Action    `json:"action"`
	Confidence   float64   `json:"confidence"`
	EntryPrice   float64   `json:"entry_price,omitempty"`
	StopLoss     float64   `json:"stop_loss,omitempty"`
	TakeProfit   float64   `json:"take_profit,omitempty"`
	PositionSize float64   `json:"position_size"` // percent of balance, 0~100
	Leverage     float64   `json:"leverage,omitempty"`
	RiskLevel    RiskLevel `json:"risk_level,omitempty"`
	Reasoning    string    `json:"reasoning,omitempty"`
	Source       string    `json:"source,omitempty"`
	Note         string    `json:"note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Hold builds a HOLD decision carrying an explanatory note.
func Hold(symbol, source, note string) Decision {
	return Decision{
		Symbol:     symbol,
		Action:     ActionHold,
		Confidence: 50,
		RiskLevel:  RiskMedium,
		Source:     source,
		Note:       note,
		CreatedAt:  time.Now(),
	}
}

// EffectiveLeverage returns the leverage, defaulting to 1.
func (d Decision) EffectiveLeverage() float64 {
	if d.Leverage <= 0 {
		return 1
	}
	return d.Leverage
}

// Validate checks that the decision is internally consistent.
func (d Decision) Validate() error {
	if d.Confidence < 0 || d.Confidence > 100 {
		return &ValidationError{Field: "confidence", Reason: fmt.Sprintf("%.2f outside [0,100]", d.Confidence)}
	}
	if d.PositionSize < 0 || d.PositionSize > 100 {
		return &ValidationError{Field: "position_size", Reason: fmt.Sprintf("%.2f outside [0,100]", d.PositionSize)}
	}
	if d.Leverage < 0 {
		return &ValidationError{Field: "leverage", Reason: "negative"}
	}
	if !d.RiskLevel.Valid() {
		return &ValidationError{Field: "risk_level", Reason: fmt.Sprintf("unknown level %q", d.RiskLevel)}
	}
	switch d.Action {
	case ActionBuy, ActionSell, ActionHold, ActionClose:
	default:
		return &ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", d.Action)}
	}
	if dir, ok := d.Action.Direction(); ok {
		return CheckStops(dir, d.EntryPrice, d.StopLoss, d.TakeProfit)
	}
	return nil
}

// CheckStops verifies stop < entry < take for longs and the reverse for shorts.
// Each bound is only checked when it and the entry are set.
func CheckStops(dir Direction, entry, stop, take float64) error {
	if entry <= 0 {
		return nil
	}
	switch dir {
	case Long:
		if stop > 0 && stop >= entry {
			return &ValidationError{Field: "stop_loss", Reason: fmt.Sprintf("long stop %.4f not below entry %.4f", stop, entry)}
		}
		if take > 0 && take <= entry {
			return &ValidationError{Field: "take_profit", Reason: fmt.Sprintf("long take %.4f not above entry %.4f", take, entry)}
		}
	case Short:
		if stop > 0 && stop <= entry {
			return &ValidationError{Field: "stop_loss", Reason: fmt.Sprintf("short stop %.4f not above entry %.4f", stop, entry)}
		}
		if take > 0 && take >= entry {
			return &ValidationError{Field: "take_profit", Reason: fmt.Sprintf("short take %.4f not below entry %.4f", take, entry)}
		}
	}
	return nil
}

// DecisionMetadata describes the cost of obtaining a decision.
type DecisionMetadata struct {
	Source           string        `json:"source"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	TotalTokens      int           `json:"total_tokens"`
	Cost             float64       `json:"cost"`
	Latency          time.Duration `json:"latency"`
}

// FactorScore represents a single factor's scoring result.
type FactorScore struct {
	Name       string
	RawScore   float64
	Weight     float64
	Weighted   float64
	Commentary string
}

// RiskAssessment summarizes the return distribution of a symbol.
type RiskAssessment struct {
	VaR1d       float64   `json:"var_1d"`
	VaR5d       float64   `json:"var_5d"`
	Sharpe      float64   `json:"sharpe"`
	MaxDrawdown float64   `json:"max_drawdown"`
	Volatility  float64   `json:"volatility"`
	Score       int       `json:"score"`
	Level       RiskLevel `json:"level"`
}
