package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"PaperDesk/internal/model"
)

// ErrMalformed is returned when a response carries no usable decision.
var ErrMalformed = errors.New("malformed decision")

// flexFloat accepts both JSON numbers and numeric strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

type rawDecision struct {
	Action       string    `json:"action"`
	Confidence   flexFloat `json:"confidence"`
	EntryPrice   flexFloat `json:"entry_price"`
	StopLoss     flexFloat `json:"stop_loss"`
	TakeProfit   flexFloat `json:"take_profit"`
	PositionSize flexFloat `json:"position_size"`
	Leverage     flexFloat `json:"leverage"`
	RiskLevel    string    `json:"risk_level"`
	Reasoning    string    `json:"reasoning"`
}

// ParseDecision extracts the first JSON object from free-form model output.
func ParseDecision(text, symbol, source string) (model.Decision, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return model.Decision{}, fmt.Errorf("%w: no JSON object in response", ErrMalformed)
	}

	var raw rawDecision
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return model.Decision{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(raw.Action) == "" {
		return model.Decision{}, fmt.Errorf("%w: missing action", ErrMalformed)
	}

	return model.Decision{
		Symbol:       symbol,
		Action:       model.ParseAction(raw.Action),
		Confidence:   float64(raw.Confidence),
		EntryPrice:   float64(raw.EntryPrice),
		StopLoss:     float64(raw.StopLoss),
		TakeProfit:   float64(raw.TakeProfit),
		PositionSize: float64(raw.PositionSize),
		Leverage:     float64(raw.Leverage),
		RiskLevel:    model.RiskLevel(strings.ToUpper(strings.TrimSpace(raw.RiskLevel))),
		Reasoning:    raw.Reasoning,
		Source:       source,
		CreatedAt:    time.Now(),
	}, nil
}
