package book

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"PaperDesk/internal/model"
)

type positionState struct {
	Symbol     string          `json:"symbol"`
	Direction  model.Direction `json:"direction"`
	Size       decimal.Decimal `json:"size"`
	Notional   decimal.Decimal `json:"notional"`
	EntryFee   decimal.Decimal `json:"entry_fee"`
	Current    float64         `json:"current_price"`
	StopLoss   float64         `json:"stop_loss,omitempty"`
	TakeProfit float64         `json:"take_profit,omitempty"`
	OpenedAt   time.Time       `json:"opened_at"`
}

// State is the persisted form of a Book. Money is kept as decimal strings
// so a restored book satisfies the balance law exactly.
type State struct {
	AccountID string          `json:"account_id"`
	Initial   decimal.Decimal `json:"initial_balance"`
	Cash      decimal.Decimal `json:"cash"`
	Realized  decimal.Decimal `json:"realized_pnl"`
	Positions []positionState `json:"positions"`
	Trades    []model.Trade   `json:"trades"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// LoadState reads a book state from a JSON file. Returns nil if the file doesn't exist.
func LoadState(filePath string) (*State, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse book state %s: %w", filePath, err)
	}
	return &state, nil
}

// SaveState writes a book state to a JSON file.
func SaveState(filePath string, state *State) error {
	state.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(filePath, data, 0644)
}

// State captures the book for persistence.
func (b *Book) State() *State {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := &State{
		AccountID: b.accountID,
		Initial:   b.initial,
		Cash:      b.cash,
		Realized:  b.realized,
		Trades:    make([]model.Trade, len(b.trades)),
	}
	copy(s.Trades, b.trades)
	for _, h := range b.positions {
		s.Positions = append(s.Positions, positionState{
			Symbol:     h.symbol,
			Direction:  h.direction,
			Size:       h.size,
			Notional:   h.notional,
			EntryFee:   h.entryFee,
			Current:    h.current,
			StopLoss:   h.stop,
			TakeProfit: h.take,
			OpenedAt:   h.openedAt,
		})
	}
	return s
}

// Restore replaces the book contents with s. The state must belong to this
// account and satisfy the balance law.
func (b *Book) Restore(s *State) error {
	if s.AccountID != b.accountID {
		return fmt.Errorf("restore: state belongs to %q, book is %q", s.AccountID, b.accountID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	positions := make(map[string]*holding, len(s.Positions))
	for _, p := range s.Positions {
		positions[p.Symbol] = &holding{
			symbol:    p.Symbol,
			direction: p.Direction,
			size:      p.Size,
			notional:  p.Notional,
			entryFee:  p.EntryFee,
			current:   p.Current,
			stop:      p.StopLoss,
			take:      p.TakeProfit,
			openedAt:  p.OpenedAt,
		}
	}

	initial, cash, realized := b.initial, b.cash, b.realized
	prevPositions, prevTrades := b.positions, b.trades
	b.initial = s.Initial
	b.cash = s.Cash
	b.realized = s.Realized
	b.positions = positions
	b.trades = append([]model.Trade(nil), s.Trades...)
	if err := b.checkLocked(); err != nil {
		b.initial, b.cash, b.realized = initial, cash, realized
		b.positions, b.trades = prevPositions, prevTrades
		return fmt.Errorf("restore %s: %w", b.accountID, err)
	}
	return nil
}
