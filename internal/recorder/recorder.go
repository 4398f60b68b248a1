package recorder

import (
	"time"

	"PaperDesk/internal/model"
)

// DecisionRecord is one per-symbol outcome of a scheduler cycle.
type DecisionRecord struct {
	AccountID    string
	Symbol       string
	Timestamp    time.Time
	Source       string
	CacheHit     bool
	Action       model.Action
	Confidence   float64
	PositionSize float64
	Outcome      string
	Note         string
	Tokens       int
	Cost         float64
	Latency      time.Duration
}

// Recorder persists the trade audit log, account snapshots and decisions,
// keyed by (account_id, timestamp).
type Recorder interface {
	RecordTrade(t model.Trade) error
	RecordSnapshot(s model.AccountSnapshot) error
	RecordDecision(d *DecisionRecord) error
	RecentTrades(accountID string, limit int) ([]model.Trade, error)
	Close() error
}
