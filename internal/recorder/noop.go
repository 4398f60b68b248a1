package recorder

import "PaperDesk/internal/model"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordTrade(_ model.Trade) error                     { return nil }
func (n *NoopRecorder) RecordSnapshot(_ model.AccountSnapshot) error        { return nil }
func (n *NoopRecorder) RecordDecision(_ *DecisionRecord) error              { return nil }
func (n *NoopRecorder) RecentTrades(_ string, _ int) ([]model.Trade, error) { return nil, nil }
func (n *NoopRecorder) Close() error                                        { return nil }
