package source

import (
	"context"
	"fmt"
	"time"

	"PaperDesk/internal/model"
	"PaperDesk/internal/strategy"
)

// RuleSource decides locally from indicator factors. It is always
// available and costs nothing, which makes it a useful last fallback.
type RuleSource struct {
	name string
}

// NewRuleSource creates a rule source. An empty name means "rules".
func NewRuleSource(name string) *RuleSource {
	if name == "" {
		name = "rules"
	}
	return &RuleSource{name: name}
}

// Name returns the source name.
func (s *RuleSource) Name() string { return s.name }

// Available is always true; rules need no external service.
func (s *RuleSource) Available() bool { return true }

// Decide runs the strategy evaluator over the request features.
func (s *RuleSource) Decide(ctx context.Context, req Request) (model.Decision, model.DecisionMetadata, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return model.Decision{}, model.DecisionMetadata{Source: s.name}, fmt.Errorf("%w: %v", model.ErrTransient, err)
	}
	sig := strategy.Evaluate(req.Features)
	d := strategy.Decide(req.Features, sig)
	d.Symbol = req.Symbol
	d.Source = s.name
	d.CreatedAt = time.Now()
	return d, model.DecisionMetadata{Source: s.name, Latency: time.Since(start)}, nil
}
