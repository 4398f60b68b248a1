package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"PaperDesk/internal/model"
)

// FusedSource asks several sources concurrently and takes a
// confidence-weighted vote over their actions.
type FusedSource struct {
	name    string
	members []Source
}

// NewFusedSource creates a fused source over members.
func NewFusedSource(name string, members ...Source) *FusedSource {
	return &FusedSource{name: name, members: members}
}

// Name returns the fused source name.
func (f *FusedSource) Name() string { return f.name }

// Available is true when any member is available.
func (f *FusedSource) Available() bool {
	for _, m := range f.members {
		if m.Available() {
			return true
		}
	}
	return false
}

type vote struct {
	decision model.Decision
	meta     model.DecisionMetadata
	err      error
}

// Decide polls every available member concurrently and votes on the replies.
func (f *FusedSource) Decide(ctx context.Context, req Request) (model.Decision, model.DecisionMetadata, error) {
	start := time.Now()
	votes := make([]vote, len(f.members))

	var g errgroup.Group
	for i, m := range f.members {
		i, m := i, m
		if !m.Available() {
			votes[i].err = fmt.Errorf("%w: %s", ErrUnavailable, m.Name())
			continue
		}
		g.Go(func() error {
			d, meta, err := m.Decide(ctx, req)
			votes[i] = vote{decision: d, meta: meta, err: err}
			return nil
		})
	}
	_ = g.Wait()

	meta := model.DecisionMetadata{Source: f.name}
	var ok []vote
	allUnavailable := true
	var errs []error
	for _, v := range votes {
		meta.PromptTokens += v.meta.PromptTokens
		meta.CompletionTokens += v.meta.CompletionTokens
		meta.TotalTokens += v.meta.TotalTokens
		meta.Cost += v.meta.Cost
		if v.err != nil {
			errs = append(errs, v.err)
			if !errors.Is(v.err, ErrUnavailable) {
				allUnavailable = false
			}
			continue
		}
		ok = append(ok, v)
	}
	meta.Latency = time.Since(start)

	if len(ok) == 0 {
		joined := errors.Join(errs...)
		if allUnavailable {
			return model.Decision{}, meta, fmt.Errorf("%w: %s: no member available: %v", ErrUnavailable, f.name, joined)
		}
		return model.Decision{}, meta, fmt.Errorf("%w: %s: all members failed: %v", model.ErrTransient, f.name, joined)
	}

	d := Fuse(decisionsOf(ok))
	d.Symbol = req.Symbol
	d.Source = f.name
	return d, meta, nil
}

func decisionsOf(vs []vote) []model.Decision {
	out := make([]model.Decision, len(vs))
	for i, v := range vs {
		out[i] = v.decision
	}
	return out
}

// Fuse takes a confidence-weighted vote. The winning action's most
// confident decision supplies prices and sizing; the fused confidence is
// the winning score spread over all voters.
func Fuse(decisions []model.Decision) model.Decision {
	if len(decisions) == 0 {
		return model.Hold("", "", "no decisions to fuse")
	}
	if len(decisions) == 1 {
		return decisions[0]
	}

	scores := make(map[model.Action]float64)
	total := 0.0
	for _, d := range decisions {
		scores[d.Action] += d.Confidence
		total += d.Confidence
	}

	var winner model.Action
	best := -1.0
	// Deterministic tie-break: HOLD beats CLOSE beats SELL beats BUY.
	for _, a := range []model.Action{model.ActionHold, model.ActionClose, model.ActionSell, model.ActionBuy} {
		if s, ok := scores[a]; ok && s > best {
			winner, best = a, s
		}
	}

	var lead model.Decision
	var voters []string
	for _, d := range decisions {
		voters = append(voters, fmt.Sprintf("%s:%s", d.Source, d.Action))
		if d.Action == winner && d.Confidence >= lead.Confidence {
			lead = d
		}
	}

	lead.Confidence = best / float64(len(decisions))
	consensus := 0.0
	if total > 0 {
		consensus = best / total * 100
	}
	lead.Reasoning = fmt.Sprintf("consensus %.0f%% [%s] %s", consensus, strings.Join(voters, " "), lead.Reasoning)
	return lead
}
