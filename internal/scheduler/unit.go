package scheduler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"PaperDesk/internal/book"
	"PaperDesk/internal/cache"
	"PaperDesk/internal/metrics"
	"PaperDesk/internal/model"
	"PaperDesk/internal/notifier"
	"PaperDesk/internal/recorder"
	"PaperDesk/internal/risk"
	"PaperDesk/internal/source"
)

// Per-symbol cycle outcomes.
const (
	OutcomeHold         = "hold"
	OutcomeOpened       = "opened"
	OutcomeClosed       = "closed"
	OutcomeRejected     = "rejected"
	OutcomeInvalid      = "invalid"
	OutcomeInsufficient = "insufficient_balance"
	OutcomeNoPosition   = "no_position"
	OutcomeFetchFailed  = "fetch_failed"
	OutcomeSourceFailed = "source_failed"
	OutcomeExhausted    = "exhausted"
	OutcomeExecFailed   = "execution_failed"
)

// Decision reason recorded on trades opened or closed by the scheduler.
const reasonDecision = "decision"

type unitResult struct {
	outcome  string
	note     string
	failed   bool
	cacheHit bool
	fatal    error
}

// decided is a decision together with where it came from.
type decided struct {
	decision model.Decision
	meta     model.DecisionMetadata
	cacheHit bool
	// forced marks a HOLD produced by the scheduler itself.
	forced bool
}

// runSymbol runs the fixed stage order for one symbol:
// features, price update, cache lookup, source fallback, risk gate, apply, cache store.
func (s *Scheduler) runSymbol(ctx context.Context, symbol string) unitResult {
	log := s.logger.With(zap.String("symbol", symbol))
	res := s.runStages(ctx, symbol, log)
	if res.fatal != nil {
		log.Error("invariant violated", zap.Error(res.fatal))
		return res
	}
	metrics.SymbolOutcome(s.opts.AccountID, res.outcome)
	s.markHealth(ctx, symbol, res)
	return res
}

func (s *Scheduler) runStages(ctx context.Context, symbol string, log *zap.Logger) unitResult {
	bound := s.opts.bound(symbol)

	fctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	features, err := s.features.GetFeatures(fctx, symbol)
	cancel()
	if err != nil {
		log.Warn("fetch features failed", zap.Error(err))
		s.recordDecision(symbol, decided{decision: model.Hold(symbol, bound, err.Error()), forced: true}, OutcomeFetchFailed)
		return unitResult{outcome: OutcomeFetchFailed, note: err.Error(), failed: true}
	}

	if res, done := s.checkStops(ctx, symbol, features.CurrentPrice, log); done {
		return res
	}

	level := s.opts.CacheLevels[symbol]
	fp := cache.NewFingerprint(features, bound, s.opts.PriceDigits)
	d, res, done := s.decide(ctx, symbol, bound, level, fp, features, log)
	if done {
		return res
	}

	outcome, note, err := s.apply(ctx, d.decision, features, log)
	if err != nil && errors.Is(err, model.ErrInvariantViolation) {
		return unitResult{fatal: fmt.Errorf("account %s symbol %s: %w", s.opts.AccountID, symbol, err)}
	}

	if !d.cacheHit && !d.forced && outcome != OutcomeInvalid {
		s.cache.Set(level, fp, d.decision)
	}
	s.recordDecision(symbol, d, outcome)

	res = unitResult{outcome: outcome, note: note, cacheHit: d.cacheHit}
	if outcome == OutcomeExecFailed {
		res.failed = true
	}
	return res
}

// checkStops forwards the latest price to the book so a stop-loss or
// take-profit fires before any new decision is applied.
func (s *Scheduler) checkStops(ctx context.Context, symbol string, price float64, log *zap.Logger) (unitResult, bool) {
	if _, ok := s.book.Position(symbol); !ok {
		return unitResult{}, false
	}
	t, err := s.book.UpdatePrice(ctx, symbol, price)
	if err != nil {
		if errors.Is(err, model.ErrInvariantViolation) {
			return unitResult{fatal: fmt.Errorf("account %s symbol %s: %w", s.opts.AccountID, symbol, err)}, true
		}
		log.Warn("price update failed", zap.Error(err))
		return unitResult{outcome: OutcomeExecFailed, note: err.Error(), failed: true}, true
	}
	if t != nil {
		log.Info("position exited",
			zap.String("reason", t.Reason),
			zap.Float64("price", t.Price),
			zap.Float64("realized_pnl", t.RealizedPnL))
		s.recordTrade(*t)
		s.notify(ctx, notifier.FormatExit(*t))
	}
	return unitResult{}, false
}

// decide serves the decision from the cache or walks the fallback chain.
func (s *Scheduler) decide(ctx context.Context, symbol, bound, level string, fp cache.Fingerprint, features model.MarketFeatures, log *zap.Logger) (decided, unitResult, bool) {
	cached, _, hit := s.cache.Get(level, fp)
	metrics.CacheLookup(s.opts.AccountID, hit)
	s.mu.Lock()
	s.counters.CacheLookups++
	if hit {
		s.counters.CacheHits++
	}
	s.mu.Unlock()
	if hit {
		log.Debug("cache hit", zap.String("fingerprint", fp.String()))
		return decided{decision: cached, meta: model.DecisionMetadata{Source: cached.Source}, cacheHit: true}, unitResult{}, false
	}

	req := source.Request{
		Symbol:   symbol,
		Prompt:   BuildPrompt(features, s.book.Snapshot()),
		Features: features,
	}
	d, err := s.fallback(ctx, bound, req, log)
	if err == nil {
		return d, unitResult{}, false
	}

	outcome := OutcomeSourceFailed
	if errors.Is(err, source.ErrUnavailable) {
		outcome = OutcomeExhausted
	}
	hold := decided{decision: model.Hold(symbol, d.meta.Source, err.Error()), meta: d.meta, forced: true}
	log.Warn("decision failed, holding", zap.String("outcome", outcome), zap.Error(err))
	s.recordDecision(symbol, hold, outcome)
	return hold, unitResult{outcome: outcome, note: err.Error(), failed: true}, true
}

// fallback asks the bound source first and then the priority list. Only an
// unavailable source advances the chain; any other error ends the attempt.
func (s *Scheduler) fallback(ctx context.Context, bound string, req source.Request, log *zap.Logger) (decided, error) {
	chain := s.registry.Chain(bound, s.opts.Priority)
	if len(chain) == 0 {
		return decided{}, fmt.Errorf("%w: no available source for %s", source.ErrUnavailable, req.Symbol)
	}
	var last decided
	var lastErr error
	for _, src := range chain {
		callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
		d, meta, err := src.Decide(callCtx, req)
		cancel()
		if meta.Source == "" {
			meta.Source = src.Name()
		}
		last = decided{meta: meta}

		s.mu.Lock()
		s.counters.SourceCalls++
		s.counters.Tokens += meta.TotalTokens
		s.counters.TotalCost += meta.Cost
		s.mu.Unlock()

		switch {
		case err == nil:
			metrics.SourceCall(src.Name(), "ok", meta.Cost)
			if d.Source == "" {
				d.Source = src.Name()
			}
			if d.Symbol == "" {
				d.Symbol = req.Symbol
			}
			if src.Name() != bound {
				log.Info("decision from fallback source", zap.String("bound", bound), zap.String("source", src.Name()))
			}
			return decided{decision: d, meta: meta}, nil
		case errors.Is(err, source.ErrUnavailable):
			metrics.SourceCall(src.Name(), "unavailable", meta.Cost)
			log.Warn("source unavailable, falling back", zap.String("source", src.Name()), zap.Error(err))
			lastErr = err
		default:
			metrics.SourceCall(src.Name(), "error", meta.Cost)
			return last, fmt.Errorf("source %s: %w", src.Name(), err)
		}
	}
	return last, fmt.Errorf("fallback exhausted: %w", lastErr)
}

// apply runs the risk gate and, when approved, mutates the book. It returns
// the outcome and a note; err is only set for invariant violations.
func (s *Scheduler) apply(ctx context.Context, d model.Decision, features model.MarketFeatures, log *zap.Logger) (string, string, error) {
	snap := s.book.Snapshot()
	verdict, err := s.gate.Evaluate(d, risk.Portfolio{Balance: snap.Balance, Positions: snap.Positions}, features.PriceHistory)
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			log.Warn("decision invalid", zap.Error(err))
			return OutcomeInvalid, err.Error(), nil
		}
		log.Info("decision rejected", zap.String("action", string(d.Action)), zap.Error(err))
		return OutcomeRejected, err.Error(), nil
	}

	switch d.Action {
	case model.ActionHold:
		return OutcomeHold, d.Note, nil
	case model.ActionClose:
		pct := d.PositionSize
		if pct <= 0 {
			pct = 100
		}
		t, err := s.book.Close(ctx, d.Symbol, pct, features.CurrentPrice, reasonDecision)
		if err != nil {
			return s.execOutcome(err, log)
		}
		s.recordTrade(t)
		log.Info("position closed", zap.Float64("pct", pct), zap.Float64("realized_pnl", t.RealizedPnL))
		return OutcomeClosed, "", nil
	}

	dir, _ := d.Action.Direction()
	notional := snap.Balance * d.PositionSize / 100
	if notional <= 0 || features.CurrentPrice <= 0 {
		return OutcomeHold, "zero position size", nil
	}
	// size on the executable price so slippage cannot push the fill past notional
	quote, err := s.book.QuoteOpen(ctx, d.Symbol, dir, features.CurrentPrice)
	if err != nil {
		return s.execOutcome(err, log)
	}
	trades, err := s.book.Open(ctx, book.OpenRequest{
		Symbol:     d.Symbol,
		Direction:  dir,
		Size:       notional / quote,
		Price:      features.CurrentPrice,
		StopLoss:   d.StopLoss,
		TakeProfit: d.TakeProfit,
		Reason:     reasonDecision,
	})
	// a reversal can book its close before the new leg fails
	for _, t := range trades {
		s.recordTrade(t)
	}
	if err != nil {
		return s.execOutcome(err, log)
	}
	log.Info("position opened",
		zap.String("direction", string(dir)),
		zap.Float64("notional", notional),
		zap.Float64("suggested_notional", verdict.SuggestedNotional),
		zap.Int("risk_score", verdict.Assessment.Score))
	return OutcomeOpened, "", nil
}

func (s *Scheduler) execOutcome(err error, log *zap.Logger) (string, string, error) {
	var verr *model.ValidationError
	switch {
	case errors.Is(err, model.ErrInvariantViolation):
		return OutcomeExecFailed, err.Error(), err
	case errors.Is(err, model.ErrInsufficientBalance):
		log.Info("insufficient balance", zap.Error(err))
		return OutcomeInsufficient, err.Error(), nil
	case errors.Is(err, model.ErrNoPosition):
		return OutcomeNoPosition, err.Error(), nil
	case errors.As(err, &verr), errors.Is(err, book.ErrInvalidOrder):
		log.Warn("order invalid", zap.Error(err))
		return OutcomeInvalid, err.Error(), nil
	default:
		log.Warn("execution failed", zap.Error(err))
		return OutcomeExecFailed, err.Error(), nil
	}
}

func (s *Scheduler) recordTrade(t model.Trade) {
	reason := t.Reason
	if t.Opening {
		reason = "open"
	}
	metrics.Trade(s.opts.AccountID, reason)
	if err := s.opts.Recorder.RecordTrade(t); err != nil {
		s.logger.Error("record trade", zap.String("trade", t.ID), zap.Error(err))
	}
}

func (s *Scheduler) recordDecision(symbol string, d decided, outcome string) {
	rec := &recorder.DecisionRecord{
		AccountID:    s.opts.AccountID,
		Symbol:       symbol,
		Timestamp:    s.opts.Clock(),
		Source:       d.decision.Source,
		CacheHit:     d.cacheHit,
		Action:       d.decision.Action,
		Confidence:   d.decision.Confidence,
		PositionSize: d.decision.PositionSize,
		Outcome:      outcome,
		Note:         d.decision.Note,
		Tokens:       d.meta.TotalTokens,
		Cost:         d.meta.Cost,
		Latency:      d.meta.Latency,
	}
	if err := s.opts.Recorder.RecordDecision(rec); err != nil {
		s.logger.Error("record decision", zap.String("symbol", symbol), zap.Error(err))
	}
}

