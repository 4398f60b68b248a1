// Package maintenance runs the periodic housekeeping jobs of the desk and
// answers operator commands.
package maintenance

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"PaperDesk/internal/model"
	"PaperDesk/internal/notifier"
)

// Desk is the part of the account manager the jobs act on.
type Desk interface {
	SnapshotAll() error
	EvictExpired() int
	ComparePerformance() []model.Performance
	Health() map[string][]model.SymbolHealth
	SubmitCycle()
}

// Specs are the cron expressions of the jobs, with seconds. An empty spec
// disables the job.
type Specs struct {
	Snapshot string
	Sweep    string
	Report   string
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron     *cron.Cron
	Desk     Desk
	Notifier notifier.Notifier
	Ctx      context.Context
	logger   *zap.Logger
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, desk Desk, n notifier.Notifier, logger *zap.Logger) *Scheduler {
	if n == nil {
		n = notifier.NoopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Desk:     desk,
		Notifier: n,
		Ctx:      ctx,
		logger:   logger.With(zap.String("component", "maintenance")),
	}
}

// RegisterAll registers the snapshot, cache sweep and performance report tasks.
func (s *Scheduler) RegisterAll(specs Specs) error {
	jobs := []struct {
		name string
		spec string
		fn   func()
	}{
		{"snapshot", specs.Snapshot, s.snapshotTask},
		{"cache sweep", specs.Sweep, s.sweepTask},
		{"performance report", specs.Report, s.reportTask},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if _, err := s.Cron.AddFunc(j.spec, j.fn); err != nil {
			return fmt.Errorf("register %s task: %w", j.name, err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info("maintenance started", zap.Int("jobs", len(s.Cron.Entries())))
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info("maintenance stopped")
}

func (s *Scheduler) snapshotTask() {
	if err := s.Desk.SnapshotAll(); err != nil {
		s.logger.Error("snapshot accounts", zap.Error(err))
	}
}

func (s *Scheduler) sweepTask() {
	n := s.Desk.EvictExpired()
	s.logger.Debug("cache swept", zap.Int("evicted", n))
}

func (s *Scheduler) reportTask() {
	s.trySend(notifier.FormatPerformance(s.Desk.ComparePerformance()))
}

// HandleCommand processes an operator command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	switch strings.ToLower(strings.TrimSpace(command)) {
	case "/perf", "/performance":
		return notifier.FormatPerformance(s.Desk.ComparePerformance())
	case "/health":
		return s.formatHealth()
	case "/cycle":
		s.Desk.SubmitCycle()
		return "cycle submitted"
	case "/snapshot":
		if err := s.Desk.SnapshotAll(); err != nil {
			return "snapshot failed: " + err.Error()
		}
		return "snapshot saved"
	default:
		return "Commands:\n• /perf\n• /health\n• /cycle\n• /snapshot"
	}
}

func (s *Scheduler) formatHealth() string {
	health := s.Desk.Health()
	ids := make([]string, 0, len(health))
	for id := range health {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, notifier.FormatHealth(id, health[id]))
	}
	if len(parts) == 0 {
		return "no accounts"
	}
	return strings.Join(parts, "\n")
}

type retrySender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

func (s *Scheduler) trySend(text string) {
	var err error
	if r, ok := s.Notifier.(retrySender); ok {
		err = r.SendWithRetry(s.Ctx, text, 3)
	} else {
		err = s.Notifier.Send(s.Ctx, text)
	}
	if err != nil {
		s.logger.Error("send notification", zap.Error(err))
	}
}
