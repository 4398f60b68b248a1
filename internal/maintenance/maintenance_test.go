package maintenance

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PaperDesk/internal/model"
)

type fakeDesk struct {
	snapshots int
	sweeps    int
	submits   int
	snapErr   error
}

func (d *fakeDesk) SnapshotAll() error {
	d.snapshots++
	return d.snapErr
}

func (d *fakeDesk) EvictExpired() int {
	d.sweeps++
	return 2
}

func (d *fakeDesk) ComparePerformance() []model.Performance {
	return []model.Performance{{Rank: 1, AccountID: "a", Name: "alpha", Source: "rules", TotalPnL: 10}}
}

func (d *fakeDesk) Health() map[string][]model.SymbolHealth {
	return map[string][]model.SymbolHealth{
		"b": {{Symbol: "ETHUSDT", ConsecutiveFailures: 3}},
		"a": {{Symbol: "BTCUSDT", Healthy: true}},
	}
}

func (d *fakeDesk) SubmitCycle() { d.submits++ }

type captureNotifier struct{ sent []string }

func (n *captureNotifier) Send(_ context.Context, text string) error {
	n.sent = append(n.sent, text)
	return nil
}

func TestRegisterAll(t *testing.T) {
	s := NewScheduler(context.Background(), &fakeDesk{}, nil, nil)
	require.NoError(t, s.RegisterAll(Specs{Snapshot: "0 */5 * * * *", Sweep: "0 * * * * *"}))
	assert.Len(t, s.Cron.Entries(), 2)

	err := NewScheduler(context.Background(), &fakeDesk{}, nil, nil).RegisterAll(Specs{Report: "not a spec"})
	assert.ErrorContains(t, err, "performance report")
}

func TestTasks(t *testing.T) {
	desk := &fakeDesk{}
	n := &captureNotifier{}
	s := NewScheduler(context.Background(), desk, n, nil)

	s.snapshotTask()
	s.sweepTask()
	s.reportTask()

	assert.Equal(t, 1, desk.snapshots)
	assert.Equal(t, 1, desk.sweeps)
	require.Len(t, n.sent, 1)
	assert.Contains(t, n.sent[0], "#1 alpha (rules)")

	desk.snapErr = errors.New("disk full")
	s.snapshotTask()
	assert.Equal(t, 2, desk.snapshots)
}

func TestHandleCommand(t *testing.T) {
	desk := &fakeDesk{}
	s := NewScheduler(context.Background(), desk, nil, nil)

	assert.Contains(t, s.HandleCommand("/perf"), "alpha")

	health := s.HandleCommand(" /HEALTH ")
	assert.Less(t, strings.Index(health, "| a"), strings.Index(health, "| b"))
	assert.Contains(t, health, "ETHUSDT: UNHEALTHY")

	assert.Equal(t, "cycle submitted", s.HandleCommand("/cycle"))
	assert.Equal(t, 1, desk.submits)

	assert.Equal(t, "snapshot saved", s.HandleCommand("/snapshot"))
	desk.snapErr = errors.New("disk full")
	assert.Equal(t, "snapshot failed: disk full", s.HandleCommand("/snapshot"))

	assert.Contains(t, s.HandleCommand("hello"), "/perf")
}
