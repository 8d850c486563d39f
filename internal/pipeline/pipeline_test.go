package pipeline

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"vigil/internal/store/cyclelog"
	"vigil/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAlerts struct {
	mu     sync.Mutex
	alerts []types.MarginAlert
}

func (r *recordingAlerts) Append(_ context.Context, alert types.MarginAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	return nil
}

func (r *recordingAlerts) Acknowledge(context.Context, string) error { return nil }

func (r *recordingAlerts) Recent(context.Context, string, int) ([]types.MarginAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.MarginAlert(nil), r.alerts...), nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []types.MarginAlert
}

func (r *recordingNotifier) Emit(_ context.Context, alert types.MarginAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	return nil
}

func TestTriggerCoalesces(t *testing.T) {
	p := &Pipeline{accountID: "acct-1", trigger: make(chan struct{}, 1)}
	p.Trigger()
	p.Trigger()
	p.Trigger()
	assert.Len(t, p.trigger, 1)
}

func TestResumeQueuesOneCycle(t *testing.T) {
	p := &Pipeline{accountID: "acct-1", trigger: make(chan struct{}, 1)}
	p.paused.Store(true)

	p.Resume()
	assert.False(t, p.Paused())
	assert.Len(t, p.trigger, 1)

	// resuming an already-running pipeline is a no-op
	<-p.trigger
	p.Resume()
	assert.Empty(t, p.trigger)
}

func TestPauseOnAuthFailureAlertsOnce(t *testing.T) {
	alerts := &recordingAlerts{}
	notify := &recordingNotifier{}
	p := &Pipeline{
		accountID: "acct-1",
		alerts:    alerts,
		notify:    notify,
		trigger:   make(chan struct{}, 1),
		nowFn:     time.Now,
	}

	p.pauseOnAuthFailure(context.Background(), assert.AnError)
	assert.True(t, p.Paused())
	require.Len(t, alerts.alerts, 1)
	assert.Equal(t, types.AlertCritical, alerts.alerts[0].Level)
	assert.Equal(t, "acct-1", alerts.alerts[0].AccountID)
	require.Len(t, notify.alerts, 1)

	p.pauseOnAuthFailure(context.Background(), assert.AnError)
	assert.Len(t, alerts.alerts, 1)
}

func TestRunCycleSkipsWhilePaused(t *testing.T) {
	// no engines wired: a paused cycle must return before touching them
	p := &Pipeline{accountID: "acct-1", cycleTimeout: time.Second, nowFn: time.Now}
	p.paused.Store(true)
	p.runCycle(context.Background())
}

func TestAuditRecordsUndefinedUsage(t *testing.T) {
	cycles, err := cyclelog.NewStore(filepath.Join(t.TempDir(), "cycles.db"))
	require.NoError(t, err)
	defer cycles.Close()

	p := &Pipeline{accountID: "acct-1", cycles: cycles, nowFn: time.Now}
	snap := types.MarginSnapshot{
		AccountID: "acct-1", CycleID: "cycle-1", UsagePct: math.Inf(1),
		Zone: types.ZoneLiquidation, Degraded: true,
	}
	report := types.ReconciliationReport{AccountID: "acct-1", CycleID: "cycle-1"}
	p.audit(context.Background(), snap, report, time.Now())

	entries, err := cycles.Recent(context.Background(), "acct-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cycle-1", entries[0].CycleID)
	assert.Equal(t, -1.0, entries[0].UsagePct)
	assert.Equal(t, "usage undefined", entries[0].Note)
	assert.True(t, entries[0].Degraded)
}

func TestAuditWithoutCycleLogIsSafe(t *testing.T) {
	p := &Pipeline{accountID: "acct-1", nowFn: time.Now}
	p.audit(context.Background(), types.MarginSnapshot{UsagePct: 10}, types.ReconciliationReport{}, time.Now())
}
