// Package pipeline drives the per-account cycle: one consistent ledger read,
// reconcile, margin snapshot, liquidation evaluation. One cycle in flight per
// account, ever.
package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"vigil/internal/config"
	"vigil/internal/gateway/notifier"
	"vigil/internal/gateway/venue"
	"vigil/internal/liquidation"
	"vigil/internal/logger"
	"vigil/internal/margin"
	"vigil/internal/reconcile"
	"vigil/internal/store"
	"vigil/internal/store/cyclelog"
	"vigil/internal/types"

	"github.com/google/uuid"
)

// Pipeline owns one account's cycle loop. External triggers (fill webhooks)
// coalesce into a single buffered slot: a burst of events during a running
// cycle yields exactly one follow-up cycle.
type Pipeline struct {
	accountID string
	recon     *reconcile.Engine
	margin    *margin.Engine
	coord     *liquidation.Coordinator
	positions store.PositionRepository
	alerts    store.AlertRepository
	notify    notifier.Notifier
	cycles    *cyclelog.Store // nil-safe audit trail

	interval     time.Duration
	cycleTimeout time.Duration
	runNow       bool

	trigger chan struct{}
	paused  atomic.Bool
	nowFn   func() time.Time
}

func New(
	accountID string,
	recon *reconcile.Engine,
	marginEngine *margin.Engine,
	coord *liquidation.Coordinator,
	st store.Store,
	notify notifier.Notifier,
	cycles *cyclelog.Store,
	cfg config.PipelineConfig,
) *Pipeline {
	return &Pipeline{
		accountID:    accountID,
		recon:        recon,
		margin:       marginEngine,
		coord:        coord,
		positions:    st.Positions(),
		alerts:       st.Alerts(),
		notify:       notify,
		cycles:       cycles,
		interval:     cfg.IntervalDuration(),
		cycleTimeout: cfg.CycleTimeoutDuration(),
		runNow:       cfg.RunImmediately,
		trigger:      make(chan struct{}, 1),
		nowFn:        time.Now,
	}
}

func (p *Pipeline) AccountID() string { return p.accountID }

// Trigger requests an out-of-schedule cycle. Never blocks; a trigger landing
// while one is already queued is absorbed.
func (p *Pipeline) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Paused reports whether the loop is skipping cycles after an auth failure.
func (p *Pipeline) Paused() bool { return p.paused.Load() }

// Resume re-enables cycles after an operator fixed the credentials.
func (p *Pipeline) Resume() {
	if p.paused.CompareAndSwap(true, false) {
		logger.Infof("pipeline account=%s resumed", p.accountID)
		p.Trigger()
	}
}

// Run loops until ctx is done. Cycles are strictly sequential; the ticker
// and the trigger channel both feed the same single runner.
func (p *Pipeline) Run(ctx context.Context) error {
	logger.Infof("pipeline account=%s started interval=%s timeout=%s", p.accountID, p.interval, p.cycleTimeout)
	if p.runNow {
		p.runCycle(ctx)
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Infof("pipeline account=%s stopped", p.accountID)
			return ctx.Err()
		case <-ticker.C:
			p.runCycle(ctx)
		case <-p.trigger:
			p.runCycle(ctx)
		}
	}
}

// runCycle executes reconcile -> margin -> liquidation against one ledger
// snapshot. A cycle that overruns its deadline produces a STALE result and
// never emits alerts or actions.
func (p *Pipeline) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if p.paused.Load() {
		logger.Warnf("pipeline account=%s paused, cycle skipped", p.accountID)
		return
	}
	cctx, cancel := context.WithTimeout(ctx, p.cycleTimeout)
	defer cancel()
	start := p.nowFn()

	internal, err := p.positions.OpenPositions(cctx, p.accountID)
	if err != nil {
		logger.Errorf("pipeline account=%s ledger read failed: %v", p.accountID, err)
		return
	}

	report, err := p.recon.ReconcilePositions(cctx, p.accountID, internal)
	if err != nil {
		if errors.Is(err, venue.ErrAuth) {
			p.pauseOnAuthFailure(ctx, err)
			return
		}
		logger.Errorf("pipeline account=%s reconcile failed: %v", p.accountID, err)
		return
	}

	snap, err := p.margin.ComputeSnapshot(cctx, p.accountID, internal, report)
	if err != nil {
		logger.Errorf("pipeline account=%s margin snapshot failed: %v", p.accountID, err)
		return
	}

	if err := p.coord.Evaluate(cctx, p.accountID, snap, report, internal); err != nil {
		logger.Errorf("pipeline account=%s liquidation evaluation failed: %v", p.accountID, err)
		return
	}

	p.audit(ctx, snap, report, start)
	logger.Debugf("pipeline account=%s cycle done in %s zone=%s stale=%v positions=%d",
		p.accountID, time.Since(start).Round(time.Millisecond), snap.Zone, report.Stale, len(internal))
}

func (p *Pipeline) audit(ctx context.Context, snap types.MarginSnapshot, report types.ReconciliationReport, start time.Time) {
	entry := cyclelog.Entry{
		AccountID:  p.accountID,
		CycleID:    report.CycleID,
		TS:         p.nowFn().UnixMilli(),
		Zone:       string(snap.Zone),
		UsagePct:   snap.UsagePct,
		Stale:      report.Stale,
		Degraded:   snap.Degraded,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if !snap.UsageDefined() {
		entry.UsagePct = -1
		entry.Note = "usage undefined"
	}
	if err := p.cycles.Append(ctx, entry); err != nil {
		logger.Warnf("cycle audit write failed account=%s: %v", p.accountID, err)
	}
}

// pauseOnAuthFailure stops the loop's work until an operator resumes it.
// Retrying bad credentials only burns the rate budget.
func (p *Pipeline) pauseOnAuthFailure(ctx context.Context, cause error) {
	if !p.paused.CompareAndSwap(false, true) {
		return
	}
	logger.Errorf("pipeline account=%s paused on venue auth failure: %v", p.accountID, cause)
	alert := types.MarginAlert{
		ID:        uuid.NewString(),
		AccountID: p.accountID,
		Level:     types.AlertCritical,
		Message:   "venue authentication failed, pipeline paused until resumed",
		CreatedAt: p.nowFn().UTC(),
	}
	if err := p.alerts.Append(ctx, alert); err != nil {
		logger.Warnf("persisting pause alert account=%s failed: %v", p.accountID, err)
	}
	if err := p.notify.Emit(ctx, alert); err != nil {
		logger.Warnf("pause alert delivery account=%s failed: %v", p.accountID, err)
	}
}
