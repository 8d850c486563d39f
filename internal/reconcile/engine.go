package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"vigil/internal/config"
	"vigil/internal/gateway/venue"
	"vigil/internal/logger"
	"vigil/internal/pkg/circuit"
	"vigil/internal/pkg/ratelimit"
	"vigil/internal/store"
	"vigil/internal/types"

	"github.com/google/uuid"
)

// LimitsProvider resolves the current tuned tolerances for an account.
type LimitsProvider interface {
	For(accountID string) config.RiskLimits
}

// Engine pulls venue truth and the ledger snapshot, runs the matcher and
// persists the classified report. A failed or rate-limited venue call marks
// the cycle STALE and returns the prior classifications; silence never
// resolves an orphan.
type Engine struct {
	venue     venue.Venue
	positions store.PositionRepository
	recons    store.ReconciliationRepository
	limits    LimitsProvider
	breaker   *circuit.Breaker
	limiter   *ratelimit.SlidingWindow
	nowFn     func() time.Time
}

func NewEngine(
	v venue.Venue,
	positions store.PositionRepository,
	recons store.ReconciliationRepository,
	limits LimitsProvider,
	breaker *circuit.Breaker,
	limiter *ratelimit.SlidingWindow,
) *Engine {
	return &Engine{
		venue:     v,
		positions: positions,
		recons:    recons,
		limits:    limits,
		breaker:   breaker,
		limiter:   limiter,
		nowFn:     time.Now,
	}
}

// Reconcile reads one consistent ledger snapshot and runs a cycle.
func (e *Engine) Reconcile(ctx context.Context, accountID string) (types.ReconciliationReport, error) {
	internal, err := e.positions.OpenPositions(ctx, accountID)
	if err != nil {
		return types.ReconciliationReport{}, fmt.Errorf("ledger snapshot read failed: %w", err)
	}
	return e.ReconcilePositions(ctx, accountID, internal)
}

// ReconcilePositions runs one matching cycle against an already-read ledger
// snapshot (the pipeline reads the store once at cycle start). The returned
// report is stale (prior classifications, Stale=true) when venue truth could
// not be obtained; the error is non-nil only for failures that must stop the
// pipeline (auth, storage).
func (e *Engine) ReconcilePositions(ctx context.Context, accountID string, internal []types.InternalPosition) (types.ReconciliationReport, error) {
	now := e.nowFn().UTC()

	if !e.breaker.Allow() {
		logger.Warnf("reconcile account=%s venue breaker open, cycle stale", accountID)
		return e.staleReport(ctx, accountID, now)
	}

	venuePositions, err := e.venueListPositions(ctx, accountID)
	if err != nil {
		return e.venueFailure(ctx, accountID, now, err)
	}
	cursor, err := e.recons.Cursor(ctx, accountID)
	if err != nil {
		return types.ReconciliationReport{}, fmt.Errorf("cursor read failed: %w", err)
	}
	venueOrders, err := e.venueListOrders(ctx, accountID, cursor)
	if err != nil {
		return e.venueFailure(ctx, accountID, now, err)
	}

	report := types.ReconciliationReport{
		AccountID:   accountID,
		CycleID:     uuid.NewString(),
		GeneratedAt: now,
		Cursor:      nextCursor(cursor, venueOrders),
	}
	report.Records = Match(internal, venuePositions, venueOrders, e.limits.For(accountID), accountID, report.CycleID, now)

	// A cancelled or timed-out cycle is STALE: no persistence, no flags.
	if ctx.Err() != nil {
		logger.Warnf("reconcile account=%s cycle cancelled, result discarded", accountID)
		return e.staleReport(context.WithoutCancel(ctx), accountID, now)
	}

	if err := e.recons.SaveReport(ctx, report); err != nil {
		return types.ReconciliationReport{}, fmt.Errorf("persisting reconciliation report failed: %w", err)
	}
	e.applyAttentionFlags(ctx, report, now)
	return report, nil
}

func (e *Engine) venueListPositions(ctx context.Context, accountID string) ([]types.VenuePosition, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, venue.ErrUnavailable
	}
	out, err := e.venue.ListPositions(ctx, accountID)
	e.observe(err)
	return out, err
}

func (e *Engine) venueListOrders(ctx context.Context, accountID, since string) ([]types.VenueOrder, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, venue.ErrUnavailable
	}
	out, err := e.venue.ListOrders(ctx, accountID, since)
	e.observe(err)
	return out, err
}

func (e *Engine) observe(err error) {
	if err == nil {
		e.breaker.RecordSuccess()
		return
	}
	if venue.Transient(err) {
		e.breaker.RecordFailure()
	}
}

func (e *Engine) venueFailure(ctx context.Context, accountID string, now time.Time, err error) (types.ReconciliationReport, error) {
	if errors.Is(err, venue.ErrAuth) {
		return types.ReconciliationReport{}, fmt.Errorf("venue auth failed for account %s: %w", accountID, err)
	}
	logger.Warnf("reconcile account=%s venue call failed, cycle stale: %v", accountID, err)
	return e.staleReport(ctx, accountID, now)
}

// staleReport retains the prior cycle's classifications. An ORPHAN_INTERNAL
// must never be auto-cleared by a failed call.
func (e *Engine) staleReport(ctx context.Context, accountID string, now time.Time) (types.ReconciliationReport, error) {
	prior, err := e.recons.LatestReport(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.ReconciliationReport{AccountID: accountID, Stale: true, GeneratedAt: now}, nil
		}
		return types.ReconciliationReport{}, fmt.Errorf("loading prior report failed: %w", err)
	}
	prior.Stale = true
	prior.GeneratedAt = now
	return prior, nil
}

// applyAttentionFlags is the engine's only write into the ledger: it flags
// mismatched positions and clears flags on symbols that came back MATCHED.
// Flag failures are logged, not fatal; the report is already persisted.
func (e *Engine) applyAttentionFlags(ctx context.Context, report types.ReconciliationReport, now time.Time) {
	cleanSymbols := make(map[string]bool)
	for _, rec := range report.Records {
		switch {
		case rec.Classification.Mismatch() && rec.InternalPositionID != "":
			cleanSymbols[rec.Symbol] = false
			if err := e.positions.MarkNeedsAttention(ctx, rec.InternalPositionID, rec.Classification); err != nil {
				logger.Warnf("mark needs_attention failed position=%s: %v", rec.InternalPositionID, err)
			}
		case rec.Classification == types.Matched:
			if _, flagged := cleanSymbols[rec.Symbol]; !flagged {
				cleanSymbols[rec.Symbol] = true
			}
		case rec.Classification.Mismatch():
			cleanSymbols[rec.Symbol] = false
		}
	}
	for _, rec := range report.Records {
		if rec.Classification != types.Matched || !cleanSymbols[rec.Symbol] {
			continue
		}
		if err := e.recons.MarkResolved(ctx, report.AccountID, rec.Symbol, now); err != nil {
			logger.Warnf("mark resolved failed symbol=%s: %v", rec.Symbol, err)
		}
		if rec.InternalPositionID != "" {
			if err := e.positions.ClearNeedsAttention(ctx, rec.InternalPositionID); err != nil && !errors.Is(err, store.ErrNotFound) {
				logger.Warnf("clear needs_attention failed position=%s: %v", rec.InternalPositionID, err)
			}
		}
	}
}

// nextCursor bounds the next order query: the max order update time seen, as
// unix nanos. The prior cursor is kept when no newer order arrived.
func nextCursor(prior string, orders []types.VenueOrder) string {
	max := int64(0)
	if prior != "" {
		if v, err := strconv.ParseInt(prior, 10, 64); err == nil {
			max = v
		}
	}
	for _, o := range orders {
		if ts := o.UpdatedAt.UnixNano(); ts > max {
			max = ts
		}
	}
	if max == 0 {
		return prior
	}
	return strconv.FormatInt(max, 10)
}
