package margin

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"vigil/internal/config"
	"vigil/internal/gateway/notifier"
	"vigil/internal/gateway/price"
	"vigil/internal/gateway/venue"
	"vigil/internal/logger"
	"vigil/internal/pkg/ratelimit"
	"vigil/internal/store"
	"vigil/internal/types"

	"github.com/google/uuid"
)

// LimitsProvider resolves the tuned zone thresholds and margin parameters.
type LimitsProvider interface {
	For(accountID string) config.RiskLimits
}

// Engine computes one immutable MarginSnapshot per cycle. Incomplete data
// never skips the computation: a missing price falls back to the last known
// one with a stale flag, missing equity reuses the previous snapshot's, and
// every such gap marks the snapshot degraded. Ambiguity biases toward the
// worse zone.
type Engine struct {
	prices       price.Source
	venue        venue.Venue
	snapshots    store.SnapshotRepository
	positions    store.PositionRepository
	alerts       store.AlertRepository
	notify       notifier.Notifier
	limits       LimitsProvider
	limiter      *ratelimit.SlidingWindow
	defaultClass map[string]types.InstrumentClass // per account, for unattributed venue exposure

	priceMu    sync.Mutex
	lastPrices map[string]float64

	nowFn func() time.Time
}

func NewEngine(
	prices price.Source,
	v venue.Venue,
	snapshots store.SnapshotRepository,
	positions store.PositionRepository,
	alerts store.AlertRepository,
	notify notifier.Notifier,
	limits LimitsProvider,
	limiter *ratelimit.SlidingWindow,
	defaultClass map[string]types.InstrumentClass,
) *Engine {
	return &Engine{
		prices:       prices,
		venue:        v,
		snapshots:    snapshots,
		positions:    positions,
		alerts:       alerts,
		notify:       notify,
		limits:       limits,
		limiter:      limiter,
		defaultClass: defaultClass,
		lastPrices:   make(map[string]float64),
		nowFn:        time.Now,
	}
}

// ComputeSnapshot aggregates reconciled positions and prices into a snapshot,
// classifies the zone and raises transition alerts. Unresolved quantity
// mismatches are counted at the more conservative (larger) quantity and
// unattributed venue exposure is margined under the account's default class.
func (e *Engine) ComputeSnapshot(
	ctx context.Context,
	accountID string,
	positions []types.InternalPosition,
	report types.ReconciliationReport,
) (types.MarginSnapshot, error) {
	now := e.nowFn().UTC()
	limits := e.limits.For(accountID)

	snap := types.MarginSnapshot{
		AccountID: accountID,
		CycleID:   report.CycleID,
		Timestamp: now,
	}
	if report.Stale {
		snap.Degraded = true
	}

	prior, priorErr := e.snapshots.Latest(ctx, accountID)
	hasPrior := priorErr == nil
	if priorErr != nil && !errors.Is(priorErr, store.ErrNotFound) {
		return types.MarginSnapshot{}, fmt.Errorf("loading prior snapshot failed: %w", priorErr)
	}

	equity, equityDegraded := e.accountEquity(ctx, accountID, prior, hasPrior)
	snap.Equity = equity
	if equityDegraded {
		snap.Degraded = true
	}

	marginUsed := 0.0
	grossNotional := 0.0
	for _, p := range positions {
		pm := e.positionMargin(ctx, p, report, limits)
		if pm.StalePrice {
			snap.Degraded = true
		}
		snap.Positions = append(snap.Positions, pm)
		marginUsed += pm.MarginRequired
		grossNotional += math.Abs(pm.Notional)
		if err := e.positions.UpdateMarginCache(ctx, p.ID, pm.MarginRequired); err != nil && !errors.Is(err, store.ErrNotFound) {
			logger.Warnf("margin cache write failed position=%s: %v", p.ID, err)
		}
	}
	if orphan, ok := e.orphanVenueMargin(ctx, accountID, report, limits); ok {
		if orphan.StalePrice {
			snap.Degraded = true
		}
		snap.Positions = append(snap.Positions, orphan)
		marginUsed += orphan.MarginRequired
		grossNotional += math.Abs(orphan.Notional)
	}

	snap.MarginUsed = marginUsed
	snap.MarginAvailable = equity - marginUsed
	snap.PositionCount = len(positions)
	if equity > 0 {
		snap.UsagePct = marginUsed / equity * 100
		snap.Leverage = grossNotional / equity
	} else {
		snap.UsagePct = math.Inf(1)
	}
	snap.Zone = ZoneFor(snap.UsagePct, snap.MarginAvailable, limits.Zones)

	// A cancelled cycle never persists a snapshot or emits alerts.
	if ctx.Err() != nil {
		return snap, fmt.Errorf("cycle cancelled before snapshot persisted: %w", ctx.Err())
	}
	if err := e.snapshots.Append(ctx, snap); err != nil {
		return snap, fmt.Errorf("appending snapshot failed: %w", err)
	}
	e.raiseTransitionAlert(ctx, snap, prior, hasPrior)
	return snap, nil
}

func (e *Engine) accountEquity(ctx context.Context, accountID string, prior types.MarginSnapshot, hasPrior bool) (float64, bool) {
	if err := e.limiter.Wait(ctx); err == nil {
		if equity, err := e.venue.AccountEquity(ctx, accountID); err == nil {
			return equity, false
		} else {
			logger.Warnf("equity lookup failed account=%s: %v", accountID, err)
		}
	}
	if hasPrior {
		return prior.Equity, true
	}
	// no equity data at all: zero forces usage to +Inf and the LIQUIDATION
	// zone; the coordinator refuses to act on a fully blind snapshot
	return 0, true
}

func (e *Engine) positionMargin(ctx context.Context, p types.InternalPosition, report types.ReconciliationReport, limits config.RiskLimits) types.PositionMargin {
	px, stale := e.lookupPrice(ctx, p.Symbol, p.EntryPrice)

	quantity := p.Quantity
	classification := types.Classification("")
	if rec, ok := report.ForPosition(p.ID); ok && rec.Classification.Mismatch() {
		classification = rec.Classification
		if rec.Classification == types.QuantityMismatch {
			// venue may hold more than the ledger thinks; count the larger side
			quantity += rec.Magnitude
		}
	}

	model := ModelFor(p.Class, limits.ParamsFor(p.Class))
	effective := p
	effective.Quantity = quantity
	return types.PositionMargin{
		PositionID:     p.ID,
		StrategyID:     p.StrategyID,
		Symbol:         p.Symbol,
		Quantity:       quantity,
		Price:          px,
		Notional:       quantity * px * p.Side.Sign(),
		MarginRequired: model.RequiredMargin(effective, px),
		StalePrice:     stale,
		Classification: classification,
	}
}

// orphanVenueMargin folds venue exposure with no internal owner into the
// snapshot under the account's default instrument class.
func (e *Engine) orphanVenueMargin(ctx context.Context, accountID string, report types.ReconciliationReport, limits config.RiskLimits) (types.PositionMargin, bool) {
	total := types.PositionMargin{Classification: types.OrphanVenue}
	found := false
	for _, rec := range report.Records {
		if rec.Classification != types.OrphanVenue || rec.ResolvedAt != nil {
			continue
		}
		found = true
		px, stale := e.lookupPrice(ctx, rec.Symbol, 0)
		class := e.defaultClass[accountID]
		model := ModelFor(class, limits.ParamsFor(class))
		phantom := types.InternalPosition{Symbol: rec.Symbol, Class: class, Side: types.SideLong, Quantity: rec.Magnitude}
		total.Symbol = rec.Symbol
		total.Quantity += rec.Magnitude
		total.Price = px
		total.Notional += rec.Magnitude * px
		total.MarginRequired += model.RequiredMargin(phantom, px)
		total.StalePrice = total.StalePrice || stale
	}
	return total, found
}

// lookupPrice returns the current price, or the last known one flagged stale.
// fallback is used when the symbol has never priced (entry price, or zero for
// pure venue exposure).
func (e *Engine) lookupPrice(ctx context.Context, symbol string, fallback float64) (float64, bool) {
	px, err := e.prices.CurrentPrice(ctx, symbol)
	if err == nil && px > 0 {
		e.priceMu.Lock()
		e.lastPrices[symbol] = px
		e.priceMu.Unlock()
		return px, false
	}
	if err != nil && !errors.Is(err, price.ErrUnavailable) {
		logger.Warnf("price lookup failed symbol=%s: %v", symbol, err)
	}
	e.priceMu.Lock()
	last, ok := e.lastPrices[symbol]
	e.priceMu.Unlock()
	if ok {
		return last, true
	}
	return fallback, true
}

// raiseTransitionAlert emits on any transition into a worse zone and on
// entry into CRITICAL/LIQUIDATION; improvements get an INFO alert only.
func (e *Engine) raiseTransitionAlert(ctx context.Context, snap, prior types.MarginSnapshot, hasPrior bool) {
	priorZone := types.ZoneHealthy
	if hasPrior {
		priorZone = prior.Zone
	}
	if snap.Zone == priorZone {
		return
	}

	var alert types.MarginAlert
	if snap.Zone.Worse(priorZone) {
		alert = types.MarginAlert{
			Level: AlertLevelFor(snap.Zone),
			Message: fmt.Sprintf("margin zone %s -> %s: usage=%s equity=%.2f margin_used=%.2f degraded=%v",
				priorZone, snap.Zone, formatUsage(snap.UsagePct), snap.Equity, snap.MarginUsed, snap.Degraded),
		}
	} else {
		alert = types.MarginAlert{
			Level: types.AlertInfo,
			Message: fmt.Sprintf("margin zone recovered %s -> %s: usage=%s",
				priorZone, snap.Zone, formatUsage(snap.UsagePct)),
		}
	}
	alert.ID = uuid.NewString()
	alert.AccountID = snap.AccountID
	alert.CreatedAt = snap.Timestamp

	if err := e.alerts.Append(ctx, alert); err != nil {
		logger.Warnf("persisting alert failed account=%s: %v", snap.AccountID, err)
	}
	if err := e.notify.Emit(ctx, alert); err != nil {
		logger.Warnf("alert delivery failed account=%s: %v", snap.AccountID, err)
	}
}

func formatUsage(usagePct float64) string {
	if math.IsInf(usagePct, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.1f%%", usagePct)
}
