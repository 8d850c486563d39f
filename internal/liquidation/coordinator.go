package liquidation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vigil/internal/config"
	"vigil/internal/gateway/notifier"
	"vigil/internal/logger"
	"vigil/internal/store"
	"vigil/internal/strategy"
	"vigil/internal/types"

	"github.com/google/uuid"
)

// LimitsProvider resolves the tuned zone thresholds for an account.
type LimitsProvider interface {
	For(accountID string) config.RiskLimits
}

// Coordinator runs the per-account action state machine:
// NORMAL -> ACTION_PENDING -> COOLING_DOWN -> NORMAL. Actions only go
// through the owning strategy's close capability, never to the venue
// directly, and while COOLING_DOWN no new action is created whatever the
// zone says.
type Coordinator struct {
	actions   store.ActionRepository
	cooldowns store.CooldownRepository
	positions store.PositionRepository
	alerts    store.AlertRepository
	registry  *strategy.Registry
	notify    notifier.Notifier
	limits    LimitsProvider
	cfg       config.LiquidationConfig

	mu     sync.Mutex
	states map[string]types.CooldownState

	nowFn func() time.Time
}

func NewCoordinator(
	st store.Store,
	registry *strategy.Registry,
	notify notifier.Notifier,
	limits LimitsProvider,
	cfg config.LiquidationConfig,
) *Coordinator {
	return &Coordinator{
		actions:   st.Actions(),
		cooldowns: st.Cooldowns(),
		positions: st.Positions(),
		alerts:    st.Alerts(),
		registry:  registry,
		notify:    notify,
		limits:    limits,
		cfg:       cfg,
		states:    make(map[string]types.CooldownState),
		nowFn:     time.Now,
	}
}

// Recover rehydrates persisted cooldown state so a restart can not be used
// to sidestep an active cooldown.
func (c *Coordinator) Recover(ctx context.Context, accountIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range accountIDs {
		state, found, err := c.cooldowns.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("loading cooldown state for account %s failed: %w", id, err)
		}
		if found {
			c.states[id] = state
			logger.Infof("liquidation account=%s recovered state=%s until=%s", id, state.State, state.Until.Format(time.RFC3339))
		}
	}
	return nil
}

// State returns the machine position for an account, NORMAL when unknown.
func (c *Coordinator) State(accountID string) types.CoordinatorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.states[accountID]; ok {
		return s.State
	}
	return types.StateNormal
}

// Evaluate advances the state machine for one completed cycle. A stale or
// cancelled cycle never creates, retries or completes an action.
func (c *Coordinator) Evaluate(
	ctx context.Context,
	accountID string,
	snap types.MarginSnapshot,
	report types.ReconciliationReport,
	positions []types.InternalPosition,
) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if report.Stale {
		logger.Warnf("liquidation account=%s stale cycle, no action", accountID)
		return nil
	}

	switch c.State(accountID) {
	case types.StateActionPending:
		return c.progressPending(ctx, accountID, snap)
	case types.StateCoolingDown:
		c.tryExitCooldown(ctx, accountID, snap)
		return nil
	default:
		return c.maybeAct(ctx, accountID, snap, report, positions)
	}
}

func (c *Coordinator) maybeAct(
	ctx context.Context,
	accountID string,
	snap types.MarginSnapshot,
	report types.ReconciliationReport,
	positions []types.InternalPosition,
) error {
	if snap.Zone != types.ZoneCritical && snap.Zone != types.ZoneLiquidation {
		return nil
	}
	// A snapshot with no equity data at all classifies LIQUIDATION, but
	// closing positions off a blind read would be acting on noise.
	if snap.Degraded && !snap.UsageDefined() {
		logger.Warnf("liquidation account=%s zone=%s but snapshot is blind (degraded, no usage), holding", accountID, snap.Zone)
		return nil
	}

	plan := BuildPlan(snap, positions, c.limits.For(accountID), c.cfg)
	if len(plan) == 0 {
		logger.Warnf("liquidation account=%s zone=%s with no actionable position", accountID, snap.Zone)
		return nil
	}

	for _, step := range plan {
		ok, err := c.issue(ctx, accountID, snap, step)
		if err != nil {
			return err
		}
		if !ok {
			// the failed action stays pending; retries continue next cycle
			c.setState(ctx, accountID, types.CooldownState{
				AccountID:          accountID,
				State:              types.StateActionPending,
				LastActionUsagePct: snap.UsagePct,
				UpdatedAt:          c.nowFn().UTC(),
			})
			return nil
		}
	}
	c.enterCooldown(ctx, accountID, snap.UsagePct)
	return nil
}

// issue persists one action, flags the position and calls the owning
// strategy. Returns false when the strategy rejected or errored.
func (c *Coordinator) issue(ctx context.Context, accountID string, snap types.MarginSnapshot, step PlannedAction) (bool, error) {
	now := c.nowFn().UTC()
	action := types.LiquidationAction{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		PositionID: step.PositionID,
		StrategyID: step.StrategyID,
		Kind:       step.Kind,
		Fraction:   step.Fraction,
		Reason:     step.Reason,
		IssuedAt:   now,
		Outcome:    types.OutcomePending,
	}
	if err := c.actions.Append(ctx, action); err != nil {
		return false, fmt.Errorf("persisting liquidation action failed: %w", err)
	}
	if err := c.positions.MarkCloseRequested(ctx, step.PositionID); err != nil {
		logger.Warnf("mark close_requested failed position=%s: %v", step.PositionID, err)
	}
	c.announce(ctx, accountID, snap.Zone, fmt.Sprintf("%s %s %.0f%% of %s (%s): %s",
		snap.Zone, action.Kind, action.Fraction*100, step.Symbol, step.PositionID, step.Reason))

	accepted := c.execute(ctx, &action)
	if err := c.actions.Update(ctx, action); err != nil {
		return false, fmt.Errorf("updating liquidation action failed: %w", err)
	}
	return accepted, nil
}

// execute performs one close attempt and mutates the action's outcome and
// attempt count in place.
func (c *Coordinator) execute(ctx context.Context, action *types.LiquidationAction) bool {
	action.Attempts++
	closer, err := c.registry.Resolve(action.StrategyID)
	if err != nil {
		logger.Errorf("liquidation action=%s: %v", action.ID, err)
		action.Outcome = types.OutcomeFailed
		return false
	}
	result, err := closer.RequestClose(ctx, action.PositionID, action.Fraction)
	if err != nil {
		logger.Warnf("liquidation action=%s attempt=%d failed: %v", action.ID, action.Attempts, err)
		action.Outcome = types.OutcomeFailed
		return false
	}
	if !result.Accepted {
		logger.Warnf("liquidation action=%s attempt=%d rejected: %s", action.ID, action.Attempts, result.Detail)
		action.Outcome = types.OutcomeFailed
		return false
	}
	now := c.nowFn().UTC()
	action.Outcome = types.OutcomeFilled
	action.CompletedAt = &now
	return true
}

// progressPending retries the in-flight action and escalates once retries
// are exhausted. Either way the machine then cools down; a human deals with
// escalations.
func (c *Coordinator) progressPending(ctx context.Context, accountID string, snap types.MarginSnapshot) error {
	pending, err := c.actions.Pending(ctx, accountID)
	if err != nil {
		return fmt.Errorf("loading pending actions failed: %w", err)
	}
	if len(pending) == 0 {
		c.enterCooldown(ctx, accountID, snap.UsagePct)
		return nil
	}

	action := pending[0]
	if action.Attempts >= c.cfg.MaxRetries {
		now := c.nowFn().UTC()
		action.Outcome = types.OutcomeEscalated
		action.CompletedAt = &now
		if err := c.actions.Update(ctx, action); err != nil {
			return fmt.Errorf("escalating liquidation action failed: %w", err)
		}
		c.announce(ctx, accountID, types.ZoneCritical, fmt.Sprintf(
			"action %s on position %s escalated after %d attempts, manual intervention required",
			action.Kind, action.PositionID, action.Attempts))
		c.enterCooldown(ctx, accountID, snap.UsagePct)
		return nil
	}

	accepted := c.execute(ctx, &action)
	if err := c.actions.Update(ctx, action); err != nil {
		return fmt.Errorf("updating liquidation action failed: %w", err)
	}
	if accepted {
		c.enterCooldown(ctx, accountID, snap.UsagePct)
	}
	return nil
}

// tryExitCooldown returns to NORMAL only when the cooldown has elapsed, the
// zone is below CRITICAL and usage has actually improved since the action.
func (c *Coordinator) tryExitCooldown(ctx context.Context, accountID string, snap types.MarginSnapshot) {
	c.mu.Lock()
	state := c.states[accountID]
	c.mu.Unlock()

	now := c.nowFn().UTC()
	if now.Before(state.Until) {
		return
	}
	if snap.Zone == types.ZoneCritical || snap.Zone == types.ZoneLiquidation {
		return
	}
	if !snap.UsageDefined() || snap.UsagePct > state.LastActionUsagePct-c.cfg.MinImprovementPct {
		return
	}
	logger.Infof("liquidation account=%s cooldown cleared usage=%.1f%% (was %.1f%%)", accountID, snap.UsagePct, state.LastActionUsagePct)
	c.setState(ctx, accountID, types.CooldownState{
		AccountID: accountID,
		State:     types.StateNormal,
		UpdatedAt: now,
	})
}

func (c *Coordinator) enterCooldown(ctx context.Context, accountID string, usagePct float64) {
	now := c.nowFn().UTC()
	c.setState(ctx, accountID, types.CooldownState{
		AccountID:          accountID,
		State:              types.StateCoolingDown,
		Until:              now.Add(c.cfg.Cooldown()),
		LastActionUsagePct: usagePct,
		UpdatedAt:          now,
	})
}

func (c *Coordinator) setState(ctx context.Context, accountID string, state types.CooldownState) {
	c.mu.Lock()
	c.states[accountID] = state
	c.mu.Unlock()
	if err := c.cooldowns.Save(ctx, state); err != nil {
		logger.Warnf("persisting cooldown state account=%s failed: %v", accountID, err)
	}
}

func (c *Coordinator) announce(ctx context.Context, accountID string, zone types.Zone, msg string) {
	level := types.AlertCritical
	if zone == types.ZoneLiquidation {
		level = types.AlertLiquidation
	}
	alert := types.MarginAlert{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Level:     level,
		Message:   msg,
		CreatedAt: c.nowFn().UTC(),
	}
	if err := c.alerts.Append(ctx, alert); err != nil {
		logger.Warnf("persisting action alert account=%s failed: %v", accountID, err)
	}
	if err := c.notify.Emit(ctx, alert); err != nil {
		logger.Warnf("action alert delivery account=%s failed: %v", accountID, err)
	}
}
