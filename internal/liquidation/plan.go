// Package liquidation decides and issues risk-reducing actions. Planning is
// pure and deterministic; the coordinator owns the per-account state machine
// and the one-action-in-flight discipline.
package liquidation

import (
	"fmt"
	"sort"

	"vigil/internal/config"
	"vigil/internal/types"
)

// PlannedAction is one candidate action with its projected margin relief.
type PlannedAction struct {
	PositionID  string
	StrategyID  string
	Symbol      string
	Kind        types.ActionKind
	Fraction    float64
	FreedMargin float64
	Reason      string
}

// BuildPlan ranks the actions that would bring the account back under the
// critical threshold. Same snapshot, same plan.
//
// Candidates flagged ORPHAN_INTERNAL or PRICE_MISMATCH outrank everything
// else; within a tier, larger margin goes first. A position with an
// unresolved QUANTITY_MISMATCH is never fully closed (true size unknown), it
// gets a partial reduce instead. Venue exposure with no internal owner is
// not actionable here: no strategy owns it.
//
// CRITICAL plans exactly one step. LIQUIDATION stacks steps until the
// projected usage drops below the critical threshold.
func BuildPlan(
	snap types.MarginSnapshot,
	positions []types.InternalPosition,
	limits config.RiskLimits,
	cfg config.LiquidationConfig,
) []PlannedAction {
	if snap.Zone != types.ZoneCritical && snap.Zone != types.ZoneLiquidation {
		return nil
	}

	byID := make(map[string]types.InternalPosition, len(positions))
	for _, p := range positions {
		byID[p.ID] = p
	}

	candidates := make([]PlannedAction, 0, len(snap.Positions))
	for _, pm := range snap.Positions {
		if pm.PositionID == "" {
			continue
		}
		p, ok := byID[pm.PositionID]
		if !ok || p.CloseRequested || p.Status == types.PositionClosed {
			continue
		}
		candidates = append(candidates, plannedFor(pm, cfg))
	}
	sortByPriority(candidates)

	if snap.Zone == types.ZoneCritical {
		if len(candidates) == 0 {
			return nil
		}
		return candidates[:1]
	}
	return stackUntilBelowCritical(candidates, snap, limits)
}

func plannedFor(pm types.PositionMargin, cfg config.LiquidationConfig) PlannedAction {
	out := PlannedAction{
		PositionID: pm.PositionID,
		StrategyID: pm.StrategyID,
		Symbol:     pm.Symbol,
	}
	switch pm.Classification {
	case types.OrphanInternal, types.PriceMismatch:
		out.Kind = types.ActionClose
		out.Fraction = 1
		out.FreedMargin = pm.MarginRequired
		out.Reason = fmt.Sprintf("close %s position", pm.Classification)
	case types.QuantityMismatch:
		out.Kind = types.ActionReduce
		out.Fraction = cfg.ReduceFraction
		out.FreedMargin = pm.MarginRequired * cfg.ReduceFraction
		out.Reason = "reduce position with unresolved quantity mismatch"
	default:
		out.Kind = types.ActionReduce
		out.Fraction = cfg.ReduceFraction
		out.FreedMargin = pm.MarginRequired * cfg.ReduceFraction
		out.Reason = "reduce largest margin consumer"
	}
	return out
}

// sortByPriority orders mismatch-flagged closes first, then by freed margin,
// position id as the final tiebreak.
func sortByPriority(actions []PlannedAction) {
	tier := func(a PlannedAction) int {
		if a.Kind == types.ActionClose {
			return 0
		}
		return 1
	}
	sort.SliceStable(actions, func(i, j int) bool {
		if tier(actions[i]) != tier(actions[j]) {
			return tier(actions[i]) < tier(actions[j])
		}
		if actions[i].FreedMargin != actions[j].FreedMargin {
			return actions[i].FreedMargin > actions[j].FreedMargin
		}
		return actions[i].PositionID < actions[j].PositionID
	})
}

// stackUntilBelowCritical keeps adding steps while the projected usage stays
// at or above the critical threshold. In LIQUIDATION a plain reduce is
// upgraded to a full close; quantity mismatches stay partial.
func stackUntilBelowCritical(candidates []PlannedAction, snap types.MarginSnapshot, limits config.RiskLimits) []PlannedAction {
	var out []PlannedAction
	remaining := snap.MarginUsed
	for _, c := range candidates {
		if snap.Equity > 0 && remaining/snap.Equity*100 < limits.Zones.CriticalPct {
			break
		}
		if c.Kind == types.ActionReduce && c.Reason == "reduce largest margin consumer" {
			c.FreedMargin = c.FreedMargin / nonZero(c.Fraction)
			c.Kind = types.ActionClose
			c.Fraction = 1
			c.Reason = "close to exit liquidation zone"
		}
		out = append(out, c)
		remaining -= c.FreedMargin
	}
	return out
}

func nonZero(f float64) float64 {
	if f == 0 {
		return 1
	}
	return f
}
