package liquidation

import (
	"testing"

	"vigil/internal/config"
	"vigil/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var planCfg = config.LiquidationConfig{
	CooldownSeconds:   300,
	ReduceFraction:    0.5,
	MinImprovementPct: 5,
	MaxRetries:        3,
}

func planLimits() config.RiskLimits { return config.DefaultRiskLimits() }

func snapWith(zone types.Zone, equity, marginUsed float64, positions ...types.PositionMargin) types.MarginSnapshot {
	return types.MarginSnapshot{
		AccountID:  "acct-1",
		Zone:       zone,
		Equity:     equity,
		MarginUsed: marginUsed,
		UsagePct:   marginUsed / equity * 100,
		Positions:  positions,
	}
}

func pm(id string, margin float64, class types.Classification) types.PositionMargin {
	return types.PositionMargin{
		PositionID:     id,
		StrategyID:     "strat-a",
		Symbol:         "BTC-PERP",
		MarginRequired: margin,
		Classification: class,
	}
}

func openPositions(ids ...string) []types.InternalPosition {
	out := make([]types.InternalPosition, 0, len(ids))
	for _, id := range ids {
		out = append(out, types.InternalPosition{ID: id, Status: types.PositionOpen})
	}
	return out
}

func TestBuildPlanHealthyZoneIsEmpty(t *testing.T) {
	snap := snapWith(types.ZoneWarning, 50000, 30000, pm("p1", 30000, ""))
	assert.Empty(t, BuildPlan(snap, openPositions("p1"), planLimits(), planCfg))
}

func TestBuildPlanCriticalReducesSingleLargest(t *testing.T) {
	snap := snapWith(types.ZoneCritical, 50000, 40000,
		pm("p1", 15000, ""), pm("p2", 25000, ""))

	plan := BuildPlan(snap, openPositions("p1", "p2"), planLimits(), planCfg)
	require.Len(t, plan, 1)
	assert.Equal(t, "p2", plan[0].PositionID)
	assert.Equal(t, types.ActionReduce, plan[0].Kind)
	assert.Equal(t, 0.5, plan[0].Fraction)
}

func TestBuildPlanFlaggedPositionsFirst(t *testing.T) {
	snap := snapWith(types.ZoneCritical, 50000, 40000,
		pm("p-big", 30000, ""), pm("p-orphan", 5000, types.OrphanInternal))

	plan := BuildPlan(snap, openPositions("p-big", "p-orphan"), planLimits(), planCfg)
	require.Len(t, plan, 1)
	assert.Equal(t, "p-orphan", plan[0].PositionID)
	assert.Equal(t, types.ActionClose, plan[0].Kind)
	assert.Equal(t, 1.0, plan[0].Fraction)
}

func TestBuildPlanLiquidationStacksUntilBelowCritical(t *testing.T) {
	// 46/50 = 92%; closing p1 projects 26/50 = 52%, below critical, so p2
	// stays untouched
	snap := snapWith(types.ZoneLiquidation, 50000, 46000,
		pm("p1", 20000, ""), pm("p2", 26000, ""))

	plan := BuildPlan(snap, openPositions("p1", "p2"), planLimits(), planCfg)
	require.Len(t, plan, 1)
	assert.Equal(t, "p2", plan[0].PositionID)
	assert.Equal(t, types.ActionClose, plan[0].Kind)
}

func TestBuildPlanLiquidationTakesMultipleStepsWhenNeeded(t *testing.T) {
	// 48/50 = 96%; closing p1 (20k) leaves 56%, still no... 28/50=56% < 75.
	// Use tighter thresholds so two steps are required.
	limits := planLimits()
	limits.Zones = config.ZoneThresholds{WarningPct: 20, CriticalPct: 40, LiquidationPct: 90}
	snap := snapWith(types.ZoneLiquidation, 50000, 48000,
		pm("p1", 20000, ""), pm("p2", 28000, ""))

	plan := BuildPlan(snap, openPositions("p1", "p2"), limits, planCfg)
	require.Len(t, plan, 2)
	assert.Equal(t, "p2", plan[0].PositionID)
	assert.Equal(t, "p1", plan[1].PositionID)
}

func TestBuildPlanNeverFullyClosesQuantityMismatch(t *testing.T) {
	snap := snapWith(types.ZoneLiquidation, 50000, 46000,
		pm("p1", 46000, types.QuantityMismatch))

	plan := BuildPlan(snap, openPositions("p1"), planLimits(), planCfg)
	require.Len(t, plan, 1)
	assert.Equal(t, types.ActionReduce, plan[0].Kind)
	assert.Equal(t, 0.5, plan[0].Fraction)
}

func TestBuildPlanSkipsOrphanVenueExposure(t *testing.T) {
	// synthetic venue exposure has no position id and no owning strategy
	snap := snapWith(types.ZoneLiquidation, 50000, 46000,
		types.PositionMargin{Symbol: "ETH-PERP", MarginRequired: 46000, Classification: types.OrphanVenue})

	assert.Empty(t, BuildPlan(snap, nil, planLimits(), planCfg))
}

func TestBuildPlanSkipsAlreadyRequestedPositions(t *testing.T) {
	positions := []types.InternalPosition{
		{ID: "p1", Status: types.PositionOpen, CloseRequested: true},
		{ID: "p2", Status: types.PositionOpen},
	}
	snap := snapWith(types.ZoneCritical, 50000, 40000,
		pm("p1", 30000, ""), pm("p2", 10000, ""))

	plan := BuildPlan(snap, positions, planLimits(), planCfg)
	require.Len(t, plan, 1)
	assert.Equal(t, "p2", plan[0].PositionID)
}

func TestBuildPlanDeterministicTiebreak(t *testing.T) {
	snap := snapWith(types.ZoneCritical, 50000, 40000,
		pm("p-b", 20000, ""), pm("p-a", 20000, ""))

	first := BuildPlan(snap, openPositions("p-a", "p-b"), planLimits(), planCfg)
	second := BuildPlan(snap, openPositions("p-b", "p-a"), planLimits(), planCfg)
	require.Len(t, first, 1)
	assert.Equal(t, "p-a", first[0].PositionID)
	assert.Equal(t, first, second)
}
