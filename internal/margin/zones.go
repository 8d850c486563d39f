package margin

import (
	"math"

	"vigil/internal/config"
	"vigil/internal/types"
)

// ZoneFor classifies usage into a zone. Pure: a snapshot's zone depends only
// on that snapshot's own inputs. usagePct is a percentage (40 = 40%);
// non-positive equity shows up here as +Inf.
func ZoneFor(usagePct, marginAvailable float64, z config.ZoneThresholds) types.Zone {
	if math.IsInf(usagePct, 1) || math.IsNaN(usagePct) {
		return types.ZoneLiquidation
	}
	if marginAvailable < 0 || usagePct >= z.LiquidationPct {
		return types.ZoneLiquidation
	}
	if usagePct >= z.CriticalPct {
		return types.ZoneCritical
	}
	if usagePct >= z.WarningPct {
		return types.ZoneWarning
	}
	return types.ZoneHealthy
}

// AlertLevelFor maps a zone to the alert level raised when an account
// transitions into it.
func AlertLevelFor(zone types.Zone) types.AlertLevel {
	switch zone {
	case types.ZoneLiquidation:
		return types.AlertLiquidation
	case types.ZoneCritical:
		return types.AlertCritical
	case types.ZoneWarning:
		return types.AlertWarning
	default:
		return types.AlertInfo
	}
}
