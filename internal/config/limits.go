package config

import "vigil/internal/types"

// RiskLimits carries the empirically tuned matching tolerances, zone
// thresholds and margin parameters. These are externally validated
// configuration, not code constants: the document is schema-checked on load
// and hot-reloadable (see config/loader).
type RiskLimits struct {
	QtyEpsilon        float64                 `json:"qty_epsilon"`
	PriceTolerancePct float64                 `json:"price_tolerance_pct"`
	Zones             ZoneThresholds          `json:"zones"`
	Margin            map[string]MarginParams `json:"margin"` // keyed by instrument class
}

// ZoneThresholds are usage_pct cut lines: usage below Warning is HEALTHY,
// below Critical WARNING, below Liquidation CRITICAL, else LIQUIDATION.
type ZoneThresholds struct {
	WarningPct     float64 `json:"warning_pct"`
	CriticalPct    float64 `json:"critical_pct"`
	LiquidationPct float64 `json:"liquidation_pct"`
}

// MarginParams feed the per-class margin models.
type MarginParams struct {
	Rate      float64 `json:"rate"`       // margin as a fraction of notional
	MinMargin float64 `json:"min_margin"` // absolute floor per position
}

// LimitsDocument is the on-disk shape: shared defaults plus per-account
// overrides.
type LimitsDocument struct {
	Defaults RiskLimits            `json:"defaults"`
	Accounts map[string]RiskLimits `json:"accounts,omitempty"`
}

// DefaultRiskLimits are the conservative compiled-in values used when no
// document is configured.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		QtyEpsilon:        1e-8,
		PriceTolerancePct: 0.5,
		Zones:             ZoneThresholds{WarningPct: 50, CriticalPct: 75, LiquidationPct: 90},
		Margin: map[string]MarginParams{
			string(types.ClassPerpetual): {Rate: 0.10, MinMargin: 10},
			string(types.ClassFutures):   {Rate: 0.08, MinMargin: 10},
			string(types.ClassOptions):   {Rate: 0.15, MinMargin: 5},
		},
	}
}

// For resolves the effective limits for an account: the defaults with any
// non-zero account override applied on top.
func (d LimitsDocument) For(accountID string) RiskLimits {
	out := d.Defaults
	if out.QtyEpsilon <= 0 {
		out.QtyEpsilon = DefaultRiskLimits().QtyEpsilon
	}
	if out.PriceTolerancePct <= 0 {
		out.PriceTolerancePct = DefaultRiskLimits().PriceTolerancePct
	}
	if out.Zones == (ZoneThresholds{}) {
		out.Zones = DefaultRiskLimits().Zones
	}
	if len(out.Margin) == 0 {
		out.Margin = DefaultRiskLimits().Margin
	}
	over, ok := d.Accounts[accountID]
	if !ok {
		return out
	}
	if over.QtyEpsilon > 0 {
		out.QtyEpsilon = over.QtyEpsilon
	}
	if over.PriceTolerancePct > 0 {
		out.PriceTolerancePct = over.PriceTolerancePct
	}
	if over.Zones != (ZoneThresholds{}) {
		out.Zones = over.Zones
	}
	if len(over.Margin) > 0 {
		merged := make(map[string]MarginParams, len(out.Margin))
		for k, v := range out.Margin {
			merged[k] = v
		}
		for k, v := range over.Margin {
			merged[k] = v
		}
		out.Margin = merged
	}
	return out
}

// ParamsFor returns the margin parameters for an instrument class, falling
// back to the compiled-in defaults for classes the document omits.
func (l RiskLimits) ParamsFor(class types.InstrumentClass) MarginParams {
	if p, ok := l.Margin[string(class)]; ok {
		return p
	}
	return DefaultRiskLimits().Margin[string(class)]
}
