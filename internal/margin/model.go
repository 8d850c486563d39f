// Package margin turns reconciled positions and live prices into risk
// snapshots. Margin formulas are a closed set of per-instrument-class models
// behind one interface; no venue's exact formula is replicated.
package margin

import (
	"vigil/internal/config"
	"vigil/internal/types"

	"github.com/shopspring/decimal"
)

// Model computes the margin a position requires at a given price. Parameters
// come from the externally tuned risk-limits document.
type Model interface {
	Class() types.InstrumentClass
	RequiredMargin(p types.InternalPosition, price float64) float64
}

// ModelFor selects from the closed model set. Unknown classes fall back to
// the perpetual model, the most conservative of the three defaults.
func ModelFor(class types.InstrumentClass, params config.MarginParams) Model {
	switch class {
	case types.ClassOptions:
		return OptionsModel{Params: params}
	case types.ClassFutures:
		return FuturesModel{Params: params}
	default:
		return PerpetualModel{Params: params}
	}
}

// PerpetualModel margins a fraction of notional with an absolute floor.
type PerpetualModel struct {
	Params config.MarginParams
}

func (m PerpetualModel) Class() types.InstrumentClass { return types.ClassPerpetual }

func (m PerpetualModel) RequiredMargin(p types.InternalPosition, price float64) float64 {
	return notionalMargin(p.Quantity, price, m.Params)
}

// FuturesModel is notional-based like perpetuals but tuned with its own rate.
type FuturesModel struct {
	Params config.MarginParams
}

func (m FuturesModel) Class() types.InstrumentClass { return types.ClassFutures }

func (m FuturesModel) RequiredMargin(p types.InternalPosition, price float64) float64 {
	return notionalMargin(p.Quantity, price, m.Params)
}

// OptionsModel margins long positions at full premium (the capital at risk)
// and short positions at premium scaled up by the class rate.
type OptionsModel struct {
	Params config.MarginParams
}

func (m OptionsModel) Class() types.InstrumentClass { return types.ClassOptions }

func (m OptionsModel) RequiredMargin(p types.InternalPosition, price float64) float64 {
	premium := decimal.NewFromFloat(p.Quantity).Abs().Mul(decimal.NewFromFloat(price))
	if p.Side == types.SideShort {
		premium = premium.Mul(decimal.NewFromFloat(1 + m.Params.Rate))
	}
	return floored(premium, m.Params.MinMargin)
}

func notionalMargin(quantity, price float64, params config.MarginParams) float64 {
	notional := decimal.NewFromFloat(quantity).Abs().Mul(decimal.NewFromFloat(price))
	return floored(notional.Mul(decimal.NewFromFloat(params.Rate)), params.MinMargin)
}

func floored(margin decimal.Decimal, minMargin float64) float64 {
	out := margin.InexactFloat64()
	if out > 0 && out < minMargin {
		return minMargin
	}
	return out
}
