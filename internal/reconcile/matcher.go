// Package reconcile matches the internal per-strategy ledger against venue
// truth and classifies every discrepancy. The matcher itself is pure: same
// inputs, same records, same order.
package reconcile

import (
	"fmt"
	"sort"
	"time"

	"vigil/internal/config"
	"vigil/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Match classifies one account's positions against venue truth. Positions
// must be the open/closing set from a single consistent ledger read.
//
// Per symbol: venue quantity is attributed oldest-opened-first. Fully covered
// linked positions are MATCHED; any remainder collapses into one
// QUANTITY_MISMATCH against the newest position with magnitude |Δqty|.
// Unlinked positions and positions the venue reports zero against are
// ORPHAN_INTERNAL; venue exposure with no internal positions is ORPHAN_VENUE.
// Price deviation beyond tolerance is checked independently of quantity.
func Match(
	positions []types.InternalPosition,
	venuePositions []types.VenuePosition,
	venueOrders []types.VenueOrder,
	limits config.RiskLimits,
	accountID, cycleID string,
	now time.Time,
) []types.ReconciliationRecord {
	eps := decimal.NewFromFloat(limits.QtyEpsilon)
	priceTol := decimal.NewFromFloat(limits.PriceTolerancePct)

	bySymbol := make(map[string][]types.InternalPosition)
	for _, p := range positions {
		bySymbol[p.Symbol] = append(bySymbol[p.Symbol], p)
	}
	venueBySymbol := make(map[string]types.VenuePosition)
	for _, vp := range venuePositions {
		venueBySymbol[vp.Symbol] = vp
	}
	lastOrderBySymbol := lastOrderIndex(venueOrders)

	symbols := make([]string, 0, len(bySymbol)+len(venueBySymbol))
	seen := make(map[string]bool)
	for sym := range bySymbol {
		symbols = append(symbols, sym)
		seen[sym] = true
	}
	for sym := range venueBySymbol {
		if !seen[sym] {
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)

	var out []types.ReconciliationRecord
	for _, sym := range symbols {
		out = append(out, matchSymbol(symbolInput{
			accountID: accountID,
			cycleID:   cycleID,
			symbol:    sym,
			positions: sortOldestFirst(bySymbol[sym]),
			venue:     venueBySymbol[sym],
			lastOrder: lastOrderBySymbol[sym],
			eps:       eps,
			priceTol:  priceTol,
			now:       now,
		})...)
	}
	return out
}

type symbolInput struct {
	accountID string
	cycleID   string
	symbol    string
	positions []types.InternalPosition
	venue     types.VenuePosition
	lastOrder string
	eps       decimal.Decimal
	priceTol  decimal.Decimal
	now       time.Time
}

func matchSymbol(in symbolInput) []types.ReconciliationRecord {
	var out []types.ReconciliationRecord
	vQty := decimal.NewFromFloat(in.venue.Quantity)
	venueZero := vQty.Abs().LessThanOrEqual(in.eps)

	// Unlinked positions are never corroborated by the venue, whatever the
	// quantities say.
	linked := make([]types.InternalPosition, 0, len(in.positions))
	for _, p := range in.positions {
		if !p.Linked() {
			out = append(out, in.record(p.ID, p.StrategyID, "", types.OrphanInternal, p.Quantity))
			continue
		}
		linked = append(linked, p)
	}

	iQty := decimal.Zero
	for _, p := range linked {
		iQty = iQty.Add(decimal.NewFromFloat(p.SignedQuantity()))
	}
	internalZero := iQty.Abs().LessThanOrEqual(in.eps)

	switch {
	case internalZero && venueZero:
		// nothing on either side

	case internalZero && !venueZero:
		out = append(out, in.record("", "", in.lastOrder, types.OrphanVenue, vQty.Abs().InexactFloat64()))

	case !internalZero && venueZero:
		// most severe: strategies believe they hold risk the venue denies
		for _, p := range linked {
			out = append(out, in.record(p.ID, p.StrategyID, firstID(p.VenueOrderIDs), types.OrphanInternal, p.Quantity))
		}

	default:
		out = append(out, in.attribute(linked, iQty, vQty)...)
	}

	// Price check runs independently of quantity classification.
	if in.venue.AvgCost > 0 {
		avg := decimal.NewFromFloat(in.venue.AvgCost)
		for _, p := range linked {
			entry := decimal.NewFromFloat(p.EntryPrice)
			devPct := entry.Sub(avg).Abs().Div(avg).Mul(decimal.NewFromInt(100))
			if devPct.GreaterThan(in.priceTol) {
				out = append(out, in.record(p.ID, p.StrategyID, firstID(p.VenueOrderIDs),
					types.PriceMismatch, entry.Sub(avg).Abs().InexactFloat64()))
			}
		}
	}
	return out
}

// attribute walks linked positions oldest-first, consuming venue quantity.
// Fully covered positions are MATCHED; the remainder lands on the newest
// position as a single QUANTITY_MISMATCH with magnitude |Δqty|.
func (in symbolInput) attribute(linked []types.InternalPosition, iQty, vQty decimal.Decimal) []types.ReconciliationRecord {
	delta := iQty.Sub(vQty).Abs()
	if delta.LessThanOrEqual(in.eps) {
		out := make([]types.ReconciliationRecord, 0, len(linked))
		for _, p := range linked {
			out = append(out, in.record(p.ID, p.StrategyID, firstID(p.VenueOrderIDs), types.Matched, 0))
		}
		return out
	}

	var out []types.ReconciliationRecord
	rem := vQty
	mismatched := false
	for i, p := range linked {
		want := decimal.NewFromFloat(p.SignedQuantity())
		last := i == len(linked)-1
		if !mismatched && !last && covers(rem, want, in.eps) {
			rem = rem.Sub(want)
			out = append(out, in.record(p.ID, p.StrategyID, firstID(p.VenueOrderIDs), types.Matched, 0))
			continue
		}
		// first uncovered position and everything newer collapse into the
		// mismatch carried by the newest position
		mismatched = true
		if last {
			out = append(out, in.record(p.ID, p.StrategyID, firstID(p.VenueOrderIDs),
				types.QuantityMismatch, delta.InexactFloat64()))
		}
	}
	return out
}

// covers reports whether rem can fully absorb want (same direction, enough
// magnitude).
func covers(rem, want, eps decimal.Decimal) bool {
	if want.IsZero() {
		return true
	}
	if rem.Sign() != want.Sign() {
		return false
	}
	return rem.Abs().Add(eps).GreaterThanOrEqual(want.Abs())
}

func (in symbolInput) record(positionID, strategyID, orderID string, class types.Classification, magnitude float64) types.ReconciliationRecord {
	return types.ReconciliationRecord{
		ID:                 recordID(in.accountID, in.cycleID, in.symbol, positionID, class),
		AccountID:          in.accountID,
		CycleID:            in.cycleID,
		InternalPositionID: positionID,
		StrategyID:         strategyID,
		VenueOrderID:       orderID,
		Symbol:             in.symbol,
		Classification:     class,
		Magnitude:          magnitude,
		DetectedAt:         in.now,
	}
}

// recordID is deterministic so identical inputs yield identical records.
func recordID(accountID, cycleID, symbol, positionID string, class types.Classification) string {
	key := fmt.Sprintf("%s|%s|%s|%s|%s", accountID, cycleID, symbol, positionID, class)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

func sortOldestFirst(positions []types.InternalPosition) []types.InternalPosition {
	out := make([]types.InternalPosition, len(positions))
	copy(out, positions)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func lastOrderIndex(orders []types.VenueOrder) map[string]string {
	sorted := make([]types.VenueOrder, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].UpdatedAt.Equal(sorted[j].UpdatedAt) {
			return sorted[i].UpdatedAt.Before(sorted[j].UpdatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})
	idx := make(map[string]string, len(sorted))
	for _, o := range sorted {
		idx[o.Symbol] = o.ID
	}
	return idx
}

func firstID(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}
