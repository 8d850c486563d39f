package reconcile

import (
	"testing"
	"time"

	"vigil/internal/config"
	"vigil/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var matchNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func pos(id string, qty, entry float64, openedAt time.Time, orderIDs ...string) types.InternalPosition {
	return types.InternalPosition{
		ID:            id,
		AccountID:     "acct-1",
		StrategyID:    "strat-a",
		Symbol:        "BTC-PERP",
		Class:         types.ClassPerpetual,
		Side:          types.SideLong,
		Quantity:      qty,
		EntryPrice:    entry,
		VenueOrderIDs: orderIDs,
		OpenedAt:      openedAt,
		Status:        types.PositionOpen,
	}
}

func vpos(qty, avgCost float64) []types.VenuePosition {
	return []types.VenuePosition{{AccountID: "acct-1", Symbol: "BTC-PERP", Quantity: qty, AvgCost: avgCost}}
}

func runMatch(t *testing.T, positions []types.InternalPosition, venue []types.VenuePosition, orders []types.VenueOrder) []types.ReconciliationRecord {
	t.Helper()
	return Match(positions, venue, orders, config.DefaultRiskLimits(), "acct-1", "cycle-1", matchNow)
}

func byClass(records []types.ReconciliationRecord, class types.Classification) []types.ReconciliationRecord {
	var out []types.ReconciliationRecord
	for _, r := range records {
		if r.Classification == class {
			out = append(out, r)
		}
	}
	return out
}

func TestMatchFullyCovered(t *testing.T) {
	positions := []types.InternalPosition{
		pos("p1", 1, 42000, matchNow.Add(-2*time.Hour), "o1"),
		pos("p2", 2, 42000, matchNow.Add(-time.Hour), "o2"),
	}
	records := runMatch(t, positions, vpos(3, 42000), nil)

	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, types.Matched, r.Classification)
	}
}

func TestMatchEpsilonTolerance(t *testing.T) {
	positions := []types.InternalPosition{pos("p1", 3, 42000, matchNow.Add(-time.Hour), "o1")}
	records := runMatch(t, positions, vpos(3.000000001, 42000), nil)

	require.Len(t, records, 1)
	assert.Equal(t, types.Matched, records[0].Classification)
}

func TestMatchUnlinkedIsOrphanInternal(t *testing.T) {
	// no venue order id means the venue never acknowledged the open, even if
	// the quantities happen to agree
	positions := []types.InternalPosition{pos("p1", 3, 42000, matchNow.Add(-time.Hour))}
	records := runMatch(t, positions, vpos(3, 42000), nil)

	orphans := byClass(records, types.OrphanInternal)
	require.Len(t, orphans, 1)
	assert.Equal(t, "p1", orphans[0].InternalPositionID)
	assert.Equal(t, 3.0, orphans[0].Magnitude)
}

func TestMatchVenueZeroOrphansEveryPosition(t *testing.T) {
	positions := []types.InternalPosition{
		pos("p1", 1, 42000, matchNow.Add(-2*time.Hour), "o1"),
		pos("p2", 2, 42000, matchNow.Add(-time.Hour), "o2"),
	}
	records := runMatch(t, positions, nil, nil)

	orphans := byClass(records, types.OrphanInternal)
	require.Len(t, orphans, 2)
}

func TestMatchOrphanVenue(t *testing.T) {
	orders := []types.VenueOrder{
		{ID: "o-old", Symbol: "BTC-PERP", UpdatedAt: matchNow.Add(-2 * time.Hour)},
		{ID: "o-new", Symbol: "BTC-PERP", UpdatedAt: matchNow.Add(-time.Hour)},
	}
	records := runMatch(t, nil, vpos(-1.5, 42000), orders)

	require.Len(t, records, 1)
	assert.Equal(t, types.OrphanVenue, records[0].Classification)
	assert.Equal(t, 1.5, records[0].Magnitude)
	assert.Empty(t, records[0].InternalPositionID)
	assert.Equal(t, "o-new", records[0].VenueOrderID)
}

func TestMatchQuantityMismatchCollapsesOnNewest(t *testing.T) {
	positions := []types.InternalPosition{
		pos("p1", 1, 42000, matchNow.Add(-3*time.Hour), "o1"),
		pos("p2", 2, 42000, matchNow.Add(-2*time.Hour), "o2"),
		pos("p3", 3, 42000, matchNow.Add(-time.Hour), "o3"),
	}
	records := runMatch(t, positions, vpos(4.5, 42000), nil)

	matched := byClass(records, types.Matched)
	mismatched := byClass(records, types.QuantityMismatch)
	require.Len(t, matched, 2)
	require.Len(t, mismatched, 1)
	assert.Equal(t, "p3", mismatched[0].InternalPositionID)
	assert.InDelta(t, 1.5, mismatched[0].Magnitude, 1e-9)
}

func TestMatchShortSideSigns(t *testing.T) {
	p := pos("p1", 5, 42000, matchNow.Add(-time.Hour), "o1")
	p.Side = types.SideShort
	records := runMatch(t, []types.InternalPosition{p}, vpos(-5, 42000), nil)

	require.Len(t, records, 1)
	assert.Equal(t, types.Matched, records[0].Classification)
}

func TestMatchPriceMismatch(t *testing.T) {
	positions := []types.InternalPosition{pos("p1", 1, 42300, matchNow.Add(-time.Hour), "o1")}
	records := runMatch(t, positions, vpos(1, 42000), nil)

	// quantity matches but entry deviates 0.71% > 0.5% tolerance
	require.Len(t, records, 2)
	mismatched := byClass(records, types.PriceMismatch)
	require.Len(t, mismatched, 1)
	assert.InDelta(t, 300, mismatched[0].Magnitude, 1e-9)
}

func TestMatchPriceWithinTolerance(t *testing.T) {
	positions := []types.InternalPosition{pos("p1", 1, 42100, matchNow.Add(-time.Hour), "o1")}
	records := runMatch(t, positions, vpos(1, 42000), nil)

	require.Len(t, records, 1)
	assert.Equal(t, types.Matched, records[0].Classification)
}

func TestMatchDeterministic(t *testing.T) {
	positions := []types.InternalPosition{
		pos("p2", 2, 42500, matchNow.Add(-time.Hour), "o2"),
		pos("p1", 1, 42000, matchNow.Add(-2*time.Hour), "o1"),
	}
	venue := vpos(2.4, 42000)
	orders := []types.VenueOrder{{ID: "o2", Symbol: "BTC-PERP", UpdatedAt: matchNow.Add(-time.Hour)}}

	first := runMatch(t, positions, venue, orders)
	second := runMatch(t, positions, venue, orders)
	assert.Equal(t, first, second)
}

func TestMatchIndependentSymbols(t *testing.T) {
	p1 := pos("p1", 1, 42000, matchNow.Add(-time.Hour), "o1")
	p2 := pos("p2", 10, 3000, matchNow.Add(-time.Hour), "o2")
	p2.Symbol = "ETH-PERP"
	venue := []types.VenuePosition{
		{AccountID: "acct-1", Symbol: "BTC-PERP", Quantity: 1, AvgCost: 42000},
		{AccountID: "acct-1", Symbol: "ETH-PERP", Quantity: 4, AvgCost: 3000},
	}
	records := runMatch(t, []types.InternalPosition{p1, p2}, venue, nil)

	require.Len(t, records, 2)
	assert.Equal(t, types.Matched, records[0].Classification)
	assert.Equal(t, "BTC-PERP", records[0].Symbol)
	assert.Equal(t, types.QuantityMismatch, records[1].Classification)
	assert.Equal(t, "ETH-PERP", records[1].Symbol)
}
