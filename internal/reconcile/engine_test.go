package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"vigil/internal/config"
	"vigil/internal/gateway/venue"
	"vigil/internal/pkg/circuit"
	"vigil/internal/pkg/ratelimit"
	"vigil/internal/store"
	"vigil/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVenue struct {
	positions []types.VenuePosition
	orders    []types.VenueOrder
	equity    float64
	err       error
	calls     int
}

func (f *fakeVenue) ListPositions(context.Context, string) ([]types.VenuePosition, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.positions, nil
}

func (f *fakeVenue) ListOrders(context.Context, string, string) ([]types.VenueOrder, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.orders, nil
}

func (f *fakeVenue) AccountEquity(context.Context, string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.equity, nil
}

type fakeLedger struct {
	positions map[string]*types.InternalPosition
	flagged   []string
	cleared   []string
}

func newFakeLedger(positions ...types.InternalPosition) *fakeLedger {
	l := &fakeLedger{positions: make(map[string]*types.InternalPosition)}
	for i := range positions {
		p := positions[i]
		l.positions[p.ID] = &p
	}
	return l
}

func (l *fakeLedger) OpenPositions(context.Context, string) ([]types.InternalPosition, error) {
	out := make([]types.InternalPosition, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	return out, nil
}

func (l *fakeLedger) MarkNeedsAttention(_ context.Context, id string, reason types.Classification) error {
	p, ok := l.positions[id]
	if !ok {
		return store.ErrNotFound
	}
	p.NeedsAttention = true
	p.AttentionReason = reason
	l.flagged = append(l.flagged, id)
	return nil
}

func (l *fakeLedger) ClearNeedsAttention(_ context.Context, id string) error {
	p, ok := l.positions[id]
	if !ok {
		return store.ErrNotFound
	}
	p.NeedsAttention = false
	l.cleared = append(l.cleared, id)
	return nil
}

func (l *fakeLedger) MarkCloseRequested(_ context.Context, id string) error {
	p, ok := l.positions[id]
	if !ok {
		return store.ErrNotFound
	}
	p.CloseRequested = true
	return nil
}

func (l *fakeLedger) UpdateMarginCache(_ context.Context, id string, margin float64) error {
	p, ok := l.positions[id]
	if !ok {
		return store.ErrNotFound
	}
	p.MarginRequired = margin
	return nil
}

func (l *fakeLedger) Save(_ context.Context, p *types.InternalPosition) error {
	cp := *p
	l.positions[p.ID] = &cp
	return nil
}

type fakeReports struct {
	reports  []types.ReconciliationReport
	resolved []string
}

func (r *fakeReports) SaveReport(_ context.Context, report types.ReconciliationReport) error {
	r.reports = append(r.reports, report)
	return nil
}

func (r *fakeReports) LatestReport(context.Context, string) (types.ReconciliationReport, error) {
	if len(r.reports) == 0 {
		return types.ReconciliationReport{}, store.ErrNotFound
	}
	return r.reports[len(r.reports)-1], nil
}

func (r *fakeReports) MarkResolved(_ context.Context, _, symbol string, _ time.Time) error {
	r.resolved = append(r.resolved, symbol)
	return nil
}

func (r *fakeReports) Cursor(context.Context, string) (string, error) {
	if len(r.reports) == 0 {
		return "", nil
	}
	return r.reports[len(r.reports)-1].Cursor, nil
}

type staticLimits struct{ limits config.RiskLimits }

func (s staticLimits) For(string) config.RiskLimits { return s.limits }

func defaultStaticLimits() staticLimits { return staticLimits{limits: config.DefaultRiskLimits()} }

func newTestEngine(v venue.Venue, ledger *fakeLedger, reports *fakeReports) *Engine {
	return NewEngine(
		v, ledger, reports, defaultStaticLimits(),
		circuit.NewBreaker("test", 3, time.Minute),
		ratelimit.NewSlidingWindow(100, time.Second),
	)
}

func TestReconcilePersistsAndFlags(t *testing.T) {
	opened := time.Now().Add(-time.Hour)
	ledger := newFakeLedger(
		pos("p1", 1, 42000, opened, "o1"),
	)
	reports := &fakeReports{}
	v := &fakeVenue{positions: vpos(2.5, 42000)}
	eng := newTestEngine(v, ledger, reports)

	report, err := eng.Reconcile(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.False(t, report.Stale)
	require.Len(t, reports.reports, 1)
	assert.Contains(t, ledger.flagged, "p1")
	assert.Equal(t, types.QuantityMismatch, ledger.positions["p1"].AttentionReason)
}

func TestReconcileClearsFlagsOnMatch(t *testing.T) {
	opened := time.Now().Add(-time.Hour)
	p := pos("p1", 1, 42000, opened, "o1")
	p.NeedsAttention = true
	ledger := newFakeLedger(p)
	reports := &fakeReports{}
	eng := newTestEngine(&fakeVenue{positions: vpos(1, 42000)}, ledger, reports)

	report, err := eng.Reconcile(context.Background(), "acct-1")
	require.NoError(t, err)
	require.Len(t, report.Records, 1)
	assert.Equal(t, types.Matched, report.Records[0].Classification)
	assert.Contains(t, ledger.cleared, "p1")
	assert.Contains(t, reports.resolved, "BTC-PERP")
}

func TestReconcileStaleOnVenueFailure(t *testing.T) {
	opened := time.Now().Add(-time.Hour)
	ledger := newFakeLedger(pos("p1", 1, 42000, opened, "o1"))
	reports := &fakeReports{}
	eng := newTestEngine(&fakeVenue{positions: vpos(1, 42000)}, ledger, reports)

	// first cycle succeeds and records a report
	_, err := eng.Reconcile(context.Background(), "acct-1")
	require.NoError(t, err)

	failing := &fakeVenue{err: venue.ErrUnavailable}
	eng2 := newTestEngine(failing, ledger, reports)
	report, err := eng2.Reconcile(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.True(t, report.Stale)
	// prior classifications retained, nothing new persisted
	require.Len(t, report.Records, 1)
	assert.Equal(t, types.Matched, report.Records[0].Classification)
	assert.Len(t, reports.reports, 1)
}

func TestReconcileStaleWithNoHistory(t *testing.T) {
	ledger := newFakeLedger()
	reports := &fakeReports{}
	eng := newTestEngine(&fakeVenue{err: venue.ErrUnavailable}, ledger, reports)

	report, err := eng.Reconcile(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.True(t, report.Stale)
	assert.Empty(t, report.Records)
}

func TestReconcileAuthErrorPropagates(t *testing.T) {
	ledger := newFakeLedger()
	eng := newTestEngine(&fakeVenue{err: venue.ErrAuth}, ledger, &fakeReports{})

	_, err := eng.Reconcile(context.Background(), "acct-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, venue.ErrAuth))
}

func TestReconcileBreakerOpenSkipsVenue(t *testing.T) {
	ledger := newFakeLedger()
	reports := &fakeReports{}
	v := &fakeVenue{}
	breaker := circuit.NewBreaker("test", 1, time.Minute)
	breaker.RecordFailure()
	eng := NewEngine(v, ledger, reports, defaultStaticLimits(), breaker, ratelimit.NewSlidingWindow(100, time.Second))

	report, err := eng.Reconcile(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.True(t, report.Stale)
	assert.Zero(t, v.calls)
}

func TestReconcileCancelledContextYieldsStale(t *testing.T) {
	ledger := newFakeLedger()
	reports := &fakeReports{}
	eng := newTestEngine(&fakeVenue{positions: vpos(1, 42000)}, ledger, reports)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := eng.Reconcile(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, report.Stale)
	assert.Empty(t, reports.reports)
}

func TestNextCursorAdvancesMonotonically(t *testing.T) {
	now := time.Now()
	orders := []types.VenueOrder{
		{ID: "o1", UpdatedAt: now.Add(-time.Hour)},
		{ID: "o2", UpdatedAt: now},
	}
	first := nextCursor("", orders)
	assert.NotEmpty(t, first)
	// no newer orders keeps the cursor
	assert.Equal(t, first, nextCursor(first, orders))
}
