package types

import "time"

// Classification labels the outcome of matching one internal position (or one
// stretch of venue exposure) against venue truth.
type Classification string

const (
	Matched          Classification = "MATCHED"
	OrphanInternal   Classification = "ORPHAN_INTERNAL"
	OrphanVenue      Classification = "ORPHAN_VENUE"
	QuantityMismatch Classification = "QUANTITY_MISMATCH"
	PriceMismatch    Classification = "PRICE_MISMATCH"
)

// Severity orders classifications worst-first for reporting and liquidation
// priority. ORPHAN_INTERNAL is the most severe: a strategy believes it holds
// risk the venue does not confirm.
func (c Classification) Severity() int {
	switch c {
	case OrphanInternal:
		return 0
	case OrphanVenue:
		return 1
	case QuantityMismatch:
		return 2
	case PriceMismatch:
		return 3
	case Matched:
		return 4
	default:
		return 5
	}
}

// Mismatch reports whether the classification marks a discrepancy.
func (c Classification) Mismatch() bool { return c != Matched && c != "" }

// ReconciliationRecord is one classified match result. InternalPositionID and
// VenueOrderID are each empty when that side has nothing to point at (orphans).
type ReconciliationRecord struct {
	ID                 string
	AccountID          string
	CycleID            string
	InternalPositionID string
	StrategyID         string
	VenueOrderID       string
	Symbol             string
	Classification     Classification
	Magnitude          float64
	DetectedAt         time.Time
	ResolvedAt         *time.Time
}

// ReconciliationReport is the ordered output of one reconcile cycle. Stale
// means the venue could not be consulted and prior classifications were
// retained; a stale report never clears an orphan.
type ReconciliationReport struct {
	AccountID   string
	CycleID     string
	Records     []ReconciliationRecord
	Cursor      string
	Stale       bool
	GeneratedAt time.Time
}

// ForPosition returns the worst record touching the given internal position.
func (r ReconciliationReport) ForPosition(positionID string) (ReconciliationRecord, bool) {
	best := ReconciliationRecord{}
	found := false
	for _, rec := range r.Records {
		if rec.InternalPositionID != positionID {
			continue
		}
		if !found || rec.Classification.Severity() < best.Classification.Severity() {
			best = rec
			found = true
		}
	}
	return best, found
}
