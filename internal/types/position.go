package types

import (
	"time"
)

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Sign returns +1 for long exposure and -1 for short exposure.
func (s Side) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

type PositionStatus string

const (
	PositionOpen    PositionStatus = "open"
	PositionClosing PositionStatus = "closing"
	PositionClosed  PositionStatus = "closed"
)

type InstrumentClass string

const (
	ClassOptions   InstrumentClass = "options"
	ClassFutures   InstrumentClass = "futures"
	ClassPerpetual InstrumentClass = "perpetual"
)

// InternalPosition is one strategy's record of risk it believes it holds.
// Owned by the issuing strategy; the risk core only ever touches the
// NeedsAttention and CloseRequested flags.
type InternalPosition struct {
	ID             string
	AccountID      string
	StrategyID     string
	Symbol         string
	Class          InstrumentClass
	Side           Side
	Quantity       float64
	EntryPrice     float64
	VenueOrderIDs  []string
	OpenedAt       time.Time
	Status         PositionStatus
	MarginRequired float64 // cached from the latest snapshot pass

	NeedsAttention  bool
	AttentionReason Classification
	CloseRequested  bool
}

// Linked reports whether the position's opening order has been acknowledged
// by the venue (at least one venue order id recorded).
func (p InternalPosition) Linked() bool { return len(p.VenueOrderIDs) > 0 }

// SignedQuantity folds side into the quantity.
func (p InternalPosition) SignedQuantity() float64 { return p.Side.Sign() * p.Quantity }

// VenuePosition mirrors the venue's view of net exposure for one symbol.
// Refreshed every cycle, never owned or mutated by the core.
type VenuePosition struct {
	AccountID  string
	Symbol     string
	Quantity   float64 // signed: negative = short
	AvgCost    float64
	UpdatedAt  time.Time
	RawPayload string
}

// VenueOrder mirrors one venue order, including fill data.
type VenueOrder struct {
	ID           string
	AccountID    string
	Symbol       string
	Side         Side
	Quantity     float64
	FilledQty    float64
	AvgFillPrice float64
	Status       string
	UpdatedAt    time.Time
}
