package types

import (
	"math"
	"time"
)

// Zone is the discrete risk-health classification of an account.
type Zone string

const (
	ZoneHealthy     Zone = "HEALTHY"
	ZoneWarning     Zone = "WARNING"
	ZoneCritical    Zone = "CRITICAL"
	ZoneLiquidation Zone = "LIQUIDATION"
)

// Rank orders zones best-first: HEALTHY=0 .. LIQUIDATION=3.
func (z Zone) Rank() int {
	switch z {
	case ZoneHealthy:
		return 0
	case ZoneWarning:
		return 1
	case ZoneCritical:
		return 2
	case ZoneLiquidation:
		return 3
	default:
		return 3
	}
}

// Worse reports whether z is a less healthy zone than other.
func (z Zone) Worse(other Zone) bool { return z.Rank() > other.Rank() }

// PositionMargin is the per-position breakdown inside a snapshot.
type PositionMargin struct {
	PositionID     string         `json:"position_id"`
	StrategyID     string         `json:"strategy_id"`
	Symbol         string         `json:"symbol"`
	Quantity       float64        `json:"quantity"`
	Price          float64        `json:"price"`
	Notional       float64        `json:"notional"`
	MarginRequired float64        `json:"margin_required"`
	StalePrice     bool           `json:"stale_price,omitempty"`
	Classification Classification `json:"classification,omitempty"`
}

// MarginSnapshot is an immutable point-in-time risk picture of one account.
// Zone is a pure function of the snapshot's own inputs and is never
// retroactively mutated.
type MarginSnapshot struct {
	AccountID       string
	CycleID         string
	Timestamp       time.Time
	Equity          float64
	MarginUsed      float64
	MarginAvailable float64
	UsagePct        float64 // +Inf when equity <= 0
	Leverage        float64
	PositionCount   int
	Zone            Zone
	Degraded        bool
	Positions       []PositionMargin
}

// UsageDefined reports whether UsagePct carries a finite value.
func (s MarginSnapshot) UsageDefined() bool {
	return !math.IsInf(s.UsagePct, 0) && !math.IsNaN(s.UsagePct)
}

type AlertLevel string

const (
	AlertInfo        AlertLevel = "INFO"
	AlertWarning     AlertLevel = "WARNING"
	AlertCritical    AlertLevel = "CRITICAL"
	AlertLiquidation AlertLevel = "LIQUIDATION"
)

type MarginAlert struct {
	ID           string
	AccountID    string
	Level        AlertLevel
	Message      string
	CreatedAt    time.Time
	Acknowledged bool
}
