package types

import "time"

type ActionKind string

const (
	ActionReduce ActionKind = "REDUCE"
	ActionClose  ActionKind = "CLOSE"
)

type ActionOutcome string

const (
	OutcomePending   ActionOutcome = "pending"
	OutcomeFilled    ActionOutcome = "filled"
	OutcomeFailed    ActionOutcome = "failed"
	OutcomeEscalated ActionOutcome = "escalated"
)

// LiquidationAction is one risk-reducing command issued through the owning
// strategy's close capability. Created only in CRITICAL/LIQUIDATION zone with
// an elapsed cooldown.
type LiquidationAction struct {
	ID          string
	AccountID   string
	PositionID  string
	StrategyID  string
	Kind        ActionKind
	Fraction    float64 // 1.0 for a full close
	Reason      string
	IssuedAt    time.Time
	CompletedAt *time.Time
	Outcome     ActionOutcome
	Attempts    int
}

// ActionResult is what a strategy reports back from a close request.
type ActionResult struct {
	Accepted  bool
	FilledQty float64
	Detail    string
}

// CoordinatorState is the per-account liquidation state machine position.
type CoordinatorState string

const (
	StateNormal        CoordinatorState = "NORMAL"
	StateActionPending CoordinatorState = "ACTION_PENDING"
	StateCoolingDown   CoordinatorState = "COOLING_DOWN"
)

// CooldownState persists the machine across restarts: while COOLING_DOWN no
// new action is created, even if the zone re-enters CRITICAL.
type CooldownState struct {
	AccountID          string
	State              CoordinatorState
	Until              time.Time
	LastActionUsagePct float64
	UpdatedAt          time.Time
}
