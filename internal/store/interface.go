package store

import (
	"context"
	"time"

	"vigil/internal/types"
)

// Store is the entry point for persistence. All histories are append-only;
// the only mutable rows are position flags, action outcomes, alert
// acknowledgement and the per-account cooldown state.
type Store interface {
	Positions() PositionRepository
	Reconciliations() ReconciliationRepository
	Snapshots() SnapshotRepository
	Actions() ActionRepository
	Alerts() AlertRepository
	Cooldowns() CooldownRepository
	Close() error
}

// PositionRepository is the narrow access the risk core gets to the
// per-strategy ledger: one consistent snapshot read per cycle plus the two
// attention flags. Everything else belongs to the owning strategy.
type PositionRepository interface {
	// OpenPositions returns positions with status open or closing, read in a
	// single transaction so a cycle never sees interleaved strategy writes.
	OpenPositions(ctx context.Context, accountID string) ([]types.InternalPosition, error)

	MarkNeedsAttention(ctx context.Context, positionID string, reason types.Classification) error
	ClearNeedsAttention(ctx context.Context, positionID string) error
	MarkCloseRequested(ctx context.Context, positionID string) error

	// UpdateMarginCache writes back the per-position margin_required computed
	// by the latest snapshot.
	UpdateMarginCache(ctx context.Context, positionID string, marginRequired float64) error

	// Save upserts a position. Used by strategies and test fixtures, not by
	// the risk core.
	Save(ctx context.Context, p *types.InternalPosition) error
}

type ReconciliationRepository interface {
	// SaveReport appends the report's records keyed by (account, cycle) and
	// stores the report's cursor.
	SaveReport(ctx context.Context, report types.ReconciliationReport) error

	LatestReport(ctx context.Context, accountID string) (types.ReconciliationReport, error)

	// MarkResolved closes out unresolved mismatch records for a symbol once a
	// later cycle classifies it MATCHED.
	MarkResolved(ctx context.Context, accountID, symbol string, at time.Time) error

	Cursor(ctx context.Context, accountID string) (string, error)
}

type SnapshotRepository interface {
	Append(ctx context.Context, snap types.MarginSnapshot) error
	Latest(ctx context.Context, accountID string) (types.MarginSnapshot, error)
	History(ctx context.Context, accountID string, limit int) ([]types.MarginSnapshot, error)
}

type ActionRepository interface {
	Append(ctx context.Context, action types.LiquidationAction) error
	Update(ctx context.Context, action types.LiquidationAction) error
	// Pending returns actions without a terminal outcome, oldest first.
	Pending(ctx context.Context, accountID string) ([]types.LiquidationAction, error)
	History(ctx context.Context, accountID string, limit int) ([]types.LiquidationAction, error)
}

type AlertRepository interface {
	Append(ctx context.Context, alert types.MarginAlert) error
	Acknowledge(ctx context.Context, alertID string) error
	Recent(ctx context.Context, accountID string, limit int) ([]types.MarginAlert, error)
}

type CooldownRepository interface {
	Get(ctx context.Context, accountID string) (types.CooldownState, bool, error)
	Save(ctx context.Context, state types.CooldownState) error
}

// ErrNotFound is returned by lookups with no row; repositories wrap their
// driver's sentinel so callers don't import gorm.
var ErrNotFound = errNotFound

type notFoundError struct{}

func (notFoundError) Error() string { return "store: not found" }

var errNotFound = notFoundError{}
