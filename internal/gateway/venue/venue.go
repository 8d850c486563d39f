// Package venue defines the capability boundary to the external execution
// venue, the authoritative holder of orders and positions. The core never
// talks to a broker API directly; concrete clients live outside this module
// and implement this interface.
package venue

import (
	"context"
	"errors"

	"vigil/internal/types"
)

// Error kinds per capability call. Callers branch with errors.Is; wrapped
// causes are preserved.
var (
	// ErrUnavailable marks a transient outage. The cycle is marked STALE and
	// retried next interval; silence is never treated as resolution.
	ErrUnavailable = errors.New("venue unavailable")

	// ErrRateLimited is transient; the shared limiter should already prevent
	// it, but venues enforce their own windows too.
	ErrRateLimited = errors.New("venue rate limited")

	// ErrAuth is fatal for the account: its pipeline is paused and a CRITICAL
	// alert raised.
	ErrAuth = errors.New("venue authentication failed")
)

// Venue exposes read-only venue truth for one brokerage account.
type Venue interface {
	// ListPositions returns the venue's current net exposure per symbol.
	ListPositions(ctx context.Context, accountID string) ([]types.VenuePosition, error)

	// ListOrders returns orders updated since the given cursor (empty cursor
	// means from the beginning of the venue's retention window).
	ListOrders(ctx context.Context, accountID, since string) ([]types.VenueOrder, error)

	// AccountEquity returns current account equity in quote currency.
	AccountEquity(ctx context.Context, accountID string) (float64, error)
}

// Transient reports whether the error should be retried next cycle rather
// than pausing the account's pipeline.
func Transient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRateLimited)
}
