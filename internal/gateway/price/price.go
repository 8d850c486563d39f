// Package price defines the price-lookup capability consumed by the margin
// engine. Market-data ingestion itself lives outside this module.
package price

import (
	"context"
	"errors"
)

// ErrUnavailable triggers the stale-price fallback: the engine reuses the
// last-known price, flags the position stale_price, and marks the whole
// snapshot degraded. Computation is never skipped for a missing price.
var ErrUnavailable = errors.New("price unavailable")

type Source interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}
