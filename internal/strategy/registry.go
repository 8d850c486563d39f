// Package strategy holds the capability the risk core uses to command the
// trading strategies that own positions. The core never bypasses a strategy
// to hit the venue directly.
package strategy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"vigil/internal/types"
)

// Closer is the per-strategy close capability. fraction is in (0, 1]; 1
// requests a full close. Implementations place the order through the
// strategy's own execution path and report acceptance.
type Closer interface {
	RequestClose(ctx context.Context, positionID string, fraction float64) (types.ActionResult, error)
}

// Registry maps strategy ids to their close capability. Strategies register
// at startup; the liquidation coordinator resolves at action time.
type Registry struct {
	mu      sync.RWMutex
	closers map[string]Closer
}

func NewRegistry() *Registry {
	return &Registry{closers: make(map[string]Closer)}
}

func (r *Registry) Register(strategyID string, c Closer) {
	if strategyID == "" || c == nil {
		return
	}
	r.mu.Lock()
	r.closers[strategyID] = c
	r.mu.Unlock()
}

func (r *Registry) Resolve(strategyID string) (Closer, error) {
	r.mu.RLock()
	c, ok := r.closers[strategyID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no close capability registered for strategy %q", strategyID)
	}
	return c, nil
}

func (r *Registry) StrategyIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.closers))
	for id := range r.closers {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
