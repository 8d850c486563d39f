// Package app wires configuration into a running daemon: store, gateways,
// engines, per-account pipelines and the HTTP server.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"vigil/internal/config"
	"vigil/internal/liquidation"
	"vigil/internal/logger"
	"vigil/internal/pipeline"
	"vigil/internal/store"
	"vigil/internal/store/cyclelog"
	"vigil/internal/strategy"
	transport "vigil/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	store      store.Store
	cycles     *cyclelog.Store
	supervisor *pipeline.Supervisor
	coord      *liquidation.Coordinator
	server     *transport.Server
	registry   *strategy.Registry
}

// NewApp builds the full object graph from config. Nothing starts until Run.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return build(cfg)
}

// Strategies exposes the close-capability registry so embedding code can
// register its strategies before Run.
func (a *App) Strategies() *strategy.Registry { return a.registry }

// Run recovers persisted coordinator state, then serves until ctx is done or
// a SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer a.store.Close()
	defer a.cycles.Close()

	accountIDs := make([]string, 0, len(a.cfg.Accounts))
	for _, acct := range a.cfg.Accounts {
		accountIDs = append(accountIDs, acct.ID)
	}
	if err := a.coord.Recover(ctx, accountIDs); err != nil {
		return fmt.Errorf("coordinator recovery failed: %w", err)
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.server.Run(gctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		if err := a.supervisor.Run(gctx); err != nil && gctx.Err() == nil {
			return fmt.Errorf("pipeline supervisor error: %w", err)
		}
		return nil
	})

	logger.Infof("vigil running env=%s accounts=%d", a.cfg.App.Env, len(a.cfg.Accounts))
	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Infof("vigil stopped")
	return nil
}
