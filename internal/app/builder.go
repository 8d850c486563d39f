package app

import (
	"fmt"

	"vigil/internal/config"
	"vigil/internal/config/loader"
	"vigil/internal/gateway/notifier"
	"vigil/internal/gateway/venue"
	"vigil/internal/liquidation"
	"vigil/internal/margin"
	"vigil/internal/pipeline"
	"vigil/internal/pkg/circuit"
	"vigil/internal/pkg/ratelimit"
	"vigil/internal/reconcile"
	"vigil/internal/store/cyclelog"
	"vigil/internal/store/sqlite"
	"vigil/internal/strategy"
	transport "vigil/internal/transport/http"
	"vigil/internal/types"
)

// build assembles the object graph by hand. One venue gateway, one limiter
// and one breaker are shared by every account pipeline; engines are account
// agnostic and take the account id per call.
func build(cfg *config.Config) (*App, error) {
	st, err := sqlite.NewSqliteStore(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open store failed: %w", err)
	}

	limits, err := loader.NewLimitsProvider(cfg.App.LimitsPath)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load risk limits failed: %w", err)
	}

	cycles, err := cyclelog.NewStore(cfg.Storage.CycleLogPath)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open cycle log failed: %w", err)
	}

	gateway := venue.NewFileGateway(cfg.Venue.StatePath)
	breaker := circuit.NewBreaker("venue", cfg.Venue.BreakerThreshold, cfg.Venue.BreakerCooloff())
	limiter := ratelimit.NewSlidingWindow(cfg.Venue.RateLimit, cfg.Venue.RateWindow())
	notify := buildNotifier(cfg.Notify)
	registry := strategy.NewRegistry()

	defaultClass := make(map[string]types.InstrumentClass, len(cfg.Accounts))
	for _, acct := range cfg.Accounts {
		defaultClass[acct.ID] = types.InstrumentClass(acct.DefaultClass)
	}

	recon := reconcile.NewEngine(gateway, st.Positions(), st.Reconciliations(), limits, breaker, limiter)
	marginEngine := margin.NewEngine(gateway, gateway, st.Snapshots(), st.Positions(), st.Alerts(), notify, limits, limiter, defaultClass)
	coord := liquidation.NewCoordinator(st, registry, notify, limits, cfg.Liquidation)

	pipelines := make([]*pipeline.Pipeline, 0, len(cfg.Accounts))
	for _, acct := range cfg.Accounts {
		pipelines = append(pipelines, pipeline.New(acct.ID, recon, marginEngine, coord, st, notify, cycles, cfg.Pipeline))
	}
	supervisor := pipeline.NewSupervisor(pipelines)

	server := transport.NewServer(cfg.App.HTTPAddr, st, cycles, supervisor, coord)

	return &App{
		cfg:        cfg,
		store:      st,
		cycles:     cycles,
		supervisor: supervisor,
		coord:      coord,
		server:     server,
		registry:   registry,
	}, nil
}

func buildNotifier(cfg config.NotifyConfig) notifier.Notifier {
	if cfg.Telegram.Enabled {
		return notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	}
	return notifier.Log{}
}
