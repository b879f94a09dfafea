package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jaylabs/cryptocasino/internal/server"
	"github.com/jaylabs/cryptocasino/internal/server/handler"
	"github.com/jaylabs/cryptocasino/internal/server/ws"
	"github.com/jaylabs/cryptocasino/internal/service"
)

// ServerMode runs the HTTP API and WebSocket hub without the background
// poller. Game state is still read through the ledger on demand; only the
// push-based snapshot stream is absent.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	games, settlements := a.buildServices(deps)
	a.startHTTPServer(ctx, g, deps, games, settlements)

	return g.Wait()
}

// MonitorMode runs only the game poller: it refreshes ledger state on an
// interval, publishes snapshots on the signal bus, and fires resolution
// notifications. No HTTP surface is exposed.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)
	games, _ := a.buildServices(deps)

	poller := service.NewPoller(
		games, deps.SignalBus, deps.Notifier,
		a.cfg.Settlement.PollInterval.Duration, a.logger,
	)
	g.Go(func() error {
		return poller.Run(ctx)
	})

	return g.Wait()
}

// FullMode runs everything: the poller, the HTTP API, and the WebSocket hub.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	games, settlements := a.buildServices(deps)

	poller := service.NewPoller(
		games, deps.SignalBus, deps.Notifier,
		a.cfg.Settlement.PollInterval.Duration, a.logger,
	)
	g.Go(func() error {
		return poller.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, games, settlements)
	}

	return g.Wait()
}

// buildServices constructs the game and settlement services shared by every
// mode.
func (a *App) buildServices(deps *Dependencies) (*service.GameService, *service.SettlementService) {
	games := service.NewGameService(
		deps.Ledger, deps.GameCache, deps.SignalBus,
		deps.Manager, deps.Notifier, deps.AuditStore, a.logger,
	)
	settlements := service.NewSettlementService(
		games, deps.Orchestrator, deps.Manager, deps.LockManager,
		deps.SettlementStore, deps.DelegationStore, deps.Archiver,
		deps.Notifier, deps.AuditStore,
		a.cfg.Settlement.LockTTL.Duration, a.logger,
	)
	return games, settlements
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server shuts down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	games *service.GameService,
	settlements *service.SettlementService,
) {
	startedAt := time.Now().UTC()

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:           a.cfg.Mode,
		SettlementMode: a.cfg.Settlement.Mode,
		StartedAt:      startedAt,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		Status: &handler.StatusHandler{
			Mode:           a.cfg.Mode,
			SettlementMode: a.cfg.Settlement.Mode,
			Operator:       deps.Operator,
			ChainID:        a.cfg.Chain.ChainID,
			StartedAt:      startedAt,
		},
		Games:       handler.NewGameHandler(games, deps.RateLimiter, a.cfg.Server.JoinRateLimit, a.logger),
		Records:     handler.NewRecordHandler(deps.DelegationStore, a.logger),
		Settlements: handler.NewSettlementHandler(settlements, a.logger),
		Audit:       handler.NewAuditHandler(deps.AuditStore, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
