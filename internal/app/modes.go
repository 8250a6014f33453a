package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wattsim/wattsim/internal/domain"
	"github.com/wattsim/wattsim/internal/market"
	"github.com/wattsim/wattsim/internal/participant"
	"github.com/wattsim/wattsim/internal/server"
	"github.com/wattsim/wattsim/internal/server/handler"
	"github.com/wattsim/wattsim/internal/server/ws"
)

// simGrace is the real-time window a simulated round stays open so that
// concurrent participants can answer an opening before the clock jumps to
// the close.
const simGrace = 50 * time.Millisecond

// ServeMode runs the exchange on the wall clock behind the HTTP + WebSocket
// gateway.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	ex, err := a.buildExchange(deps, market.WallClock{}, nil)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ex.Run(ctx) })
	a.startGateway(ctx, g, deps, ex)
	return g.Wait()
}

// SimMode runs the exchange on a simulated clock with naive demand and supply
// agents and no HTTP surface. The simulation fast-forwards from
// simulation.start and ends when the recurrence rules (bounded by
// simulation.end) are exhausted.
func (a *App) SimMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sim mode",
		slog.String("sim_start", a.cfg.Simulation.Start),
	)

	start, err := time.Parse(time.RFC3339, a.cfg.Simulation.Start)
	if err != nil {
		return fmt.Errorf("app: simulation start: %w", err)
	}
	var end time.Time
	if a.cfg.Simulation.End != "" {
		end, err = time.Parse(time.RFC3339, a.cfg.Simulation.End)
		if err != nil {
			return fmt.Errorf("app: simulation end: %w", err)
		}
	}

	clock := market.NewSimClock(start).WithGrace(simGrace)
	ex, err := a.buildExchange(deps, clock, boundUntil(end))
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startAgents(ctx, g, deps, ex); err != nil {
		return err
	}
	g.Go(func() error { return ex.Run(ctx) })

	err = g.Wait()
	if err == nil || err == context.Canceled {
		a.logger.InfoContext(ctx, "simulation finished", slog.Time("sim_now", clock.Now()))
	}
	return err
}

// FullMode runs the wall-clock exchange with the gateway and the simulated
// agents side by side, useful for demos against a live API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	ex, err := a.buildExchange(deps, market.WallClock{}, nil)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startAgents(ctx, g, deps, ex); err != nil {
		return err
	}
	g.Go(func() error { return ex.Run(ctx) })
	a.startGateway(ctx, g, deps, ex)
	return g.Wait()
}

// buildExchange compiles the configured market definitions and assembles the
// exchange with the shared dependencies. mutate, when non-nil, adjusts each
// definition before construction.
func (a *App) buildExchange(deps *Dependencies, clock market.Clock, mutate func(*domain.MarketDef)) (*market.Exchange, error) {
	defs, err := a.cfg.Compile()
	if err != nil {
		return nil, fmt.Errorf("app: compile markets: %w", err)
	}
	if mutate != nil {
		for i := range defs {
			mutate(&defs[i])
		}
	}

	return market.NewExchange(defs, market.Options{
		Clock:   clock,
		Bus:     deps.SignalBus,
		Results: deps.ResultStore,
		Orders:  deps.OrderStore,
		Prices:  deps.PriceCache,
		Alerter: deps.Notifier,
		Logger:  slog.Default(),
	})
}

// boundUntil caps every market's recurrence at the simulation end. A zero end
// leaves the definitions untouched.
func boundUntil(end time.Time) func(*domain.MarketDef) {
	if end.IsZero() {
		return nil
	}
	return func(def *domain.MarketDef) {
		if def.Opening.Until.IsZero() || def.Opening.Until.After(end) {
			def.Opening.Until = end
		}
	}
}

// startAgents wires the naive demand and supply participants. Supply is split
// into three cost blocks so pay-as-clear rounds produce a non-trivial merit
// order.
func (a *App) startAgents(ctx context.Context, g *errgroup.Group, deps *Dependencies, ex *market.Exchange) error {
	demand := a.cfg.Simulation.Demand
	capacity := a.cfg.Simulation.Capacity

	agents := []*participant.Agent{
		participant.NewAgent("demand-1", ex, deps.SignalBus,
			participant.NaiveDemand{Volume: demand, PriceLimit: 3000}, slog.Default()),
		participant.NewAgent("supply-base", ex, deps.SignalBus,
			participant.NaiveSupply{Capacity: capacity * 0.5, MarginalCost: 18}, slog.Default()),
		participant.NewAgent("supply-mid", ex, deps.SignalBus,
			participant.NaiveSupply{Capacity: capacity * 0.3, MarginalCost: 32}, slog.Default()),
		participant.NewAgent("supply-peak", ex, deps.SignalBus,
			participant.NaiveSupply{Capacity: capacity * 0.2, MarginalCost: 46}, slog.Default()),
	}

	for _, agent := range agents {
		if err := agent.Init(ctx); err != nil {
			return fmt.Errorf("app: init agent: %w", err)
		}
		g.Go(func() error { return agent.Run(ctx) })
	}
	return nil
}

// startGateway adds the HTTP server and WebSocket hub goroutines to the
// errgroup when the server is enabled.
func (a *App) startGateway(ctx context.Context, g *errgroup.Group, deps *Dependencies, ex *market.Exchange) {
	if !a.cfg.Server.Enabled {
		return
	}
	logger := slog.Default()

	hub := ws.NewHub(deps.SignalBus, logger)
	g.Go(func() error {
		err := hub.Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(logger),
		Markets: handler.NewMarketHandler(ex, logger),
		Results: handler.NewResultHandler(deps.ResultStore, logger),
		Orders:  handler.NewOrderHandler(deps.OrderStore, logger),
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
	}, handlers, hub, logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
