// Package participant provides simple market participants for simulation
// runs: agents that listen for round openings on the signal bus and answer
// with naive bids.
package participant

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/wattsim/wattsim/internal/domain"
)

// Submitter is the slice of the exchange an agent talks to.
type Submitter interface {
	Submit(ctx context.Context, market string, o domain.Order) error
	Register(market, participantID string) error
	Names() []string
}

// Strategy turns a round opening into the orders the agent wants to place.
type Strategy interface {
	Orders(msg domain.OpeningMessage) []domain.Order
}

// Agent is one simulated participant. It registers with every market, then
// answers each opening announcement with its strategy's orders.
type Agent struct {
	id       string
	exchange Submitter
	bus      domain.SignalBus
	strategy Strategy
	logger   *slog.Logger

	openings <-chan []byte
}

// NewAgent creates an agent with the given identity and bidding strategy.
func NewAgent(id string, exchange Submitter, bus domain.SignalBus, strategy Strategy, logger *slog.Logger) *Agent {
	return &Agent{
		id:       id,
		exchange: exchange,
		bus:      bus,
		strategy: strategy,
		logger: logger.With(
			slog.String("component", "participant"),
			slog.String("participant", id),
		),
	}
}

// Init registers the agent with every market and subscribes to opening
// announcements. Call it before the exchange starts so the first round is not
// missed.
func (a *Agent) Init(ctx context.Context) error {
	for _, name := range a.exchange.Names() {
		if err := a.exchange.Register(name, a.id); err != nil {
			return err
		}
	}
	openings, err := a.bus.Subscribe(ctx, domain.ChannelOpening)
	if err != nil {
		return err
	}
	a.openings = openings
	return nil
}

// Run answers openings until ctx is cancelled. Init must have been called.
func (a *Agent) Run(ctx context.Context) error {
	if a.openings == nil {
		if err := a.Init(ctx); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-a.openings:
			if !ok {
				return nil
			}
			var msg domain.OpeningMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				a.logger.Warn("bad opening message", slog.String("error", err.Error()))
				continue
			}
			a.respond(ctx, msg)
		}
	}
}

func (a *Agent) respond(ctx context.Context, msg domain.OpeningMessage) {
	for _, o := range a.strategy.Orders(msg) {
		o.ParticipantID = a.id
		err := a.exchange.Submit(ctx, msg.MarketID, o)
		if err == nil {
			continue
		}
		var rejected *domain.OrderRejectedError
		switch {
		case errors.As(err, &rejected):
			a.logger.Debug("order rejected",
				slog.String("market", msg.MarketID),
				slog.String("reason", string(rejected.Reason)),
			)
		case errors.Is(err, domain.ErrMarketClosed):
			// Lost the race against the round cutoff; routine under load.
			a.logger.Debug("round already closed", slog.String("market", msg.MarketID))
		default:
			a.logger.Warn("submit failed",
				slog.String("market", msg.MarketID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// NaiveDemand requests a flat volume in every product at its price limit.
// The high limit makes demand price-inelastic, the common assumption for
// day-ahead load.
type NaiveDemand struct {
	Volume     float64 // MW per product, positive
	PriceLimit float64
}

// Orders implements Strategy.
func (s NaiveDemand) Orders(msg domain.OpeningMessage) []domain.Order {
	orders := make([]domain.Order, 0, len(msg.Products))
	for _, p := range msg.Products {
		orders = append(orders, domain.Order{
			ProductStart: p.Start,
			ProductEnd:   p.End,
			Volume:       s.Volume,
			Price:        s.PriceLimit,
		})
	}
	return orders
}

// NaiveSupply offers a flat capacity in every product at marginal cost.
type NaiveSupply struct {
	Capacity     float64 // MW per product, positive
	MarginalCost float64
}

// Orders implements Strategy.
func (s NaiveSupply) Orders(msg domain.OpeningMessage) []domain.Order {
	orders := make([]domain.Order, 0, len(msg.Products))
	for _, p := range msg.Products {
		orders = append(orders, domain.Order{
			ProductStart: p.Start,
			ProductEnd:   p.End,
			Volume:       -s.Capacity,
			Price:        s.MarginalCost,
		})
	}
	return orders
}
