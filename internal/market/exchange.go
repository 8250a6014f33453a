package market

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/wattsim/wattsim/internal/domain"
)

// Exchange owns the set of configured markets and runs their round loops
// concurrently. It is the surface the HTTP gateway and the participants talk
// to.
type Exchange struct {
	markets map[string]*Market
	order   []string // market names in configuration order
	logger  *slog.Logger
}

// NewExchange builds one Market per definition. Duplicate names and invalid
// definitions fail setup.
func NewExchange(defs []domain.MarketDef, opts Options) (*Exchange, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ex := &Exchange{
		markets: make(map[string]*Market, len(defs)),
		logger:  opts.Logger.With(slog.String("component", "exchange")),
	}
	for _, def := range defs {
		if _, dup := ex.markets[def.Name]; dup {
			return nil, fmt.Errorf("exchange: duplicate market %q", def.Name)
		}
		m, err := New(def, opts)
		if err != nil {
			return nil, err
		}
		ex.markets[def.Name] = m
		ex.order = append(ex.order, def.Name)
	}
	return ex, nil
}

// Run drives all market round loops until ctx is cancelled or a market loop
// returns an error.
func (ex *Exchange) Run(ctx context.Context) error {
	ex.logger.Info("exchange starting", slog.Int("markets", len(ex.markets)))
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range ex.order {
		m := ex.markets[name]
		g.Go(func() error { return m.Run(ctx) })
	}
	return g.Wait()
}

// Market returns the named market, or domain.ErrNotFound.
func (ex *Exchange) Market(name string) (*Market, error) {
	m, ok := ex.markets[name]
	if !ok {
		return nil, fmt.Errorf("exchange: market %q: %w", name, domain.ErrNotFound)
	}
	return m, nil
}

// Defs returns all market definitions in configuration order.
func (ex *Exchange) Defs() []domain.MarketDef {
	defs := make([]domain.MarketDef, 0, len(ex.markets))
	for _, name := range ex.order {
		defs = append(defs, ex.markets[name].Def())
	}
	return defs
}

// Def returns the definition of the named market.
func (ex *Exchange) Def(name string) (domain.MarketDef, error) {
	m, err := ex.Market(name)
	if err != nil {
		return domain.MarketDef{}, err
	}
	return m.Def(), nil
}

// Products returns the products of the named market's open round. An empty
// slice between rounds is not an error.
func (ex *Exchange) Products(name string) ([]domain.Product, error) {
	m, err := ex.Market(name)
	if err != nil {
		return nil, err
	}
	return m.CurrentProducts(), nil
}

// Submit routes an order to the named market.
func (ex *Exchange) Submit(ctx context.Context, name string, o domain.Order) error {
	m, err := ex.Market(name)
	if err != nil {
		return err
	}
	return m.Submit(ctx, o)
}

// Register records a participant with the named market.
func (ex *Exchange) Register(name, participantID string) error {
	m, err := ex.Market(name)
	if err != nil {
		return err
	}
	m.Register(participantID)
	return nil
}

// Names returns all market names, sorted.
func (ex *Exchange) Names() []string {
	names := make([]string, 0, len(ex.markets))
	for name := range ex.markets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
