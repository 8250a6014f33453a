// Package market drives the open → collect → clear → publish cycle of one
// market and owns all per-market state: the current round's orderbooks, the
// durable resting books of continuous markets, and the participant registry.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wattsim/wattsim/internal/clearing"
	"github.com/wattsim/wattsim/internal/domain"
	"github.com/wattsim/wattsim/internal/recurrence"
	"github.com/wattsim/wattsim/internal/schedule"
)

// Phase labels the lifecycle of one round.
type Phase string

const (
	PhaseCollecting Phase = "collecting"
	PhaseClearing   Phase = "clearing"
	PhasePublished  Phase = "published"
)

// Alerter receives out-of-band notifications for noteworthy market events
// (startup, invariant violations). Satisfied by notify.Notifier.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Options carries the collaborators a Market needs. Bus is required; stores,
// cache, and alerter are optional and skipped when nil.
type Options struct {
	Clock    Clock
	Bus      domain.SignalBus
	Results  domain.ResultStore
	Orders   domain.OrderStore
	Prices   domain.PriceCache
	Alerter  Alerter
	Registry *Registry
	Logger   *slog.Logger
}

// round is the mutable state of one open round. It is guarded by Market.mu
// until close, after which the clearing goroutine owns it exclusively.
type round struct {
	start    time.Time
	close    time.Time
	phase    Phase
	products []domain.Product
	index    map[string]int // product key -> position in products

	// auction mechanisms: one book per product, discarded after clearing
	books map[string]domain.Orderbook

	// continuous mechanism: per-product incoming orders and executed trades
	// of this round, settled into the round result at close
	contOrders map[string][]domain.Order
	contTrades map[string][]clearing.Trade
}

// Market is the round lifecycle controller for a single market definition.
type Market struct {
	def      domain.MarketDef
	eval     *recurrence.Evaluator
	clock    Clock
	bus      domain.SignalBus
	results  domain.ResultStore
	orders   domain.OrderStore
	prices   domain.PriceCache
	alerter  Alerter
	registry *Registry
	logger   *slog.Logger

	mu      sync.Mutex
	cur     *round
	pending []domain.Order // continuous-market orders that missed a cutoff, queued for the next round
	cont    map[string]*clearing.ContinuousBook
}

// New validates the market definition, compiles its recurrence rule, and
// returns a runnable Market. Configuration errors are fatal at setup: a
// market that cannot be built never starts.
func New(def domain.MarketDef, opts Options) (*Market, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("market: name is required")
	}
	if !def.Mechanism.Valid() {
		return nil, fmt.Errorf("market %s: unknown mechanism %q", def.Name, def.Mechanism)
	}
	if def.MinimumBid >= def.MaximumBid {
		return nil, fmt.Errorf("market %s: minimum bid %.2f not below maximum bid %.2f",
			def.Name, def.MinimumBid, def.MaximumBid)
	}
	if def.PriceTick <= 0 || def.AmountTick <= 0 {
		return nil, fmt.Errorf("market %s: price and amount ticks must be positive", def.Name)
	}
	if len(def.Products) == 0 {
		return nil, fmt.Errorf("market %s: at least one product template is required", def.Name)
	}
	if def.OpeningDuration <= 0 {
		return nil, fmt.Errorf("market %s: opening duration must be positive", def.Name)
	}

	eval, err := recurrence.New(def.Opening)
	if err != nil {
		return nil, fmt.Errorf("market %s: %w", def.Name, err)
	}

	if opts.Clock == nil {
		opts.Clock = WallClock{}
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if def.Eligible == nil {
		def.Eligible = opts.Registry
	}

	return &Market{
		def:      def,
		eval:     eval,
		clock:    opts.Clock,
		bus:      opts.Bus,
		results:  opts.Results,
		orders:   opts.Orders,
		prices:   opts.Prices,
		alerter:  opts.Alerter,
		registry: opts.Registry,
		logger:   opts.Logger.With(slog.String("component", "market"), slog.String("market", def.Name)),
	}, nil
}

// Def returns the immutable market definition.
func (m *Market) Def() domain.MarketDef { return m.def }

// Register records a participant's interest ahead of the next round.
func (m *Market) Register(participantID string) {
	m.registry.Register(participantID)
	m.logger.Debug("participant registered", slog.String("participant", participantID))
}

// CurrentProducts returns the products of the currently collecting round, or
// nil when no round is open.
func (m *Market) CurrentProducts() []domain.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return nil
	}
	out := make([]domain.Product, len(m.cur.products))
	copy(out, m.cur.products)
	return out
}

// Run drives rounds until the recurrence rule is exhausted or ctx is
// cancelled. A failed round (invariant violation) is logged and reported but
// does not stop subsequent rounds; teardown only happens between rounds.
func (m *Market) Run(ctx context.Context) error {
	m.logger.Info("market starting",
		slog.String("mechanism", string(m.def.Mechanism)),
		slog.Duration("opening_duration", m.def.OpeningDuration),
	)

	next := m.eval.Iterator()
	for {
		opening, ok := next()
		if !ok {
			m.logger.Info("recurrence exhausted, market retired")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.clock.Until(opening):
		}

		if err := m.runRound(ctx, opening); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			m.logger.Error("round failed", slog.Time("round_start", opening), slog.String("error", err.Error()))
		}
	}
}

// runRound executes a single open → collect → clear → publish cycle.
func (m *Market) runRound(ctx context.Context, opening time.Time) error {
	r := m.openRound(opening)
	m.announce(ctx, r)

	select {
	case <-ctx.Done():
		// Torn down mid-collection: the round is abandoned, never cleared
		// partially.
		m.mu.Lock()
		m.cur = nil
		m.mu.Unlock()
		return ctx.Err()
	case <-m.clock.Until(r.close):
	}

	result, booked, err := m.closeAndClear(r)
	if err != nil {
		if m.alerter != nil {
			_ = m.alerter.Notify(ctx, "invariant_violation", "clearing invariant violated",
				fmt.Sprintf("market %s round %s: %v", m.def.Name, r.start, err))
		}
		return err
	}

	m.publish(ctx, result, booked)
	return nil
}

// openRound creates the round state, generates this round's products, and
// replays any orders that were queued past the previous cutoff.
func (m *Market) openRound(opening time.Time) *round {
	products := schedule.Generate(opening, m.def.Products)
	r := &round{
		start:    opening,
		close:    opening.Add(m.def.OpeningDuration),
		phase:    PhaseCollecting,
		products: products,
		index:    make(map[string]int, len(products)),
	}
	for i, p := range products {
		r.index[p.Key()] = i
	}
	switch m.def.Mechanism {
	case domain.MechanismContinuous:
		r.contOrders = make(map[string][]domain.Order)
		r.contTrades = make(map[string][]clearing.Trade)
	default:
		r.books = make(map[string]domain.Orderbook, len(products))
	}

	m.mu.Lock()
	if m.cont == nil && m.def.Mechanism == domain.MechanismContinuous {
		m.cont = make(map[string]*clearing.ContinuousBook)
	}
	m.cur = r
	queued := m.pending
	m.pending = nil
	m.mu.Unlock()

	m.logger.Info("round opened",
		slog.Time("round_start", r.start),
		slog.Time("round_close", r.close),
		slog.Int("products", len(products)),
		slog.Int("queued_orders", len(queued)),
	)

	// Queued late orders are incorporated first, preserving their original
	// submission order. Replay can still fail when the delivery window left
	// the tradable horizon in the meantime.
	for _, o := range queued {
		if err := m.Submit(context.Background(), o); err != nil {
			m.logger.Warn("queued order could not be replayed",
				slog.String("order_id", o.ID),
				slog.String("participant", o.ParticipantID),
				slog.String("error", err.Error()),
			)
		}
	}
	return r
}

// Submit validates an order against the open round and inserts it into the
// book. The cutoff is the order's submission timestamp against the round
// close, taken under the book lock, so a racing close resolves
// deterministically. On a continuous market an order arriving at or after
// the cutoff (or between rounds) is queued for the next round, whose book
// still trades the same delivery windows. Auction products shift every
// round, so a late auction order could never land in a future book; it is
// rejected with ErrMarketClosed instead of queued.
func (m *Market) Submit(ctx context.Context, o domain.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.MarketID = m.def.Name
	if o.SubmittedAt.IsZero() {
		o.SubmittedAt = m.clock.Now()
	}

	m.mu.Lock()
	r := m.cur
	if r == nil || r.phase != PhaseCollecting || !o.SubmittedAt.Before(r.close) {
		if m.def.Mechanism != domain.MechanismContinuous {
			m.mu.Unlock()
			return fmt.Errorf("market %s: %w", m.def.Name, domain.ErrMarketClosed)
		}
		m.pending = append(m.pending, o)
		m.mu.Unlock()
		return nil
	}

	key := domain.Product{Start: o.ProductStart, End: o.ProductEnd}.Key()
	idx, ok := r.index[key]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("market %s: no open product %s: %w", m.def.Name, key, domain.ErrNotFound)
	}
	product := r.products[idx]

	var lastPrice *float64
	if m.def.MaximumGradient > 0 && m.prices != nil {
		if p, _, err := m.prices.GetPrice(ctx, m.def.Name, domain.PriceKeyLatest); err == nil {
			lastPrice = &p
		}
	}

	if rej := Validate(o, m.def, product, lastPrice); rej != nil {
		m.mu.Unlock()
		m.logger.Debug("order rejected",
			slog.String("order_id", o.ID),
			slog.String("participant", o.ParticipantID),
			slog.String("reason", string(rej.Reason)),
		)
		return rej
	}

	switch m.def.Mechanism {
	case domain.MechanismContinuous:
		book := m.cont[key]
		if book == nil {
			book = clearing.NewContinuousBook()
			m.cont[key] = book
		}
		trades := book.Submit(o, o.SubmittedAt, m.def.AmountTick)
		r.contOrders[key] = append(r.contOrders[key], o)
		r.contTrades[key] = append(r.contTrades[key], trades...)
		m.mu.Unlock()
		for _, t := range trades {
			m.logger.Debug("continuous match",
				slog.String("buyer", t.BuyerID),
				slog.String("seller", t.SellerID),
				slog.Float64("volume", t.Volume),
				slog.Float64("price", t.Price),
			)
		}
	default:
		r.books[key] = append(r.books[key], o)
		m.mu.Unlock()
	}
	return nil
}

// closeAndClear snapshots the round at its cutoff and runs the clearing
// computation. The snapshot is exclusive: submissions from here on queue for
// the next round, and clearing itself never blocks or suspends.
func (m *Market) closeAndClear(r *round) (domain.ClearingResult, []domain.Order, error) {
	m.mu.Lock()
	r.phase = PhaseClearing
	m.cur = nil
	m.mu.Unlock()

	result := domain.ClearingResult{
		MarketID:   m.def.Name,
		RoundStart: r.start,
		RoundClose: r.close,
		ClearedAt:  m.clock.Now(),
	}
	var booked []domain.Order

	for _, p := range r.products {
		key := p.Key()
		switch m.def.Mechanism {
		case domain.MechanismContinuous:
			incoming := r.contOrders[key]
			trades := r.contTrades[key]
			// Trades can execute against resting orders carried from earlier
			// rounds; both sides of every trade settle into the result.
			orders := append(m.carriedCounterparties(key, incoming, trades), incoming...)
			pr := clearing.Settle(p, orders, trades, m.def.AmountTick, m.def.PriceTick)
			result.Products = append(result.Products, pr)
			booked = append(booked, incoming...)
		default:
			book := r.books[key]
			pr, err := clearing.Clear(m.def, p, book)
			if err != nil {
				return domain.ClearingResult{}, nil, err
			}
			result.Products = append(result.Products, pr)
			booked = append(booked, book...)
		}
	}

	// Continuous books persist across rounds, but delivery windows that have
	// passed the cutoff can never match again.
	if m.def.Mechanism == domain.MechanismContinuous {
		m.mu.Lock()
		for key, book := range m.cont {
			if n := book.DropExpired(r.close); n > 0 {
				m.logger.Debug("dropped expired resting orders",
					slog.String("product", key), slog.Int("count", n))
			}
			if book.Len() == 0 {
				delete(m.cont, key)
			}
		}
		m.mu.Unlock()
	}

	r.phase = PhasePublished
	return result, booked, nil
}

// carriedCounterparties returns the resting orders from earlier rounds that
// traded during this round, oldest submission first. Orders submitted this
// round are excluded; the caller already holds them.
func (m *Market) carriedCounterparties(key string, incoming []domain.Order, trades []clearing.Trade) []domain.Order {
	if len(trades) == 0 {
		return nil
	}
	known := make(map[string]bool, len(incoming))
	for _, o := range incoming {
		known[o.ID] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	book := m.cont[key]
	if book == nil {
		return nil
	}

	var carried []domain.Order
	for _, t := range trades {
		for _, id := range []string{t.BuyOrderID, t.SellOrderID} {
			if known[id] {
				continue
			}
			known[id] = true
			if o, ok := book.Order(id); ok {
				carried = append(carried, o)
			}
		}
	}
	sort.Slice(carried, func(i, j int) bool {
		if !carried[i].SubmittedAt.Equal(carried[j].SubmittedAt) {
			return carried[i].SubmittedAt.Before(carried[j].SubmittedAt)
		}
		return carried[i].ID < carried[j].ID
	})
	return carried
}

// announce broadcasts the round's tradable products.
func (m *Market) announce(ctx context.Context, r *round) {
	if m.bus == nil {
		return
	}
	msg := domain.OpeningMessage{
		MarketID:   m.def.Name,
		RoundStart: r.start,
		RoundClose: r.close,
		Products:   r.products,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		m.logger.Error("marshal opening message", slog.String("error", err.Error()))
		return
	}
	if err := m.bus.Publish(ctx, domain.ChannelOpening, payload); err != nil {
		m.logger.Warn("publish opening", slog.String("error", err.Error()))
	}
}

// publish persists and broadcasts the round result.
func (m *Market) publish(ctx context.Context, result domain.ClearingResult, booked []domain.Order) {
	for _, pr := range result.Products {
		if pr.ClearingPrice == nil || m.prices == nil {
			continue
		}
		if err := m.prices.SetPrice(ctx, m.def.Name, pr.Product.Key(), *pr.ClearingPrice, result.RoundClose); err != nil {
			m.logger.Warn("cache clearing price", slog.String("error", err.Error()))
		}
		if err := m.prices.SetPrice(ctx, m.def.Name, domain.PriceKeyLatest, *pr.ClearingPrice, result.RoundClose); err != nil {
			m.logger.Warn("cache latest price", slog.String("error", err.Error()))
		}
	}
	if m.orders != nil && len(booked) > 0 {
		if err := m.orders.InsertBatch(ctx, booked); err != nil {
			m.logger.Warn("persist orders", slog.String("error", err.Error()))
		}
	}
	if m.results != nil {
		if err := m.results.InsertResult(ctx, result); err != nil {
			m.logger.Warn("persist clearing result", slog.String("error", err.Error()))
		}
	}
	if m.bus != nil {
		msg := domain.ClearingMessage{
			MarketID:   m.def.Name,
			RoundStart: result.RoundStart,
			RoundClose: result.RoundClose,
			Result:     result,
		}
		if payload, err := json.Marshal(msg); err == nil {
			if err := m.bus.Publish(ctx, domain.ChannelClearing, payload); err != nil {
				m.logger.Warn("publish clearing", slog.String("error", err.Error()))
			}
		}
	}

	var matched float64
	for _, pr := range result.Products {
		matched += pr.AcceptedVolume
	}
	m.logger.Info("round cleared",
		slog.Time("round_start", result.RoundStart),
		slog.Int("products", len(result.Products)),
		slog.Float64("matched_volume", matched),
	)
}
