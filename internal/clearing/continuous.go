package clearing

import (
	"math"
	"sort"
	"time"

	"github.com/wattsim/wattsim/internal/domain"
)

// ContinuousBook is the durable per-product book of a continuous market.
// It holds at most one resting order per participant; a newer submission
// from the same participant replaces the old one before any matching.
// ContinuousBook is not safe for concurrent use; the round controller
// serializes access.
type ContinuousBook struct {
	resting []restingOrder
	// index keeps the original submission behind every order id the book
	// has touched since the last DropExpired, so trades against resting
	// orders carried from earlier rounds can still be settled both-sided.
	index map[string]domain.Order
	seq   int64
}

type restingOrder struct {
	order     domain.Order
	remaining float64 // absolute unmatched volume
	seq       int64   // arrival sequence for price-time priority
}

// NewContinuousBook returns an empty book.
func NewContinuousBook() *ContinuousBook {
	return &ContinuousBook{index: make(map[string]domain.Order)}
}

// Submit matches the incoming order immediately against the best-priced
// compatible resting orders and rests any remainder. A buy matches the
// cheapest resting sell priced at or below its bid; a sell matches the
// highest resting buy priced at or above its ask. Trades execute at the
// resting order's price; among equal prices the earliest-resting order wins.
func (b *ContinuousBook) Submit(o domain.Order, now time.Time, amountTick float64) []Trade {
	// One resting order per participant per product: drop any prior one
	// before matching, whatever its side.
	b.removeParticipant(o.ParticipantID)
	b.index[o.ID] = o

	remaining := math.Abs(o.Volume)
	var trades []Trade

	for remaining > 0 {
		idx := b.bestCounter(o)
		if idx < 0 {
			break
		}
		counter := &b.resting[idx]
		matched := roundVolume(math.Min(remaining, counter.remaining), amountTick)
		if matched <= 0 {
			break
		}

		t := Trade{
			Volume:     matched,
			Price:      counter.order.Price,
			ExecutedAt: now,
		}
		if o.IsDemand() {
			t.BuyOrderID, t.BuyerID = o.ID, o.ParticipantID
			t.SellOrderID, t.SellerID = counter.order.ID, counter.order.ParticipantID
		} else {
			t.SellOrderID, t.SellerID = o.ID, o.ParticipantID
			t.BuyOrderID, t.BuyerID = counter.order.ID, counter.order.ParticipantID
		}
		trades = append(trades, t)

		remaining -= matched
		counter.remaining -= matched
		if roundVolume(counter.remaining, amountTick) <= 0 {
			b.remove(idx)
		}
		remaining = roundVolume(remaining, amountTick)
	}

	if remaining > 0 {
		rest := o
		b.seq++
		b.resting = append(b.resting, restingOrder{order: rest, remaining: remaining, seq: b.seq})
	}
	return trades
}

// bestCounter returns the index of the resting order the incoming order
// should match next, or -1 when no compatible counter-order exists.
func (b *ContinuousBook) bestCounter(o domain.Order) int {
	best := -1
	for i, r := range b.resting {
		if o.IsDemand() {
			if !r.order.IsSupply() || r.order.Price > o.Price {
				continue
			}
			if best < 0 || r.order.Price < b.resting[best].order.Price ||
				(r.order.Price == b.resting[best].order.Price && r.seq < b.resting[best].seq) {
				best = i
			}
		} else {
			if !r.order.IsDemand() || r.order.Price < o.Price {
				continue
			}
			if best < 0 || r.order.Price > b.resting[best].order.Price ||
				(r.order.Price == b.resting[best].order.Price && r.seq < b.resting[best].seq) {
				best = i
			}
		}
	}
	return best
}

func (b *ContinuousBook) remove(idx int) {
	b.resting = append(b.resting[:idx], b.resting[idx+1:]...)
}

func (b *ContinuousBook) removeParticipant(participantID string) {
	kept := b.resting[:0]
	for _, r := range b.resting {
		if r.order.ParticipantID != participantID {
			kept = append(kept, r)
		}
	}
	b.resting = kept
}

// Resting returns the current resting orders in arrival order, with Volume
// reduced to the unmatched remainder. The returned orders are copies.
func (b *ContinuousBook) Resting() []domain.Order {
	out := make([]restingOrder, len(b.resting))
	copy(out, b.resting)
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })

	orders := make([]domain.Order, 0, len(out))
	for _, r := range out {
		o := r.order
		if o.IsSupply() {
			o.Volume = -r.remaining
		} else {
			o.Volume = r.remaining
		}
		orders = append(orders, o)
	}
	return orders
}

// Len reports the number of resting orders.
func (b *ContinuousBook) Len() int { return len(b.resting) }

// Order returns the original submission behind an order id. Fully matched
// and replaced orders remain retrievable until the next DropExpired, which
// is when the round that traded them has been settled.
func (b *ContinuousBook) Order(id string) (domain.Order, bool) {
	o, ok := b.index[id]
	return o, ok
}

// DropExpired removes resting orders whose delivery window has closed by
// asOf, returning how many were dropped. Called by the round controller at
// round close, after settlement, so stale products never match. The order
// index is compacted to the surviving resting orders at the same time.
func (b *ContinuousBook) DropExpired(asOf time.Time) int {
	kept := b.resting[:0]
	dropped := 0
	for _, r := range b.resting {
		if !r.order.ProductEnd.After(asOf) {
			dropped++
			continue
		}
		kept = append(kept, r)
	}
	b.resting = kept

	index := make(map[string]domain.Order, len(kept))
	for _, r := range kept {
		index[r.order.ID] = r.order
	}
	b.index = index
	return dropped
}

// Settle turns the trades executed during one round into a ProductResult.
// orders must contain every order party to a trade of the round — including
// resting orders carried from earlier rounds — plus the round's unmatched
// submissions, in submission order; the accepted entries preserve that
// order, each carrying its total matched volume and volume-weighted
// settlement price.
func Settle(product domain.Product, orders []domain.Order, trades []Trade, amountTick, priceTick float64) domain.ProductResult {
	type fill struct {
		volume   float64
		notional float64
	}
	fills := make(map[string]*fill)
	var total float64
	for _, t := range trades {
		for _, id := range []string{t.BuyOrderID, t.SellOrderID} {
			f := fills[id]
			if f == nil {
				f = &fill{}
				fills[id] = f
			}
			f.volume += t.Volume
			f.notional += t.Volume * t.Price
		}
		total += t.Volume
	}

	res := domain.ProductResult{
		Product:        product,
		AcceptedVolume: domain.RoundToTick(total, amountTick),
	}
	var notional float64
	for _, o := range orders {
		f := fills[o.ID]
		if f == nil || f.volume <= 0 {
			continue
		}
		if o.IsSupply() {
			o.AcceptedVolume = domain.RoundToTick(-f.volume, amountTick)
		} else {
			o.AcceptedVolume = domain.RoundToTick(f.volume, amountTick)
		}
		o.AcceptedPrice = domain.RoundToTick(f.notional/f.volume, priceTick)
		res.Accepted = append(res.Accepted, o)
		if o.IsDemand() {
			notional += f.notional
		}
	}
	if total > 0 {
		avg := domain.RoundToTick(notional/total, priceTick)
		res.ClearingPrice = &avg
	}
	return res
}
