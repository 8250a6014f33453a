package clearing

import (
	"sort"

	"github.com/wattsim/wattsim/internal/domain"
)

// matchResult is the outcome of merit-order matching before settlement
// pricing is applied.
type matchResult struct {
	// accepted orders in book-arrival order, AcceptedVolume set (signed,
	// possibly clipped at the margin), AcceptedPrice still unset.
	accepted []domain.Order
	// lastDemandPrice is the bid price of the marginal (last) accepted
	// demand order; valid only when matchedVolume > 0.
	lastDemandPrice float64
	matchedVolume   float64 // absolute volume matched per side
}

// meritOrderMatch determines which orders trade and at what volume, shared by
// pay_as_clear and pay_as_bid. Supply is ranked cheapest first, demand by
// highest willingness-to-pay first; both rankings are stable so ties keep
// arrival order. The walk stops when either side is exhausted or the next
// supply price exceeds the next demand price. The marginal order on the
// longer side is clipped so accepted supply equals accepted demand.
func meritOrderMatch(book domain.Orderbook, amountTick float64) matchResult {
	type entry struct {
		bookIdx int
		order   domain.Order
		filled  float64 // absolute accepted volume
	}

	var supply, demand []*entry
	for i, o := range book {
		e := &entry{bookIdx: i, order: o}
		switch {
		case o.IsSupply():
			supply = append(supply, e)
		case o.IsDemand():
			demand = append(demand, e)
		}
	}

	sort.SliceStable(supply, func(i, j int) bool {
		return supply[i].order.Price < supply[j].order.Price
	})
	sort.SliceStable(demand, func(i, j int) bool {
		return demand[i].order.Price > demand[j].order.Price
	})

	var res matchResult
	si, di := 0, 0
	var supplyLeft, demandLeft float64
	if len(supply) > 0 {
		supplyLeft = -supply[0].order.Volume
	}
	if len(demand) > 0 {
		demandLeft = demand[0].order.Volume
	}

	for si < len(supply) && di < len(demand) {
		if supply[si].order.Price > demand[di].order.Price {
			break
		}
		matched := supplyLeft
		if demandLeft < matched {
			matched = demandLeft
		}
		matched = roundVolume(matched, amountTick)
		if matched > 0 {
			supply[si].filled += matched
			demand[di].filled += matched
			res.matchedVolume += matched
			res.lastDemandPrice = demand[di].order.Price
			supplyLeft -= matched
			demandLeft -= matched
		}
		if roundVolume(supplyLeft, amountTick) <= 0 {
			si++
			if si < len(supply) {
				supplyLeft = -supply[si].order.Volume
			}
		}
		if roundVolume(demandLeft, amountTick) <= 0 {
			di++
			if di < len(demand) {
				demandLeft = demand[di].order.Volume
			}
		}
	}

	// Report accepted orders in book-arrival order for deterministic output.
	entries := append(supply, demand...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].bookIdx < entries[j].bookIdx })
	for _, e := range entries {
		if e.filled <= 0 {
			continue
		}
		o := e.order
		if o.IsSupply() {
			o.AcceptedVolume = domain.RoundToTick(-e.filled, amountTick)
		} else {
			o.AcceptedVolume = domain.RoundToTick(e.filled, amountTick)
		}
		res.accepted = append(res.accepted, o)
	}
	return res
}

// payAsClear clears the book at one uniform price. The clearing price is
// pinned to the price of the last accepted demand order; every accepted order
// settles at it regardless of its own bid.
func payAsClear(def domain.MarketDef, product domain.Product, book domain.Orderbook) domain.ProductResult {
	m := meritOrderMatch(book, def.AmountTick)
	res := domain.ProductResult{
		Product:        product,
		Accepted:       m.accepted,
		AcceptedVolume: domain.RoundToTick(m.matchedVolume, def.AmountTick),
	}
	if m.matchedVolume <= 0 {
		return res
	}
	price := domain.RoundToTick(m.lastDemandPrice, def.PriceTick)
	res.ClearingPrice = &price
	for i := range res.Accepted {
		res.Accepted[i].AcceptedPrice = price
	}
	return res
}

// payAsBid runs the same matching as payAsClear but settles every accepted
// order at its own bid price. The result's ClearingPrice reports the volume-
// weighted average of accepted demand bids, for publication only.
func payAsBid(def domain.MarketDef, product domain.Product, book domain.Orderbook) domain.ProductResult {
	m := meritOrderMatch(book, def.AmountTick)
	res := domain.ProductResult{
		Product:        product,
		Accepted:       m.accepted,
		AcceptedVolume: domain.RoundToTick(m.matchedVolume, def.AmountTick),
	}
	if m.matchedVolume <= 0 {
		return res
	}
	var notional, volume float64
	for i := range res.Accepted {
		o := &res.Accepted[i]
		o.AcceptedPrice = domain.RoundToTick(o.Price, def.PriceTick)
		if o.IsDemand() {
			notional += o.AcceptedVolume * o.AcceptedPrice
			volume += o.AcceptedVolume
		}
	}
	if volume > 0 {
		avg := domain.RoundToTick(notional/volume, def.PriceTick)
		res.ClearingPrice = &avg
	}
	return res
}
