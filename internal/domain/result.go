package domain

import "time"

// ProductResult is the clearing outcome for one product of one round.
// ClearingPrice is nil when nothing matched (an empty market is a valid
// outcome, not an error). For pay-as-bid and continuous markets the field
// carries the volume-weighted price of the matched trades and individual
// settlement lives on each accepted order.
type ProductResult struct {
	Product        Product
	Accepted       []Order
	ClearingPrice  *float64
	AcceptedVolume float64 // total matched volume per side (absolute)
}

// ClearingResult is everything a round produced: one ProductResult per
// product, keyed in product generation order.
type ClearingResult struct {
	MarketID   string
	RoundStart time.Time
	RoundClose time.Time
	Products   []ProductResult
	ClearedAt  time.Time
}

// Result lookups are by product key; linear scan is fine at round sizes.
func (r ClearingResult) ForProduct(p Product) (ProductResult, bool) {
	for _, pr := range r.Products {
		if pr.Product.Key() == p.Key() {
			return pr, true
		}
	}
	return ProductResult{}, false
}

// OpeningMessage announces a round's tradable products to participants.
type OpeningMessage struct {
	MarketID   string    `json:"market_id"`
	RoundStart time.Time `json:"round_start"`
	RoundClose time.Time `json:"round_close"`
	Products   []Product `json:"products"`
}

// ClearingMessage publishes a round's results to participants.
type ClearingMessage struct {
	MarketID   string         `json:"market_id"`
	RoundStart time.Time      `json:"round_start"`
	RoundClose time.Time      `json:"round_close"`
	Result     ClearingResult `json:"result"`
}
