// Package clearing implements the auction mechanisms that turn a product's
// orderbook into accepted trades and settlement prices. All mechanisms are
// pure computations over a closed snapshot of the book: given the same order
// sequence they produce the same result, which simulation and tests rely on.
package clearing

import (
	"fmt"
	"math"
	"time"

	"github.com/wattsim/wattsim/internal/domain"
)

// Clear runs the market's batch mechanism over the orderbook collected for
// one product. Continuous markets do not batch-clear; use ContinuousBook.
//
// An empty or one-sided book is a valid outcome: the result carries zero
// accepted volume and a nil clearing price. An unbalanced result (accepted
// supply != accepted demand beyond one amount tick) is a defect in the
// matching algorithm and is surfaced as domain.ErrInvariantViolation.
func Clear(def domain.MarketDef, product domain.Product, book domain.Orderbook) (domain.ProductResult, error) {
	var res domain.ProductResult
	switch def.Mechanism {
	case domain.MechanismPayAsClear:
		res = payAsClear(def, product, book)
	case domain.MechanismPayAsBid:
		res = payAsBid(def, product, book)
	default:
		return domain.ProductResult{}, fmt.Errorf("clearing: mechanism %q does not batch-clear", def.Mechanism)
	}

	if err := checkBalance(res, def.AmountTick); err != nil {
		return domain.ProductResult{}, err
	}
	return res, nil
}

// checkBalance verifies the signed accepted volumes sum to zero within one
// amount tick.
func checkBalance(res domain.ProductResult, amountTick float64) error {
	var sum float64
	for _, o := range res.Accepted {
		sum += o.AcceptedVolume
	}
	if !domain.WithinTick(sum, 0, amountTick) {
		return fmt.Errorf("clearing: product %s: signed volume sum %.6f: %w",
			res.Product.Key(), sum, domain.ErrInvariantViolation)
	}
	return nil
}

// Trade is one immediate match in a continuous market. Settlement is pay-as-
// bid against the resting side: Price is always the resting order's price.
type Trade struct {
	BuyOrderID  string
	SellOrderID string
	BuyerID     string
	SellerID    string
	Volume      float64 // positive
	Price       float64
	ExecutedAt  time.Time
}

// roundVolume clips rounding noise out of matched volumes: values below half
// a tick collapse to zero so zero-fills never count as accepted.
func roundVolume(v, tick float64) float64 {
	r := domain.RoundToTick(v, tick)
	if math.Abs(r) < tick/2 {
		return 0
	}
	return r
}
