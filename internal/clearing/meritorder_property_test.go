package clearing

import (
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/wattsim/wattsim/internal/domain"
)

func drawBook(t *rapid.T) domain.Orderbook {
	n := rapid.IntRange(0, 20).Draw(t, "orders")
	book := make(domain.Orderbook, 0, n)
	for i := 0; i < n; i++ {
		volume := float64(rapid.IntRange(1, 500).Draw(t, fmt.Sprintf("vol%d", i)))
		price := float64(rapid.IntRange(-500, 3000).Draw(t, fmt.Sprintf("price%d", i)))
		if rapid.Bool().Draw(t, fmt.Sprintf("supply%d", i)) {
			volume = -volume
		}
		book = append(book, domain.Order{
			ID:            fmt.Sprintf("o%d", i),
			ProductStart:  testStart,
			ProductEnd:    testEnd,
			Volume:        volume,
			Price:         price,
			ParticipantID: fmt.Sprintf("p%d", i),
		})
	}
	return book
}

func TestPropertyClearVolumeBalance(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		def := testDef(domain.MechanismPayAsClear)
		res, err := Clear(def, testProduct(), drawBook(t))
		if err != nil {
			t.Fatalf("Clear returned error: %v", err)
		}
		var sup, dem float64
		for _, o := range res.Accepted {
			if o.AcceptedVolume < 0 {
				sup += -o.AcceptedVolume
			} else {
				dem += o.AcceptedVolume
			}
		}
		if !domain.WithinTick(sup, dem, def.AmountTick) {
			t.Fatalf("accepted supply %v != accepted demand %v", sup, dem)
		}
		if !domain.WithinTick(dem, res.AcceptedVolume, def.AmountTick) {
			t.Fatalf("reported volume %v != accepted demand %v", res.AcceptedVolume, dem)
		}
	})
}

func TestPropertyClearPriceBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		res, err := Clear(testDef(domain.MechanismPayAsClear), testProduct(), drawBook(t))
		if err != nil {
			t.Fatalf("Clear returned error: %v", err)
		}
		if res.ClearingPrice == nil {
			if res.AcceptedVolume != 0 {
				t.Fatalf("volume %v cleared without a price", res.AcceptedVolume)
			}
			return
		}
		p := *res.ClearingPrice
		// Every accepted supplier bid at or below the uniform price; every
		// accepted buyer bid at or above it.
		for _, o := range res.Accepted {
			if o.AcceptedVolume < 0 && o.Price > p+1e-9 {
				t.Fatalf("supply %s bid %v above clearing price %v", o.ID, o.Price, p)
			}
			if o.AcceptedVolume > 0 && o.Price < p-1e-9 {
				t.Fatalf("demand %s bid %v below clearing price %v", o.ID, o.Price, p)
			}
			if o.AcceptedPrice != p {
				t.Fatalf("order %s settled at %v, want uniform %v", o.ID, o.AcceptedPrice, p)
			}
		}
	})
}

func TestPropertyClearNeverOverfills(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		book := drawBook(t)
		res, err := Clear(testDef(domain.MechanismPayAsBid), testProduct(), book)
		if err != nil {
			t.Fatalf("Clear returned error: %v", err)
		}
		submitted := map[string]float64{}
		for _, o := range book {
			submitted[o.ID] = o.Volume
		}
		for _, o := range res.Accepted {
			full := submitted[o.ID]
			if full < 0 {
				if o.AcceptedVolume < full-1e-9 || o.AcceptedVolume >= 0 {
					t.Fatalf("supply %s accepted %v of %v", o.ID, o.AcceptedVolume, full)
				}
			} else {
				if o.AcceptedVolume > full+1e-9 || o.AcceptedVolume <= 0 {
					t.Fatalf("demand %s accepted %v of %v", o.ID, o.AcceptedVolume, full)
				}
			}
		}
	})
}

func TestPropertyContinuousBookInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := NewContinuousBook()
		n := rapid.IntRange(1, 30).Draw(t, "orders")
		now := testStart.Add(-2 * time.Hour)
		for i := 0; i < n; i++ {
			volume := float64(rapid.IntRange(1, 200).Draw(t, fmt.Sprintf("vol%d", i)))
			price := float64(rapid.IntRange(0, 100).Draw(t, fmt.Sprintf("price%d", i)))
			if rapid.Bool().Draw(t, fmt.Sprintf("supply%d", i)) {
				volume = -volume
			}
			o := domain.Order{
				ID:            fmt.Sprintf("o%d", i),
				ProductStart:  testStart,
				ProductEnd:    testEnd,
				Volume:        volume,
				Price:         price,
				ParticipantID: fmt.Sprintf("p%d", rapid.IntRange(0, 5).Draw(t, fmt.Sprintf("pid%d", i))),
			}
			b.Submit(o, now, 0.1)

			resting := b.Resting()
			// At most one resting order per participant.
			seen := map[string]bool{}
			var bestAsk, bestBid *float64
			for _, r := range resting {
				if seen[r.ParticipantID] {
					t.Fatalf("participant %s has two resting orders", r.ParticipantID)
				}
				seen[r.ParticipantID] = true
				price := r.Price
				if r.IsSupply() {
					if bestAsk == nil || price < *bestAsk {
						bestAsk = &price
					}
				} else {
					if bestBid == nil || price > *bestBid {
						bestBid = &price
					}
				}
			}
			// The book never rests in a crossed state.
			if bestAsk != nil && bestBid != nil && *bestBid >= *bestAsk {
				t.Fatalf("crossed book: best bid %v >= best ask %v", *bestBid, *bestAsk)
			}
		}
	})
}
