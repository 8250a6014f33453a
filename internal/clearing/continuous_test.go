package clearing

import (
	"testing"
	"time"

	"github.com/wattsim/wattsim/internal/domain"
)

func contOrder(id, participant string, volume, price float64) domain.Order {
	return domain.Order{
		ID: id, ProductStart: testStart, ProductEnd: testEnd,
		Volume: volume, Price: price, ParticipantID: participant,
	}
}

func TestContinuousSubmitMatchesAtRestingPrice(t *testing.T) {
	b := NewContinuousBook()
	now := testStart.Add(-time.Hour)

	if trades := b.Submit(contOrder("s1", "gen", -100, 20), now, 0.1); len(trades) != 0 {
		t.Fatalf("first order traded: %v", trades)
	}
	trades := b.Submit(contOrder("d1", "load", 60, 35), now, 0.1)
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	tr := trades[0]
	if tr.Price != 20 {
		t.Errorf("trade price = %v, want resting price 20", tr.Price)
	}
	if tr.Volume != 60 {
		t.Errorf("trade volume = %v, want 60", tr.Volume)
	}
	if tr.BuyOrderID != "d1" || tr.SellOrderID != "s1" {
		t.Errorf("trade sides = buy %s sell %s", tr.BuyOrderID, tr.SellOrderID)
	}
	// The seller's remainder keeps resting.
	resting := b.Resting()
	if len(resting) != 1 {
		t.Fatalf("resting = %d, want 1", len(resting))
	}
	if resting[0].ID != "s1" || resting[0].Volume != -40 {
		t.Errorf("resting remainder = %s %v, want s1 -40", resting[0].ID, resting[0].Volume)
	}
}

func TestContinuousPriceTimePriority(t *testing.T) {
	b := NewContinuousBook()
	now := testStart.Add(-time.Hour)

	b.Submit(contOrder("s-late-cheap", "g1", -50, 10), now, 0.1)
	b.Submit(contOrder("s-expensive", "g2", -50, 30), now, 0.1)
	b.Submit(contOrder("s-early-cheap", "g3", -50, 10), now, 0.1)

	trades := b.Submit(contOrder("d1", "load", 120, 40), now, 0.1)
	if len(trades) != 3 {
		t.Fatalf("trades = %d, want 3", len(trades))
	}
	// Cheapest first; among equal prices the earlier arrival wins.
	if trades[0].SellOrderID != "s-late-cheap" {
		t.Errorf("first fill from %s, want s-late-cheap (earliest at best price)", trades[0].SellOrderID)
	}
	if trades[1].SellOrderID != "s-early-cheap" {
		t.Errorf("second fill from %s, want s-early-cheap", trades[1].SellOrderID)
	}
	if trades[2].SellOrderID != "s-expensive" || trades[2].Volume != 20 {
		t.Errorf("third fill = %s %v, want s-expensive 20", trades[2].SellOrderID, trades[2].Volume)
	}
}

func TestContinuousNoMatchWhenPricesDoNotCross(t *testing.T) {
	b := NewContinuousBook()
	now := testStart.Add(-time.Hour)

	b.Submit(contOrder("s1", "gen", -100, 50), now, 0.1)
	trades := b.Submit(contOrder("d1", "load", 100, 40), now, 0.1)
	if len(trades) != 0 {
		t.Fatalf("uncrossed orders traded: %v", trades)
	}
	if b.Len() != 2 {
		t.Fatalf("resting = %d, want both orders resting", b.Len())
	}
}

func TestContinuousOneRestingPerParticipant(t *testing.T) {
	b := NewContinuousBook()
	now := testStart.Add(-time.Hour)

	b.Submit(contOrder("s1", "gen", -100, 50), now, 0.1)
	// Same participant again: the stale order must be withdrawn first, even
	// though it sits on the other side of the book.
	b.Submit(contOrder("d-own", "gen", 20, 40), now, 0.1)

	resting := b.Resting()
	if len(resting) != 1 {
		t.Fatalf("resting = %d, want 1 after replacement", len(resting))
	}
	if resting[0].ID != "d-own" {
		t.Fatalf("resting order = %s, want d-own", resting[0].ID)
	}
	// And the replaced order can no longer match.
	if trades := b.Submit(contOrder("d2", "load", 50, 60), now, 0.1); len(trades) != 0 {
		t.Fatalf("withdrawn order matched: %v", trades)
	}
}

func TestContinuousDropExpired(t *testing.T) {
	b := NewContinuousBook()
	now := testStart.Add(-time.Hour)

	stale := contOrder("s-old", "g1", -50, 10)
	stale.ProductEnd = testStart // delivery already over at testStart
	b.Submit(stale, now, 0.1)
	b.Submit(contOrder("s-live", "g2", -50, 10), now, 0.1)

	if dropped := b.DropExpired(testStart); dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}
	if b.Len() != 1 {
		t.Fatalf("resting = %d, want 1", b.Len())
	}
	if b.Resting()[0].ID != "s-live" {
		t.Fatalf("surviving order = %s, want s-live", b.Resting()[0].ID)
	}
}

func TestContinuousOrderLookup(t *testing.T) {
	b := NewContinuousBook()
	now := testStart.Add(-time.Hour)

	b.Submit(contOrder("s1", "gen", -60, 20), now, 0.1)
	b.Submit(contOrder("d1", "load", 60, 35), now, 0.1)

	// s1 matched in full and left the resting book, but settlement of the
	// round that traded it still finds the original submission.
	if b.Len() != 0 {
		t.Fatalf("resting = %d, want 0 after full match", b.Len())
	}
	got, ok := b.Order("s1")
	if !ok || got.ParticipantID != "gen" || got.Volume != -60 {
		t.Fatalf("Order(s1) = %+v, %v", got, ok)
	}

	// DropExpired compacts the index down to the surviving resting orders.
	b.Submit(contOrder("s2", "g2", -50, 10), now, 0.1)
	b.DropExpired(now)
	if _, ok := b.Order("s1"); ok {
		t.Fatal("fully matched order survived index compaction")
	}
	if _, ok := b.Order("s2"); !ok {
		t.Fatal("resting order lost from index")
	}
}

func TestSettle(t *testing.T) {
	now := testStart.Add(-time.Hour)
	orders := []domain.Order{
		contOrder("s1", "g1", -100, 20),
		contOrder("s2", "g2", -50, 30),
		contOrder("d1", "load", 120, 40),
	}
	trades := []Trade{
		{BuyOrderID: "d1", SellOrderID: "s1", BuyerID: "load", SellerID: "g1", Volume: 100, Price: 20, ExecutedAt: now},
		{BuyOrderID: "d1", SellOrderID: "s2", BuyerID: "load", SellerID: "g2", Volume: 20, Price: 30, ExecutedAt: now},
	}
	res := Settle(testProduct(), orders, trades, 0.1, 0.1)

	if res.AcceptedVolume != 120 {
		t.Fatalf("accepted volume = %v, want 120", res.AcceptedVolume)
	}
	if len(res.Accepted) != 3 {
		t.Fatalf("accepted orders = %d, want 3", len(res.Accepted))
	}
	byID := map[string]domain.Order{}
	for _, o := range res.Accepted {
		byID[o.ID] = o
	}
	if byID["s1"].AcceptedVolume != -100 || byID["s1"].AcceptedPrice != 20 {
		t.Errorf("s1 fill = %v @ %v, want -100 @ 20", byID["s1"].AcceptedVolume, byID["s1"].AcceptedPrice)
	}
	if byID["s2"].AcceptedVolume != -20 || byID["s2"].AcceptedPrice != 30 {
		t.Errorf("s2 fill = %v @ %v, want -20 @ 30", byID["s2"].AcceptedVolume, byID["s2"].AcceptedPrice)
	}
	// The buyer's settlement price is the volume-weighted average of its fills.
	wantAvg := domain.RoundToTick((100*20+20*30)/120.0, 0.1)
	if byID["d1"].AcceptedVolume != 120 || byID["d1"].AcceptedPrice != wantAvg {
		t.Errorf("d1 fill = %v @ %v, want 120 @ %v", byID["d1"].AcceptedVolume, byID["d1"].AcceptedPrice, wantAvg)
	}
	if res.ClearingPrice == nil || *res.ClearingPrice != wantAvg {
		t.Errorf("clearing price = %v, want demand-weighted %v", res.ClearingPrice, wantAvg)
	}
}

func TestSettleNoTrades(t *testing.T) {
	orders := []domain.Order{contOrder("s1", "g1", -100, 20)}
	res := Settle(testProduct(), orders, nil, 0.1, 0.1)
	if res.AcceptedVolume != 0 || res.ClearingPrice != nil || len(res.Accepted) != 0 {
		t.Fatalf("empty round settled to volume %v, price %v, %d accepted",
			res.AcceptedVolume, res.ClearingPrice, len(res.Accepted))
	}
}
