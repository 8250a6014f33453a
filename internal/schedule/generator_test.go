package schedule

import (
	"testing"
	"time"

	"github.com/wattsim/wattsim/internal/domain"
)

func TestGenerateFixedCount(t *testing.T) {
	current := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tpl := domain.ProductTemplate{
		Duration:                time.Hour,
		Count:                   domain.CountSpec{Fixed: 3},
		FirstDeliveryAfterStart: domain.OffsetSpec{Fixed: 12 * time.Hour},
	}
	products := Generate(current, []domain.ProductTemplate{tpl})
	if len(products) != 3 {
		t.Fatalf("products = %d, want 3", len(products))
	}
	first := current.Add(12 * time.Hour)
	for i, p := range products {
		wantStart := first.Add(time.Duration(i) * time.Hour)
		if !p.Start.Equal(wantStart) || !p.End.Equal(wantStart.Add(time.Hour)) {
			t.Errorf("product %d = [%v, %v], want [%v, %v]",
				i, p.Start, p.End, wantStart, wantStart.Add(time.Hour))
		}
	}
}

func TestGenerateNegativeDuration(t *testing.T) {
	// After-market template: windows walk backward from the first delivery,
	// but Start must still be the earlier bound.
	current := time.Date(2024, 3, 2, 14, 0, 0, 0, time.UTC)
	tpl := domain.ProductTemplate{
		Duration:                -time.Hour,
		Count:                   domain.CountSpec{Fixed: 2},
		FirstDeliveryAfterStart: domain.OffsetSpec{Fixed: -14 * time.Hour},
	}
	products := Generate(current, []domain.ProductTemplate{tpl})
	if len(products) != 2 {
		t.Fatalf("products = %d, want 2", len(products))
	}
	midnight := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	want := [][2]time.Time{
		{midnight.Add(-time.Hour), midnight},
		{midnight.Add(-2 * time.Hour), midnight.Add(-time.Hour)},
	}
	for i, p := range products {
		if !p.Start.Equal(want[i][0]) || !p.End.Equal(want[i][1]) {
			t.Errorf("product %d = [%v, %v], want [%v, %v]", i, p.Start, p.End, want[i][0], want[i][1])
		}
		if !p.Start.Before(p.End) {
			t.Errorf("product %d start %v not before end %v", i, p.Start, p.End)
		}
		if p.Duration != -time.Hour {
			t.Errorf("product %d duration = %v, want -1h", i, p.Duration)
		}
	}
}

func TestGenerateZeroCountSkipsTemplate(t *testing.T) {
	current := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	templates := []domain.ProductTemplate{
		{Duration: time.Hour, Count: domain.CountSpec{Fixed: 0}},
		{Duration: time.Hour, Count: domain.CountSpec{Func: func(time.Time) int { return -2 }}},
		{Duration: time.Hour, Count: domain.CountSpec{Fixed: 1}},
	}
	products := Generate(current, templates)
	if len(products) != 1 {
		t.Fatalf("products = %d, want 1 (empty templates skipped)", len(products))
	}
}

func TestGenerateAttachesTemplateMetadata(t *testing.T) {
	current := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	hours := &domain.HourRange{From: 20, To: 8}
	elig := domain.EligibilityFunc(func(string, string) bool { return false })
	tpl := domain.ProductTemplate{
		Duration:  time.Hour,
		Count:     domain.CountSpec{Fixed: 1},
		OnlyHours: hours,
		Eligible:  elig,
	}
	products := Generate(current, []domain.ProductTemplate{tpl})
	if len(products) != 1 {
		t.Fatalf("products = %d, want 1", len(products))
	}
	if products[0].OnlyHours != hours {
		t.Errorf("OnlyHours not carried onto the product")
	}
	if products[0].Eligible == nil {
		t.Errorf("Eligible not carried onto the product")
	}
}

func TestGenerateDeterministic(t *testing.T) {
	current := time.Date(2024, 3, 1, 16, 30, 0, 0, time.UTC)
	count, err := CountRule("trade_until_next_day", time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("CountRule: %v", err)
	}
	templates := []domain.ProductTemplate{
		{Duration: time.Hour, Count: count, FirstDeliveryAfterStart: domain.OffsetSpec{Fixed: time.Hour}},
		{Duration: 4 * time.Hour, Count: domain.CountSpec{Fixed: 6}},
	}
	a := Generate(current, templates)
	b := Generate(current, templates)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Key() != b[i].Key() {
			t.Fatalf("product %d differs: %s vs %s", i, a[i].Key(), b[i].Key())
		}
	}
}

func TestCountRuleTradeUntilNextDay(t *testing.T) {
	count, err := CountRule("trade_until_next_day", time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("CountRule: %v", err)
	}

	// Before 15:00 the horizon is end of today: opening 10:00, first
	// delivery 11:00, 13 hourly windows until midnight.
	morning := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if got := count.Resolve(morning); got != 13 {
		t.Errorf("Resolve(10:00) = %d, want 13", got)
	}

	// From 15:00 on, tomorrow opens up: opening 16:00, first delivery
	// 17:00, horizon end of tomorrow, 31 windows.
	evening := time.Date(2024, 3, 1, 16, 0, 0, 0, time.UTC)
	if got := count.Resolve(evening); got != 31 {
		t.Errorf("Resolve(16:00) = %d, want 31", got)
	}
}

func TestCountRulePastDeliveryCutoff(t *testing.T) {
	count, err := CountRule("past_delivery_cutoff", -time.Hour, -time.Hour)
	if err != nil {
		t.Fatalf("CountRule: %v", err)
	}

	// Before 13:00 yesterday's hours are still open for settlement.
	morning := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	if got := count.Resolve(morning); got != 33 {
		t.Errorf("Resolve(09:00) = %d, want 33", got)
	}
	// From 13:00 only today's elapsed hours remain.
	afternoon := time.Date(2024, 3, 2, 14, 0, 0, 0, time.UTC)
	if got := count.Resolve(afternoon); got != 14 {
		t.Errorf("Resolve(14:00) = %d, want 14", got)
	}
}

func TestCountRuleUnknownName(t *testing.T) {
	if _, err := CountRule("no_such_rule", time.Hour, 0); err == nil {
		t.Fatal("CountRule accepted unknown name")
	}
	if len(CountRuleNames()) == 0 {
		t.Fatal("CountRuleNames returned nothing")
	}
}
