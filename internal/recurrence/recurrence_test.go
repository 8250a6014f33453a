package recurrence

import (
	"errors"
	"testing"
	"time"

	"github.com/wattsim/wattsim/internal/domain"
)

func TestNewDailyByHour(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	eval, err := New(domain.RecurrenceRule{
		Frequency: "daily",
		ByHour:    []int{12},
		Start:     start,
		Until:     start.AddDate(0, 0, 3),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	want := []time.Time{
		time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 3, 12, 0, 0, 0, time.UTC),
	}
	if !eval.First().Equal(want[0]) {
		t.Fatalf("First = %v, want %v", eval.First(), want[0])
	}
	next := eval.Iterator()
	for i, w := range want {
		got, ok := next()
		if !ok {
			t.Fatalf("iterator exhausted at occurrence %d", i)
		}
		if !got.Equal(w) {
			t.Fatalf("occurrence %d = %v, want %v", i, got, w)
		}
	}
	if got, ok := next(); ok {
		t.Fatalf("iterator produced %v past until bound", got)
	}
}

func TestNewHourlyInterval(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	eval, err := New(domain.RecurrenceRule{
		Frequency: "hourly",
		Interval:  4,
		Start:     start,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	next := eval.Iterator()
	for i := 0; i < 3; i++ {
		got, ok := next()
		if !ok {
			t.Fatalf("iterator exhausted at occurrence %d", i)
		}
		want := start.Add(time.Duration(i) * 4 * time.Hour)
		if !got.Equal(want) {
			t.Fatalf("occurrence %d = %v, want %v", i, got, want)
		}
	}
}

func TestNewByWeekday(t *testing.T) {
	// 2024-03-01 is a Friday; a Monday-only rule first fires on the 4th.
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	eval, err := New(domain.RecurrenceRule{
		Frequency: "daily",
		ByWeekday: []time.Weekday{time.Monday},
		Start:     start,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	if !eval.First().Equal(want) {
		t.Fatalf("First = %v, want Monday %v", eval.First(), want)
	}
}

func TestNewUntilBeforeStart(t *testing.T) {
	start := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	_, err := New(domain.RecurrenceRule{
		Frequency: "daily",
		Start:     start,
		Until:     start.AddDate(0, 0, -5),
	})
	if !errors.Is(err, domain.ErrInvalidRule) {
		t.Fatalf("err = %v, want ErrInvalidRule", err)
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cases := map[string]domain.RecurrenceRule{
		"unknown frequency": {Frequency: "fortnightly", Start: start},
		"missing start":     {Frequency: "daily"},
		"hour out of range": {Frequency: "daily", ByHour: []int{24}, Start: start},
	}
	for name, rule := range cases {
		if _, err := New(rule); err == nil {
			t.Errorf("%s: New accepted invalid rule", name)
		}
	}
}

func TestNext(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	eval, err := New(domain.RecurrenceRule{
		Frequency: "daily",
		ByHour:    []int{12},
		Start:     start,
		Until:     start.AddDate(0, 0, 2),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Inclusive at an exact occurrence.
	got, ok := eval.Next(start)
	if !ok || !got.Equal(start) {
		t.Fatalf("Next(start) = %v %v, want start itself", got, ok)
	}
	// Strictly between occurrences.
	got, ok = eval.Next(start.Add(time.Minute))
	if !ok || !got.Equal(start.AddDate(0, 0, 1)) {
		t.Fatalf("Next = %v %v, want next day", got, ok)
	}
	// Past the until bound.
	if got, ok = eval.Next(start.AddDate(0, 0, 5)); ok {
		t.Fatalf("Next past until = %v, want exhausted", got)
	}
}
