// Package recurrence wraps calendar recurrence rules into lazy sequences of
// market opening instants.
package recurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/wattsim/wattsim/internal/domain"
)

// Evaluator produces the ordered opening instants of one market. It is
// restartable: every call to Iterator starts the sequence over from the
// rule's start bound.
type Evaluator struct {
	rule  *rrule.RRule
	first time.Time
}

// weekdayMap translates time.Weekday into the rrule weekday constants.
var weekdayMap = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

func frequency(name string) (rrule.Frequency, error) {
	switch name {
	case "daily":
		return rrule.DAILY, nil
	case "hourly":
		return rrule.HOURLY, nil
	case "minutely":
		return rrule.MINUTELY, nil
	case "weekly":
		return rrule.WEEKLY, nil
	case "monthly":
		return rrule.MONTHLY, nil
	default:
		return 0, fmt.Errorf("unknown frequency %q", name)
	}
}

// New builds an Evaluator from a rule description. It returns a wrapped
// domain.ErrInvalidRule when the rule can never produce an occurrence, e.g.
// when the start bound lies after the end bound. Callers must treat that as
// "market never opens", not as a crash.
func New(r domain.RecurrenceRule) (*Evaluator, error) {
	freq, err := frequency(r.Frequency)
	if err != nil {
		return nil, fmt.Errorf("recurrence: %w", err)
	}
	if r.Start.IsZero() {
		return nil, fmt.Errorf("recurrence: start bound is required")
	}
	for _, h := range r.ByHour {
		if h < 0 || h > 23 {
			return nil, fmt.Errorf("recurrence: hour %d out of range", h)
		}
	}

	opt := rrule.ROption{
		Freq:    freq,
		Dtstart: r.Start,
		Byhour:  r.ByHour,
	}
	if r.Interval > 0 {
		opt.Interval = r.Interval
	}
	if !r.Until.IsZero() {
		opt.Until = r.Until
	}
	for _, wd := range r.ByWeekday {
		opt.Byweekday = append(opt.Byweekday, weekdayMap[wd])
	}

	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("recurrence: build rule: %w", err)
	}

	if !r.Until.IsZero() && r.Until.Before(r.Start) {
		return nil, fmt.Errorf("recurrence: until %v before start %v: %w",
			r.Until, r.Start, domain.ErrInvalidRule)
	}
	next := rule.Iterator()
	first, ok := next()
	if !ok {
		return nil, fmt.Errorf("recurrence: %w", domain.ErrInvalidRule)
	}

	return &Evaluator{rule: rule, first: first}, nil
}

// First returns the earliest occurrence of the rule.
func (e *Evaluator) First() time.Time { return e.first }

// Iterator returns a fresh iterator over all occurrences in ascending order.
// The iterator reports false once the sequence is exhausted.
func (e *Evaluator) Iterator() func() (time.Time, bool) {
	return e.rule.Iterator()
}

// Next returns the first occurrence at or after t, or false when the rule has
// no further occurrences.
func (e *Evaluator) Next(t time.Time) (time.Time, bool) {
	occ := e.rule.After(t, true)
	if occ.IsZero() {
		return time.Time{}, false
	}
	return occ, true
}
