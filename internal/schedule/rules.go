package schedule

import (
	"fmt"
	"time"

	"github.com/wattsim/wattsim/internal/domain"
)

// CountRuleFactory builds a dynamic count function for a template, given the
// template's duration and first-delivery offset. Named factories let market
// definitions in configuration refer to dynamic horizons without code.
type CountRuleFactory func(duration, offset time.Duration) func(time.Time) int

// countRules holds the built-in dynamic count rules.
var countRules = map[string]CountRuleFactory{
	// trade_until_next_day models intraday continuous trading: before 15:00
	// only the rest of today is tradable; from 15:00 on, tomorrow's windows
	// open up as well. The count is how many product durations fit between
	// the first delivery and that horizon.
	"trade_until_next_day": func(duration, offset time.Duration) func(time.Time) int {
		return func(current time.Time) int {
			var horizon time.Time
			if current.Hour() < 15 {
				horizon = startOfDay(current).AddDate(0, 0, 1)
			} else {
				horizon = startOfDay(current).AddDate(0, 0, 2)
			}
			if duration <= 0 {
				return 0
			}
			window := horizon.Sub(current.Add(offset))
			if window <= 0 {
				return 0
			}
			return int(window / duration)
		}
	},
	// past_delivery_cutoff models the after-market: delivered hours remain
	// tradable until 13:00 on the following day, so before 13:00 yesterday's
	// hours are still open (24 + current hour backward products), after that
	// only today's elapsed hours are.
	"past_delivery_cutoff": func(duration, offset time.Duration) func(time.Time) int {
		return func(current time.Time) int {
			if current.Hour() < 13 {
				return 24 + current.Hour()
			}
			return current.Hour()
		}
	},
}

// CountRule resolves a named dynamic count rule into a CountSpec bound to the
// template's duration and offset. Unknown names are a configuration error.
func CountRule(name string, duration, offset time.Duration) (domain.CountSpec, error) {
	factory, ok := countRules[name]
	if !ok {
		return domain.CountSpec{}, fmt.Errorf("schedule: unknown count rule %q", name)
	}
	return domain.CountSpec{Func: factory(duration, offset)}, nil
}

// CountRuleNames lists the available named rules, for config validation
// messages.
func CountRuleNames() []string {
	names := make([]string, 0, len(countRules))
	for name := range countRules {
		names = append(names, name)
	}
	return names
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
