package domain

import "time"

// HourRange restricts delivery to a daily hour window. Wrap-around ranges are
// allowed: From=20, To=8 covers the overnight hours 20..23 and 0..7.
type HourRange struct {
	From int
	To   int
}

// Contains reports whether the given hour of day falls inside the range. The
// From bound is inclusive, the To bound exclusive.
func (r HourRange) Contains(hour int) bool {
	if r.From <= r.To {
		return hour >= r.From && hour < r.To
	}
	// wrap-around, e.g. (20, 8) for off-peak
	return hour >= r.From || hour < r.To
}

// Product is one concrete tradable delivery window, generated per round from a
// ProductTemplate. Start is always the earlier bound; for backward-looking
// after-market templates the direction is carried by the negative Duration,
// not by the ordering of Start and End.
type Product struct {
	Start     time.Time     `json:"start"`
	End       time.Time     `json:"end"`
	Duration  time.Duration `json:"duration"`
	OnlyHours *HourRange    `json:"only_hours,omitempty"`
	// Eligible carries the generating template's narrower eligibility rule,
	// if any, so the validator can apply it per product.
	Eligible Eligibility `json:"-"`
}

// Key returns a stable identifier for the product within its round.
func (p Product) Key() string {
	return p.Start.UTC().Format(time.RFC3339) + "/" + p.End.UTC().Format(time.RFC3339)
}

// CountSpec resolves how many delivery windows of a template are tradable in
// a round: either a fixed integer or a function of the opening time. Markets
// whose tradable horizon depends on wall-clock (e.g. "before 15:00 only the
// rest of today") use the dynamic form.
type CountSpec struct {
	Fixed int
	Func  func(current time.Time) int
}

// Resolve returns the product count for the given opening time.
func (c CountSpec) Resolve(current time.Time) int {
	if c.Func != nil {
		return c.Func(current)
	}
	return c.Fixed
}

// OffsetSpec resolves the delay from market opening to first delivery: a
// fixed span or a function of the opening time.
type OffsetSpec struct {
	Fixed time.Duration
	Func  func(current time.Time) time.Duration
}

// Resolve returns the first-delivery offset for the given opening time.
func (o OffsetSpec) Resolve(current time.Time) time.Duration {
	if o.Func != nil {
		return o.Func(current)
	}
	return o.Fixed
}

// ProductTemplate declares one family of tradable delivery windows offered by
// a market. Immutable once constructed.
type ProductTemplate struct {
	// Duration of a single delivery window. Negative durations describe
	// after-market products that run backward from the first delivery.
	Duration time.Duration
	// Count of consecutive windows tradable per round.
	Count CountSpec
	// FirstDeliveryAfterStart is the offset from the opening instant to the
	// start of the first delivery window.
	FirstDeliveryAfterStart OffsetSpec
	// OnlyHours optionally restricts orders to a daily hour window.
	OnlyHours *HourRange
	// Eligible optionally narrows the market-wide eligibility for this
	// template only. Nil means the market rule alone applies.
	Eligible Eligibility
}
