package domain

import "time"

// Mechanism selects how a market clears its orderbooks.
type Mechanism string

const (
	// MechanismPayAsClear is the uniform-price merit-order auction: all
	// accepted orders settle at one common clearing price.
	MechanismPayAsClear Mechanism = "pay_as_clear"
	// MechanismPayAsBid is the discriminatory auction: the same matching as
	// pay_as_clear, but every accepted order settles at its own bid price.
	MechanismPayAsBid Mechanism = "pay_as_bid"
	// MechanismContinuous matches each incoming order immediately against
	// the best resting counter-order; unmatched remainders rest in the book
	// across rounds.
	MechanismContinuous Mechanism = "continuous_clearing"
)

// Valid reports whether m is a known mechanism.
func (m Mechanism) Valid() bool {
	switch m {
	case MechanismPayAsClear, MechanismPayAsBid, MechanismContinuous:
		return true
	}
	return false
}

// Eligibility decides whether a participant may bid in a market. It is an
// injected capability supplied by the surrounding system, bound into the
// MarketDef at setup time.
type Eligibility interface {
	IsEligible(participantID, marketID string) bool
}

// EligibilityFunc adapts a plain function to the Eligibility interface.
type EligibilityFunc func(participantID, marketID string) bool

// IsEligible implements Eligibility.
func (f EligibilityFunc) IsEligible(participantID, marketID string) bool {
	return f(participantID, marketID)
}

// RecurrenceRule describes when a market opens: a calendar recurrence with
// frequency, interval, optional hour/weekday filters, and start/end bounds.
// Weekday values follow time.Weekday (Sunday = 0).
type RecurrenceRule struct {
	Frequency string // "daily", "hourly", "minutely"
	Interval  int    // every n-th occurrence; 0 means 1
	ByHour    []int
	ByWeekday []time.Weekday
	Start     time.Time
	Until     time.Time // zero = unbounded
}

// MarketDef is the immutable per-market configuration: when the market opens,
// what it trades, how it clears, and which bids it accepts. Constructed once
// at setup by the config layer and passed explicitly; there is no process-wide
// market registry.
type MarketDef struct {
	Name            string
	Opening         RecurrenceRule
	OpeningDuration time.Duration
	Mechanism       Mechanism

	MaximumBid      float64
	MinimumBid      float64
	MaximumVolume   float64
	MaximumGradient float64 // max price change between rounds; 0 = unbounded

	AmountUnit string
	AmountTick float64
	PriceUnit  string
	PriceTick  float64

	// AdditionalFields must be present in Order.Fields of every order
	// submitted to this market (e.g. "link", "node_id").
	AdditionalFields []string

	Products []ProductTemplate

	// Eligible guards participation market-wide. Nil admits everyone.
	Eligible Eligibility
}
