package domain

import "time"

// Order is a single bid for delivery of energy over a product window. Volume
// is signed by convention: negative volume offers supply (sell), positive
// volume requests demand (buy).
type Order struct {
	ID            string
	MarketID      string
	ProductStart  time.Time
	ProductEnd    time.Time
	Volume        float64 // negative = supply, positive = demand
	Price         float64
	OnlyHours     *HourRange
	ParticipantID string
	// Fields carries market-specific metadata required by
	// MarketDef.AdditionalFields (e.g. "link", "node_id").
	Fields      map[string]string
	SubmittedAt time.Time

	// Set by the clearing engine. AcceptedVolume is zero for rejected
	// orders; AcceptedPrice is meaningful only when AcceptedVolume != 0.
	AcceptedVolume float64
	AcceptedPrice  float64
}

// IsSupply reports whether the order offers energy.
func (o Order) IsSupply() bool { return o.Volume < 0 }

// IsDemand reports whether the order requests energy.
func (o Order) IsDemand() bool { return o.Volume > 0 }

// Orderbook is an ordered sequence of orders for one product. Position in the
// book is submission order; continuous-market tie-breaking depends on it.
type Orderbook []Order

// RejectReason enumerates why an order was refused at validation.
type RejectReason string

const (
	RejectPriceOutOfBounds RejectReason = "PriceOutOfBounds"
	RejectVolumeInvalid    RejectReason = "VolumeInvalid"
	RejectHoursNotAllowed  RejectReason = "HoursNotAllowed"
	RejectMissingField     RejectReason = "MissingField"
	RejectNotEligible      RejectReason = "NotEligible"
)

// OrderRejectedError reports a validation failure back to the submitter. It
// is local to one order and never aborts a round.
type OrderRejectedError struct {
	OrderID string
	Reason  RejectReason
	Detail  string
}

func (e *OrderRejectedError) Error() string {
	if e.Detail == "" {
		return "order " + e.OrderID + " rejected: " + string(e.Reason)
	}
	return "order " + e.OrderID + " rejected: " + string(e.Reason) + ": " + e.Detail
}
