package market

import (
	"fmt"
	"math"

	"github.com/wattsim/wattsim/internal/domain"
)

// Validate checks a submitted order against the market's constraints and the
// product it targets. Checks run in a fixed order and short-circuit on the
// first failure; a nil return means the order may enter the book.
//
// lastPrice, when non-nil, is the product's previous clearing price and
// activates the market's maximum-gradient bound on top of the static price
// bounds.
func Validate(o domain.Order, def domain.MarketDef, product domain.Product, lastPrice *float64) *domain.OrderRejectedError {
	// 1. Price bounds (static, then round-over-round gradient).
	if o.Price < def.MinimumBid || o.Price > def.MaximumBid {
		return &domain.OrderRejectedError{
			OrderID: o.ID,
			Reason:  domain.RejectPriceOutOfBounds,
			Detail:  fmt.Sprintf("price %.4f outside [%.4f, %.4f]", o.Price, def.MinimumBid, def.MaximumBid),
		}
	}
	if def.MaximumGradient > 0 && lastPrice != nil {
		bound := def.MaximumGradient * math.Max(math.Abs(*lastPrice), def.PriceTick)
		if math.Abs(o.Price-*lastPrice) > bound+1e-9 {
			return &domain.OrderRejectedError{
				OrderID: o.ID,
				Reason:  domain.RejectPriceOutOfBounds,
				Detail:  fmt.Sprintf("price %.4f exceeds gradient %.4f from last clearing price %.4f", o.Price, def.MaximumGradient, *lastPrice),
			}
		}
	}

	// 2. Volume: non-zero tick multiple within the market's volume cap.
	vol := math.Abs(o.Volume)
	if vol == 0 || !domain.IsTickMultiple(vol, def.AmountTick) {
		return &domain.OrderRejectedError{
			OrderID: o.ID,
			Reason:  domain.RejectVolumeInvalid,
			Detail:  fmt.Sprintf("volume %.4f is not a positive multiple of %.4f", o.Volume, def.AmountTick),
		}
	}
	if def.MaximumVolume > 0 && vol > def.MaximumVolume {
		return &domain.OrderRejectedError{
			OrderID: o.ID,
			Reason:  domain.RejectVolumeInvalid,
			Detail:  fmt.Sprintf("volume %.4f above maximum %.4f", vol, def.MaximumVolume),
		}
	}

	// 3. Allowed hours of the product, wrap-around ranges included.
	if product.OnlyHours != nil && !product.OnlyHours.Contains(o.ProductStart.Hour()) {
		return &domain.OrderRejectedError{
			OrderID: o.ID,
			Reason:  domain.RejectHoursNotAllowed,
			Detail:  fmt.Sprintf("delivery hour %d outside allowed window (%d, %d)", o.ProductStart.Hour(), product.OnlyHours.From, product.OnlyHours.To),
		}
	}

	// 4. Market-required metadata fields.
	for _, field := range def.AdditionalFields {
		if _, ok := o.Fields[field]; !ok {
			return &domain.OrderRejectedError{
				OrderID: o.ID,
				Reason:  domain.RejectMissingField,
				Detail:  fmt.Sprintf("required field %q missing", field),
			}
		}
	}

	// 5. Eligibility: the market-wide rule, then the template's narrower one.
	if def.Eligible != nil && !def.Eligible.IsEligible(o.ParticipantID, def.Name) {
		return &domain.OrderRejectedError{OrderID: o.ID, Reason: domain.RejectNotEligible}
	}
	if product.Eligible != nil && !product.Eligible.IsEligible(o.ParticipantID, def.Name) {
		return &domain.OrderRejectedError{OrderID: o.ID, Reason: domain.RejectNotEligible}
	}

	return nil
}
