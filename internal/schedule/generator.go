// Package schedule expands declarative product templates into the concrete
// delivery windows tradable in one market round.
package schedule

import (
	"time"

	"github.com/wattsim/wattsim/internal/domain"
)

// Generate derives the tradable products for the round opening at current.
// Products appear in template-declaration order, then index order, one per
// (template, i) for i in 0..count-1. A template whose resolved count is zero
// or negative contributes nothing for this round; that is a valid outcome,
// not an error. Overlapping windows across templates are permitted and are
// not deduplicated.
//
// The result is deterministic: repeated calls with the same inputs return the
// same ordered product list.
func Generate(current time.Time, templates []domain.ProductTemplate) []domain.Product {
	var products []domain.Product
	for _, tpl := range templates {
		count := tpl.Count.Resolve(current)
		if count <= 0 {
			continue
		}
		offset := tpl.FirstDeliveryAfterStart.Resolve(current)
		first := current.Add(offset)
		for i := 0; i < count; i++ {
			start := first.Add(time.Duration(i) * tpl.Duration)
			end := start.Add(tpl.Duration)
			// Backward (after-market) templates walk into the past; the
			// pair is still returned ordered, direction lives in Duration.
			if tpl.Duration < 0 {
				start, end = end, start
			}
			products = append(products, domain.Product{
				Start:     start,
				End:       end,
				Duration:  tpl.Duration,
				OnlyHours: tpl.OnlyHours,
				Eligible:  tpl.Eligible,
			})
		}
	}
	return products
}
