package pricing

import (
	"math"

	"smartpos/engine/internal/domain"
)

// Compute derives the full breakdown from a cart subtotal. The discount is
// floored to whole cents and applied before tax, tax is rounded half-up on
// the discounted base, and the total is exactly base plus tax so the three
// figures always reconcile.
func Compute(subtotalCents int64, rates domain.PricingRates) domain.PricingBreakdown {
	if subtotalCents < 0 {
		subtotalCents = 0
	}

	discount := int64(math.Floor(float64(subtotalCents) * clampPercent(rates.DiscountPercent) / 100))
	if discount > subtotalCents {
		discount = subtotalCents
	}

	taxableBase := subtotalCents - discount
	tax := int64(math.Round(float64(taxableBase) * clampPercent(rates.TaxRatePercent) / 100))

	return domain.PricingBreakdown{
		SubtotalCents: subtotalCents,
		DiscountCents: discount,
		TaxCents:      tax,
		TotalCents:    taxableBase + tax,
	}
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
