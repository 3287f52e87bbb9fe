package delivery

import (
	"math"
	"sort"
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// CalculateCharge resolves the delivery charge for an order subtotal (after
// discount). Policy, in priority order: disabled config is free; the free
// delivery threshold is free; otherwise the tier with the highest qualifying
// floor applies; an order below every floor falls back to the lowest tier so
// a tier table that does not start at 0 still charges something sensible.
func CalculateCharge(cfg *Configuration, orderSubTotal float64) ChargeResult {
	if !cfg.IsActive {
		return ChargeResult{IsFreeDelivery: true, FreeDeliveryReason: "disabled"}
	}

	if cfg.FreeDeliveryThreshold > 0 && orderSubTotal >= cfg.FreeDeliveryThreshold {
		return ChargeResult{IsFreeDelivery: true, FreeDeliveryReason: "threshold"}
	}

	if len(cfg.OrderValueTiers) == 0 {
		return ChargeResult{IsFreeDelivery: true, FreeDeliveryReason: "tier"}
	}

	// Highest qualifying floor wins.
	sorted := make([]OrderValueTier, len(cfg.OrderValueTiers))
	copy(sorted, cfg.OrderValueTiers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MinOrderValue > sorted[j].MinOrderValue
	})

	var applied *OrderValueTier
	for i := range sorted {
		if orderSubTotal >= sorted[i].MinOrderValue {
			applied = &sorted[i]
			break
		}
	}

	if applied == nil {
		// Below every floor: fall back to the lowest tier.
		lowest := sorted[len(sorted)-1]
		applied = &lowest
	}

	if applied.DeliveryCharge == 0 {
		return ChargeResult{
			IsFreeDelivery:     true,
			FreeDeliveryReason: "tier",
			AppliedTier:        applied,
		}
	}

	return ChargeResult{
		DeliveryCharge: round2(applied.DeliveryCharge),
		AppliedTier:    applied,
	}
}
