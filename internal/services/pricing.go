package services

import (
	"math"
	"strings"

	types "github.com/thesisdesk/thesisdesk-backend/internal/domain"
)

type PricingTier struct {
	ID    string
	Label string
	// Price in major currency units.
	Price float64
	Mode  types.ProjectMode
}

// Tier ids prefixed "concierge_" belong to the assisted product family;
// everything else is DIY. Mode is derived from the id, never stored.
var pricingTiers = []PricingTier{
	{ID: "diy_standard", Label: "DIY Standard", Price: 15000},
	{ID: "diy_extended", Label: "DIY Extended", Price: 25000},
	{ID: "concierge_standard", Label: "Concierge Standard", Price: 45000},
	{ID: "concierge_premium", Label: "Concierge Premium", Price: 75000},
}

// ResolveTier matches a paid amount (major units) against the tier
// table: exact price first, then the nearest tier within 10% of its
// price. Promotions and FX rounding make near-misses common.
func ResolveTier(amount float64) (*PricingTier, bool) {
	for i := range pricingTiers {
		if pricingTiers[i].Price == amount {
			return withMode(pricingTiers[i]), true
		}
	}

	var best *PricingTier
	bestDiff := math.MaxFloat64
	for i := range pricingTiers {
		diff := math.Abs(pricingTiers[i].Price - amount)
		if diff < bestDiff {
			bestDiff = diff
			best = &pricingTiers[i]
		}
	}
	if best != nil && bestDiff <= best.Price*0.10 {
		return withMode(*best), true
	}
	return nil, false
}

func withMode(tier PricingTier) *PricingTier {
	tier.Mode = ModeForTier(tier.ID)
	return &tier
}

func ModeForTier(tierID string) types.ProjectMode {
	if strings.HasPrefix(tierID, "concierge_") {
		return types.ModeConcierge
	}
	return types.ModeDIY
}
