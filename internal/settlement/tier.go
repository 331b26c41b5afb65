package settlement

// Tier is a talent's commission classification. It is derived from the
// talent's cumulative stats and only persisted as a cache.
type Tier string

const (
	TierEntry Tier = "entry"
	TierElite Tier = "elite"
	TierTop   Tier = "top"
)

// CommissionRate returns the platform commission applied to a talent's base
// price. Unknown tiers fall back to the entry rate.
func CommissionRate(tier Tier) float64 {
	switch tier {
	case TierTop:
		return 0.15
	case TierElite:
		return 0.18
	default:
		return 0.20
	}
}

// Rank orders tiers for upgrade comparisons: entry < elite < top.
func Rank(tier Tier) int {
	switch tier {
	case TierTop:
		return 2
	case TierElite:
		return 1
	default:
		return 0
	}
}

// ClassifyTier evaluates the thresholds highest tier first against the
// talent's current cumulative stats. It is total: any input yields a tier.
func ClassifyTier(completedOrders int, averageRating float64, accountAgeMonths int) Tier {
	if completedOrders >= 100 && averageRating >= 4.5 && accountAgeMonths >= 6 {
		return TierTop
	}
	if completedOrders >= 30 && averageRating >= 4.5 {
		return TierElite
	}
	return TierEntry
}
