package settlement

import "math"

// AppFeeRate is the fixed surcharge charged to the customer on top of the
// base price, independent of the talent's tier.
const AppFeeRate = 0.10

// Breakdown is the priced result of one booking. All amounts are whole
// currency units.
type Breakdown struct {
	BasePrice        int64   `json:"base_price"`
	AppFee           int64   `json:"app_fee"`
	CommissionRate   float64 `json:"commission_rate"`
	CommissionAmount int64   `json:"commission_amount"`
	CustomerCharge   int64   `json:"customer_charge"`
	TalentEarnings   int64   `json:"talent_earnings"`
	PlatformRevenue  int64   `json:"platform_revenue"`
}

// ComputeBreakdown prices a booking at the given tier's commission rate.
// The app fee and commission are each rounded to the nearest whole unit;
// platform revenue is derived as customerCharge - talentEarnings so the
// amounts always reconcile and any rounding remainder lands on the
// platform's side, never the talent's.
func ComputeBreakdown(basePrice int64, tier Tier) (*Breakdown, error) {
	if basePrice <= 0 {
		return nil, ErrInvalidAmount
	}

	rate := CommissionRate(tier)
	appFee := roundAmount(float64(basePrice) * AppFeeRate)
	commission := roundAmount(float64(basePrice) * rate)

	b := &Breakdown{
		BasePrice:        basePrice,
		AppFee:           appFee,
		CommissionRate:   rate,
		CommissionAmount: commission,
		CustomerCharge:   basePrice + appFee,
		TalentEarnings:   basePrice - commission,
	}
	b.PlatformRevenue = b.CustomerCharge - b.TalentEarnings
	return b, nil
}

func roundAmount(v float64) int64 {
	return int64(math.Round(v))
}
