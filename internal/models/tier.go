package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TalentTier is the persisted cache of a talent's derived classification.
// The stored stats are the inputs that produced it, kept for audit.
type TalentTier struct {
	bun.BaseModel `bun:"table:talent_tiers"`

	TalentID        string    `bun:"talent_id,pk" json:"talent_id"`
	Tier            string    `bun:"tier,notnull" json:"tier"`
	CompletedOrders int       `bun:"completed_orders,notnull" json:"completed_orders"`
	AverageRating   float64   `bun:"average_rating,notnull" json:"average_rating"`
	ClassifiedAt    time.Time `bun:"classified_at,notnull" json:"classified_at"`
}

// TalentStats are the read-only inputs the profile collaborator exposes.
type TalentStats struct {
	TalentID        string    `json:"talent_id"`
	CompletedOrders int       `json:"completed_orders"`
	AverageRating   float64   `json:"average_rating"`
	AccountCreated  time.Time `json:"account_created_at"`
}

// AccountAgeMonths converts the account creation time into whole months
// relative to now, which is what the classifier thresholds are defined on.
func (s TalentStats) AccountAgeMonths(now time.Time) int {
	if s.AccountCreated.IsZero() || s.AccountCreated.After(now) {
		return 0
	}
	months := int(now.Sub(s.AccountCreated).Hours() / (24 * 30))
	return months
}
