package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "pending"
	PayoutApproved  PayoutStatus = "approved"
	PayoutRejected  PayoutStatus = "rejected"
	PayoutProcessed PayoutStatus = "processed"
)

// PayoutRequest is a talent's withdrawal request. A pending request
// reserves its amount against future balance computations, so two requests
// cannot spend the same earnings.
type PayoutRequest struct {
	bun.BaseModel `bun:"table:payout_requests"`

	ID              string       `bun:"id,pk" json:"id"`
	TalentID        string       `bun:"talent_id,notnull" json:"talent_id"`
	Amount          int64        `bun:"amount,notnull" json:"amount"`
	BalanceSnapshot int64        `bun:"balance_snapshot,notnull" json:"balance_snapshot"`
	Method          string       `bun:"method,notnull" json:"method"`
	Destination     string       `bun:"destination,notnull" json:"destination"`
	Status          PayoutStatus `bun:"status,notnull" json:"status"`
	AdminNotes      string       `bun:"admin_notes,nullzero" json:"admin_notes,omitempty"`
	CreatedAt       time.Time    `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	DecidedAt       time.Time    `bun:"decided_at,nullzero" json:"decided_at,omitempty"`
	ProcessedAt     time.Time    `bun:"processed_at,nullzero" json:"processed_at,omitempty"`
}

// PayoutDecision is the admin review payload.
type PayoutDecision struct {
	Decision string `json:"decision"` // "approved" or "rejected"
	Notes    string `json:"notes,omitempty"`
}
