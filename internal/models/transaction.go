package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TransactionStatus string

const (
	TxPending       TransactionStatus = "pending"
	TxPaid          TransactionStatus = "paid"
	TxFailed        TransactionStatus = "failed"
	TxRefundPending TransactionStatus = "refund_pending"
)

// Transaction is one monetary record. Amount is signed: positive for a
// customer charge, negative for payouts and refunds. Service transactions
// are settled terminally exactly once by the gateway callback; payout
// transactions are inserted already paid.
type Transaction struct {
	bun.BaseModel `bun:"table:transactions"`

	ID             string            `bun:"id,pk" json:"id"`
	BookingID      string            `bun:"booking_id,nullzero" json:"booking_id,omitempty"`
	PayoutID       string            `bun:"payout_id,nullzero" json:"payout_id,omitempty"`
	TalentID       string            `bun:"talent_id,notnull" json:"talent_id"`
	Amount         int64             `bun:"amount,notnull" json:"amount"`
	TalentEarnings int64             `bun:"talent_earnings,notnull" json:"talent_earnings"`
	PlatformFee    int64             `bun:"platform_fee,notnull" json:"platform_fee"`
	CommissionRate float64           `bun:"commission_rate,notnull" json:"commission_rate"`
	Status         TransactionStatus `bun:"status,notnull" json:"status"`
	GatewayRef     string            `bun:"gateway_ref,nullzero" json:"gateway_ref,omitempty"`
	CreatedAt      time.Time         `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	SettledAt      time.Time         `bun:"settled_at,nullzero" json:"settled_at,omitempty"`
}

// PaymentEvent is published by the gateway service when a transaction
// settles and consumed by the booking service to move payment_status.
type PaymentEvent struct {
	TransactionID string        `json:"transaction_id"`
	BookingID     string        `json:"booking_id"`
	TalentID      string        `json:"talent_id"`
	Status        PaymentStatus `json:"status"`
	GatewayRef    string        `json:"gateway_ref,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}
