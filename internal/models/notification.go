package models

import (
	"time"

	"github.com/uptrace/bun"
)

type NotificationKind string

const (
	NotifyBookingCreated   NotificationKind = "booking_created"
	NotifyBookingConfirmed NotificationKind = "booking_confirmed"
	NotifyPaymentConfirmed NotificationKind = "payment_confirmed"
	NotifyReviewRequest    NotificationKind = "review_request"
	NotifyPayoutApproved   NotificationKind = "payout_approved"
	NotifyRefundRequested  NotificationKind = "refund_requested"
)

// OutboxMessage records intent to notify. Rows are inserted in the same
// database transaction as the state change they announce and dispatched to
// Kafka asynchronously, so a delivery failure can never be mistaken for a
// settlement failure.
type OutboxMessage struct {
	bun.BaseModel `bun:"table:notification_outbox"`

	ID        string           `bun:"id,pk" json:"id"`
	Kind      NotificationKind `bun:"kind,notnull" json:"kind"`
	Recipient string           `bun:"recipient,notnull" json:"recipient"`
	Payload   []byte           `bun:"payload,notnull" json:"payload"`
	Sent      bool             `bun:"sent,nullzero" json:"sent"`
	CreatedAt time.Time        `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	SentAt    time.Time        `bun:"sent_at,nullzero" json:"sent_at,omitempty"`
}

// Notification is the wire shape published on the notifications topic.
type Notification struct {
	Kind      NotificationKind       `json:"kind"`
	Recipient string                 `json:"recipient"`
	Template  map[string]interface{} `json:"template_data"`
	Timestamp time.Time              `json:"timestamp"`
}
