package models

import (
	"time"

	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingPending    BookingStatus = "pending"
	BookingConfirmed  BookingStatus = "confirmed"
	BookingInProgress BookingStatus = "in_progress"
	BookingCompleted  BookingStatus = "completed"
	BookingCancelled  BookingStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

type ServiceType string

const (
	ServiceChat          ServiceType = "chat"
	ServiceVoiceCall     ServiceType = "voice_call"
	ServiceVideoCall     ServiceType = "video_call"
	ServiceOfflineDate   ServiceType = "offline_date"
	ServiceParty         ServiceType = "party_companion"
	ServiceCompanionship ServiceType = "extended_companionship"
)

// NextStatus returns the forward transition from a booking status, or ""
// when the status is terminal.
func NextStatus(s BookingStatus) BookingStatus {
	switch s {
	case BookingPending:
		return BookingConfirmed
	case BookingConfirmed:
		return BookingInProgress
	case BookingInProgress:
		return BookingCompleted
	default:
		return ""
	}
}

// Booking is one service request between a customer and a talent. The
// breakdown columns are snapshotted at creation and never recomputed, so a
// later tier change cannot alter what the talent is owed for booked work.
type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID               string        `bun:"id,pk" json:"id"`
	CustomerID       string        `bun:"customer_id,notnull" json:"customer_id"`
	TalentID         string        `bun:"talent_id,notnull" json:"talent_id"`
	ServiceType      ServiceType   `bun:"service_type,notnull" json:"service_type"`
	BasePrice        int64         `bun:"base_price,notnull" json:"base_price"`
	AppFee           int64         `bun:"app_fee,notnull" json:"app_fee"`
	CommissionRate   float64       `bun:"commission_rate,notnull" json:"commission_rate"`
	CommissionAmount int64         `bun:"commission_amount,notnull" json:"commission_amount"`
	CustomerCharge   int64         `bun:"customer_charge,notnull" json:"customer_charge"`
	TalentEarnings   int64         `bun:"talent_earnings,notnull" json:"talent_earnings"`
	PlatformRevenue  int64         `bun:"platform_revenue,notnull" json:"platform_revenue"`
	Status           BookingStatus `bun:"status,notnull" json:"status"`
	PaymentStatus    PaymentStatus `bun:"payment_status,notnull" json:"payment_status"`
	ReviewRequested  bool          `bun:"review_requested,nullzero" json:"review_requested"`
	CreatedAt        time.Time     `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt        time.Time     `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// BookingRequest is the inbound payload for creating a booking.
type BookingRequest struct {
	CustomerID    string      `json:"customer_id"`
	TalentID      string      `json:"talent_id"`
	ServiceType   ServiceType `json:"service_type"`
	BasePrice     int64       `json:"base_price"`
	CustomerPhone string      `json:"customer_phone,omitempty"`
}
