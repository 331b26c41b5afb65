package booking

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
	"ms-settlement/internal/notify"
	"ms-settlement/internal/settlement"
	"ms-settlement/internal/sse"
	"ms-settlement/internal/utils"

	"github.com/google/uuid"
)

type DBLayer interface {
	CreateBooking(ctx context.Context, booking models.Booking, txn models.Transaction, outbox models.OutboxMessage) error
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	ListBookingsByTalent(ctx context.Context, talentID string) ([]models.Booking, error)
	ListBookingsByCustomer(ctx context.Context, customerID string) ([]models.Booking, error)
	TransitionStatus(ctx context.Context, id string, from, to models.BookingStatus, payment models.PaymentStatus) (bool, error)
	SettlePayment(ctx context.Context, id string, to models.PaymentStatus, outbox *models.OutboxMessage) (bool, error)
	MarkReviewRequested(ctx context.Context, id string, outbox models.OutboxMessage) (bool, error)
	CancelPaidBooking(ctx context.Context, id string, from models.BookingStatus, refund models.Transaction, outbox models.OutboxMessage) (bool, error)
	ListExpiredPending(ctx context.Context, before time.Time) ([]models.Booking, error)
	InsertOutbox(ctx context.Context, msg models.OutboxMessage) error
}

// TierSource answers the talent's current tier at booking time. The result
// is snapshotted onto the booking.
type TierSource interface {
	CurrentTier(ctx context.Context, talentID string) (settlement.Tier, error)
}

// ChargeRequester asks the gateway collaborator to collect the customer
// charge. Failures here are retried out-of-band and never fail the booking.
type ChargeRequester interface {
	CreateCharge(ctx context.Context, req models.ChargeRequest) (*models.ChargeResult, error)
}

// OrderCounter records a completed order against the talent's cached
// classifier inputs, keeping them fresh between reclassification sweeps.
type OrderCounter interface {
	RecordCompletedOrder(ctx context.Context, talentID string) error
}

type Service struct {
	DB      DBLayer
	Tiers   TierSource
	Gateway ChargeRequester
	Voucher *notify.VoucherGenerator
	Orders  OrderCounter
	Log     *logger.Logger

	// Events streams booking updates to connected SSE clients. Optional;
	// a nil emitter drops updates.
	Events *sse.BookingEventEmitter

	PaymentWindow time.Duration
}

func NewService(db DBLayer, tiers TierSource, gateway ChargeRequester, voucher *notify.VoucherGenerator, orders OrderCounter, log *logger.Logger, paymentWindow time.Duration) *Service {
	return &Service{
		DB:            db,
		Tiers:         tiers,
		Gateway:       gateway,
		Voucher:       voucher,
		Orders:        orders,
		Log:           log,
		PaymentWindow: paymentWindow,
	}
}

// CreateBooking prices the request at the talent's current tier, persists
// the booking with its pending transaction, and asks the gateway to raise
// the charge.
func (s *Service) CreateBooking(ctx context.Context, req models.BookingRequest) (*models.Booking, error) {
	tier, err := s.Tiers.CurrentTier(ctx, req.TalentID)
	if err != nil {
		s.Log.Warn("BOOKING", fmt.Sprintf("tier lookup failed for %s, defaulting to entry: %v", req.TalentID, err))
		tier = settlement.TierEntry
	}

	breakdown, err := settlement.ComputeBreakdown(req.BasePrice, tier)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	booking := models.Booking{
		ID:               uuid.NewString(),
		CustomerID:       req.CustomerID,
		TalentID:         req.TalentID,
		ServiceType:      req.ServiceType,
		BasePrice:        breakdown.BasePrice,
		AppFee:           breakdown.AppFee,
		CommissionRate:   breakdown.CommissionRate,
		CommissionAmount: breakdown.CommissionAmount,
		CustomerCharge:   breakdown.CustomerCharge,
		TalentEarnings:   breakdown.TalentEarnings,
		PlatformRevenue:  breakdown.PlatformRevenue,
		Status:           models.BookingPending,
		PaymentStatus:    models.PaymentPending,
		CreatedAt:        now,
	}

	txn := models.Transaction{
		ID:             utils.GenerateTransactionID(),
		BookingID:      booking.ID,
		TalentID:       booking.TalentID,
		Amount:         breakdown.CustomerCharge,
		TalentEarnings: breakdown.TalentEarnings,
		PlatformFee:    breakdown.PlatformRevenue,
		CommissionRate: breakdown.CommissionRate,
		Status:         models.TxPending,
		CreatedAt:      now,
	}

	outbox := notify.NewMessage(models.NotifyBookingCreated, req.CustomerID, map[string]interface{}{
		"booking_id":      booking.ID,
		"talent_id":       booking.TalentID,
		"service_type":    booking.ServiceType,
		"customer_charge": booking.CustomerCharge,
	})

	if err := s.DB.CreateBooking(ctx, booking, txn, outbox); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}
	s.Log.LogBooking("CREATE", booking.ID, fmt.Sprintf("tier=%s charge=%d", tier, booking.CustomerCharge))
	s.Events.EmitBookingUpdate(booking)

	// Charge creation is a side effect: if the gateway is down the booking
	// stays pending and the customer retries payment.
	if s.Gateway != nil {
		_, err := s.Gateway.CreateCharge(ctx, models.ChargeRequest{
			BookingID: booking.ID,
			Amount:    booking.CustomerCharge,
			Customer: models.CustomerDetails{
				CustomerID: booking.CustomerID,
				Phone:      req.CustomerPhone,
			},
		})
		if err != nil {
			s.Log.Error("BOOKING", fmt.Sprintf("charge request failed for %s: %v", booking.ID, err))
		}
	}

	return &booking, nil
}

func (s *Service) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return s.DB.GetBookingByID(ctx, id)
}

func (s *Service) ListByTalent(ctx context.Context, talentID string) ([]models.Booking, error) {
	return s.DB.ListBookingsByTalent(ctx, talentID)
}

func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]models.Booking, error) {
	return s.DB.ListBookingsByCustomer(ctx, customerID)
}

// HandlePaymentEvent applies a gateway settlement to the booking's payment
// status. Safe under redelivery: once the status left pending the event is
// acknowledged without effect.
func (s *Service) HandlePaymentEvent(ctx context.Context, event models.PaymentEvent) error {
	if event.Status != models.PaymentPaid && event.Status != models.PaymentFailed {
		return nil
	}

	booking, err := s.DB.GetBookingByID(ctx, event.BookingID)
	if err != nil {
		return fmt.Errorf("booking %s not found for payment event: %w", event.BookingID, err)
	}

	var outbox *models.OutboxMessage
	if event.Status == models.PaymentPaid {
		msg := notify.NewMessage(models.NotifyPaymentConfirmed, booking.CustomerID, map[string]interface{}{
			"booking_id": booking.ID,
			"amount":     booking.CustomerCharge,
		})
		outbox = &msg
	}

	settled, err := s.DB.SettlePayment(ctx, event.BookingID, event.Status, outbox)
	if err != nil {
		return fmt.Errorf("failed to settle payment for %s: %w", event.BookingID, err)
	}
	if !settled {
		s.Log.LogBooking("PAYMENT", event.BookingID, "payment already settled, event ignored")
		return nil
	}

	s.Log.LogBooking("PAYMENT", event.BookingID, fmt.Sprintf("payment_status=%s", event.Status))
	booking.PaymentStatus = event.Status
	s.Events.EmitBookingUpdate(*booking)
	return nil
}

// Advance moves the booking one step forward. Progression past pending
// requires a settled payment; completing the booking requests a review
// exactly once.
func (s *Service) Advance(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := s.DB.GetBookingByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("booking %s not found: %w", id, err)
	}

	next := models.NextStatus(booking.Status)
	if next == "" {
		return nil, &settlement.InvalidTransitionError{
			Entity: "booking",
			From:   string(booking.Status),
			To:     "forward",
		}
	}

	if booking.PaymentStatus != models.PaymentPaid {
		return nil, settlement.ErrPaymentNotSettled
	}

	ok, err := s.DB.TransitionStatus(ctx, id, booking.Status, next, models.PaymentPaid)
	if err != nil {
		return nil, fmt.Errorf("failed to advance booking %s: %w", id, err)
	}
	if !ok {
		// A concurrent actor moved the booking first.
		current, gerr := s.DB.GetBookingByID(ctx, id)
		from := string(booking.Status)
		if gerr == nil {
			from = string(current.Status)
		}
		return nil, &settlement.InvalidTransitionError{Entity: "booking", From: from, To: string(next)}
	}
	s.Log.LogBooking("ADVANCE", id, fmt.Sprintf("%s -> %s", booking.Status, next))

	switch next {
	case models.BookingConfirmed:
		s.notifyConfirmed(ctx, booking)
	case models.BookingCompleted:
		s.requestReview(ctx, booking)
	}

	booking.Status = next
	s.Events.EmitBookingUpdate(*booking)
	return booking, nil
}

func (s *Service) notifyConfirmed(ctx context.Context, booking *models.Booking) {
	template := map[string]interface{}{
		"booking_id":   booking.ID,
		"talent_id":    booking.TalentID,
		"service_type": booking.ServiceType,
	}
	if s.Voucher != nil {
		png, err := s.Voucher.GenerateQR(notify.Voucher{
			BookingID:  booking.ID,
			CustomerID: booking.CustomerID,
			TalentID:   booking.TalentID,
			IssuedAt:   time.Now(),
		})
		if err != nil {
			s.Log.Error("BOOKING", fmt.Sprintf("voucher generation failed for %s: %v", booking.ID, err))
		} else {
			template["voucher_qr"] = base64.StdEncoding.EncodeToString(png)
		}
	}

	msg := notify.NewMessage(models.NotifyBookingConfirmed, booking.CustomerID, template)
	if err := s.DB.InsertOutbox(ctx, msg); err != nil {
		s.Log.Error("BOOKING", fmt.Sprintf("failed to enqueue confirmation for %s: %v", booking.ID, err))
	}
}

// requestReview sets the one-shot review flag; duplicate completions are
// absorbed by the flag's compare-and-swap.
func (s *Service) requestReview(ctx context.Context, booking *models.Booking) {
	msg := notify.NewMessage(models.NotifyReviewRequest, booking.CustomerID, map[string]interface{}{
		"booking_id": booking.ID,
		"talent_id":  booking.TalentID,
	})
	first, err := s.DB.MarkReviewRequested(ctx, booking.ID, msg)
	if err != nil {
		s.Log.Error("BOOKING", fmt.Sprintf("failed to mark review requested for %s: %v", booking.ID, err))
		return
	}
	if first {
		s.Log.LogBooking("REVIEW", booking.ID, "review requested")
		if s.Orders != nil {
			if err := s.Orders.RecordCompletedOrder(ctx, booking.TalentID); err != nil {
				s.Log.Warn("BOOKING", fmt.Sprintf("failed to record completed order for %s: %v", booking.TalentID, err))
			}
		}
	}
}

// Cancel aborts a non-terminal booking. Cancelling an already cancelled
// booking is a no-op; a paid booking additionally gets a compensating
// refund transaction for the refund collaborator to process. The swap
// guards both status and payment status: when a payment callback settles
// the booking between the read and the update, the miss forces a re-read
// and the cancel goes down the refund path instead.
func (s *Service) Cancel(ctx context.Context, id string) error {
	for attempt := 0; attempt < 3; attempt++ {
		booking, err := s.DB.GetBookingByID(ctx, id)
		if err != nil {
			return fmt.Errorf("booking %s not found: %w", id, err)
		}

		switch booking.Status {
		case models.BookingCancelled:
			return nil
		case models.BookingCompleted:
			return &settlement.InvalidTransitionError{
				Entity: "booking",
				From:   string(models.BookingCompleted),
				To:     string(models.BookingCancelled),
			}
		}

		var ok bool
		if booking.PaymentStatus == models.PaymentPaid {
			refund := models.Transaction{
				ID:             utils.GenerateTransactionID(),
				BookingID:      booking.ID,
				TalentID:       booking.TalentID,
				Amount:         -booking.CustomerCharge,
				TalentEarnings: -booking.TalentEarnings,
				PlatformFee:    -booking.PlatformRevenue,
				CommissionRate: booking.CommissionRate,
				Status:         models.TxRefundPending,
				CreatedAt:      time.Now(),
			}
			outbox := notify.NewMessage(models.NotifyRefundRequested, booking.CustomerID, map[string]interface{}{
				"booking_id": booking.ID,
				"amount":     booking.CustomerCharge,
			})
			ok, err = s.DB.CancelPaidBooking(ctx, id, booking.Status, refund, outbox)
			if err != nil {
				return fmt.Errorf("failed to cancel booking %s: %w", id, err)
			}
			if ok {
				s.Log.LogBooking("CANCEL", id, "cancelled with refund pending")
			}
		} else {
			ok, err = s.DB.TransitionStatus(ctx, id, booking.Status, models.BookingCancelled, booking.PaymentStatus)
			if err != nil {
				return fmt.Errorf("failed to cancel booking %s: %w", id, err)
			}
			if ok {
				s.Log.LogBooking("CANCEL", id, "cancelled")
			}
		}
		if ok {
			booking.Status = models.BookingCancelled
			s.Events.EmitBookingUpdate(*booking)
			return nil
		}
		// Swap missed: another actor moved the booking or its payment
		// settled; loop back onto the fresh state.
	}
	return s.cancelRaced(ctx, id)
}

// cancelRaced resolves a persistent compare-and-swap miss during Cancel: if
// another actor already cancelled, that is the outcome we wanted.
func (s *Service) cancelRaced(ctx context.Context, id string) error {
	current, err := s.DB.GetBookingByID(ctx, id)
	if err != nil {
		return fmt.Errorf("booking %s not found: %w", id, err)
	}
	if current.Status == models.BookingCancelled {
		return nil
	}
	return &settlement.InvalidTransitionError{
		Entity: "booking",
		From:   string(current.Status),
		To:     string(models.BookingCancelled),
	}
}

// SweepExpiredPending cancels bookings whose payment never arrived inside
// the window. Idempotent: an already cancelled booking is skipped by the
// status filter or absorbed by Cancel's no-op path.
func (s *Service) SweepExpiredPending(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.PaymentWindow)
	expired, err := s.DB.ListExpiredPending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expired booking scan failed: %w", err)
	}

	cancelled := 0
	for _, b := range expired {
		if err := s.Cancel(ctx, b.ID); err != nil {
			s.Log.Error("SWEEP", fmt.Sprintf("failed to cancel expired booking %s: %v", b.ID, err))
			continue
		}
		cancelled++
	}
	if cancelled > 0 {
		s.Log.Info("SWEEP", fmt.Sprintf("cancelled %d expired bookings", cancelled))
	}
	return cancelled, nil
}
