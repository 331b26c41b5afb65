package booking_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-settlement/internal/booking"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
	"ms-settlement/internal/settlement"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockBookingDB struct {
	bookings     map[string]*models.Booking
	transactions []models.Transaction
	outbox       []models.OutboxMessage
	shouldFailOn string
	errorMsg     string

	// afterGet runs once after the next GetBookingByID returns its copy,
	// simulating a concurrent writer landing between a read and a swap.
	afterGet func()
}

func NewMockBookingDB() *MockBookingDB {
	return &MockBookingDB{
		bookings: make(map[string]*models.Booking),
	}
}

func (m *MockBookingDB) CreateBooking(ctx context.Context, b models.Booking, txn models.Transaction, outbox models.OutboxMessage) error {
	if m.shouldFailOn == "CreateBooking" {
		return errors.New(m.errorMsg)
	}
	m.bookings[b.ID] = &b
	m.transactions = append(m.transactions, txn)
	m.outbox = append(m.outbox, outbox)
	return nil
}

func (m *MockBookingDB) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	if m.shouldFailOn == "GetBookingByID" {
		return nil, errors.New(m.errorMsg)
	}
	b, exists := m.bookings[id]
	if !exists {
		return nil, errors.New("booking not found")
	}
	copy := *b
	if m.afterGet != nil {
		hook := m.afterGet
		m.afterGet = nil
		hook()
	}
	return &copy, nil
}

func (m *MockBookingDB) ListBookingsByTalent(ctx context.Context, talentID string) ([]models.Booking, error) {
	var out []models.Booking
	for _, b := range m.bookings {
		if b.TalentID == talentID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *MockBookingDB) ListBookingsByCustomer(ctx context.Context, customerID string) ([]models.Booking, error) {
	var out []models.Booking
	for _, b := range m.bookings {
		if b.CustomerID == customerID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *MockBookingDB) TransitionStatus(ctx context.Context, id string, from, to models.BookingStatus, payment models.PaymentStatus) (bool, error) {
	if m.shouldFailOn == "TransitionStatus" {
		return false, errors.New(m.errorMsg)
	}
	b, exists := m.bookings[id]
	if !exists || b.Status != from || b.PaymentStatus != payment {
		return false, nil
	}
	b.Status = to
	return true, nil
}

func (m *MockBookingDB) SettlePayment(ctx context.Context, id string, to models.PaymentStatus, outbox *models.OutboxMessage) (bool, error) {
	if m.shouldFailOn == "SettlePayment" {
		return false, errors.New(m.errorMsg)
	}
	b, exists := m.bookings[id]
	if !exists || b.PaymentStatus != models.PaymentPending {
		return false, nil
	}
	b.PaymentStatus = to
	if outbox != nil {
		m.outbox = append(m.outbox, *outbox)
	}
	return true, nil
}

func (m *MockBookingDB) MarkReviewRequested(ctx context.Context, id string, outbox models.OutboxMessage) (bool, error) {
	b, exists := m.bookings[id]
	if !exists || b.ReviewRequested {
		return false, nil
	}
	b.ReviewRequested = true
	m.outbox = append(m.outbox, outbox)
	return true, nil
}

func (m *MockBookingDB) CancelPaidBooking(ctx context.Context, id string, from models.BookingStatus, refund models.Transaction, outbox models.OutboxMessage) (bool, error) {
	b, exists := m.bookings[id]
	if !exists || b.Status != from {
		return false, nil
	}
	b.Status = models.BookingCancelled
	m.transactions = append(m.transactions, refund)
	m.outbox = append(m.outbox, outbox)
	return true, nil
}

func (m *MockBookingDB) ListExpiredPending(ctx context.Context, before time.Time) ([]models.Booking, error) {
	if m.shouldFailOn == "ListExpiredPending" {
		return nil, errors.New(m.errorMsg)
	}
	var out []models.Booking
	for _, b := range m.bookings {
		if b.Status == models.BookingPending && b.PaymentStatus == models.PaymentPending && b.CreatedAt.Before(before) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *MockBookingDB) InsertOutbox(ctx context.Context, msg models.OutboxMessage) error {
	m.outbox = append(m.outbox, msg)
	return nil
}

func (m *MockBookingDB) outboxKinds() []models.NotificationKind {
	var kinds []models.NotificationKind
	for _, msg := range m.outbox {
		kinds = append(kinds, msg.Kind)
	}
	return kinds
}

type MockTierSource struct {
	tier settlement.Tier
	err  error
}

func (m *MockTierSource) CurrentTier(ctx context.Context, talentID string) (settlement.Tier, error) {
	return m.tier, m.err
}

type MockOrderCounter struct {
	counts map[string]int
}

func (m *MockOrderCounter) RecordCompletedOrder(ctx context.Context, talentID string) error {
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[talentID]++
	return nil
}

func newTestService(db *MockBookingDB, tier settlement.Tier) *booking.Service {
	return booking.NewService(db, &MockTierSource{tier: tier}, nil, nil, &MockOrderCounter{}, logger.NewLogger(), 30*time.Minute)
}

func seedBooking(db *MockBookingDB, id string, status models.BookingStatus, payment models.PaymentStatus) *models.Booking {
	b := &models.Booking{
		ID:             id,
		CustomerID:     "customer-1",
		TalentID:       "talent-1",
		ServiceType:    models.ServiceVideoCall,
		BasePrice:      100000,
		AppFee:         10000,
		CommissionRate: 0.20,
		CustomerCharge: 110000,
		TalentEarnings: 80000,
		Status:         status,
		PaymentStatus:  payment,
		CreatedAt:      time.Now(),
	}
	db.bookings[id] = b
	return b
}

func TestCreateBookingSnapshotsBreakdown(t *testing.T) {
	db := NewMockBookingDB()
	svc := newTestService(db, settlement.TierElite)

	created, err := svc.CreateBooking(context.Background(), models.BookingRequest{
		CustomerID:  "customer-1",
		TalentID:    "talent-1",
		ServiceType: models.ServiceChat,
		BasePrice:   100000,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(10000), created.AppFee)
	assert.Equal(t, 0.18, created.CommissionRate)
	assert.Equal(t, int64(18000), created.CommissionAmount)
	assert.Equal(t, int64(82000), created.TalentEarnings)
	assert.Equal(t, int64(110000), created.CustomerCharge)
	assert.Equal(t, models.BookingPending, created.Status)
	assert.Equal(t, models.PaymentPending, created.PaymentStatus)

	// One pending charge transaction and the created notification.
	require.Len(t, db.transactions, 1)
	assert.Equal(t, models.TxPending, db.transactions[0].Status)
	assert.Equal(t, created.CustomerCharge, db.transactions[0].Amount)
	assert.Equal(t, []models.NotificationKind{models.NotifyBookingCreated}, db.outboxKinds())
}

func TestCreateBookingRejectsNonPositivePrice(t *testing.T) {
	db := NewMockBookingDB()
	svc := newTestService(db, settlement.TierEntry)

	_, err := svc.CreateBooking(context.Background(), models.BookingRequest{
		CustomerID: "customer-1",
		TalentID:   "talent-1",
		BasePrice:  0,
	})
	assert.ErrorIs(t, err, settlement.ErrInvalidAmount)
	assert.Empty(t, db.bookings)
}

func TestCreateBookingDefaultsToEntryOnTierFailure(t *testing.T) {
	db := NewMockBookingDB()
	svc := booking.NewService(db, &MockTierSource{err: errors.New("profile down")}, nil, nil, nil, logger.NewLogger(), 30*time.Minute)

	created, err := svc.CreateBooking(context.Background(), models.BookingRequest{
		CustomerID: "customer-1",
		TalentID:   "talent-1",
		BasePrice:  100000,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.20, created.CommissionRate)
}

func TestAdvanceRequiresSettledPayment(t *testing.T) {
	db := NewMockBookingDB()
	svc := newTestService(db, settlement.TierEntry)
	seedBooking(db, "b1", models.BookingPending, models.PaymentPending)

	_, err := svc.Advance(context.Background(), "b1")
	assert.ErrorIs(t, err, settlement.ErrPaymentNotSettled)
	assert.Equal(t, models.BookingPending, db.bookings["b1"].Status)
}

func TestAdvanceWalksForwardWhenPaid(t *testing.T) {
	db := NewMockBookingDB()
	svc := newTestService(db, settlement.TierEntry)
	seedBooking(db, "b1", models.BookingPending, models.PaymentPaid)

	steps := []models.BookingStatus{
		models.BookingConfirmed,
		models.BookingInProgress,
		models.BookingCompleted,
	}
	for _, want := range steps {
		b, err := svc.Advance(context.Background(), "b1")
		require.NoError(t, err)
		assert.Equal(t, want, b.Status)
	}

	// Completion requested a review exactly once.
	assert.True(t, db.bookings["b1"].ReviewRequested)
	kinds := db.outboxKinds()
	assert.Contains(t, kinds, models.NotifyBookingConfirmed)
	assert.Contains(t, kinds, models.NotifyReviewRequest)
}

func TestAdvanceFromTerminalStateFails(t *testing.T) {
	db := NewMockBookingDB()
	svc := newTestService(db, settlement.TierEntry)
	seedBooking(db, "b1", models.BookingCompleted, models.PaymentPaid)

	_, err := svc.Advance(context.Background(), "b1")
	assert.ErrorIs(t, err, settlement.ErrInvalidTransition)
}

func TestCompletionBumpsTalentOrderCount(t *testing.T) {
	db := NewMockBookingDB()
	counter := &MockOrderCounter{}
	svc := booking.NewService(db, &MockTierSource{tier: settlement.TierEntry}, nil, nil, counter, logger.NewLogger(), 30*time.Minute)
	seedBooking(db, "b1", models.BookingInProgress, models.PaymentPaid)

	_, err := svc.Advance(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, 1, counter.counts["talent-1"])
}

func TestCancelUnpaidBooking(t *testing.T) {
	db := NewMockBookingDB()
	svc := newTestService(db, settlement.TierEntry)
	seedBooking(db, "b1", models.BookingPending, models.PaymentPending)

	require.NoError(t, svc.Cancel(context.Background(), "b1"))
	assert.Equal(t, models.BookingCancelled, db.bookings["b1"].Status)
	assert.Empty(t, db.transactions, "unpaid cancellation must not create a refund")
}

func TestCancelPaidBookingCreatesRefund(t *testing.T) {
	db := NewMockBookingDB()
	svc := newTestService(db, settlement.TierEntry)
	seedBooking(db, "b1", models.BookingConfirmed, models.PaymentPaid)

	require.NoError(t, svc.Cancel(context.Background(), "b1"))
	assert.Equal(t, models.BookingCancelled, db.bookings["b1"].Status)

	require.Len(t, db.transactions, 1)
	refund := db.transactions[0]
	assert.Equal(t, models.TxRefundPending, refund.Status)
	assert.Equal(t, int64(-110000), refund.Amount)
	assert.Equal(t, int64(-80000), refund.TalentEarnings)
	assert.Contains(t, db.outboxKinds(), models.NotifyRefundRequested)
}

func TestCancelRacingPaymentSettlementCreatesRefund(t *testing.T) {
	db := NewMockBookingDB()
	svc := newTestService(db, settlement.TierEntry)
	seedBooking(db, "b1", models.BookingPending, models.PaymentPending)

	// The payment callback lands right after Cancel reads the booking as
	// unpaid. The stale swap must miss and the retry must take the refund
	// path instead of silently closing a paid booking.
	db.afterGet = func() {
		db.bookings["b1"].PaymentStatus = models.PaymentPaid
	}

	require.NoError(t, svc.Cancel(context.Background(), "b1"))
	assert.Equal(t, models.BookingCancelled, db.bookings["b1"].Status)

	require.Len(t, db.transactions, 1)
	refund := db.transactions[0]
	assert.Equal(t, models.TxRefundPending, refund.Status)
	assert.Equal(t, int64(-110000), refund.Amount)
	assert.Contains(t, db.outboxKinds(), models.NotifyRefundRequested)
}

func TestCancelCancelledBookingIsNoOp(t *testing.T) {
	db := NewMockBookingDB()
	svc := newTestService(db, settlement.TierEntry)
	seedBooking(db, "b1", models.BookingCancelled, models.PaymentPending)

	assert.NoError(t, svc.Cancel(context.Background(), "b1"))
	assert.Empty(t, db.transactions)
}

func TestCancelCompletedBookingFails(t *testing.T) {
	db := NewMockBookingDB()
	svc := newTestService(db, settlement.TierEntry)
	seedBooking(db, "b1", models.BookingCompleted, models.PaymentPaid)

	err := svc.Cancel(context.Background(), "b1")
	assert.ErrorIs(t, err, settlement.ErrInvalidTransition)
}

func TestHandlePaymentEventIsIdempotent(t *testing.T) {
	db := NewMockBookingDB()
	svc := newTestService(db, settlement.TierEntry)
	seedBooking(db, "b1", models.BookingPending, models.PaymentPending)

	event := models.PaymentEvent{
		TransactionID: "txn_1",
		BookingID:     "b1",
		TalentID:      "talent-1",
		Status:        models.PaymentPaid,
	}

	require.NoError(t, svc.HandlePaymentEvent(context.Background(), event))
	assert.Equal(t, models.PaymentPaid, db.bookings["b1"].PaymentStatus)
	firstOutbox := len(db.outbox)

	// Redelivery settles nothing and enqueues nothing.
	require.NoError(t, svc.HandlePaymentEvent(context.Background(), event))
	assert.Equal(t, models.PaymentPaid, db.bookings["b1"].PaymentStatus)
	assert.Equal(t, firstOutbox, len(db.outbox))
}

func TestHandlePaymentEventFailedDoesNotNotify(t *testing.T) {
	db := NewMockBookingDB()
	svc := newTestService(db, settlement.TierEntry)
	seedBooking(db, "b1", models.BookingPending, models.PaymentPending)

	err := svc.HandlePaymentEvent(context.Background(), models.PaymentEvent{
		BookingID: "b1",
		Status:    models.PaymentFailed,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, db.bookings["b1"].PaymentStatus)
	assert.NotContains(t, db.outboxKinds(), models.NotifyPaymentConfirmed)
}

func TestSweepExpiredPending(t *testing.T) {
	db := NewMockBookingDB()
	svc := newTestService(db, settlement.TierEntry)

	stale := seedBooking(db, "stale", models.BookingPending, models.PaymentPending)
	stale.CreatedAt = time.Now().Add(-2 * time.Hour)
	seedBooking(db, "fresh", models.BookingPending, models.PaymentPending)
	paid := seedBooking(db, "paid", models.BookingPending, models.PaymentPaid)
	paid.CreatedAt = time.Now().Add(-2 * time.Hour)

	n, err := svc.SweepExpiredPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.BookingCancelled, db.bookings["stale"].Status)
	assert.Equal(t, models.BookingPending, db.bookings["fresh"].Status)
	assert.Equal(t, models.BookingPending, db.bookings["paid"].Status)

	// Re-running finds nothing left to cancel.
	n, err = svc.SweepExpiredPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
