package db

import (
	"context"
	"time"

	"ms-settlement/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// CreateBooking inserts the booking, its pending charge transaction and the
// booking-created outbox row in one transaction, so a half-created booking
// can never exist.
func (d *DB) CreateBooking(ctx context.Context, booking models.Booking, txn models.Transaction, outbox models.OutboxMessage) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&booking).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewInsert().Model(&txn).Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&outbox).Exec(ctx)
		return err
	})
}

func (d *DB) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (d *DB) ListBookingsByTalent(ctx context.Context, talentID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("talent_id = ?", talentID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

func (d *DB) ListBookingsByCustomer(ctx context.Context, customerID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// TransitionStatus moves status from -> to only while both the status and
// the payment status still match what the caller observed. Status and
// payment status swap as a pair so a payment callback landing between the
// caller's read and this update makes the swap miss instead of being lost.
func (d *DB) TransitionStatus(ctx context.Context, id string, from, to models.BookingStatus, payment models.PaymentStatus) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where("status = ?", from).
		Where("payment_status = ?", payment).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// SettlePayment moves payment_status pending -> to and, when an outbox row
// is given, records it in the same transaction. Redelivered events find no
// pending row and report false without side effects.
func (d *DB) SettlePayment(ctx context.Context, id string, to models.PaymentStatus, outbox *models.OutboxMessage) (bool, error) {
	var settled bool
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Booking)(nil)).
			Set("payment_status = ?", to).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", id).
			Where("payment_status = ?", models.PaymentPending).
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		settled = rows == 1
		if settled && outbox != nil {
			if _, err := tx.NewInsert().Model(outbox).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	return settled, err
}

// MarkReviewRequested flips the one-shot review flag and enqueues the
// review-request notification atomically. Returns false when the flag was
// already set, which suppresses a duplicate notification.
func (d *DB) MarkReviewRequested(ctx context.Context, id string, outbox models.OutboxMessage) (bool, error) {
	var first bool
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Booking)(nil)).
			Set("review_requested = ?", true).
			Where("id = ?", id).
			Where("review_requested IS NOT TRUE").
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		first = rows == 1
		if first {
			if _, err := tx.NewInsert().Model(&outbox).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	return first, err
}

// CancelPaidBooking cancels a booking whose payment already settled: the
// status move, the compensating negative transaction and the
// refund-requested outbox row commit together.
func (d *DB) CancelPaidBooking(ctx context.Context, id string, from models.BookingStatus, refund models.Transaction, outbox models.OutboxMessage) (bool, error) {
	var cancelled bool
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Booking)(nil)).
			Set("status = ?", models.BookingCancelled).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", id).
			Where("status = ?", from).
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		cancelled = rows == 1
		if !cancelled {
			return nil
		}
		if _, err := tx.NewInsert().Model(&refund).Exec(ctx); err != nil {
			return err
		}
		_, err = tx.NewInsert().Model(&outbox).Exec(ctx)
		return err
	})
	return cancelled, err
}

// InsertOutbox enqueues a notification that is not tied to another write.
func (d *DB) InsertOutbox(ctx context.Context, msg models.OutboxMessage) error {
	_, err := d.Bun.NewInsert().Model(&msg).Exec(ctx)
	return err
}

// ListExpiredPending returns bookings still pending and unpaid whose
// payment window closed before the given time.
func (d *DB) ListExpiredPending(ctx context.Context, before time.Time) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("status = ?", models.BookingPending).
		Where("payment_status != ?", models.PaymentPaid).
		Where("created_at < ?", before).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}
