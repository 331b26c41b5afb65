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

func (d *DB) CreatePayoutRequest(ctx context.Context, req models.PayoutRequest) error {
	_, err := d.Bun.NewInsert().Model(&req).Exec(ctx)
	return err
}

func (d *DB) GetPayoutRequest(ctx context.Context, id string) (*models.PayoutRequest, error) {
	var req models.PayoutRequest
	err := d.Bun.NewSelect().
		Model(&req).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (d *DB) ListPayoutRequests(ctx context.Context, status models.PayoutStatus) ([]models.PayoutRequest, error) {
	var reqs []models.PayoutRequest
	q := d.Bun.NewSelect().Model(&reqs).Order("created_at ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return reqs, nil
}

// ApprovePayout moves the request pending -> approved and posts the
// negative ledger transaction in the same database transaction. The
// compare-and-swap on status makes a double approval impossible.
func (d *DB) ApprovePayout(ctx context.Context, id, notes string, txn models.Transaction, outbox models.OutboxMessage) (bool, error) {
	var approved bool
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.PayoutRequest)(nil)).
			Set("status = ?", models.PayoutApproved).
			Set("admin_notes = ?", notes).
			Set("decided_at = ?", time.Now()).
			Where("id = ?", id).
			Where("status = ?", models.PayoutPending).
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		approved = rows == 1
		if !approved {
			return nil
		}
		if _, err := tx.NewInsert().Model(&txn).Exec(ctx); err != nil {
			return err
		}
		_, err = tx.NewInsert().Model(&outbox).Exec(ctx)
		return err
	})
	return approved, err
}

// RejectPayout releases the reservation: the request leaves the pending
// set, so its amount re-enters the balance on the next derivation. No
// transaction row is written.
func (d *DB) RejectPayout(ctx context.Context, id, notes string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.PayoutRequest)(nil)).
		Set("status = ?", models.PayoutRejected).
		Set("admin_notes = ?", notes).
		Set("decided_at = ?", time.Now()).
		Where("id = ?", id).
		Where("status = ?", models.PayoutPending).
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

// MarkProcessed records the external funds-transfer confirmation.
func (d *DB) MarkProcessed(ctx context.Context, id string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.PayoutRequest)(nil)).
		Set("status = ?", models.PayoutProcessed).
		Set("processed_at = ?", time.Now()).
		Where("id = ?", id).
		Where("status = ?", models.PayoutApproved).
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
