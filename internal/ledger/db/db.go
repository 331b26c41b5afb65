package db

import (
	"context"

	"ms-settlement/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// SumPaidEarnings totals the talent earnings of settled service
// transactions (rows tied to a booking). Payout rows are excluded here;
// they are accounted for on the reservation side.
func (d *DB) SumPaidEarnings(ctx context.Context, talentID string) (int64, error) {
	var total int64
	err := d.Bun.NewSelect().
		ColumnExpr("COALESCE(SUM(talent_earnings), 0)").
		Table("transactions").
		Where("talent_id = ?", talentID).
		Where("status = ?", models.TxPaid).
		Where("booking_id IS NOT NULL").
		Scan(ctx, &total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// SumPayoutReservations totals approved and still-pending payout amounts.
// Pending requests count so two requests cannot spend the same earnings;
// rejected requests fall out of the sum the moment they are rejected.
func (d *DB) SumPayoutReservations(ctx context.Context, talentID string) (int64, error) {
	var total int64
	err := d.Bun.NewSelect().
		ColumnExpr("COALESCE(SUM(amount), 0)").
		Table("payout_requests").
		Where("talent_id = ?", talentID).
		Where("status IN (?)", bun.In([]models.PayoutStatus{models.PayoutPending, models.PayoutApproved, models.PayoutProcessed})).
		Scan(ctx, &total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// ListTransactions returns a talent's full monetary history, newest first.
func (d *DB) ListTransactions(ctx context.Context, talentID string) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := d.Bun.NewSelect().
		Model(&txns).
		Where("talent_id = ?", talentID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return txns, nil
}
