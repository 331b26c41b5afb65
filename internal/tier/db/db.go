package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ms-settlement/internal/models"
	"ms-settlement/internal/settlement"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

func NewDB(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

// GetTier returns the stored classification, or nil when the talent has
// never been classified.
func (d *DB) GetTier(ctx context.Context, talentID string) (*models.TalentTier, error) {
	var tier models.TalentTier
	err := d.Bun.NewSelect().
		Model(&tier).
		Where("talent_id = ?", talentID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

func (d *DB) UpsertTier(ctx context.Context, tier models.TalentTier) error {
	_, err := d.Bun.NewInsert().
		Model(&tier).
		On("CONFLICT (talent_id) DO UPDATE").
		Set("tier = EXCLUDED.tier").
		Set("completed_orders = EXCLUDED.completed_orders").
		Set("average_rating = EXCLUDED.average_rating").
		Set("classified_at = EXCLUDED.classified_at").
		Exec(ctx)
	return err
}

// RecordCompletedOrder bumps the cached completed-order count that feeds
// the classifier between sweeps. A first-time talent starts at entry.
func (d *DB) RecordCompletedOrder(ctx context.Context, talentID string) error {
	_, err := d.Bun.NewInsert().
		Model(&models.TalentTier{
			TalentID:        talentID,
			Tier:            string(settlement.TierEntry),
			CompletedOrders: 1,
			ClassifiedAt:    time.Now(),
		}).
		On("CONFLICT (talent_id) DO UPDATE").
		Set("completed_orders = talent_tiers.completed_orders + 1").
		Exec(ctx)
	return err
}

// ListTalentIDs returns every talent the engine has seen, whether through a
// booking or a prior classification. The sweep walks this set.
func (d *DB) ListTalentIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := d.Bun.NewSelect().
		ColumnExpr("DISTINCT talent_id").
		TableExpr("(SELECT talent_id FROM bookings UNION SELECT talent_id FROM talent_tiers) AS talents").
		Scan(ctx, &ids)
	if err != nil {
		return nil, err
	}
	return ids, nil
}
