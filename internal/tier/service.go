package tier

import (
	"context"
	"fmt"
	"time"

	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
	"ms-settlement/internal/settlement"
)

type DBLayer interface {
	GetTier(ctx context.Context, talentID string) (*models.TalentTier, error)
	UpsertTier(ctx context.Context, tier models.TalentTier) error
	ListTalentIDs(ctx context.Context) ([]string, error)
}

// StatsSource answers the classification inputs for a talent, satisfied by
// the profile service client.
type StatsSource interface {
	TalentStats(ctx context.Context, talentID string) (*models.TalentStats, error)
}

type Service struct {
	DB      DBLayer
	Profile StatsSource
	Log     *logger.Logger
}

func NewService(db DBLayer, profile StatsSource, log *logger.Logger) *Service {
	return &Service{DB: db, Profile: profile, Log: log}
}

// CurrentTier answers the tier new bookings are priced at. An unclassified
// talent is entry.
func (s *Service) CurrentTier(ctx context.Context, talentID string) (settlement.Tier, error) {
	stored, err := s.DB.GetTier(ctx, talentID)
	if err != nil {
		return "", fmt.Errorf("failed to read tier for %s: %w", talentID, err)
	}
	if stored == nil {
		return settlement.TierEntry, nil
	}
	return settlement.Tier(stored.Tier), nil
}

// Reclassify recomputes one talent's tier from fresh profile stats. Stored
// tiers only ever move up: a talent whose stats have slipped keeps the tier
// they already earned.
func (s *Service) Reclassify(ctx context.Context, talentID string) (settlement.Tier, error) {
	stats, err := s.Profile.TalentStats(ctx, talentID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch stats for %s: %w", talentID, err)
	}

	now := time.Now()
	computed := settlement.ClassifyTier(stats.CompletedOrders, stats.AverageRating, stats.AccountAgeMonths(now))

	stored, err := s.DB.GetTier(ctx, talentID)
	if err != nil {
		return "", fmt.Errorf("failed to read tier for %s: %w", talentID, err)
	}

	effective := computed
	if stored != nil && settlement.Rank(settlement.Tier(stored.Tier)) > settlement.Rank(computed) {
		effective = settlement.Tier(stored.Tier)
	}

	if stored == nil || stored.Tier != string(effective) {
		s.Log.Info("TIER", fmt.Sprintf("talent %s classified %s (orders=%d rating=%.2f)",
			talentID, effective, stats.CompletedOrders, stats.AverageRating))
	}

	err = s.DB.UpsertTier(ctx, models.TalentTier{
		TalentID:        talentID,
		Tier:            string(effective),
		CompletedOrders: stats.CompletedOrders,
		AverageRating:   stats.AverageRating,
		ClassifiedAt:    now,
	})
	if err != nil {
		return "", fmt.Errorf("failed to store tier for %s: %w", talentID, err)
	}

	return effective, nil
}

// Sweep reclassifies every known talent. Individual failures are logged
// and skipped so one broken profile never stalls the rest.
func (s *Service) Sweep(ctx context.Context) error {
	ids, err := s.DB.ListTalentIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list talents: %w", err)
	}

	var failed int
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.Reclassify(ctx, id); err != nil {
			s.Log.Warn("TIER", fmt.Sprintf("reclassify failed for %s: %v", id, err))
			failed++
		}
	}

	s.Log.Info("TIER", fmt.Sprintf("sweep complete: %d talents, %d failed", len(ids), failed))
	return nil
}

// Run executes the sweep on a fixed cadence until the context is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.Log.Error("TIER", fmt.Sprintf("sweep failed: %v", err))
			}
		}
	}
}
