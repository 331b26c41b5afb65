package tier_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
	"ms-settlement/internal/settlement"
	"ms-settlement/internal/tier"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockTierDB struct {
	tiers        map[string]*models.TalentTier
	talentIDs    []string
	shouldFailOn string
	errorMsg     string
}

func NewMockTierDB() *MockTierDB {
	return &MockTierDB{tiers: make(map[string]*models.TalentTier)}
}

func (m *MockTierDB) GetTier(ctx context.Context, talentID string) (*models.TalentTier, error) {
	if m.shouldFailOn == "GetTier" {
		return nil, errors.New(m.errorMsg)
	}
	stored, ok := m.tiers[talentID]
	if !ok {
		return nil, nil
	}
	copied := *stored
	return &copied, nil
}

func (m *MockTierDB) UpsertTier(ctx context.Context, t models.TalentTier) error {
	if m.shouldFailOn == "UpsertTier" {
		return errors.New(m.errorMsg)
	}
	stored := t
	m.tiers[t.TalentID] = &stored
	return nil
}

func (m *MockTierDB) ListTalentIDs(ctx context.Context) ([]string, error) {
	if m.shouldFailOn == "ListTalentIDs" {
		return nil, errors.New(m.errorMsg)
	}
	return m.talentIDs, nil
}

type MockStats struct {
	stats        map[string]*models.TalentStats
	shouldFailOn string
	errorMsg     string
}

func (m *MockStats) TalentStats(ctx context.Context, talentID string) (*models.TalentStats, error) {
	if m.shouldFailOn == talentID {
		return nil, errors.New(m.errorMsg)
	}
	stats, ok := m.stats[talentID]
	if !ok {
		return nil, errors.New("talent not found")
	}
	return stats, nil
}

func monthsAgo(n int) time.Time {
	return time.Now().Add(-time.Duration(n) * 31 * 24 * time.Hour)
}

func TestCurrentTierDefaultsToEntry(t *testing.T) {
	svc := tier.NewService(NewMockTierDB(), &MockStats{}, logger.NewLogger())

	current, err := svc.CurrentTier(context.Background(), "talent-new")
	require.NoError(t, err)
	assert.Equal(t, settlement.TierEntry, current)
}

func TestCurrentTierReadsStoredClassification(t *testing.T) {
	db := NewMockTierDB()
	db.tiers["talent-1"] = &models.TalentTier{TalentID: "talent-1", Tier: "elite"}
	svc := tier.NewService(db, &MockStats{}, logger.NewLogger())

	current, err := svc.CurrentTier(context.Background(), "talent-1")
	require.NoError(t, err)
	assert.Equal(t, settlement.TierElite, current)
}

func TestReclassifyPromotesOnStats(t *testing.T) {
	db := NewMockTierDB()
	stats := &MockStats{stats: map[string]*models.TalentStats{
		"talent-1": {
			TalentID:        "talent-1",
			CompletedOrders: 120,
			AverageRating:   4.8,
			AccountCreated:  monthsAgo(12),
		},
	}}
	svc := tier.NewService(db, stats, logger.NewLogger())

	got, err := svc.Reclassify(context.Background(), "talent-1")
	require.NoError(t, err)
	assert.Equal(t, settlement.TierTop, got)

	stored := db.tiers["talent-1"]
	require.NotNil(t, stored)
	assert.Equal(t, "top", stored.Tier)
	assert.Equal(t, 120, stored.CompletedOrders)
	assert.InDelta(t, 4.8, stored.AverageRating, 0.001)
	assert.False(t, stored.ClassifiedAt.IsZero())
}

func TestReclassifyYoungAccountCapsAtElite(t *testing.T) {
	db := NewMockTierDB()
	stats := &MockStats{stats: map[string]*models.TalentStats{
		"talent-1": {
			TalentID:        "talent-1",
			CompletedOrders: 150,
			AverageRating:   4.9,
			AccountCreated:  monthsAgo(2),
		},
	}}
	svc := tier.NewService(db, stats, logger.NewLogger())

	got, err := svc.Reclassify(context.Background(), "talent-1")
	require.NoError(t, err)
	assert.Equal(t, settlement.TierElite, got)
}

func TestReclassifyNeverDowngrades(t *testing.T) {
	db := NewMockTierDB()
	db.tiers["talent-1"] = &models.TalentTier{TalentID: "talent-1", Tier: "top", CompletedOrders: 120, AverageRating: 4.8}
	// Rating has slipped below the elite threshold since classification.
	stats := &MockStats{stats: map[string]*models.TalentStats{
		"talent-1": {
			TalentID:        "talent-1",
			CompletedOrders: 130,
			AverageRating:   4.1,
			AccountCreated:  monthsAgo(18),
		},
	}}
	svc := tier.NewService(db, stats, logger.NewLogger())

	got, err := svc.Reclassify(context.Background(), "talent-1")
	require.NoError(t, err)
	assert.Equal(t, settlement.TierTop, got)

	// Stats still refresh even when the tier is grandfathered.
	stored := db.tiers["talent-1"]
	assert.Equal(t, "top", stored.Tier)
	assert.Equal(t, 130, stored.CompletedOrders)
	assert.InDelta(t, 4.1, stored.AverageRating, 0.001)
}

func TestReclassifyStatsFetchFailure(t *testing.T) {
	db := NewMockTierDB()
	stats := &MockStats{shouldFailOn: "talent-1", errorMsg: "profile service unavailable"}
	svc := tier.NewService(db, stats, logger.NewLogger())

	_, err := svc.Reclassify(context.Background(), "talent-1")
	assert.Error(t, err)
	assert.Empty(t, db.tiers)
}

func TestSweepSkipsFailingTalents(t *testing.T) {
	db := NewMockTierDB()
	db.talentIDs = []string{"talent-1", "talent-broken", "talent-2"}
	stats := &MockStats{
		stats: map[string]*models.TalentStats{
			"talent-1": {TalentID: "talent-1", CompletedOrders: 40, AverageRating: 4.7, AccountCreated: monthsAgo(8)},
			"talent-2": {TalentID: "talent-2", CompletedOrders: 5, AverageRating: 4.0, AccountCreated: monthsAgo(1)},
		},
		shouldFailOn: "talent-broken",
		errorMsg:     "profile service unavailable",
	}
	svc := tier.NewService(db, stats, logger.NewLogger())

	require.NoError(t, svc.Sweep(context.Background()))

	assert.Equal(t, "elite", db.tiers["talent-1"].Tier)
	assert.Equal(t, "entry", db.tiers["talent-2"].Tier)
	assert.NotContains(t, db.tiers, "talent-broken")
}

func TestSweepStopsOnCancelledContext(t *testing.T) {
	db := NewMockTierDB()
	db.talentIDs = []string{"talent-1"}
	svc := tier.NewService(db, &MockStats{}, logger.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.Sweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, db.tiers)
}
