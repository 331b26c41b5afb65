package ledger

import (
	"context"
	"fmt"

	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
	"ms-settlement/internal/settlement"
)

type DBLayer interface {
	SumPaidEarnings(ctx context.Context, talentID string) (int64, error)
	SumPayoutReservations(ctx context.Context, talentID string) (int64, error)
	ListTransactions(ctx context.Context, talentID string) ([]models.Transaction, error)
}

// Service derives a talent's available balance from transaction history on
// every call. The balance is never stored, so it cannot drift.
type Service struct {
	DB  DBLayer
	Log *logger.Logger
}

func NewService(db DBLayer, log *logger.Logger) *Service {
	return &Service{DB: db, Log: log}
}

// AvailableBalance is earned-and-settled funds net of every payout
// reservation. Fails closed: a store error surfaces as ErrBalanceUnknown
// rather than any stale or zero figure a caller might act on.
func (s *Service) AvailableBalance(ctx context.Context, talentID string) (int64, error) {
	earnings, err := s.DB.SumPaidEarnings(ctx, talentID)
	if err != nil {
		s.Log.Error("LEDGER", fmt.Sprintf("earnings sum failed for %s: %v", talentID, err))
		return 0, fmt.Errorf("%w: %v", settlement.ErrBalanceUnknown, err)
	}

	reserved, err := s.DB.SumPayoutReservations(ctx, talentID)
	if err != nil {
		s.Log.Error("LEDGER", fmt.Sprintf("reservation sum failed for %s: %v", talentID, err))
		return 0, fmt.Errorf("%w: %v", settlement.ErrBalanceUnknown, err)
	}

	return earnings - reserved, nil
}

// History returns the transaction log backing the balance.
func (s *Service) History(ctx context.Context, talentID string) ([]models.Transaction, error) {
	return s.DB.ListTransactions(ctx, talentID)
}
