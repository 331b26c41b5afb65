package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
	"ms-settlement/internal/notify"
	"ms-settlement/internal/settlement"
	"ms-settlement/internal/utils"

	"github.com/google/uuid"
)

type DBLayer interface {
	CreatePayoutRequest(ctx context.Context, req models.PayoutRequest) error
	GetPayoutRequest(ctx context.Context, id string) (*models.PayoutRequest, error)
	ListPayoutRequests(ctx context.Context, status models.PayoutStatus) ([]models.PayoutRequest, error)
	ApprovePayout(ctx context.Context, id, notes string, txn models.Transaction, outbox models.OutboxMessage) (bool, error)
	RejectPayout(ctx context.Context, id, notes string) (bool, error)
	MarkProcessed(ctx context.Context, id string) (bool, error)
}

// TalentLock is the single-writer-per-talent critical section around
// "recompute balance, validate, persist request".
type TalentLock interface {
	AcquireTalentLock(ctx context.Context, talentID, owner string) (bool, error)
	ReleaseTalentLock(ctx context.Context, talentID, owner string) error
}

type Ledger interface {
	AvailableBalance(ctx context.Context, talentID string) (int64, error)
}

var ErrTalentBusy = errors.New("another payout operation is in progress for this talent")

// Lock acquisition retries briefly so a request arriving while another is
// mid-flight serializes into the balance check instead of bouncing; the
// total wait stays well under the lock TTL.
const (
	lockAcquireAttempts = 8
	lockRetryDelay      = 25 * time.Millisecond
)

type Service struct {
	DB     DBLayer
	Lock   TalentLock
	Ledger Ledger
	Log    *logger.Logger
}

func NewService(db DBLayer, lock TalentLock, ledger Ledger, log *logger.Logger) *Service {
	return &Service{DB: db, Lock: lock, Ledger: ledger, Log: log}
}

// RequestPayout validates the amount against a freshly derived balance and
// persists the request in pending state, which immediately reserves the
// amount. The whole check-then-reserve runs under the talent lock so two
// concurrent requests cannot both pass against the same balance.
func (s *Service) RequestPayout(ctx context.Context, talentID string, amount int64, method, destination string) (*models.PayoutRequest, error) {
	if amount <= 0 {
		return nil, settlement.ErrInvalidAmount
	}

	owner := uuid.NewString()
	var ok bool
	for attempt := 0; attempt < lockAcquireAttempts; attempt++ {
		var err error
		ok, err = s.Lock.AcquireTalentLock(ctx, talentID, owner)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire talent lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
	if !ok {
		return nil, ErrTalentBusy
	}
	defer func() {
		if err := s.Lock.ReleaseTalentLock(ctx, talentID, owner); err != nil {
			s.Log.Error("PAYOUT", fmt.Sprintf("failed to release lock for %s: %v", talentID, err))
		}
	}()

	balance, err := s.Ledger.AvailableBalance(ctx, talentID)
	if err != nil {
		// ErrBalanceUnknown propagates as-is: no balance, no payout.
		return nil, err
	}

	if amount > balance {
		return nil, &settlement.InsufficientBalanceError{Requested: amount, Available: balance}
	}

	req := models.PayoutRequest{
		ID:              utils.GeneratePayoutID(),
		TalentID:        talentID,
		Amount:          amount,
		BalanceSnapshot: balance,
		Method:          method,
		Destination:     destination,
		Status:          models.PayoutPending,
		CreatedAt:       time.Now(),
	}

	if err := s.DB.CreatePayoutRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to persist payout request: %w", err)
	}

	s.Log.LogPayout("REQUEST", req.ID, fmt.Sprintf("talent=%s amount=%d balance=%d", talentID, amount, balance))
	return &req, nil
}

// DecidePayout reviews a pending request. Approval posts the negative
// ledger transaction atomically with the status move; rejection releases
// the reservation with no ledger effect.
func (s *Service) DecidePayout(ctx context.Context, requestID string, decision models.PayoutStatus, notes string) error {
	req, err := s.DB.GetPayoutRequest(ctx, requestID)
	if err != nil {
		return fmt.Errorf("payout request %s not found: %w", requestID, err)
	}

	if req.Status != models.PayoutPending {
		return &settlement.InvalidTransitionError{
			Entity: "payout",
			From:   string(req.Status),
			To:     string(decision),
		}
	}

	switch decision {
	case models.PayoutApproved:
		txn := models.Transaction{
			ID:        utils.GenerateTransactionID(),
			PayoutID:  req.ID,
			TalentID:  req.TalentID,
			Amount:    -req.Amount,
			Status:    models.TxPaid,
			CreatedAt: time.Now(),
			SettledAt: time.Now(),
		}
		outbox := notify.NewMessage(models.NotifyPayoutApproved, req.TalentID, map[string]interface{}{
			"payout_id": req.ID,
			"amount":    req.Amount,
			"method":    req.Method,
		})
		ok, err := s.DB.ApprovePayout(ctx, requestID, notes, txn, outbox)
		if err != nil {
			return fmt.Errorf("failed to approve payout %s: %w", requestID, err)
		}
		if !ok {
			return &settlement.InvalidTransitionError{Entity: "payout", From: "decided", To: string(models.PayoutApproved)}
		}
		s.Log.LogPayout("APPROVE", requestID, fmt.Sprintf("talent=%s amount=%d", req.TalentID, req.Amount))
		return nil

	case models.PayoutRejected:
		ok, err := s.DB.RejectPayout(ctx, requestID, notes)
		if err != nil {
			return fmt.Errorf("failed to reject payout %s: %w", requestID, err)
		}
		if !ok {
			return &settlement.InvalidTransitionError{Entity: "payout", From: "decided", To: string(models.PayoutRejected)}
		}
		s.Log.LogPayout("REJECT", requestID, fmt.Sprintf("talent=%s amount=%d", req.TalentID, req.Amount))
		return nil

	default:
		return &settlement.InvalidTransitionError{Entity: "payout", From: string(models.PayoutPending), To: string(decision)}
	}
}

// MarkProcessed records the external transfer confirmation for an approved
// request.
func (s *Service) MarkProcessed(ctx context.Context, requestID string) error {
	ok, err := s.DB.MarkProcessed(ctx, requestID)
	if err != nil {
		return fmt.Errorf("failed to mark payout %s processed: %w", requestID, err)
	}
	if !ok {
		req, gerr := s.DB.GetPayoutRequest(ctx, requestID)
		from := "unknown"
		if gerr == nil {
			from = string(req.Status)
		}
		return &settlement.InvalidTransitionError{Entity: "payout", From: from, To: string(models.PayoutProcessed)}
	}
	s.Log.LogPayout("PROCESSED", requestID, "transfer confirmed")
	return nil
}

func (s *Service) GetRequest(ctx context.Context, requestID string) (*models.PayoutRequest, error) {
	return s.DB.GetPayoutRequest(ctx, requestID)
}

func (s *Service) ListRequests(ctx context.Context, status models.PayoutStatus) ([]models.PayoutRequest, error) {
	return s.DB.ListPayoutRequests(ctx, status)
}
