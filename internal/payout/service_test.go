package payout_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
	"ms-settlement/internal/payout"
	"ms-settlement/internal/settlement"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockPayoutDB struct {
	mu           sync.Mutex
	requests     map[string]*models.PayoutRequest
	transactions []models.Transaction
	outbox       []models.OutboxMessage
	shouldFailOn string
	errorMsg     string
}

func NewMockPayoutDB() *MockPayoutDB {
	return &MockPayoutDB{requests: make(map[string]*models.PayoutRequest)}
}

func (m *MockPayoutDB) CreatePayoutRequest(ctx context.Context, req models.PayoutRequest) error {
	if m.shouldFailOn == "CreatePayoutRequest" {
		return errors.New(m.errorMsg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := req
	m.requests[req.ID] = &r
	return nil
}

func (m *MockPayoutDB) GetPayoutRequest(ctx context.Context, id string) (*models.PayoutRequest, error) {
	if m.shouldFailOn == "GetPayoutRequest" {
		return nil, errors.New(m.errorMsg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, errors.New("payout request not found")
	}
	copied := *req
	return &copied, nil
}

func (m *MockPayoutDB) ListPayoutRequests(ctx context.Context, status models.PayoutStatus) ([]models.PayoutRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PayoutRequest
	for _, req := range m.requests {
		if status == "" || req.Status == status {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (m *MockPayoutDB) ApprovePayout(ctx context.Context, id, notes string, txn models.Transaction, outbox models.OutboxMessage) (bool, error) {
	if m.shouldFailOn == "ApprovePayout" {
		return false, errors.New(m.errorMsg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok || req.Status != models.PayoutPending {
		return false, nil
	}
	req.Status = models.PayoutApproved
	req.AdminNotes = notes
	m.transactions = append(m.transactions, txn)
	m.outbox = append(m.outbox, outbox)
	return true, nil
}

func (m *MockPayoutDB) RejectPayout(ctx context.Context, id, notes string) (bool, error) {
	if m.shouldFailOn == "RejectPayout" {
		return false, errors.New(m.errorMsg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok || req.Status != models.PayoutPending {
		return false, nil
	}
	req.Status = models.PayoutRejected
	req.AdminNotes = notes
	return true, nil
}

func (m *MockPayoutDB) MarkProcessed(ctx context.Context, id string) (bool, error) {
	if m.shouldFailOn == "MarkProcessed" {
		return false, errors.New(m.errorMsg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok || req.Status != models.PayoutApproved {
		return false, nil
	}
	req.Status = models.PayoutProcessed
	return true, nil
}

// MemoryLock is an in-process stand-in for the redis talent lock with the
// same owner-token semantics.
type MemoryLock struct {
	mu     sync.Mutex
	owners map[string]string
}

func NewMemoryLock() *MemoryLock {
	return &MemoryLock{owners: make(map[string]string)}
}

func (l *MemoryLock) AcquireTalentLock(ctx context.Context, talentID, owner string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.owners[talentID]; held {
		return false, nil
	}
	l.owners[talentID] = owner
	return true, nil
}

func (l *MemoryLock) ReleaseTalentLock(ctx context.Context, talentID, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owners[talentID] == owner {
		delete(l.owners, talentID)
	}
	return nil
}

// MockLedger recomputes the balance from the mock store on every call, the
// way the real ledger derives it from transaction history.
type MockLedger struct {
	db       *MockPayoutDB
	earnings int64
	failErr  error
}

func (m *MockLedger) AvailableBalance(ctx context.Context, talentID string) (int64, error) {
	if m.failErr != nil {
		return 0, m.failErr
	}
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	balance := m.earnings
	for _, req := range m.db.requests {
		if req.TalentID != talentID {
			continue
		}
		switch req.Status {
		case models.PayoutPending, models.PayoutApproved, models.PayoutProcessed:
			balance -= req.Amount
		}
	}
	return balance, nil
}

func newTestService(db *MockPayoutDB, earnings int64) (*payout.Service, *MockLedger) {
	ledger := &MockLedger{db: db, earnings: earnings}
	svc := payout.NewService(db, NewMemoryLock(), ledger, logger.NewLogger())
	return svc, ledger
}

func TestRequestPayoutReservesAmount(t *testing.T) {
	db := NewMockPayoutDB()
	svc, ledger := newTestService(db, 80000)
	ctx := context.Background()

	req, err := svc.RequestPayout(ctx, "talent-1", 30000, "bank_transfer", "bca-123")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPending, req.Status)
	assert.Equal(t, int64(30000), req.Amount)
	assert.Equal(t, int64(80000), req.BalanceSnapshot)

	balance, err := ledger.AvailableBalance(ctx, "talent-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50000), balance)
}

func TestRequestPayoutRejectsNonPositiveAmount(t *testing.T) {
	svc, _ := newTestService(NewMockPayoutDB(), 80000)

	_, err := svc.RequestPayout(context.Background(), "talent-1", 0, "bank_transfer", "bca-123")
	assert.ErrorIs(t, err, settlement.ErrInvalidAmount)

	_, err = svc.RequestPayout(context.Background(), "talent-1", -500, "bank_transfer", "bca-123")
	assert.ErrorIs(t, err, settlement.ErrInvalidAmount)
}

func TestRequestPayoutInsufficientBalance(t *testing.T) {
	svc, _ := newTestService(NewMockPayoutDB(), 50000)

	_, err := svc.RequestPayout(context.Background(), "talent-1", 60000, "bank_transfer", "bca-123")

	var insufficient *settlement.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(60000), insufficient.Requested)
	assert.Equal(t, int64(50000), insufficient.Available)
	assert.ErrorIs(t, err, settlement.ErrInsufficientBalance)
}

func TestRequestPayoutBalanceUnknownBlocksRequest(t *testing.T) {
	db := NewMockPayoutDB()
	ledger := &MockLedger{db: db, failErr: settlement.ErrBalanceUnknown}
	svc := payout.NewService(db, NewMemoryLock(), ledger, logger.NewLogger())

	_, err := svc.RequestPayout(context.Background(), "talent-1", 10000, "bank_transfer", "bca-123")
	assert.ErrorIs(t, err, settlement.ErrBalanceUnknown)
	assert.Empty(t, db.requests)
}

func TestSequentialRequestsCannotSpendSameEarnings(t *testing.T) {
	// Two 30000 requests against 50000: the first reserves its amount, so
	// the second sees only 20000 left.
	db := NewMockPayoutDB()
	svc, _ := newTestService(db, 50000)
	ctx := context.Background()

	_, err := svc.RequestPayout(ctx, "talent-1", 30000, "bank_transfer", "bca-123")
	require.NoError(t, err)

	_, err = svc.RequestPayout(ctx, "talent-1", 30000, "bank_transfer", "bca-123")
	var insufficient *settlement.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(20000), insufficient.Available)
}

func TestConcurrentRequestsOnlyOneSucceeds(t *testing.T) {
	// Two 30000 requests race against 50000. The talent lock serializes
	// them; whichever runs second sees the first reservation and fails
	// with insufficient balance.
	db := NewMockPayoutDB()
	svc, ledger := newTestService(db, 50000)
	ctx := context.Background()

	start := make(chan struct{})
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.RequestPayout(ctx, "talent-1", 30000, "bank_transfer", "bca-123")
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	var succeeded, insufficient int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		default:
			var e *settlement.InsufficientBalanceError
			require.ErrorAs(t, err, &e, "loser must fail on balance, not on the lock")
			assert.Equal(t, int64(20000), e.Available)
			insufficient++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)

	balance, err := ledger.AvailableBalance(ctx, "talent-1")
	require.NoError(t, err)
	assert.Equal(t, int64(20000), balance)
}

func TestRequestPayoutBusyWhenLockHeld(t *testing.T) {
	db := NewMockPayoutDB()
	lock := NewMemoryLock()
	ledger := &MockLedger{db: db, earnings: 80000}
	svc := payout.NewService(db, lock, ledger, logger.NewLogger())
	ctx := context.Background()

	ok, err := lock.AcquireTalentLock(ctx, "talent-1", "someone-else")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = svc.RequestPayout(ctx, "talent-1", 10000, "bank_transfer", "bca-123")
	assert.ErrorIs(t, err, payout.ErrTalentBusy)

	// A different talent is unaffected.
	_, err = svc.RequestPayout(ctx, "talent-2", 10000, "bank_transfer", "bca-456")
	require.NoError(t, err)
}

func TestApprovePayoutPostsNegativeTransaction(t *testing.T) {
	db := NewMockPayoutDB()
	svc, ledger := newTestService(db, 80000)
	ctx := context.Background()

	req, err := svc.RequestPayout(ctx, "talent-1", 30000, "bank_transfer", "bca-123")
	require.NoError(t, err)

	require.NoError(t, svc.DecidePayout(ctx, req.ID, models.PayoutApproved, "verified"))

	stored, err := svc.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutApproved, stored.Status)
	assert.Equal(t, "verified", stored.AdminNotes)

	require.Len(t, db.transactions, 1)
	txn := db.transactions[0]
	assert.Equal(t, int64(-30000), txn.Amount)
	assert.Equal(t, req.ID, txn.PayoutID)
	assert.Equal(t, models.TxPaid, txn.Status)

	require.Len(t, db.outbox, 1)
	assert.Equal(t, models.NotifyPayoutApproved, db.outbox[0].Kind)
	assert.Equal(t, "talent-1", db.outbox[0].Recipient)

	// The reservation carries through approval; the balance stays reduced.
	balance, err := ledger.AvailableBalance(ctx, "talent-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50000), balance)
}

func TestRejectPayoutReleasesReservation(t *testing.T) {
	db := NewMockPayoutDB()
	svc, ledger := newTestService(db, 80000)
	ctx := context.Background()

	req, err := svc.RequestPayout(ctx, "talent-1", 30000, "bank_transfer", "bca-123")
	require.NoError(t, err)

	require.NoError(t, svc.DecidePayout(ctx, req.ID, models.PayoutRejected, "bad destination"))

	stored, err := svc.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutRejected, stored.Status)
	assert.Empty(t, db.transactions)

	balance, err := ledger.AvailableBalance(ctx, "talent-1")
	require.NoError(t, err)
	assert.Equal(t, int64(80000), balance)
}

func TestDecidePayoutOnlyFromPending(t *testing.T) {
	db := NewMockPayoutDB()
	svc, _ := newTestService(db, 80000)
	ctx := context.Background()

	req, err := svc.RequestPayout(ctx, "talent-1", 30000, "bank_transfer", "bca-123")
	require.NoError(t, err)
	require.NoError(t, svc.DecidePayout(ctx, req.ID, models.PayoutApproved, ""))

	err = svc.DecidePayout(ctx, req.ID, models.PayoutRejected, "changed my mind")
	assert.ErrorIs(t, err, settlement.ErrInvalidTransition)
	require.Len(t, db.transactions, 1)
}

func TestDecidePayoutRejectsUnknownDecision(t *testing.T) {
	db := NewMockPayoutDB()
	svc, _ := newTestService(db, 80000)
	ctx := context.Background()

	req, err := svc.RequestPayout(ctx, "talent-1", 30000, "bank_transfer", "bca-123")
	require.NoError(t, err)

	err = svc.DecidePayout(ctx, req.ID, models.PayoutProcessed, "")
	assert.ErrorIs(t, err, settlement.ErrInvalidTransition)
}

func TestMarkProcessedRequiresApproval(t *testing.T) {
	db := NewMockPayoutDB()
	svc, _ := newTestService(db, 80000)
	ctx := context.Background()

	req, err := svc.RequestPayout(ctx, "talent-1", 30000, "bank_transfer", "bca-123")
	require.NoError(t, err)

	err = svc.MarkProcessed(ctx, req.ID)
	assert.ErrorIs(t, err, settlement.ErrInvalidTransition)

	require.NoError(t, svc.DecidePayout(ctx, req.ID, models.PayoutApproved, ""))
	require.NoError(t, svc.MarkProcessed(ctx, req.ID))

	stored, err := svc.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutProcessed, stored.Status)
}

func TestListRequestsFiltersByStatus(t *testing.T) {
	db := NewMockPayoutDB()
	svc, _ := newTestService(db, 200000)
	ctx := context.Background()

	first, err := svc.RequestPayout(ctx, "talent-1", 30000, "bank_transfer", "bca-123")
	require.NoError(t, err)
	_, err = svc.RequestPayout(ctx, "talent-1", 20000, "ewallet", "ovo-456")
	require.NoError(t, err)
	require.NoError(t, svc.DecidePayout(ctx, first.ID, models.PayoutApproved, ""))

	pending, err := svc.ListRequests(ctx, models.PayoutPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	all, err := svc.ListRequests(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
