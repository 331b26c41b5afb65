package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-settlement/internal/ledger/db"
	"ms-settlement/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *db.DB {
	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	require.NoError(t, bunDB.ResetModel(ctx, (*models.Transaction)(nil)))
	require.NoError(t, bunDB.ResetModel(ctx, (*models.PayoutRequest)(nil)))

	t.Cleanup(func() { _ = bunDB.Close() })
	return &db.DB{Bun: bunDB}
}

func insertTxn(t *testing.T, store *db.DB, txn models.Transaction) {
	t.Helper()
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}
	_, err := store.Bun.NewInsert().Model(&txn).Exec(context.Background())
	require.NoError(t, err)
}

func insertPayout(t *testing.T, store *db.DB, req models.PayoutRequest) {
	t.Helper()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	_, err := store.Bun.NewInsert().Model(&req).Exec(context.Background())
	require.NoError(t, err)
}

func TestSumPaidEarningsCountsOnlySettledServiceRows(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	insertTxn(t, store, models.Transaction{
		ID: "txn_1", BookingID: "bkg_1", TalentID: "talent-1",
		Amount: 110000, TalentEarnings: 80000, PlatformFee: 30000,
		CommissionRate: 0.20, Status: models.TxPaid,
	})
	insertTxn(t, store, models.Transaction{
		ID: "txn_2", BookingID: "bkg_2", TalentID: "talent-1",
		Amount: 55000, TalentEarnings: 40000, PlatformFee: 15000,
		CommissionRate: 0.20, Status: models.TxPending,
	})
	insertTxn(t, store, models.Transaction{
		ID: "txn_3", BookingID: "bkg_3", TalentID: "talent-1",
		Amount: 55000, TalentEarnings: 40000, PlatformFee: 15000,
		CommissionRate: 0.20, Status: models.TxFailed,
	})
	// Payout row: paid but not tied to a booking, accounted for on the
	// reservation side instead.
	insertTxn(t, store, models.Transaction{
		ID: "txn_4", PayoutID: "pyt_1", TalentID: "talent-1",
		Amount: -30000, Status: models.TxPaid,
	})
	// Another talent's earnings must not leak in.
	insertTxn(t, store, models.Transaction{
		ID: "txn_5", BookingID: "bkg_4", TalentID: "talent-2",
		Amount: 110000, TalentEarnings: 80000, PlatformFee: 30000,
		CommissionRate: 0.20, Status: models.TxPaid,
	})

	total, err := store.SumPaidEarnings(ctx, "talent-1")
	require.NoError(t, err)
	assert.Equal(t, int64(80000), total)
}

func TestSumPaidEarningsZeroWhenNoHistory(t *testing.T) {
	store := setupTestDB(t)

	total, err := store.SumPaidEarnings(context.Background(), "talent-unknown")
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestSumPayoutReservationsSpansRequestLifecycle(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	insertPayout(t, store, models.PayoutRequest{
		ID: "pyt_1", TalentID: "talent-1", Amount: 20000,
		BalanceSnapshot: 80000, Method: "bank_transfer",
		Destination: "bca-123", Status: models.PayoutPending,
	})
	insertPayout(t, store, models.PayoutRequest{
		ID: "pyt_2", TalentID: "talent-1", Amount: 15000,
		BalanceSnapshot: 60000, Method: "bank_transfer",
		Destination: "bca-123", Status: models.PayoutApproved,
	})
	insertPayout(t, store, models.PayoutRequest{
		ID: "pyt_3", TalentID: "talent-1", Amount: 10000,
		BalanceSnapshot: 45000, Method: "bank_transfer",
		Destination: "bca-123", Status: models.PayoutProcessed,
	})
	// Rejected requests release their hold immediately.
	insertPayout(t, store, models.PayoutRequest{
		ID: "pyt_4", TalentID: "talent-1", Amount: 99999,
		BalanceSnapshot: 45000, Method: "bank_transfer",
		Destination: "bca-123", Status: models.PayoutRejected,
	})
	insertPayout(t, store, models.PayoutRequest{
		ID: "pyt_5", TalentID: "talent-2", Amount: 5000,
		BalanceSnapshot: 5000, Method: "ewallet",
		Destination: "ovo-456", Status: models.PayoutPending,
	})

	total, err := store.SumPayoutReservations(ctx, "talent-1")
	require.NoError(t, err)
	assert.Equal(t, int64(45000), total)
}

func TestListTransactionsNewestFirst(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	insertTxn(t, store, models.Transaction{
		ID: "txn_old", BookingID: "bkg_1", TalentID: "talent-1",
		Amount: 110000, TalentEarnings: 80000, PlatformFee: 30000,
		CommissionRate: 0.20, Status: models.TxPaid, CreatedAt: base,
	})
	insertTxn(t, store, models.Transaction{
		ID: "txn_new", PayoutID: "pyt_1", TalentID: "talent-1",
		Amount: -30000, Status: models.TxPaid, CreatedAt: base.Add(30 * time.Minute),
	})
	insertTxn(t, store, models.Transaction{
		ID: "txn_other", BookingID: "bkg_2", TalentID: "talent-2",
		Amount: 55000, TalentEarnings: 40000, PlatformFee: 15000,
		CommissionRate: 0.20, Status: models.TxPaid, CreatedAt: base,
	})

	txns, err := store.ListTransactions(ctx, "talent-1")
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "txn_new", txns[0].ID)
	assert.Equal(t, "txn_old", txns[1].ID)
}
