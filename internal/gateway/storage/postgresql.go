package storage

import (
	"database/sql"
	"fmt"

	"ms-settlement/internal/config"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"

	_ "github.com/lib/pq"
)

type PostgreSQLStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPostgreSQLStoreWithDB wraps an existing connection, used when the
// gateway runs in the same process as the settlement service.
func NewPostgreSQLStoreWithDB(db *sql.DB, log *logger.Logger) *PostgreSQLStore {
	log.Info("DATABASE", "Creating gateway transaction store with existing database connection")
	return &PostgreSQLStore{db: db, log: log}
}

func NewPostgreSQLStore(cfg config.DatabaseConfig, log *logger.Logger) (*PostgreSQLStore, error) {
	log.LogDatabase("CONNECT", "postgresql", fmt.Sprintf("Connecting to PostgreSQL at %s:%s", cfg.Host, cfg.Port))

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Error("DATABASE", "Failed to open PostgreSQL connection: "+err.Error())
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		log.Error("DATABASE", "Failed to ping PostgreSQL: "+err.Error())
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.LogDatabase("SUCCESS", "postgresql", "PostgreSQL connection established")
	return &PostgreSQLStore{db: db, log: log}, nil
}

func (s *PostgreSQLStore) GetTransaction(id string) (*models.Transaction, error) {
	s.log.LogDatabase("SELECT", "transactions", fmt.Sprintf("Fetching transaction %s", id))

	query := `
    SELECT id, COALESCE(booking_id, ''), COALESCE(payout_id, ''), talent_id,
           amount, talent_earnings, platform_fee, commission_rate,
           status, COALESCE(gateway_ref, ''), created_at
    FROM transactions WHERE id = $1
    `

	txn := &models.Transaction{}
	err := s.db.QueryRow(query, id).Scan(
		&txn.ID, &txn.BookingID, &txn.PayoutID, &txn.TalentID,
		&txn.Amount, &txn.TalentEarnings, &txn.PlatformFee, &txn.CommissionRate,
		&txn.Status, &txn.GatewayRef, &txn.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			s.log.LogDatabase("NOT_FOUND", "transactions", fmt.Sprintf("Transaction %s not found", id))
			return nil, fmt.Errorf("transaction not found")
		}
		s.log.Error("DATABASE", fmt.Sprintf("Failed to get transaction %s: %s", id, err.Error()))
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return txn, nil
}

func (s *PostgreSQLStore) GetTransactionByBookingID(bookingID string) (*models.Transaction, error) {
	s.log.LogDatabase("SELECT", "transactions", fmt.Sprintf("Fetching charge transaction for booking %s", bookingID))

	query := `
    SELECT id, COALESCE(booking_id, ''), COALESCE(payout_id, ''), talent_id,
           amount, talent_earnings, platform_fee, commission_rate,
           status, COALESCE(gateway_ref, ''), created_at
    FROM transactions WHERE booking_id = $1 AND amount > 0
    ORDER BY created_at ASC LIMIT 1
    `

	txn := &models.Transaction{}
	err := s.db.QueryRow(query, bookingID).Scan(
		&txn.ID, &txn.BookingID, &txn.PayoutID, &txn.TalentID,
		&txn.Amount, &txn.TalentEarnings, &txn.PlatformFee, &txn.CommissionRate,
		&txn.Status, &txn.GatewayRef, &txn.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			s.log.LogDatabase("NOT_FOUND", "transactions", fmt.Sprintf("No charge transaction for booking %s", bookingID))
			return nil, fmt.Errorf("transaction not found")
		}
		s.log.Error("DATABASE", fmt.Sprintf("Failed to get transaction for booking %s: %s", bookingID, err.Error()))
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return txn, nil
}

// SettleTransaction moves a pending transaction to its terminal status. The
// WHERE clause on status makes the settlement write-once: a replayed
// callback matches zero rows and returns false.
func (s *PostgreSQLStore) SettleTransaction(id string, status models.TransactionStatus, gatewayRef string) (bool, error) {
	s.log.LogDatabase("UPDATE", "transactions", fmt.Sprintf("Settling transaction %s as %s", id, status))

	query := `
    UPDATE transactions SET
        status = $1, gateway_ref = $2, settled_at = NOW()
    WHERE id = $3 AND status = 'pending'
    `

	res, err := s.db.Exec(query, status, gatewayRef, id)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to settle transaction %s: %s", id, err.Error()))
		return false, fmt.Errorf("failed to settle transaction: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read settle result: %w", err)
	}
	if rows == 0 {
		s.log.LogDatabase("SKIP", "transactions", fmt.Sprintf("Transaction %s already settled", id))
		return false, nil
	}

	s.log.LogDatabase("SUCCESS", "transactions", fmt.Sprintf("Transaction %s settled as %s", id, status))
	return true, nil
}

// AttachGatewayRef stores the gateway's charge reference on a still-pending
// transaction so the later callback can be correlated.
func (s *PostgreSQLStore) AttachGatewayRef(id, gatewayRef string) error {
	query := `UPDATE transactions SET gateway_ref = $1 WHERE id = $2 AND status = 'pending'`

	if _, err := s.db.Exec(query, gatewayRef, id); err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to attach gateway ref to %s: %s", id, err.Error()))
		return fmt.Errorf("failed to attach gateway ref: %w", err)
	}
	return nil
}

func (s *PostgreSQLStore) Close() error {
	s.log.LogDatabase("CLOSE", "postgresql", "Closing PostgreSQL connection")
	return s.db.Close()
}

func (s *PostgreSQLStore) HealthCheck() error {
	return s.db.Ping()
}
