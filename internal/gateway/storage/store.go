package storage

import "ms-settlement/internal/models"

// Store is the gateway's view of the transactions table. It only ever
// touches booking-linked charge transactions; payout transactions belong to
// the settlement service.
type Store interface {
	GetTransaction(id string) (*models.Transaction, error)
	GetTransactionByBookingID(bookingID string) (*models.Transaction, error)
	SettleTransaction(id string, status models.TransactionStatus, gatewayRef string) (bool, error)
	AttachGatewayRef(id, gatewayRef string) error
	Close() error
	HealthCheck() error
}
