package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ms-settlement/internal/gateway/storage"
	"ms-settlement/internal/kafka"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
	"ms-settlement/internal/utils"

	"github.com/gin-gonic/gin"
)

// Charger is the processor-facing half of the gateway, satisfied by the
// Stripe service in production.
type Charger interface {
	CreateCharge(ctx context.Context, req *models.ChargeRequest) (*models.ChargeResult, error)
	CheckCharge(ctx context.Context, gatewayRef string) (models.PaymentStatus, error)
}

type ChargeHandler struct {
	charger      Charger
	store        storage.Store
	producer     kafka.Publisher
	paymentTopic string
	logger       *logger.Logger
}

func NewChargeHandler(charger Charger, store storage.Store, producer kafka.Publisher, paymentTopic string, log *logger.Logger) *ChargeHandler {
	return &ChargeHandler{
		charger:      charger,
		store:        store,
		producer:     producer,
		paymentTopic: paymentTopic,
		logger:       log,
	}
}

// CreateCharge raises a processor charge for a booking's pending
// transaction. The amount always comes from the stored transaction, never
// from the request body.
func (h *ChargeHandler) CreateCharge(c *gin.Context) {
	var req models.ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}
	if req.BookingID == "" {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", "booking_id is required"))
		return
	}

	txn, err := h.store.GetTransactionByBookingID(req.BookingID)
	if err != nil {
		h.logger.Info("GATEWAY", fmt.Sprintf("No charge transaction found for booking %s", req.BookingID))
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request",
			"No transaction record found for this booking_id"))
		return
	}

	if txn.Status != models.TxPending {
		c.JSON(http.StatusConflict, utils.ErrorResponse("Transaction already settled",
			fmt.Sprintf("Transaction %s is %s", txn.ID, txn.Status)))
		return
	}

	// Idempotent retry: a charge already exists for this transaction, so
	// report its current processor status instead of opening another.
	if txn.GatewayRef != "" {
		status, err := h.charger.CheckCharge(c.Request.Context(), txn.GatewayRef)
		if err != nil {
			c.JSON(http.StatusBadGateway, utils.ErrorResponse("Charge status check failed", err.Error()))
			return
		}
		c.JSON(http.StatusOK, utils.SuccessResponse("Charge already exists", &models.ChargeResult{
			BookingID:  req.BookingID,
			GatewayRef: txn.GatewayRef,
			Status:     status,
			Amount:     txn.Amount,
		}))
		return
	}

	req.Amount = txn.Amount
	h.logger.LogGateway("CHARGE", req.BookingID,
		fmt.Sprintf("amount=%d from transaction %s requested by %s", req.Amount, txn.ID, c.GetString("user_id")))

	result, err := h.charger.CreateCharge(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusBadGateway, utils.ErrorResponse("Charge creation failed", err.Error()))
		return
	}

	if err := h.store.AttachGatewayRef(txn.ID, result.GatewayRef); err != nil {
		h.logger.Error("GATEWAY", fmt.Sprintf("Failed to attach gateway ref %s to %s: %v", result.GatewayRef, txn.ID, err))
	}

	// Synchronous settlement happens with some processors (and in tests);
	// the usual path is the async callback.
	if result.Status == models.PaymentPaid || result.Status == models.PaymentFailed {
		h.settle(c.Request.Context(), txn, result.Status, result.GatewayRef)
	}

	c.JSON(http.StatusCreated, utils.SuccessResponse("Charge created", result))
}

// HandleCallback receives the processor's asynchronous settlement
// notification. Replays are absorbed by the write-once settle.
func (h *ChargeHandler) HandleCallback(c *gin.Context) {
	var cb models.GatewayCallback
	if err := c.ShouldBindJSON(&cb); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid callback payload", err.Error()))
		return
	}
	if cb.BookingID == "" {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid callback payload", "booking_id is required"))
		return
	}

	status := mapCallbackStatus(cb.GatewayStatus)
	if status == models.PaymentPending {
		// Interim notification, nothing to settle yet.
		c.JSON(http.StatusOK, utils.SuccessResponse("Callback acknowledged", nil))
		return
	}

	txn, err := h.store.GetTransactionByBookingID(cb.BookingID)
	if err != nil {
		c.JSON(http.StatusNotFound, utils.ErrorResponse("Unknown booking", cb.BookingID))
		return
	}

	settled := h.settle(c.Request.Context(), txn, status, cb.GatewayRef)
	if !settled {
		h.logger.LogGateway("CALLBACK", cb.GatewayRef, fmt.Sprintf("replayed callback ignored for booking %s", cb.BookingID))
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Callback processed", map[string]interface{}{
		"booking_id": cb.BookingID,
		"status":     status,
		"settled":    settled,
	}))
}

// GetChargeStatus reports the stored settlement state of a booking's charge.
func (h *ChargeHandler) GetChargeStatus(c *gin.Context) {
	bookingID := c.Param("bookingId")

	txn, err := h.store.GetTransactionByBookingID(bookingID)
	if err != nil {
		c.JSON(http.StatusNotFound, utils.ErrorResponse("Unknown booking", bookingID))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Charge status", map[string]interface{}{
		"booking_id":  bookingID,
		"amount":      txn.Amount,
		"status":      txn.Status,
		"gateway_ref": txn.GatewayRef,
	}))
}

// settle finalizes the transaction and publishes the payment event that
// moves the booking's payment status. Returns false when the transaction
// was already settled.
func (h *ChargeHandler) settle(ctx context.Context, txn *models.Transaction, status models.PaymentStatus, gatewayRef string) bool {
	txStatus := models.TxPaid
	if status == models.PaymentFailed {
		txStatus = models.TxFailed
	}

	ok, err := h.store.SettleTransaction(txn.ID, txStatus, gatewayRef)
	if err != nil {
		h.logger.Error("GATEWAY", fmt.Sprintf("Failed to settle transaction %s: %v", txn.ID, err))
		return false
	}
	if !ok {
		return false
	}

	event := models.PaymentEvent{
		TransactionID: txn.ID,
		BookingID:     txn.BookingID,
		TalentID:      txn.TalentID,
		Status:        status,
		GatewayRef:    gatewayRef,
		Timestamp:     time.Now(),
	}
	if err := kafka.PublishPaymentEvent(h.producer, h.paymentTopic, event); err != nil {
		h.logger.Error("KAFKA", fmt.Sprintf("Failed to publish payment event for %s: %v", txn.BookingID, err))
	} else {
		h.logger.LogKafka("PUBLISH", h.paymentTopic, fmt.Sprintf("payment %s for booking %s", status, txn.BookingID))
	}
	return true
}

// mapCallbackStatus normalizes the processor's status word. Unknown words
// read as failed so a mangled callback never marks a charge paid.
func mapCallbackStatus(gatewayStatus string) models.PaymentStatus {
	switch strings.ToLower(gatewayStatus) {
	case "succeeded", "success", "settlement", "capture", "paid":
		return models.PaymentPaid
	case "pending", "processing", "authorize", "requires_action":
		return models.PaymentPending
	default:
		return models.PaymentFailed
	}
}
