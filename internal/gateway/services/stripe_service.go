package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

var (
	ErrStripeAPIError         = errors.New("stripe API error")
	ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")
)

// StripeService raises customer charges through Stripe and maps the
// processor's intent statuses onto the internal payment statuses.
type StripeService struct {
	client   *client.API
	currency string
	log      *logger.Logger
}

func NewStripeService(currency string, log *logger.Logger) (*StripeService, error) {
	stripeKey := os.Getenv("STRIPE_SECRET_KEY")
	if stripeKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(stripeKey, nil)
	if sc == nil {
		log.Error("STRIPE", "Failed to initialize Stripe client")
		return nil, ErrStripeClientInitFailed
	}

	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeService{
		client:   sc,
		currency: currency,
		log:      log,
	}, nil
}

// CreateCharge opens a payment intent for the booking's customer charge.
// Amounts arrive in whole currency units; Stripe counts the smallest unit,
// so they are scaled by 100 on the way in.
func (s *StripeService) CreateCharge(ctx context.Context, req *models.ChargeRequest) (*models.ChargeResult, error) {
	if req.Amount <= 0 {
		s.log.Error("STRIPE", fmt.Sprintf("Invalid charge amount for booking %s: %d", req.BookingID, req.Amount))
		return nil, fmt.Errorf("invalid charge amount: %d", req.Amount)
	}

	currency := req.Currency
	if currency == "" {
		currency = s.currency
	}

	metadata := map[string]string{
		"booking_id":  req.BookingID,
		"customer_id": req.Customer.CustomerID,
	}

	piParams := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount * 100),
		Currency:           stripe.String(currency),
		Description:        stripe.String(fmt.Sprintf("Booking %s", req.BookingID)),
		Metadata:           metadata,
		PaymentMethodTypes: []*string{stripe.String("card")},
	}

	s.log.Info("STRIPE", fmt.Sprintf("Creating payment intent for booking %s, amount %d %s", req.BookingID, req.Amount, currency))
	pi, err := s.client.PaymentIntents.New(piParams)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to create payment intent for booking %s: %v", req.BookingID, err))
		return nil, fmt.Errorf("%w: %v", ErrStripeAPIError, err)
	}
	s.log.Info("STRIPE", fmt.Sprintf("Payment intent created: %s (booking %s)", pi.ID, req.BookingID))

	return &models.ChargeResult{
		BookingID:  req.BookingID,
		GatewayRef: pi.ID,
		Status:     MapIntentStatus(pi.Status),
		Amount:     pi.Amount / 100,
		Currency:   string(pi.Currency),
		Created:    time.Unix(pi.Created, 0),
	}, nil
}

// CheckCharge fetches the current processor-side status of an intent.
func (s *StripeService) CheckCharge(ctx context.Context, gatewayRef string) (models.PaymentStatus, error) {
	pi, err := s.client.PaymentIntents.Get(gatewayRef, nil)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to fetch payment intent %s: %v", gatewayRef, err))
		return "", fmt.Errorf("%w: %v", ErrStripeAPIError, err)
	}
	return MapIntentStatus(pi.Status), nil
}

// MapIntentStatus collapses Stripe's intent lifecycle onto the three
// internal payment states. Anything still in flight reads as pending.
func MapIntentStatus(status stripe.PaymentIntentStatus) models.PaymentStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return models.PaymentPaid
	case stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresPaymentMethod:
		return models.PaymentPending
	default:
		return models.PaymentFailed
	}
}
