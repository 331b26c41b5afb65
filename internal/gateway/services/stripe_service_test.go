package services_test

import (
	"testing"

	"ms-settlement/internal/gateway/services"
	"ms-settlement/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v82"
)

func TestMapIntentStatus(t *testing.T) {
	cases := []struct {
		status stripe.PaymentIntentStatus
		want   models.PaymentStatus
	}{
		{stripe.PaymentIntentStatusSucceeded, models.PaymentPaid},
		{stripe.PaymentIntentStatusProcessing, models.PaymentPending},
		{stripe.PaymentIntentStatusRequiresAction, models.PaymentPending},
		{stripe.PaymentIntentStatusRequiresConfirmation, models.PaymentPending},
		{stripe.PaymentIntentStatusRequiresPaymentMethod, models.PaymentPending},
		{stripe.PaymentIntentStatusCanceled, models.PaymentFailed},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, services.MapIntentStatus(tc.status), "status %s", tc.status)
	}
}

func TestMapIntentStatusUnknownFailsSafe(t *testing.T) {
	assert.Equal(t, models.PaymentFailed, services.MapIntentStatus("some_future_status"))
}
