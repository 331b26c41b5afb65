package models

import "time"

// CustomerDetails is the minimum the gateway needs to raise a charge.
type CustomerDetails struct {
	CustomerID string `json:"customer_id"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// ChargeRequest asks the gateway service to collect a booking's customer
// charge.
type ChargeRequest struct {
	BookingID string          `json:"booking_id"`
	Amount    int64           `json:"amount"`
	Currency  string          `json:"currency,omitempty"`
	Customer  CustomerDetails `json:"customer"`
}

// ChargeResult is the gateway's opaque reference back to the caller.
type ChargeResult struct {
	BookingID  string        `json:"booking_id"`
	GatewayRef string        `json:"gateway_ref"`
	Status     PaymentStatus `json:"status"`
	Amount     int64         `json:"amount"`
	Currency   string        `json:"currency"`
	Created    time.Time     `json:"created"`
}

// GatewayCallback is the inbound webhook payload after signature
// verification: the order correlation plus the gateway's own status word,
// which the service maps onto the internal payment status.
type GatewayCallback struct {
	BookingID     string `json:"booking_id"`
	GatewayRef    string `json:"gateway_ref"`
	GatewayStatus string `json:"gateway_status"`
}
