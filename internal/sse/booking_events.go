package sse

import (
	"context"
	"sync"

	"ms-settlement/internal/models"
)

// BookingEventEmitter manages SSE connections and event broadcasting for
// booking lifecycle updates
type BookingEventEmitter struct {
	// Talent channel clients map - key: talentID, value: slice of client channels
	talentClients     map[string][]chan models.Booking
	talentClientMutex sync.RWMutex

	// Customer channel clients map - key: customerID, value: slice of client channels
	customerClients     map[string][]chan models.Booking
	customerClientMutex sync.RWMutex
}

// NewBookingEventEmitter creates a new SSE event emitter for booking updates
func NewBookingEventEmitter() *BookingEventEmitter {
	return &BookingEventEmitter{
		talentClients:   make(map[string][]chan models.Booking),
		customerClients: make(map[string][]chan models.Booking),
	}
}

// SubscribeToTalent adds a client to the talent's booking updates
func (e *BookingEventEmitter) SubscribeToTalent(ctx context.Context, talentID string) chan models.Booking {
	clientChan := make(chan models.Booking, 10)

	e.talentClientMutex.Lock()
	e.talentClients[talentID] = append(e.talentClients[talentID], clientChan)
	e.talentClientMutex.Unlock()

	// Remove client when context is done
	go func() {
		<-ctx.Done()
		e.removeTalentClient(talentID, clientChan)
	}()

	return clientChan
}

// SubscribeToCustomer adds a client to the customer's booking updates
func (e *BookingEventEmitter) SubscribeToCustomer(ctx context.Context, customerID string) chan models.Booking {
	clientChan := make(chan models.Booking, 10)

	e.customerClientMutex.Lock()
	e.customerClients[customerID] = append(e.customerClients[customerID], clientChan)
	e.customerClientMutex.Unlock()

	// Remove client when context is done
	go func() {
		<-ctx.Done()
		e.removeCustomerClient(customerID, clientChan)
	}()

	return clientChan
}

// EmitBookingUpdate broadcasts a booking state change to all subscribed
// clients on both sides of the booking. Nil-receiver safe so callers can
// run without an emitter wired.
func (e *BookingEventEmitter) EmitBookingUpdate(booking models.Booking) {
	if e == nil {
		return
	}

	e.talentClientMutex.RLock()
	talentChans := e.talentClients[booking.TalentID]
	e.talentClientMutex.RUnlock()

	for _, clientChan := range talentChans {
		// Non-blocking send: a slow client misses the update rather than
		// stalling the emitter
		select {
		case clientChan <- booking:
		default:
		}
	}

	e.customerClientMutex.RLock()
	customerChans := e.customerClients[booking.CustomerID]
	e.customerClientMutex.RUnlock()

	for _, clientChan := range customerChans {
		select {
		case clientChan <- booking:
		default:
		}
	}
}

// Helper methods to remove clients when they disconnect
func (e *BookingEventEmitter) removeTalentClient(talentID string, clientChan chan models.Booking) {
	e.talentClientMutex.Lock()
	defer e.talentClientMutex.Unlock()

	clients := e.talentClients[talentID]
	for i, ch := range clients {
		if ch == clientChan {
			e.talentClients[talentID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}

	if len(e.talentClients[talentID]) == 0 {
		delete(e.talentClients, talentID)
	}
}

func (e *BookingEventEmitter) removeCustomerClient(customerID string, clientChan chan models.Booking) {
	e.customerClientMutex.Lock()
	defer e.customerClientMutex.Unlock()

	clients := e.customerClients[customerID]
	for i, ch := range clients {
		if ch == clientChan {
			e.customerClients[customerID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}

	if len(e.customerClients[customerID]) == 0 {
		delete(e.customerClients, customerID)
	}
}

// GetTalentClientCount returns the number of clients currently subscribed
// to a talent's updates
func (e *BookingEventEmitter) GetTalentClientCount(talentID string) int {
	e.talentClientMutex.RLock()
	defer e.talentClientMutex.RUnlock()
	return len(e.talentClients[talentID])
}

// GetCustomerClientCount returns the number of clients currently subscribed
// to a customer's updates
func (e *BookingEventEmitter) GetCustomerClientCount(customerID string) int {
	e.customerClientMutex.RLock()
	defer e.customerClientMutex.RUnlock()
	return len(e.customerClients[customerID])
}
