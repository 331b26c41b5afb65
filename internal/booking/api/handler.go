package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ms-settlement/internal/booking"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
	"ms-settlement/internal/settlement"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *booking.Service
	Logger  *logger.Logger
}

func NewHandler(service *booking.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req models.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid booking JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.Service.CreateBooking(r.Context(), req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateBooking failed: %v", err))
		if errors.Is(err, settlement.ErrInvalidAmount) {
			http.Error(w, "Base price must be positive", http.StatusBadRequest)
			return
		}
		http.Error(w, "Could not create booking: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(created); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateBooking: failed to encode response: %v", err))
	}
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")

	b, err := h.Service.GetBooking(r.Context(), bookingID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetBooking: booking not found: %v", err))
		http.Error(w, "Booking not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(b); err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetBooking: failed to encode response: %v", err))
	}
}

// AdvanceBooking moves the booking one step forward in its lifecycle.
func (h *Handler) AdvanceBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	h.Logger.Info("API", fmt.Sprintf("AdvanceBooking: bookingId=%s", bookingID))

	b, err := h.Service.Advance(r.Context(), bookingID)
	if err != nil {
		switch {
		case errors.Is(err, settlement.ErrPaymentNotSettled):
			http.Error(w, "Payment not settled: booking cannot progress until the charge is paid", http.StatusConflict)
		case errors.Is(err, settlement.ErrInvalidTransition):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, "Could not advance booking: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(b); err != nil {
		h.Logger.Error("API", fmt.Sprintf("AdvanceBooking: failed to encode response: %v", err))
	}
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	h.Logger.Info("API", fmt.Sprintf("CancelBooking: bookingId=%s", bookingID))

	if err := h.Service.Cancel(r.Context(), bookingID); err != nil {
		if errors.Is(err, settlement.ErrInvalidTransition) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, "Could not cancel booking: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListTalentBookings(w http.ResponseWriter, r *http.Request) {
	talentID := chi.URLParam(r, "talentId")

	bookings, err := h.Service.ListByTalent(r.Context(), talentID)
	if err != nil {
		http.Error(w, "Could not list bookings: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(bookings); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListTalentBookings: failed to encode response: %v", err))
	}
}

func (h *Handler) ListCustomerBookings(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerId")

	bookings, err := h.Service.ListByCustomer(r.Context(), customerID)
	if err != nil {
		http.Error(w, "Could not list bookings: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(bookings); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListCustomerBookings: failed to encode response: %v", err))
	}
}
