package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ms-settlement/internal/auth"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
	"ms-settlement/internal/sse"

	"github.com/go-chi/chi/v5"
)

// SSEHandler exposes Server-Sent Events streams of booking updates, one
// per talent and one per customer. The emitter is shared with the booking
// service, which broadcasts on every state change.
type SSEHandler struct {
	Logger       *logger.Logger
	EventEmitter *sse.BookingEventEmitter
}

func NewSSEHandler(log *logger.Logger, emitter *sse.BookingEventEmitter) *SSEHandler {
	return &SSEHandler{Logger: log, EventEmitter: emitter}
}

// HandleTalentBookings streams booking updates for a talent. Only the
// talent themselves or an admin may subscribe.
func (h *SSEHandler) HandleTalentBookings(w http.ResponseWriter, r *http.Request) {
	talentID := chi.URLParam(r, "talentId")
	if talentID == "" {
		http.Error(w, "Talent ID is required", http.StatusBadRequest)
		return
	}

	if auth.UserID(r.Context()) != talentID && auth.Role(r.Context()) != "admin" {
		http.Error(w, "Unauthorized access", http.StatusForbidden)
		return
	}

	h.stream(w, r, talentID, h.EventEmitter.SubscribeToTalent(r.Context(), talentID))
}

// HandleCustomerBookings streams booking updates for a customer.
func (h *SSEHandler) HandleCustomerBookings(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerId")
	if customerID == "" {
		http.Error(w, "Customer ID is required", http.StatusBadRequest)
		return
	}

	if auth.UserID(r.Context()) != customerID && auth.Role(r.Context()) != "admin" {
		http.Error(w, "Unauthorized access", http.StatusForbidden)
		return
	}

	h.stream(w, r, customerID, h.EventEmitter.SubscribeToCustomer(r.Context(), customerID))
}

func (h *SSEHandler) stream(w http.ResponseWriter, r *http.Request, subject string, updates chan models.Booking) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	setupSSEHeaders(w)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"subject\":\"%s\"}\n\n", subject)
	flusher.Flush()

	h.Logger.Info("SSE", fmt.Sprintf("client connected to booking updates for %s", subject))

	ctx := r.Context()
	for {
		select {
		case booking, open := <-updates:
			if !open {
				return
			}
			jsonData, err := json.Marshal(booking)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("failed to serialize booking update: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: booking\ndata: %s\n\n", jsonData)
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("client disconnected from booking updates for %s", subject))
			return
		}
	}
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
