package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
	"ms-settlement/internal/payout"
	"ms-settlement/internal/settlement"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *payout.Service
	Logger  *logger.Logger
}

func NewHandler(service *payout.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

type payoutRequestBody struct {
	TalentID    string `json:"talent_id"`
	Amount      int64  `json:"amount"`
	Method      string `json:"method"`
	Destination string `json:"destination"`
}

func (h *Handler) RequestPayout(w http.ResponseWriter, r *http.Request) {
	var body payoutRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid payout JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if body.TalentID == "" {
		http.Error(w, "talent_id is required", http.StatusBadRequest)
		return
	}

	req, err := h.Service.RequestPayout(r.Context(), body.TalentID, body.Amount, body.Method, body.Destination)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("RequestPayout failed: %v", err))
		var insufficient *settlement.InsufficientBalanceError
		switch {
		case errors.Is(err, settlement.ErrInvalidAmount):
			http.Error(w, "Payout amount must be positive", http.StatusBadRequest)
		case errors.As(err, &insufficient):
			writeJSONError(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"error":     "insufficient balance",
				"requested": insufficient.Requested,
				"available": insufficient.Available,
				"shortfall": insufficient.Requested - insufficient.Available,
			})
		case errors.Is(err, settlement.ErrBalanceUnknown):
			http.Error(w, "Balance could not be derived, try again later", http.StatusServiceUnavailable)
		case errors.Is(err, payout.ErrTalentBusy):
			http.Error(w, "Another payout operation is in progress", http.StatusConflict)
		default:
			http.Error(w, "Could not create payout request: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("RequestPayout: failed to encode response: %v", err))
	}
}

func (h *Handler) GetPayout(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestId")

	req, err := h.Service.GetRequest(r.Context(), requestID)
	if err != nil {
		http.Error(w, "Payout request not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetPayout: failed to encode response: %v", err))
	}
}

// ListPayouts returns payout requests, optionally filtered by ?status=.
// Admin-only, enforced by the route group.
func (h *Handler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	status := models.PayoutStatus(r.URL.Query().Get("status"))

	reqs, err := h.Service.ListRequests(r.Context(), status)
	if err != nil {
		http.Error(w, "Could not list payout requests: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(reqs); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListPayouts: failed to encode response: %v", err))
	}
}

type decisionBody struct {
	Decision string `json:"decision"`
	Notes    string `json:"notes"`
}

// DecidePayout approves or rejects a pending request. Admin-only, enforced
// by the route group.
func (h *Handler) DecidePayout(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestId")

	var body decisionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid decision JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	var decision models.PayoutStatus
	switch body.Decision {
	case "approve":
		decision = models.PayoutApproved
	case "reject":
		decision = models.PayoutRejected
	default:
		http.Error(w, "Decision must be 'approve' or 'reject'", http.StatusBadRequest)
		return
	}

	if err := h.Service.DecidePayout(r.Context(), requestID, decision, body.Notes); err != nil {
		h.Logger.Error("API", fmt.Sprintf("DecidePayout failed: %v", err))
		if errors.Is(err, settlement.ErrInvalidTransition) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, "Could not decide payout: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) MarkProcessed(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestId")

	if err := h.Service.MarkProcessed(r.Context(), requestID); err != nil {
		h.Logger.Error("API", fmt.Sprintf("MarkProcessed failed: %v", err))
		if errors.Is(err, settlement.ErrInvalidTransition) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, "Could not mark payout processed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSONError(w http.ResponseWriter, status int, payload map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
