package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ms-settlement/internal/ledger"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/settlement"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service  *ledger.Service
	Currency string
	Logger   *logger.Logger
}

func NewHandler(service *ledger.Service, currency string, log *logger.Logger) *Handler {
	return &Handler{Service: service, Currency: currency, Logger: log}
}

type balanceResponse struct {
	TalentID  string    `json:"talent_id"`
	Available int64     `json:"available"`
	Currency  string    `json:"currency"`
	AsOf      time.Time `json:"as_of"`
}

// GetBalance derives the talent's available balance at request time.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	talentID := chi.URLParam(r, "talentId")

	available, err := h.Service.AvailableBalance(r.Context(), talentID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetBalance failed for %s: %v", talentID, err))
		if errors.Is(err, settlement.ErrBalanceUnknown) {
			http.Error(w, "Balance could not be derived, try again later", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "Could not compute balance: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := balanceResponse{
		TalentID:  talentID,
		Available: available,
		Currency:  h.Currency,
		AsOf:      time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetBalance: failed to encode response: %v", err))
	}
}

// GetHistory returns the transaction log backing the balance.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	talentID := chi.URLParam(r, "talentId")

	txns, err := h.Service.History(r.Context(), talentID)
	if err != nil {
		http.Error(w, "Could not list transactions: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(txns); err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetHistory: failed to encode response: %v", err))
	}
}
