package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ms-settlement/internal/logger"
	"ms-settlement/internal/settlement"
	"ms-settlement/internal/tier"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *tier.Service
	Logger  *logger.Logger
}

func NewHandler(service *tier.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// GetTier answers the tier a talent's new bookings are priced at.
func (h *Handler) GetTier(w http.ResponseWriter, r *http.Request) {
	talentID := chi.URLParam(r, "talentId")

	current, err := h.Service.CurrentTier(r.Context(), talentID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetTier failed for %s: %v", talentID, err))
		http.Error(w, "Could not read tier: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{
		"talent_id":       talentID,
		"tier":            current,
		"commission_rate": settlement.CommissionRate(current),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetTier: failed to encode response: %v", err))
	}
}
