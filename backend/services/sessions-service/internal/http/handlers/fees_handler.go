package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"chargepark/backend/services/sessions-service/internal/models"
	"chargepark/backend/services/sessions-service/internal/service"
)

// FeesHandler serves payment, fee history and account unlock.
type FeesHandler struct {
	svc    *service.PenaltyService
	logger *zap.Logger
}

// NewFeesHandler builds handler set.
func NewFeesHandler(svc *service.PenaltyService, logger *zap.Logger) *FeesHandler {
	return &FeesHandler{svc: svc, logger: logger}
}

type payRequest struct {
	FeeIDs []int64 `json:"fee_ids"`
}

// Pay handles POST /api/v1/fees/pay.
func (h *FeesHandler) Pay(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req payRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	result, err := h.svc.PayFees(r.Context(), userID, req.FeeIDs)
	if err != nil {
		writeServiceError(w, h.logger, "pay fees", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// History handles GET /api/v1/fees.
func (h *FeesHandler) History(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.svc.FeeHistory)
}

// Unpaid handles GET /api/v1/fees/unpaid.
func (h *FeesHandler) Unpaid(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.svc.GetUnpaidFees)
}

// Unlock handles POST /api/v1/users/me/unlock.
func (h *FeesHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	unlocked, err := h.svc.UnlockUserAfterPayment(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, "unlock", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"unlocked": unlocked})
}

func (h *FeesHandler) list(w http.ResponseWriter, r *http.Request, fetch func(context.Context, int64) ([]models.Fee, error)) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	fees, err := fetch(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, "list fees", err)
		return
	}
	if fees == nil {
		fees = []models.Fee{}
	}
	writeJSON(w, http.StatusOK, fees)
}
