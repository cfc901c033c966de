package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"chargepark/backend/services/sessions-service/internal/service"
)

// SessionsHandler serves progress, stop, departure and totals.
type SessionsHandler struct {
	svc    *service.SessionsService
	logger *zap.Logger
}

// NewSessionsHandler builds handler set.
func NewSessionsHandler(svc *service.SessionsService, logger *zap.Logger) *SessionsHandler {
	return &SessionsHandler{svc: svc, logger: logger}
}

// Progress handles GET /api/v1/sessions/{id}/progress.
func (h *SessionsHandler) Progress(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.ids(w, r)
	if !ok {
		return
	}
	if _, err := h.svc.SessionForUser(r.Context(), userID, sessionID); err != nil {
		writeServiceError(w, h.logger, "progress", err)
		return
	}
	progress, err := h.svc.ReportProgress(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, h.logger, "progress", err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// Stop handles POST /api/v1/sessions/{id}/stop.
func (h *SessionsHandler) Stop(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.ids(w, r)
	if !ok {
		return
	}
	session, err := h.svc.StopCharging(r.Context(), userID, sessionID)
	if err != nil {
		writeServiceError(w, h.logger, "stop charging", err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Depart handles POST /api/v1/sessions/{id}/depart.
func (h *SessionsHandler) Depart(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.ids(w, r)
	if !ok {
		return
	}
	result, err := h.svc.ConfirmDeparture(r.Context(), userID, sessionID)
	if err != nil {
		writeServiceError(w, h.logger, "confirm departure", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Total handles GET /api/v1/sessions/{id}/total.
func (h *SessionsHandler) Total(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.ids(w, r)
	if !ok {
		return
	}
	total, err := h.svc.SessionTotal(r.Context(), userID, sessionID)
	if err != nil {
		writeServiceError(w, h.logger, "session total", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session_id": sessionID, "total": total})
}

func (h *SessionsHandler) ids(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	userID, ok := currentUser(w, r)
	if !ok {
		return 0, 0, false
	}
	sessionID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return 0, 0, false
	}
	return userID, sessionID, true
}
