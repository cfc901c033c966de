package handlers

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"chargepark/backend/services/sessions-service/internal/models"
)

// Inbox reads the most recent notifications of a user.
type Inbox interface {
	Recent(ctx context.Context, userID int64, limit int) ([]models.Notification, error)
}

const (
	defaultInboxLimit = 20
	maxInboxLimit     = 100
)

// NotificationsHandler serves the notification inbox.
type NotificationsHandler struct {
	inbox  Inbox
	logger *zap.Logger
}

// NewNotificationsHandler builds handler. inbox may be nil when no inbox
// backend is configured.
func NewNotificationsHandler(inbox Inbox, logger *zap.Logger) *NotificationsHandler {
	return &NotificationsHandler{inbox: inbox, logger: logger}
}

// List handles GET /api/v1/notifications?limit=N.
func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if h.inbox == nil {
		writeError(w, http.StatusNotImplemented, "notification inbox is not configured")
		return
	}

	limit := defaultInboxLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxInboxLimit)
	}

	items, err := h.inbox.Recent(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("read notification inbox", zap.Int64("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if items == nil {
		items = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, items)
}
