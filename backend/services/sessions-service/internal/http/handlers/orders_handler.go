package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"chargepark/backend/services/sessions-service/internal/models"
	"chargepark/backend/services/sessions-service/internal/service"
)

// OrdersHandler serves booking, cancellation and session start.
type OrdersHandler struct {
	svc    *service.SessionsService
	logger *zap.Logger
}

// NewOrdersHandler builds handler set.
func NewOrdersHandler(svc *service.SessionsService, logger *zap.Logger) *OrdersHandler {
	return &OrdersHandler{svc: svc, logger: logger}
}

type bookRequest struct {
	ChargingPointID int64     `json:"charging_point_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	StartedBattery  float64   `json:"started_battery"`
	ExpectedBattery float64   `json:"expected_battery"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type startRequest struct {
	VehicleID int64   `json:"vehicle_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Book handles POST /api/v1/orders.
func (h *OrdersHandler) Book(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req bookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	order, err := h.svc.Book(r.Context(), service.BookInput{
		UserID:          userID,
		ChargingPointID: req.ChargingPointID,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		StartedBattery:  req.StartedBattery,
		ExpectedBattery: req.ExpectedBattery,
	})
	if err != nil {
		writeServiceError(w, h.logger, "book", err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// Cancel handles POST /api/v1/orders/{id}/cancel.
func (h *OrdersHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	result, err := h.svc.Cancel(r.Context(), userID, orderID, req.Reason)
	if err != nil {
		writeServiceError(w, h.logger, "cancel", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Start handles POST /api/v1/orders/{id}/start.
func (h *OrdersHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.VehicleID <= 0 {
		writeError(w, http.StatusBadRequest, "vehicle_id is required")
		return
	}

	session, err := h.svc.StartSession(r.Context(), service.StartSessionInput{
		UserID:    userID,
		OrderID:   orderID,
		VehicleID: req.VehicleID,
		Location:  models.Location{Latitude: req.Latitude, Longitude: req.Longitude},
	})
	if err != nil {
		writeServiceError(w, h.logger, "start session", err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}
