package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"chargepark/backend/services/sessions-service/internal/metrics"
	"chargepark/backend/services/sessions-service/internal/models"
	"chargepark/backend/services/sessions-service/internal/repository"
)

// CompletionReason says what ended the charging phase.
type CompletionReason string

// Completion reasons.
const (
	CompletionUser          CompletionReason = "USER"
	CompletionTargetReached CompletionReason = "TARGET_REACHED"
	CompletionStuck         CompletionReason = "STUCK"
)

// SessionsService owns the order and session state machine:
// BOOKED -> CHARGING -> PARKING -> COMPLETED, or BOOKED -> CANCELED.
type SessionsService struct {
	orders    OrderRepository
	sessions  SessionRepository
	users     UserRepository
	catalog   Catalog
	penalties *PenaltyService
	units     *unitRunner
	clock     Clock
	rules     Rules
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// SessionsDeps groups the collaborators of SessionsService.
type SessionsDeps struct {
	Tx         TxManager
	Orders     OrderRepository
	Sessions   SessionRepository
	Users      UserRepository
	Catalog    Catalog
	Penalties  *PenaltyService
	Dispatcher *NotificationDispatcher
	Clock      Clock
	Rules      Rules
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// NewSessionsService builds service.
func NewSessionsService(deps SessionsDeps) *SessionsService {
	return &SessionsService{
		orders:    deps.Orders,
		sessions:  deps.Sessions,
		users:     deps.Users,
		catalog:   deps.Catalog,
		penalties: deps.Penalties,
		units:     &unitRunner{tx: deps.Tx, dispatcher: deps.Dispatcher},
		clock:     deps.Clock,
		rules:     deps.Rules.WithDefaults(),
		logger:    deps.Logger.Named("sessions"),
		metrics:   deps.Metrics,
	}
}

// BookInput describes a reservation request.
type BookInput struct {
	UserID          int64
	ChargingPointID int64
	StartTime       time.Time
	EndTime         time.Time
	StartedBattery  float64
	ExpectedBattery float64
}

// StartSessionInput describes a start request made at the charging point.
type StartSessionInput struct {
	UserID    int64
	OrderID   int64
	VehicleID int64
	Location  models.Location
}

// SessionProgress is the read-only live view of a session.
type SessionProgress struct {
	SessionID     int64                `json:"session_id"`
	OrderID       int64                `json:"order_id"`
	UserID        int64                `json:"user_id"`
	Status        models.SessionStatus `json:"status"`
	TargetBattery float64              `json:"target_battery"`
	Progress
}

// CancelResult is the outcome of a user cancellation.
type CancelResult struct {
	OrderID int64       `json:"order_id"`
	Fee     *models.Fee `json:"fee,omitempty"`
}

// DepartureResult is the outcome of ConfirmDeparture.
type DepartureResult struct {
	Session    *models.Session `json:"session"`
	ParkingFee *models.Fee     `json:"parking_fee,omitempty"`
	Total      float64         `json:"total"`
}

// Book reserves a charging point for a time window.
func (s *SessionsService) Book(ctx context.Context, input BookInput) (*models.Order, error) {
	now := s.clock.Now()
	if err := validateBooking(input, now, s.rules.NoShowThreshold); err != nil {
		return nil, err
	}

	order := &models.Order{
		UserID:          input.UserID,
		ChargingPointID: input.ChargingPointID,
		StartTime:       input.StartTime.UTC(),
		EndTime:         input.EndTime.UTC(),
		Status:          models.OrderStatusBooked,
		StartedBattery:  input.StartedBattery,
		ExpectedBattery: input.ExpectedBattery,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.units.run(ctx, func(ctx context.Context) error {
		user, err := s.users.GetForUpdate(ctx, input.UserID)
		if err != nil {
			return lookupErr(err, "user", input.UserID)
		}
		if user.Status == models.UserStatusBanned {
			return fmt.Errorf("%w: user %d is banned", ErrForbidden, input.UserID)
		}
		if _, err := s.catalog.GetChargingPoint(ctx, input.ChargingPointID); err != nil {
			return lookupErr(err, "charging point", input.ChargingPointID)
		}
		if err := s.orders.LockChargingPoint(ctx, input.ChargingPointID); err != nil {
			return fmt.Errorf("lock charging point %d: %w", input.ChargingPointID, err)
		}
		overlap, err := s.orders.HasActiveOverlap(ctx, input.ChargingPointID, input.UserID, order.StartTime, order.EndTime)
		if err != nil {
			return fmt.Errorf("check overlap: %w", err)
		}
		if overlap {
			return fmt.Errorf("%w: time window already booked", ErrConflict)
		}
		if err := s.orders.Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		s.units.notify(ctx, order.UserID, models.NotificationGeneral, "Booking confirmed",
			fmt.Sprintf("Order #%d starts at %s.", order.ID, order.StartTime.Format(time.RFC3339)))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order booked",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", order.UserID),
		zap.Int64("charging_point_id", order.ChargingPointID),
		zap.Time("start_time", order.StartTime),
	)
	return order, nil
}

// Cancel cancels a booked order on behalf of its owner.
func (s *SessionsService) Cancel(ctx context.Context, userID, orderID int64, reason string) (*CancelResult, error) {
	fee, err := s.penalties.HandleLateCancellation(ctx, orderID, userID, reason)
	if err != nil {
		return nil, err
	}
	return &CancelResult{OrderID: orderID, Fee: fee}, nil
}

// StartSession activates a BOOKED order when the driver is near the charging point.
func (s *SessionsService) StartSession(ctx context.Context, input StartSessionInput) (*models.Session, error) {
	var session *models.Session
	err := s.units.run(ctx, func(ctx context.Context) error {
		order, err := s.orders.GetForUpdate(ctx, input.OrderID)
		if err != nil {
			return lookupErr(err, "order", input.OrderID)
		}
		if order.UserID != input.UserID {
			return fmt.Errorf("%w: order %d belongs to another user", ErrForbidden, order.ID)
		}
		if order.Status != models.OrderStatusBooked {
			return fmt.Errorf("%w: order %d is %s", ErrInvalidState, order.ID, order.Status)
		}

		vehicle, err := s.catalog.GetVehicle(ctx, input.VehicleID)
		if err != nil {
			return lookupErr(err, "vehicle", input.VehicleID)
		}
		if vehicle.UserID != input.UserID {
			return fmt.Errorf("%w: vehicle %d belongs to another user", ErrForbidden, vehicle.ID)
		}

		point, err := s.catalog.GetChargingPoint(ctx, order.ChargingPointID)
		if err != nil {
			return lookupErr(err, "charging point", order.ChargingPointID)
		}
		pointLocation := models.Location{Latitude: point.Latitude, Longitude: point.Longitude}
		if d := DistanceMeters(input.Location, pointLocation); d > s.rules.ProximityRadiusMeters {
			return fmt.Errorf("%w: %.0fm from charging point, limit %.0fm", ErrOutOfRange, d, s.rules.ProximityRadiusMeters)
		}

		now := s.clock.Now()
		session = &models.Session{
			OrderID:   order.ID,
			UserID:    order.UserID,
			VehicleID: vehicle.ID,
			Status:    models.SessionStatusCharging,
			StartTime: now,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.sessions.Create(ctx, session); err != nil {
			return fmt.Errorf("create session: %w", err)
		}

		order.Status = models.OrderStatusCharging
		order.UpdatedAt = now
		if err := s.orders.Update(ctx, order); err != nil {
			return fmt.Errorf("update order %d: %w", order.ID, err)
		}
		s.metrics.Transition("order", string(models.OrderStatusBooked), string(models.OrderStatusCharging))
		s.units.notify(ctx, order.UserID, models.NotificationSession, "Charging started",
			fmt.Sprintf("Session #%d started at %s.", session.ID, point.StationName))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("session started",
		zap.Int64("session_id", session.ID),
		zap.Int64("order_id", session.OrderID),
		zap.Int64("vehicle_id", session.VehicleID),
	)
	return session, nil
}

// ReportProgress derives elapsed time, energy, cost and battery level without
// mutating anything.
func (s *SessionsService) ReportProgress(ctx context.Context, sessionID int64) (*SessionProgress, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, lookupErr(err, "session", sessionID)
	}
	order, err := s.orders.GetByID(ctx, session.OrderID)
	if err != nil {
		return nil, lookupErr(err, "order", session.OrderID)
	}
	progress, err := s.deriveProgress(ctx, session, order, s.clock.Now())
	if err != nil {
		return nil, err
	}

	return &SessionProgress{
		SessionID:     session.ID,
		OrderID:       order.ID,
		UserID:        session.UserID,
		Status:        session.Status,
		TargetBattery: order.ExpectedBattery,
		Progress:      progress,
	}, nil
}

// StopCharging is the driver's "stop charging" action.
func (s *SessionsService) StopCharging(ctx context.Context, userID, sessionID int64) (*models.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, lookupErr(err, "session", sessionID)
	}
	if session.UserID != userID {
		return nil, fmt.Errorf("%w: session %d belongs to another user", ErrForbidden, sessionID)
	}
	return s.CompleteToParking(ctx, sessionID, CompletionUser)
}

// CompleteToParking moves a CHARGING session to PARKING and completes its order.
// Energy and base cost are finalized once; charging past the booked end is
// billed as overtime. Calling it on a session that already left CHARGING is a
// no-op returning the current state.
func (s *SessionsService) CompleteToParking(ctx context.Context, sessionID int64, reason CompletionReason) (*models.Session, error) {
	var (
		result     *models.Session
		transition bool
	)
	err := s.units.run(ctx, func(ctx context.Context) error {
		session, err := s.sessions.GetForUpdate(ctx, sessionID)
		if err != nil {
			return lookupErr(err, "session", sessionID)
		}
		if session.Status != models.SessionStatusCharging {
			result = session
			return nil
		}
		order, err := s.orders.GetForUpdate(ctx, session.OrderID)
		if err != nil {
			return lookupErr(err, "order", session.OrderID)
		}

		now := s.clock.Now()
		if session.PowerConsumed == nil || session.BaseCost == nil {
			progress, err := s.deriveProgress(ctx, session, order, now)
			if err != nil {
				return err
			}
			energy, cost := progress.EnergyKWh, progress.Cost
			session.PowerConsumed = &energy
			session.BaseCost = &cost
		}
		session.Status = models.SessionStatusParking
		session.EndTime = &now
		session.ParkingStartTime = &now
		session.UpdatedAt = now

		if !session.TargetReachedNotificationSent {
			session.TargetReachedNotificationSent = true
			s.units.notify(ctx, session.UserID, models.NotificationSession, "Charging complete",
				fmt.Sprintf("Session #%d finished charging. Please move your vehicle within %d minutes to avoid parking fees.",
					session.ID, int(s.rules.ParkingGrace.Minutes())))
		}
		if err := s.sessions.Update(ctx, session); err != nil {
			return fmt.Errorf("update session %d: %w", sessionID, err)
		}

		if order.Status == models.OrderStatusCharging {
			order.Status = models.OrderStatusCompleted
			order.UpdatedAt = now
			if err := s.orders.Update(ctx, order); err != nil {
				return fmt.Errorf("update order %d: %w", order.ID, err)
			}
			s.metrics.Transition("order", string(models.OrderStatusCharging), string(models.OrderStatusCompleted))
		}

		if extra := minutesPast(order.EndTime, now); extra > 0 {
			if _, err := s.penalties.HandleOvertimeCharging(ctx, sessionID, extra); err != nil {
				return err
			}
		}

		result, err = s.sessions.GetByID(ctx, sessionID)
		if err != nil {
			return lookupErr(err, "session", sessionID)
		}
		transition = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if transition {
		s.metrics.Transition("session", string(models.SessionStatusCharging), string(models.SessionStatusParking))
		s.logger.Info("session moved to parking",
			zap.Int64("session_id", sessionID),
			zap.String("reason", string(reason)),
			zap.Float64("energy_kwh", valueOr(result.PowerConsumed)),
			zap.Float64("base_cost", result.BaseCostValue()),
		)
	}
	return result, nil
}

// ConfirmDeparture closes a PARKING session, charging parking beyond the grace period.
func (s *SessionsService) ConfirmDeparture(ctx context.Context, userID, sessionID int64) (*DepartureResult, error) {
	result := &DepartureResult{}
	err := s.units.run(ctx, func(ctx context.Context) error {
		session, err := s.sessions.GetForUpdate(ctx, sessionID)
		if err != nil {
			return lookupErr(err, "session", sessionID)
		}
		if session.UserID != userID {
			return fmt.Errorf("%w: session %d belongs to another user", ErrForbidden, sessionID)
		}
		switch session.Status {
		case models.SessionStatusCompleted:
			return fmt.Errorf("%w: session %d already completed", ErrNothingToDo, sessionID)
		case models.SessionStatusCharging:
			return fmt.Errorf("%w: session %d is still charging", ErrInvalidState, sessionID)
		}

		now := s.clock.Now()
		session.Status = models.SessionStatusCompleted
		session.DepartedAt = &now
		session.UpdatedAt = now
		if err := s.sessions.Update(ctx, session); err != nil {
			return fmt.Errorf("update session %d: %w", sessionID, err)
		}

		if result.ParkingFee, err = s.penalties.HandleParkingOverstay(ctx, sessionID); err != nil {
			return err
		}
		if result.Total, err = s.penalties.CalculateTotalPaymentAmount(ctx, sessionID); err != nil {
			return err
		}
		if result.Session, err = s.sessions.GetByID(ctx, sessionID); err != nil {
			return lookupErr(err, "session", sessionID)
		}
		s.units.notify(ctx, userID, models.NotificationSession, "Session finished",
			fmt.Sprintf("Session #%d is complete. Total due: %.0f", sessionID, result.Total))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition("session", string(models.SessionStatusParking), string(models.SessionStatusCompleted))
	s.logger.Info("departure confirmed",
		zap.Int64("session_id", sessionID),
		zap.Float64("total", result.Total),
		zap.Bool("parking_fee", result.ParkingFee != nil),
	)
	return result, nil
}

// SessionForUser returns the session when userID owns it.
func (s *SessionsService) SessionForUser(ctx context.Context, userID, sessionID int64) (*models.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, lookupErr(err, "session", sessionID)
	}
	if session.UserID != userID {
		return nil, fmt.Errorf("%w: session %d belongs to another user", ErrForbidden, sessionID)
	}
	return session, nil
}

// SessionTotal returns the authoritative total of a session owned by userID.
func (s *SessionsService) SessionTotal(ctx context.Context, userID, sessionID int64) (float64, error) {
	if _, err := s.SessionForUser(ctx, userID, sessionID); err != nil {
		return 0, err
	}
	return s.penalties.CalculateTotalPaymentAmount(ctx, sessionID)
}

func (s *SessionsService) deriveProgress(ctx context.Context, session *models.Session, order *models.Order, now time.Time) (Progress, error) {
	point, err := s.catalog.GetChargingPoint(ctx, order.ChargingPointID)
	if err != nil {
		return Progress{}, lookupErr(err, "charging point", order.ChargingPointID)
	}

	var capacity float64
	vehicle, err := s.catalog.GetVehicle(ctx, session.VehicleID)
	switch {
	case err == nil:
		capacity = vehicle.BatteryCapacityKWh
	case errors.Is(err, repository.ErrNotFound):
		s.logger.Warn("vehicle missing from catalog", zap.Int64("session_id", session.ID), zap.Int64("vehicle_id", session.VehicleID))
	default:
		return Progress{}, lookupErr(err, "vehicle", session.VehicleID)
	}

	until := now
	if session.EndTime != nil {
		until = *session.EndTime
	}
	return DeriveProgress(ProgressInput{
		StartTime:      session.StartTime,
		Until:          until,
		PowerKW:        point.PowerKW,
		PricePerKWh:    point.PricePerKWh,
		CapacityKWh:    capacity,
		StartedBattery: order.StartedBattery,
		TargetBattery:  order.ExpectedBattery,
		FinalEnergyKWh: session.PowerConsumed,
	}), nil
}

func validateBooking(in BookInput, now time.Time, noShow time.Duration) error {
	switch {
	case in.UserID <= 0:
		return fmt.Errorf("%w: user id required", ErrValidation)
	case in.ChargingPointID <= 0:
		return fmt.Errorf("%w: charging point id required", ErrValidation)
	case in.StartTime.IsZero() || in.EndTime.IsZero():
		return fmt.Errorf("%w: start and end time required", ErrValidation)
	case !in.EndTime.After(in.StartTime):
		return fmt.Errorf("%w: end time must be after start time", ErrValidation)
	case in.StartTime.Before(now.Add(-noShow)):
		return fmt.Errorf("%w: start time is in the past", ErrValidation)
	case in.StartedBattery < 0 || in.ExpectedBattery > 100:
		return fmt.Errorf("%w: battery levels must be within 0-100", ErrValidation)
	case in.ExpectedBattery <= in.StartedBattery:
		return fmt.Errorf("%w: expected battery must exceed started battery", ErrValidation)
	}
	return nil
}

func valueOr(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
