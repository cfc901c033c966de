package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"chargepark/backend/services/sessions-service/internal/metrics"
	"chargepark/backend/services/sessions-service/internal/models"
)

// PenaltyService accrues cancellation, no-show, overtime and parking fees,
// maintains the violation ledger and gates unlocking on payment.
type PenaltyService struct {
	orders   OrderRepository
	sessions SessionRepository
	fees     FeeRepository
	users    UserRepository
	ledger   *ViolationLedger
	calc     FeeCalculator
	rules    Rules
	clock    Clock
	units    *unitRunner
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// PenaltyDeps groups the collaborators of PenaltyService.
type PenaltyDeps struct {
	Tx         TxManager
	Orders     OrderRepository
	Sessions   SessionRepository
	Fees       FeeRepository
	Users      UserRepository
	Dispatcher *NotificationDispatcher
	Clock      Clock
	Rules      Rules
	Schedule   FeeSchedule
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// NewPenaltyService builds the fee engine.
func NewPenaltyService(deps PenaltyDeps) *PenaltyService {
	rules := deps.Rules.WithDefaults()
	units := &unitRunner{tx: deps.Tx, dispatcher: deps.Dispatcher}
	logger := deps.Logger.Named("penalties")
	return &PenaltyService{
		orders:   deps.Orders,
		sessions: deps.Sessions,
		fees:     deps.Fees,
		users:    deps.Users,
		ledger:   newViolationLedger(deps.Users, deps.Clock, rules.BanThreshold, units, deps.Logger, deps.Metrics),
		calc:     NewFeeCalculator(deps.Schedule),
		rules:    rules,
		clock:    deps.Clock,
		units:    units,
		logger:   logger,
		metrics:  deps.Metrics,
	}
}

// PaymentResult is the outcome of PayFees.
type PaymentResult struct {
	Paid     int  `json:"paid"`
	Unlocked bool `json:"unlocked"`
}

// HandleLateCancellation cancels a BOOKED order owned by userID. Cancelling less
// than the late threshold before the start creates a CANCEL fee and records a
// violation. The returned fee is nil when none applied.
func (s *PenaltyService) HandleLateCancellation(ctx context.Context, orderID, userID int64, reason string) (*models.Fee, error) {
	var fee *models.Fee
	err := s.units.run(ctx, func(ctx context.Context) error {
		order, err := s.orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return lookupErr(err, "order", orderID)
		}
		if order.UserID != userID {
			return fmt.Errorf("%w: order %d belongs to another user", ErrForbidden, orderID)
		}
		if order.Status == models.OrderStatusCanceled {
			return fmt.Errorf("%w: order %d already canceled", ErrNothingToDo, orderID)
		}
		if order.Status != models.OrderStatusBooked {
			return fmt.Errorf("%w: order %d is %s", ErrInvalidState, orderID, order.Status)
		}

		now := s.clock.Now()
		if order.StartTime.Sub(now) < s.rules.LateCancelThreshold {
			fee, err = s.createFee(ctx, &models.Fee{
				UserID:      order.UserID,
				OrderID:     &order.ID,
				Kind:        models.FeeKindCancel,
				Amount:      s.calc.Calculate(models.FeeKindCancel, FeeInput{}),
				Description: fmt.Sprintf("Late cancellation of order #%d", order.ID),
			})
			if err != nil {
				return err
			}
			if _, err := s.ledger.Increment(ctx, order.UserID, fmt.Sprintf("late cancellation of order #%d", order.ID)); err != nil {
				return err
			}
		}

		reason = strings.TrimSpace(reason)
		if reason == "" {
			reason = "canceled by user"
		}
		return s.cancelOrder(ctx, order, reason)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order canceled",
		zap.Int64("order_id", orderID),
		zap.Int64("user_id", userID),
		zap.Bool("late", fee != nil),
	)
	return fee, nil
}

// HandleNoShow cancels a BOOKED order whose start is older than the no-show
// threshold and charges a NO_SHOW fee. Orders that no longer qualify are skipped
// silently and return a nil fee.
func (s *PenaltyService) HandleNoShow(ctx context.Context, orderID int64) (*models.Fee, error) {
	var fee *models.Fee
	err := s.units.run(ctx, func(ctx context.Context) error {
		order, err := s.orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return lookupErr(err, "order", orderID)
		}
		if order.Status != models.OrderStatusBooked {
			return nil
		}
		if s.clock.Now().Before(order.StartTime.Add(s.rules.NoShowThreshold)) {
			return nil
		}

		fee, err = s.createFee(ctx, &models.Fee{
			UserID:      order.UserID,
			OrderID:     &order.ID,
			Kind:        models.FeeKindNoShow,
			Amount:      s.calc.Calculate(models.FeeKindNoShow, FeeInput{}),
			Description: fmt.Sprintf("No-show for order #%d", order.ID),
		})
		if err != nil {
			return err
		}
		if err := s.cancelOrder(ctx, order, "system: no-show"); err != nil {
			return err
		}
		_, err = s.ledger.Increment(ctx, order.UserID, fmt.Sprintf("no-show for order #%d", order.ID))
		return err
	})
	if err != nil {
		return nil, err
	}
	if fee != nil {
		s.logger.Info("no-show recorded", zap.Int64("order_id", orderID), zap.Float64("amount", fee.Amount))
	}
	return fee, nil
}

// HandleOvertimeCharging attaches an OVERTIME fee for extraMinutes and marks the
// session as overtime. Non-positive minutes are a no-op.
func (s *PenaltyService) HandleOvertimeCharging(ctx context.Context, sessionID int64, extraMinutes int) (*models.Fee, error) {
	if extraMinutes <= 0 {
		return nil, nil
	}

	var fee *models.Fee
	err := s.units.run(ctx, func(ctx context.Context) error {
		session, err := s.sessions.GetForUpdate(ctx, sessionID)
		if err != nil {
			return lookupErr(err, "session", sessionID)
		}

		fee, err = s.createFee(ctx, &models.Fee{
			UserID:      session.UserID,
			OrderID:     &session.OrderID,
			SessionID:   &session.ID,
			Kind:        models.FeeKindOvertime,
			Amount:      s.calc.Calculate(models.FeeKindOvertime, FeeInput{ExtraMinutes: extraMinutes}),
			Description: fmt.Sprintf("Overtime charging: %d min", extraMinutes),
		})
		if err != nil {
			return err
		}

		if !session.Overtime {
			session.Overtime = true
			session.UpdatedAt = s.clock.Now()
			if err := s.sessions.Update(ctx, session); err != nil {
				return fmt.Errorf("update session %d: %w", sessionID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fee, nil
}

// HandleParkingOverstay charges parking beyond the grace period. The amount due
// is computed up to departure (or now while still parked) minus parking fees
// already attached, so repeated calls never double charge. Returns nil when
// nothing is due.
func (s *PenaltyService) HandleParkingOverstay(ctx context.Context, sessionID int64) (*models.Fee, error) {
	var fee *models.Fee
	err := s.units.run(ctx, func(ctx context.Context) error {
		session, err := s.sessions.GetForUpdate(ctx, sessionID)
		if err != nil {
			return lookupErr(err, "session", sessionID)
		}
		if session.ParkingStartTime == nil {
			return fmt.Errorf("%w: session %d never entered parking", ErrInvalidState, sessionID)
		}

		until := s.clock.Now()
		if session.DepartedAt != nil {
			until = *session.DepartedAt
		}
		minutes := ChargeableParkingMinutes(*session.ParkingStartTime, until, s.rules.ParkingGrace)
		due := s.calc.Calculate(models.FeeKindParking, FeeInput{ChargeableMinutes: minutes})
		if due <= 0 {
			return nil
		}

		existing, err := s.fees.ListBySession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("list fees of session %d: %w", sessionID, err)
		}
		for _, f := range existing {
			if f.Kind == models.FeeKindParking {
				due -= f.Amount
			}
		}
		if due <= 0 {
			return nil
		}

		fee, err = s.createFee(ctx, &models.Fee{
			UserID:      session.UserID,
			OrderID:     &session.OrderID,
			SessionID:   &session.ID,
			Kind:        models.FeeKindParking,
			Amount:      due,
			Description: fmt.Sprintf("Parking overstay: %d min past grace period", minutes),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return fee, nil
}

// IncrementViolationCount records a violation for userID in its own unit of work.
func (s *PenaltyService) IncrementViolationCount(ctx context.Context, userID int64, note string) (*models.User, error) {
	var user *models.User
	err := s.units.run(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.ledger.Increment(ctx, userID, note)
		return err
	})
	return user, err
}

// CalculateTotalPaymentAmount returns base cost plus every fee attached to the session.
func (s *PenaltyService) CalculateTotalPaymentAmount(ctx context.Context, sessionID int64) (float64, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return 0, lookupErr(err, "session", sessionID)
	}
	fees, err := s.fees.ListBySession(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("list fees of session %d: %w", sessionID, err)
	}

	total := session.BaseCostValue()
	for _, f := range fees {
		total += f.Amount
	}
	return total, nil
}

// MarkFeesAsPaid flips the paid flag of the given fees and returns how many changed.
func (s *PenaltyService) MarkFeesAsPaid(ctx context.Context, feeIDs []int64) (int, error) {
	if len(feeIDs) == 0 {
		return 0, nil
	}
	var paid int
	err := s.units.run(ctx, func(ctx context.Context) error {
		fees, err := s.fees.GetByIDs(ctx, feeIDs)
		if err != nil {
			return fmt.Errorf("load fees: %w", err)
		}
		if missing := missingIDs(feeIDs, fees); len(missing) > 0 {
			return fmt.Errorf("%w: fees %v", ErrNotFound, missing)
		}
		paid, err = s.fees.MarkPaid(ctx, feeIDs, s.clock.Now())
		if err != nil {
			return fmt.Errorf("mark fees paid: %w", err)
		}
		return nil
	})
	return paid, err
}

// PayFees marks the user's fees paid and unlocks the account once nothing is
// left unpaid.
func (s *PenaltyService) PayFees(ctx context.Context, userID int64, feeIDs []int64) (*PaymentResult, error) {
	if len(feeIDs) == 0 {
		return nil, fmt.Errorf("%w: fee ids required", ErrValidation)
	}

	result := &PaymentResult{}
	err := s.units.run(ctx, func(ctx context.Context) error {
		fees, err := s.fees.GetByIDs(ctx, feeIDs)
		if err != nil {
			return fmt.Errorf("load fees: %w", err)
		}
		if missing := missingIDs(feeIDs, fees); len(missing) > 0 {
			return fmt.Errorf("%w: fees %v", ErrNotFound, missing)
		}
		for _, f := range fees {
			if f.UserID != userID {
				return fmt.Errorf("%w: fee %d belongs to another user", ErrForbidden, f.ID)
			}
		}

		if result.Paid, err = s.fees.MarkPaid(ctx, feeIDs, s.clock.Now()); err != nil {
			return fmt.Errorf("mark fees paid: %w", err)
		}
		result.Unlocked, err = s.UnlockUserAfterPayment(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("fees paid",
		zap.Int64("user_id", userID),
		zap.Int("paid", result.Paid),
		zap.Bool("unlocked", result.Unlocked),
	)
	return result, nil
}

// GetUnpaidFees lists the user's unpaid fees.
func (s *PenaltyService) GetUnpaidFees(ctx context.Context, userID int64) ([]models.Fee, error) {
	return s.fees.ListByUser(ctx, userID, true)
}

// FeeHistory lists every fee of the user, newest first.
func (s *PenaltyService) FeeHistory(ctx context.Context, userID int64) ([]models.Fee, error) {
	return s.fees.ListByUser(ctx, userID, false)
}

// HasUnpaidFees reports whether the user owes anything.
func (s *PenaltyService) HasUnpaidFees(ctx context.Context, userID int64) (bool, error) {
	n, err := s.fees.CountUnpaidByUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("count unpaid fees of user %d: %w", userID, err)
	}
	return n > 0, nil
}

// CanUnlockUser reports whether the user is BANNED with no unpaid fees.
func (s *PenaltyService) CanUnlockUser(ctx context.Context, userID int64) (bool, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return false, lookupErr(err, "user", userID)
	}
	if user.Status != models.UserStatusBanned {
		return false, nil
	}
	unpaid, err := s.HasUnpaidFees(ctx, userID)
	if err != nil {
		return false, err
	}
	return !unpaid, nil
}

// UnlockUserAfterPayment reactivates a BANNED user with no unpaid fees. It
// returns false without changes otherwise. The violation counter is kept.
func (s *PenaltyService) UnlockUserAfterPayment(ctx context.Context, userID int64) (bool, error) {
	unlocked := false
	err := s.units.run(ctx, func(ctx context.Context) error {
		user, err := s.users.GetForUpdate(ctx, userID)
		if err != nil {
			return lookupErr(err, "user", userID)
		}
		if user.Status != models.UserStatusBanned {
			return nil
		}
		unpaid, err := s.fees.CountUnpaidByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("count unpaid fees of user %d: %w", userID, err)
		}
		if unpaid > 0 {
			return nil
		}
		if err := s.ledger.Unlock(ctx, user); err != nil {
			return err
		}
		unlocked = true
		s.units.notify(ctx, userID, models.NotificationGeneral, "Account unlocked",
			"All fees are paid. Your account is active again.")
		return nil
	})
	if err != nil {
		return false, err
	}
	if unlocked {
		s.logger.Info("user unlocked", zap.Int64("user_id", userID))
	}
	return unlocked, nil
}

func (s *PenaltyService) createFee(ctx context.Context, fee *models.Fee) (*models.Fee, error) {
	if fee.Amount <= 0 {
		return nil, errors.New("penalties: fee amount must be positive")
	}
	if fee.OrderID == nil && fee.SessionID == nil {
		return nil, errors.New("penalties: fee needs an order or a session")
	}
	fee.CreatedAt = s.clock.Now()
	if err := s.fees.Create(ctx, fee); err != nil {
		return nil, fmt.Errorf("create %s fee: %w", fee.Kind, err)
	}

	s.metrics.FeeCreated(string(fee.Kind), fee.Amount)
	s.units.notify(ctx, fee.UserID, models.NotificationPenalty, feeTitle(fee.Kind),
		fmt.Sprintf("%s. Amount: %.0f", fee.Description, fee.Amount))
	return fee, nil
}

func (s *PenaltyService) cancelOrder(ctx context.Context, order *models.Order, reason string) error {
	from := order.Status
	order.Status = models.OrderStatusCanceled
	order.CancellationReason = reason
	order.UpdatedAt = s.clock.Now()
	if err := s.orders.Update(ctx, order); err != nil {
		return fmt.Errorf("update order %d: %w", order.ID, err)
	}
	s.metrics.Transition("order", string(from), string(order.Status))
	return nil
}

func feeTitle(kind models.FeeKind) string {
	switch kind {
	case models.FeeKindCancel:
		return "Late cancellation fee"
	case models.FeeKindNoShow:
		return "No-show fee"
	case models.FeeKindOvertime:
		return "Overtime charging fee"
	case models.FeeKindParking:
		return "Parking overstay fee"
	default:
		return "Fee"
	}
}

func missingIDs(want []int64, got []models.Fee) []int64 {
	found := make(map[int64]struct{}, len(got))
	for _, f := range got {
		found[f.ID] = struct{}{}
	}
	var missing []int64
	for _, id := range want {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
