package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"chargepark/backend/services/sessions-service/internal/metrics"
	"chargepark/backend/services/sessions-service/internal/models"
)

// ViolationLedger tracks per-user violation counters and the ACTIVE/BANNED status.
// Its methods expect to run inside a unit of work.
type ViolationLedger struct {
	users     UserRepository
	clock     Clock
	threshold int
	units     *unitRunner
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func newViolationLedger(users UserRepository, clock Clock, threshold int, units *unitRunner, logger *zap.Logger, m *metrics.Metrics) *ViolationLedger {
	return &ViolationLedger{
		users:     users,
		clock:     clock,
		threshold: threshold,
		units:     units,
		logger:    logger.Named("violations"),
		metrics:   m,
	}
}

// Increment records one violation and bans an ACTIVE user reaching the threshold.
func (l *ViolationLedger) Increment(ctx context.Context, userID int64, note string) (*models.User, error) {
	user, err := l.users.GetForUpdate(ctx, userID)
	if err != nil {
		return nil, lookupErr(err, "user", userID)
	}

	now := l.clock.Now()
	user.ViolationCount++
	user.ViolationLog = appendLog(user.ViolationLog, now, note)

	banned := false
	if user.Status != models.UserStatusBanned && user.ViolationCount >= l.threshold {
		user.Status = models.UserStatusBanned
		user.BanReason = fmt.Sprintf("auto-banned after %d violations", user.ViolationCount)
		user.BannedAt = &now
		user.ViolationLog = appendLog(user.ViolationLog, now, user.BanReason)
		banned = true
	}

	if err := l.users.UpdateViolationState(ctx, user); err != nil {
		return nil, fmt.Errorf("update user %d: %w", userID, err)
	}

	l.metrics.Violation(banned)
	l.logger.Info("violation recorded",
		zap.Int64("user_id", userID),
		zap.Int("violation_count", user.ViolationCount),
		zap.String("note", note),
		zap.Bool("banned", banned),
	)
	if banned {
		l.metrics.Transition("user", string(models.UserStatusActive), string(models.UserStatusBanned))
		l.units.notify(ctx, userID, models.NotificationPenalty, "Account suspended",
			fmt.Sprintf("Your account was suspended after %d violations. Pay all outstanding fees to unlock it.", user.ViolationCount))
	}
	return user, nil
}

// Unlock flips a BANNED user back to ACTIVE. The counter is kept.
func (l *ViolationLedger) Unlock(ctx context.Context, user *models.User) error {
	now := l.clock.Now()
	user.Status = models.UserStatusActive
	user.BanReason = ""
	user.BannedAt = nil
	user.ViolationLog = appendLog(user.ViolationLog, now, "unlocked after payment")
	if err := l.users.UpdateViolationState(ctx, user); err != nil {
		return fmt.Errorf("update user %d: %w", user.ID, err)
	}
	l.metrics.Unlocked()
	l.metrics.Transition("user", string(models.UserStatusBanned), string(models.UserStatusActive))
	return nil
}

func appendLog(log string, at time.Time, note string) string {
	line := at.UTC().Format(time.RFC3339) + " " + strings.TrimSpace(note)
	if log == "" {
		return line
	}
	return log + "\n" + line
}
