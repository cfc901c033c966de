package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chargepark/backend/services/sessions-service/internal/metrics"
	"chargepark/backend/services/sessions-service/internal/models"
)

// Notifier delivers notification events. Delivery is fire-and-forget.
type Notifier interface {
	Emit(ctx context.Context, n models.Notification) error
}

// DedupStore claims a key for a window. Acquire returns false while a previous
// claim for the same key is still live. Release drops a claim early.
type DedupStore interface {
	Acquire(ctx context.Context, key string, window time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// NotificationDispatcher drops duplicates per (user, category, title) within
// the category window and forwards the rest to the Notifier.
type NotificationDispatcher struct {
	notifier      Notifier
	dedup         DedupStore
	clock         Clock
	penaltyWindow time.Duration
	generalWindow time.Duration
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

// NewNotificationDispatcher builds a dispatcher.
func NewNotificationDispatcher(
	notifier Notifier,
	dedup DedupStore,
	clock Clock,
	rules Rules,
	logger *zap.Logger,
	m *metrics.Metrics,
) *NotificationDispatcher {
	rules = rules.WithDefaults()
	return &NotificationDispatcher{
		notifier:      notifier,
		dedup:         dedup,
		clock:         clock,
		penaltyWindow: rules.PenaltyNotificationWindow,
		generalWindow: rules.GeneralNotificationWindow,
		logger:        logger.Named("notifications"),
		metrics:       m,
	}
}

// Dispatch emits n unless an identical notification was sent within the window.
// It reports whether the notification was handed to the Notifier.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, n models.Notification) bool {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.clock.Now()
	}
	category := string(n.Category)
	key := dedupKey(n)

	claimed := false
	if d.dedup != nil {
		ok, err := d.dedup.Acquire(ctx, key, d.window(n.Category))
		switch {
		case err != nil:
			d.logger.Warn("dedup store unavailable, sending anyway",
				zap.Int64("user_id", n.UserID), zap.String("title", n.Title), zap.Error(err))
		case !ok:
			d.logger.Debug("duplicate notification dropped",
				zap.Int64("user_id", n.UserID), zap.String("category", category), zap.String("title", n.Title))
			d.metrics.Notification(category, "suppressed")
			return false
		default:
			claimed = true
		}
	}

	if err := d.notifier.Emit(ctx, n); err != nil {
		d.logger.Warn("notification emit failed",
			zap.String("notification_id", n.ID), zap.Int64("user_id", n.UserID), zap.Error(err))
		d.metrics.Notification(category, "failed")
		if claimed {
			if err := d.dedup.Release(ctx, key); err != nil {
				d.logger.Warn("dedup release failed", zap.String("key", key), zap.Error(err))
			}
		}
		return false
	}
	d.metrics.Notification(category, "sent")
	return true
}

func (d *NotificationDispatcher) window(c models.NotificationCategory) time.Duration {
	if c == models.NotificationPenalty {
		return d.penaltyWindow
	}
	return d.generalWindow
}

func dedupKey(n models.Notification) string {
	return fmt.Sprintf("%d|%s|%s", n.UserID, n.Category, n.Title)
}

// LogNotifier writes notifications to the log. Used when no broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a log backed Notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notifier")}
}

// Emit logs n.
func (l *LogNotifier) Emit(_ context.Context, n models.Notification) error {
	l.logger.Info("notification",
		zap.String("notification_id", n.ID),
		zap.Int64("user_id", n.UserID),
		zap.String("category", string(n.Category)),
		zap.String("title", n.Title),
		zap.String("body", n.Body),
	)
	return nil
}

// MemoryDedupStore is a process local DedupStore.
type MemoryDedupStore struct {
	mu      sync.Mutex
	now     func() time.Time
	expires map[string]time.Time
}

// NewMemoryDedupStore returns an empty store reading time from now.
func NewMemoryDedupStore(now func() time.Time) *MemoryDedupStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryDedupStore{now: now, expires: make(map[string]time.Time)}
}

// Acquire implements DedupStore.
func (m *MemoryDedupStore) Acquire(_ context.Context, key string, window time.Duration) (bool, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if until, ok := m.expires[key]; ok && now.Before(until) {
		return false, nil
	}
	for k, until := range m.expires {
		if !now.Before(until) {
			delete(m.expires, k)
		}
	}
	m.expires[key] = now.Add(window)
	return true, nil
}

// Release implements DedupStore.
func (m *MemoryDedupStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.expires, key)
	m.mu.Unlock()
	return nil
}
