package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chargepark/backend/services/sessions-service/internal/models"
)

const (
	// Channel receives every notification for delivery workers.
	Channel = "sessions:notifications"

	defaultInboxSize = 50
	defaultInboxTTL  = 7 * 24 * time.Hour
)

// NotificationStore publishes notifications and keeps a short per-user inbox.
type NotificationStore struct {
	client    redis.Cmdable
	inboxSize int64
	inboxTTL  time.Duration
}

// NewNotificationStore returns redis-backed notifier. Non-positive size or ttl
// fall back to defaults.
func NewNotificationStore(client redis.Cmdable, inboxSize int, inboxTTL time.Duration) *NotificationStore {
	if inboxSize <= 0 {
		inboxSize = defaultInboxSize
	}
	if inboxTTL <= 0 {
		inboxTTL = defaultInboxTTL
	}
	return &NotificationStore{client: client, inboxSize: int64(inboxSize), inboxTTL: inboxTTL}
}

func (s *NotificationStore) key(userID int64) string {
	return fmt.Sprintf("sessions:inbox:%d", userID)
}

// Emit stores n in the user's inbox and publishes it on Channel.
func (s *NotificationStore) Emit(ctx context.Context, n models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}

	key := s.key(n.UserID)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, s.inboxSize-1)
	pipe.Expire(ctx, key, s.inboxTTL)
	pipe.Publish(ctx, Channel, data)
	_, err = pipe.Exec(ctx)
	return err
}

// Recent returns up to limit notifications of userID, newest first.
func (s *NotificationStore) Recent(ctx context.Context, userID int64, limit int) ([]models.Notification, error) {
	if limit <= 0 || int64(limit) > s.inboxSize {
		limit = int(s.inboxSize)
	}
	raw, err := s.client.LRange(ctx, s.key(userID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]models.Notification, 0, len(raw))
	for _, item := range raw {
		var n models.Notification
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
