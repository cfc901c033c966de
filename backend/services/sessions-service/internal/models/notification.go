package models

import "time"

// NotificationCategory groups notifications for delivery and dedup windows.
type NotificationCategory string

// Notification categories.
const (
	NotificationPenalty NotificationCategory = "PENALTY"
	NotificationSession NotificationCategory = "SESSION"
	NotificationGeneral NotificationCategory = "GENERAL"
)

// Notification is an event for an external delivery channel.
type Notification struct {
	ID        string               `json:"id"`
	UserID    int64                `json:"user_id"`
	Category  NotificationCategory `json:"category"`
	Title     string               `json:"title"`
	Body      string               `json:"body"`
	CreatedAt time.Time            `json:"created_at"`
}
