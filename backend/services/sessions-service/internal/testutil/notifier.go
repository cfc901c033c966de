package testutil

import (
	"context"
	"sync"

	"chargepark/backend/services/sessions-service/internal/models"
)

// Notifier records every emitted notification.
type Notifier struct {
	mu   sync.Mutex
	sent []models.Notification
	err  error
}

// Emit implements service.Notifier.
func (n *Notifier) Emit(_ context.Context, msg models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

// FailWith makes subsequent Emit calls return err.
func (n *Notifier) FailWith(err error) {
	n.mu.Lock()
	n.err = err
	n.mu.Unlock()
}

// Sent returns a copy of the recorded notifications.
func (n *Notifier) Sent() []models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Notification(nil), n.sent...)
}

// Count returns how many notifications with title were sent to userID.
func (n *Notifier) Count(userID int64, title string) int {
	count := 0
	for _, msg := range n.Sent() {
		if msg.UserID == userID && msg.Title == title {
			count++
		}
	}
	return count
}

// Reset drops recorded notifications.
func (n *Notifier) Reset() {
	n.mu.Lock()
	n.sent = nil
	n.mu.Unlock()
}
