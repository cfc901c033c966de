package service

import (
	"context"

	"chargepark/backend/services/sessions-service/internal/models"
)

type outboxKey struct{}

type outbox struct {
	items []models.Notification
}

// unitRunner executes units of work and releases their notifications only
// after the outermost unit committed.
type unitRunner struct {
	tx         TxManager
	dispatcher *NotificationDispatcher
}

func (u *unitRunner) run(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(outboxKey{}).(*outbox); ok {
		return u.tx.Do(ctx, fn)
	}

	box := &outbox{}
	ctx = context.WithValue(ctx, outboxKey{}, box)
	if err := u.tx.Do(ctx, fn); err != nil {
		return err
	}
	for _, n := range box.items {
		u.dispatcher.Dispatch(ctx, n)
	}
	return nil
}

func (u *unitRunner) notify(ctx context.Context, userID int64, category models.NotificationCategory, title, body string) {
	n := models.Notification{UserID: userID, Category: category, Title: title, Body: body}
	if box, ok := ctx.Value(outboxKey{}).(*outbox); ok {
		box.items = append(box.items, n)
		return
	}
	u.dispatcher.Dispatch(ctx, n)
}
