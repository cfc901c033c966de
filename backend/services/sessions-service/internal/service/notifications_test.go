package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chargepark/backend/services/sessions-service/internal/models"
	"chargepark/backend/services/sessions-service/internal/service"
	"chargepark/backend/services/sessions-service/internal/testutil"
)

type failingDedup struct{}

func (failingDedup) Acquire(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func (failingDedup) Release(context.Context, string) error {
	return errors.New("redis down")
}

func TestDispatcherSuppressesDuplicatesPerWindow(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewClock(time.Time{})
	notifier := &testutil.Notifier{}
	d := service.NewNotificationDispatcher(notifier, service.NewMemoryDedupStore(clock.NowFunc()), clock,
		service.DefaultRules(), zap.NewNop(), nil)

	penalty := models.Notification{UserID: 1, Category: models.NotificationPenalty, Title: "No-show fee"}
	general := models.Notification{UserID: 1, Category: models.NotificationGeneral, Title: "Booking confirmed"}

	assert.True(t, d.Dispatch(ctx, penalty))
	assert.False(t, d.Dispatch(ctx, penalty))
	assert.True(t, d.Dispatch(ctx, general))
	assert.True(t, d.Dispatch(ctx, models.Notification{UserID: 2, Category: models.NotificationPenalty, Title: "No-show fee"}))

	clock.Advance(5 * time.Minute)
	assert.True(t, d.Dispatch(ctx, general), "general window is five minutes")
	assert.False(t, d.Dispatch(ctx, penalty), "penalty window is fifteen minutes")

	clock.Advance(10 * time.Minute)
	assert.True(t, d.Dispatch(ctx, penalty))

	sent := notifier.Sent()
	require.Len(t, sent, 5)
	for _, n := range sent {
		assert.NotEmpty(t, n.ID)
		assert.False(t, n.CreatedAt.IsZero())
	}
}

func TestDispatcherSendsWhenDedupStoreFails(t *testing.T) {
	notifier := &testutil.Notifier{}
	d := service.NewNotificationDispatcher(notifier, failingDedup{}, testutil.NewClock(time.Time{}),
		service.DefaultRules(), zap.NewNop(), nil)

	n := models.Notification{UserID: 3, Category: models.NotificationSession, Title: "Charging started"}
	assert.True(t, d.Dispatch(context.Background(), n))
	assert.True(t, d.Dispatch(context.Background(), n))
	assert.Equal(t, 2, notifier.Count(3, "Charging started"))
}

func TestDispatcherReportsEmitFailure(t *testing.T) {
	notifier := &testutil.Notifier{}
	notifier.FailWith(errors.New("broker unavailable"))
	d := service.NewNotificationDispatcher(notifier, nil, testutil.NewClock(time.Time{}),
		service.DefaultRules(), zap.NewNop(), nil)

	assert.False(t, d.Dispatch(context.Background(), models.Notification{UserID: 4, Title: "x"}))
}

func TestDispatcherRetriesAfterEmitFailureWithinWindow(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewClock(time.Time{})
	notifier := &testutil.Notifier{}
	d := service.NewNotificationDispatcher(notifier, service.NewMemoryDedupStore(clock.NowFunc()), clock,
		service.DefaultRules(), zap.NewNop(), nil)
	n := models.Notification{UserID: 5, Category: models.NotificationPenalty, Title: "Parking overstay escalation"}

	notifier.FailWith(errors.New("broker unavailable"))
	assert.False(t, d.Dispatch(ctx, n))

	notifier.FailWith(nil)
	clock.Advance(time.Minute)
	assert.True(t, d.Dispatch(ctx, n), "failed emit does not hold the window")
	assert.False(t, d.Dispatch(ctx, n))
	assert.Equal(t, 1, notifier.Count(5, "Parking overstay escalation"))
}

func TestMemoryDedupStoreExpires(t *testing.T) {
	clock := testutil.NewClock(time.Time{})
	store := service.NewMemoryDedupStore(clock.NowFunc())

	ok, err := store.Acquire(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = store.Acquire(context.Background(), "k", time.Minute)
	assert.False(t, ok)

	clock.Advance(time.Minute)
	ok, _ = store.Acquire(context.Background(), "k", time.Minute)
	assert.True(t, ok)
}

func TestMemoryDedupStoreRelease(t *testing.T) {
	ctx := context.Background()
	store := service.NewMemoryDedupStore(nil)

	ok, err := store.Acquire(ctx, "k", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Release(ctx, "k"))
	require.NoError(t, store.Release(ctx, "missing"))
	ok, err = store.Acquire(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}
