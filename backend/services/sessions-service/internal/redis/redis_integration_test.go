package redisstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"chargepark/backend/services/sessions-service/internal/models"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	if os.Getenv("DOCKER_AVAILABLE") != "true" && os.Getenv("DOCKER_AVAILABLE") != "1" {
		t.Skip("docker not available")
	}

	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestDedupStoreAcquire(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	store := NewDedupStore(client)

	ok, err := store.Acquire(ctx, "1|PENALTY|No-show fee", 200*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Acquire(ctx, "1|PENALTY|No-show fee", 200*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	require.Eventually(t, func() bool {
		ok, err := store.Acquire(ctx, "1|PENALTY|No-show fee", 200*time.Millisecond)
		return err == nil && ok
	}, 2*time.Second, 50*time.Millisecond)
}

func TestDedupStoreRelease(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	store := NewDedupStore(client)

	ok, err := store.Acquire(ctx, "2|SESSION|Charging started", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Release(ctx, "2|SESSION|Charging started"))
	ok, err = store.Acquire(ctx, "2|SESSION|Charging started", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNotificationStorePublishesAndKeepsInbox(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	store := NewNotificationStore(client, 2, time.Minute)

	sub := client.Subscribe(ctx, Channel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	for i, title := range []string{"first", "second", "third"} {
		require.NoError(t, store.Emit(ctx, models.Notification{
			ID:       fmt.Sprintf("n-%d", i),
			UserID:   9,
			Category: models.NotificationGeneral,
			Title:    title,
		}))
	}

	select {
	case msg := <-sub.Channel():
		assert.Contains(t, msg.Payload, `"title":"first"`)
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}

	recent, err := store.Recent(ctx, 9, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "third", recent[0].Title)
	assert.Equal(t, "second", recent[1].Title)
}
