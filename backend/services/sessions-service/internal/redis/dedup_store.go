package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupStore claims notification keys with SET NX PX so duplicate suppression
// is shared by every replica.
type DedupStore struct {
	client redis.Cmdable
}

// NewDedupStore returns redis-backed dedup store.
func NewDedupStore(client redis.Cmdable) *DedupStore {
	return &DedupStore{client: client}
}

func (s *DedupStore) key(k string) string {
	return fmt.Sprintf("sessions:notify:dedup:%s", k)
}

// Acquire reports whether key was free and claims it for window.
func (s *DedupStore) Acquire(ctx context.Context, key string, window time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.key(key), time.Now().UTC().Format(time.RFC3339Nano), window).Result()
}

// Release deletes the claim on key.
func (s *DedupStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}
