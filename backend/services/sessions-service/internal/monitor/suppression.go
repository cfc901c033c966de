package monitor

import (
	"sync"
	"time"
)

// SuppressionCache remembers which session ids already received a one-time
// notice. It is bounded by size and TTL and is safe for concurrent use. Losing
// it on restart costs at most one repeated notice per session.
type SuppressionCache struct {
	mu         sync.Mutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[int64]time.Time
}

// NewSuppressionCache returns an empty cache. Non-positive limits fall back to
// 24h and 10000 entries.
func NewSuppressionCache(ttl time.Duration, maxEntries int, now func() time.Time) *SuppressionCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	if now == nil {
		now = time.Now
	}
	return &SuppressionCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[int64]time.Time),
	}
}

// Seen reports whether id was marked and has not expired.
func (c *SuppressionCache) Seen(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.entries[id]
	if !ok {
		return false
	}
	if c.now().Sub(at) >= c.ttl {
		delete(c.entries, id)
		return false
	}
	return true
}

// Mark records id as signaled now, evicting the oldest entry when full.
func (c *SuppressionCache) Mark(id int64) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(id, now)
}

// MarkIfAbsent marks id unless it is already marked and unexpired. It reports
// whether the caller claimed id and should send the notice.
func (c *SuppressionCache) MarkIfAbsent(id int64) bool {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if at, ok := c.entries[id]; ok && now.Sub(at) < c.ttl {
		return false
	}
	c.markLocked(id, now)
	return true
}

// Forget releases id so a later sweep can claim it again.
func (c *SuppressionCache) Forget(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

func (c *SuppressionCache) markLocked(id int64, now time.Time) {
	if _, ok := c.entries[id]; !ok && len(c.entries) >= c.maxEntries {
		c.expireLocked(now)
		if len(c.entries) >= c.maxEntries {
			c.evictOldestLocked()
		}
	}
	c.entries[id] = now
}

// Reconcile drops ids for which keep returns false as well as expired ids.
// It returns how many entries were removed.
func (c *SuppressionCache) Reconcile(keep func(id int64) bool) int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	before := len(c.entries)
	c.expireLocked(now)
	for id := range c.entries {
		if !keep(id) {
			delete(c.entries, id)
		}
	}
	return before - len(c.entries)
}

// Len returns the number of tracked ids.
func (c *SuppressionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *SuppressionCache) expireLocked(now time.Time) {
	for id, at := range c.entries {
		if now.Sub(at) >= c.ttl {
			delete(c.entries, id)
		}
	}
}

func (c *SuppressionCache) evictOldestLocked() {
	var (
		oldestID int64
		oldestAt time.Time
		found    bool
	)
	for id, at := range c.entries {
		if !found || at.Before(oldestAt) {
			oldestID, oldestAt, found = id, at, true
		}
	}
	if found {
		delete(c.entries, oldestID)
	}
}
