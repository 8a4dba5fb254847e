// Package dedup implements the Reply Dedup Cache: an idempotency guard
// over Executor replies keyed by command, action, tabId and the
// per-connection sequence number the Framed Transport assigns; the
// connection ID is not part of the key.
package dedup

import (
	"container/list"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key derives the DedupKey for one decoded frame, per SPEC_FULL.md §3:
// sha1(command|action|tabId|sequence).
func Key(command, action string, tabID int, seq uint64) string {
	raw := fmt.Sprintf("%s|%s|%d|%d", command, action, tabID, seq)
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Cache reports whether a DedupKey has already been seen, recording it on
// first sight. Implementations must be safe for concurrent use and must
// never block a caller for more than a short, bounded time.
type Cache interface {
	// SeenBefore records key if it is new and reports whether it was
	// already present.
	SeenBefore(ctx context.Context, key string) (bool, error)
}

// RedisCache backs the dedup cache with Redis SETNX + TTL, the production
// adapter when DEDUP_REDIS_ADDR is configured.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache returns a RedisCache against client with the given TTL per
// key (default 10 minutes if ttl <= 0).
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

// redisTimeout bounds each SETNX so a slow Redis never holds up dispatch
// for longer than the 200ms SPEC_FULL.md §5 allows.
const redisTimeout = 200 * time.Millisecond

func (c *RedisCache) SeenBefore(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	ok, err := c.client.SetNX(ctx, "dedup:"+key, 1, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup: redis setnx: %w", err)
	}
	// SetNX returns true when the key was newly set -- i.e. NOT seen before.
	return !ok, nil
}

// MemCache is an in-process, bounded fallback used when no Redis address
// is configured. It evicts the oldest key once it holds more than
// maxEntries, matching SPEC_FULL.md §6's "bounded to the last 10,000
// keys" contract.
type MemCache struct {
	mu         sync.Mutex
	maxEntries int
	seen       map[string]*list.Element
	order      *list.List
}

// NewMemCache returns an empty MemCache bounded to maxEntries (default
// 10000 if maxEntries <= 0).
func NewMemCache(maxEntries int) *MemCache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &MemCache{
		maxEntries: maxEntries,
		seen:       make(map[string]*list.Element),
		order:      list.New(),
	}
}

func (c *MemCache) SeenBefore(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[key]; ok {
		return true, nil
	}

	el := c.order.PushBack(key)
	c.seen[key] = el
	if c.order.Len() > c.maxEntries {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.seen, oldest.Value.(string))
	}
	return false, nil
}
