package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/princekumarofficial/gallery-service/internal/storage"
)

// Cache key patterns
const (
	FingerprintKey     = "dedup:fingerprint:%s" // dedup:fingerprint:hash
	FingerprintPattern = "dedup:fingerprint:*"
)

// DefaultTTL applies when no TTL is configured. A fingerprint never changes owner,
// the TTL only bounds memory.
const DefaultTTL = 24 * time.Hour

// DedupCache answers fingerprint lookups from Redis and falls back to the record store.
// Only hits are cached: a miss may turn into a record at any moment.
type DedupCache struct {
	storage storage.Storage
	redis   *redis.Client
	ttl     time.Duration
}

// NewDedupCache wraps the record store with a Redis read-through cache
func NewDedupCache(storage storage.Storage, redisClient *redis.Client, ttl time.Duration) *DedupCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &DedupCache{
		storage: storage,
		redis:   redisClient,
		ttl:     ttl,
	}
}

// Lookup returns the id of the image holding fingerprint. Redis errors degrade to
// the store; store errors are returned.
func (c *DedupCache) Lookup(ctx context.Context, fingerprint string) (string, bool, error) {
	key := fmt.Sprintf(FingerprintKey, fingerprint)

	// Try cache first
	id, err := c.redis.Get(ctx, key).Result()
	if err == nil && id != "" {
		return id, true, nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		slog.Warn("Dedup cache read failed", slog.String("error", err.Error()))
	}

	// Cache miss - ask the store
	img, err := c.storage.FindImageByFingerprint(ctx, fingerprint)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	c.Remember(ctx, fingerprint, img.ID)
	return img.ID, true, nil
}

// Remember caches the owner of a fingerprint
func (c *DedupCache) Remember(ctx context.Context, fingerprint, id string) {
	key := fmt.Sprintf(FingerprintKey, fingerprint)
	if err := c.redis.Set(ctx, key, id, c.ttl).Err(); err != nil {
		slog.Warn("Dedup cache write failed", slog.String("error", err.Error()))
	}
}

// Forget drops a cached fingerprint
func (c *DedupCache) Forget(ctx context.Context, fingerprint string) error {
	return c.redis.Del(ctx, fmt.Sprintf(FingerprintKey, fingerprint)).Err()
}
