package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Lua script for an atomic fixed-window acquire. Denied calls do not touch the counter.
var acquireScript = redis.NewScript(`
	local key = KEYS[1]
	local max = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local current = tonumber(redis.call('GET', key) or '0')
	if current >= max then
		local ttl = redis.call('PTTL', key)
		return {0, current, ttl}
	end

	local count = redis.call('INCR', key)
	if count == 1 then
		redis.call('PEXPIRE', key, window)
	end

	return {1, count, redis.call('PTTL', key)}
`)

// Lua script returning a slot. Missing keys stay missing so a refund never opens a window.
var releaseScript = redis.NewScript(`
	local key = KEYS[1]

	local current = tonumber(redis.call('GET', key) or '0')
	if current <= 0 then
		return 0
	end

	return redis.call('DECR', key)
`)

// RedisStore keeps windows in Redis so every service instance shares the same budget
type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{redis: redisClient}
}

func (s *RedisStore) Acquire(ctx context.Context, key string, max int64, window time.Duration) (bool, int64, time.Duration, error) {
	result, err := acquireScript.Run(ctx, s.redis, []string{key}, max, window.Milliseconds()).Result()
	if err != nil {
		return false, 0, 0, fmt.Errorf("acquire script: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return false, 0, 0, fmt.Errorf("unexpected result type from acquire script")
	}

	allowed, _ := values[0].(int64)
	count, _ := values[1].(int64)
	ttlMs, _ := values[2].(int64)
	if ttlMs < 0 {
		ttlMs = 0
	}

	return allowed == 1, count, time.Duration(ttlMs) * time.Millisecond, nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, s.redis, []string{key}).Err(); err != nil {
		return fmt.Errorf("release script: %w", err)
	}
	return nil
}

// Reset clears the window for key
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.redis.Del(ctx, key).Err()
}
