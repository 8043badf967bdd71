package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

// setupTestRedis creates an in-memory Redis server for testing
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
		DB:   0,
	})

	// Test connection
	_, err = redisClient.Ping(context.Background()).Result()
	if err != nil {
		t.Fatalf("Failed to connect to test Redis: %v", err)
	}

	cleanup := func() {
		redisClient.Close()
		mr.Close()
	}

	return mr, redisClient, cleanup
}

func TestLimiter_RedisAdmitUpToMax(t *testing.T) {
	_, redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	limiter := NewLimiter(NewRedisStore(redisClient), "images", 2, 10*time.Second)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := limiter.Admit(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("Expected request %d to be allowed", i+1)
		}
		if d.Remaining != int64(1-i) {
			t.Fatalf("Expected %d remaining, got %d", 1-i, d.Remaining)
		}
	}

	d, err := limiter.Admit(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if d.Allowed {
		t.Fatal("Expected request to be denied after limit reached")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > 10*time.Second {
		t.Fatalf("Expected retry after within the window, got %s", d.RetryAfter)
	}

	// Other keys keep their own budget
	d, err = limiter.Admit(ctx, "10.0.0.2")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Fatal("Expected a different key to be allowed")
	}
}

func TestLimiter_RedisWindowExpires(t *testing.T) {
	mr, redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	limiter := NewLimiter(NewRedisStore(redisClient), "images", 2, 10*time.Second)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := limiter.Admit(ctx, "user"); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	mr.FastForward(11 * time.Second)

	d, err := limiter.Admit(ctx, "user")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Fatal("Expected request to be allowed in a new window")
	}
}

func TestLimiter_RedisRefund(t *testing.T) {
	mr, redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	limiter := NewLimiter(NewRedisStore(redisClient), "images", 2, 10*time.Second)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		limiter.Admit(ctx, "user")
	}

	if err := limiter.Refund(ctx, "user"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	d, err := limiter.Admit(ctx, "user")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Fatal("Expected refunded slot to be usable")
	}

	// Refunding a key that never consumed anything must not create a window
	if err := limiter.Refund(ctx, "stranger"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if mr.Exists("rate_limit:images:stranger") {
		t.Fatal("Expected refund of an unknown key to be a no-op")
	}
}

func TestLimiter_RedisRefundNeverBelowZero(t *testing.T) {
	_, redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	limiter := NewLimiter(NewRedisStore(redisClient), "images", 2, 10*time.Second)
	ctx := context.Background()

	limiter.Admit(ctx, "user")
	for i := 0; i < 3; i++ {
		if err := limiter.Refund(ctx, "user"); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	allowed := 0
	for i := 0; i < 5; i++ {
		d, _ := limiter.Admit(ctx, "user")
		if d.Allowed {
			allowed++
		}
	}
	if allowed != 2 {
		t.Fatalf("Expected exactly 2 admissions after over-refunding, got %d", allowed)
	}
}

func TestLimiter_EmptyKey(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), "images", 2, time.Second)

	if _, err := limiter.Admit(context.Background(), ""); err == nil {
		t.Fatal("Expected error for empty key")
	}
	if err := limiter.Refund(context.Background(), ""); err != nil {
		t.Fatalf("Expected refund of empty key to be a no-op, got %v", err)
	}
}

func TestMemoryStore_ConcurrentAdmit(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), "images", 2, time.Minute)
	ctx := context.Background()

	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := limiter.Admit(ctx, "user")
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			if d.Allowed {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	if allowed != 2 {
		t.Fatalf("Expected exactly 2 concurrent admissions, got %d", allowed)
	}
}

func TestMemoryStore_WindowResetAndPrune(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	limiter := NewLimiter(store, "images", 1, 10*time.Second)
	ctx := context.Background()

	d, _ := limiter.Admit(ctx, "user")
	if !d.Allowed {
		t.Fatal("Expected first request to be allowed")
	}

	now = now.Add(4 * time.Second)
	d, _ = limiter.Admit(ctx, "user")
	if d.Allowed {
		t.Fatal("Expected second request to be denied")
	}
	if d.RetryAfter != 6*time.Second {
		t.Fatalf("Expected 6s retry after, got %s", d.RetryAfter)
	}

	now = now.Add(6 * time.Second)
	if removed := store.Prune(); removed != 1 {
		t.Fatalf("Expected 1 pruned window, got %d", removed)
	}

	d, _ = limiter.Admit(ctx, "user")
	if !d.Allowed {
		t.Fatal("Expected request in a new window to be allowed")
	}
}

func TestMemoryStore_RefundAfterWindowIsNoop(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	limiter := NewLimiter(store, "images", 1, 10*time.Second)
	ctx := context.Background()

	limiter.Admit(ctx, "user")
	limiter.Refund(ctx, "user")

	d, _ := limiter.Admit(ctx, "user")
	if !d.Allowed {
		t.Fatal("Expected refunded slot to be usable")
	}

	now = now.Add(11 * time.Second)
	limiter.Refund(ctx, "user")

	d, _ = limiter.Admit(ctx, "user")
	if !d.Allowed {
		t.Fatal("Expected new window to be allowed")
	}
	d, _ = limiter.Admit(ctx, "user")
	if d.Allowed {
		t.Fatal("Expected the stale refund not to add budget to the new window")
	}
}
