package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrLimited is returned to callers that were denied admission
var ErrLimited = errors.New("rate limit exceeded")

// WindowStore holds fixed-window counters. Acquire consumes one slot when fewer than
// max slots are in use and reports the resulting count and the time left in the window.
// Release hands one slot back without going below zero.
type WindowStore interface {
	Acquire(ctx context.Context, key string, max int64, window time.Duration) (allowed bool, count int64, ttl time.Duration, err error)
	Release(ctx context.Context, key string) error
}

// Decision is the outcome of an admission check
type Decision struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter admits at most max requests per key within each fixed window
type Limiter struct {
	store  WindowStore
	action string
	max    int64
	window time.Duration
}

// NewLimiter creates a limiter for a single action, e.g. "images"
func NewLimiter(store WindowStore, action string, max int64, window time.Duration) *Limiter {
	return &Limiter{
		store:  store,
		action: action,
		max:    max,
		window: window,
	}
}

// Admit consumes one slot for key if the window still has room
func (l *Limiter) Admit(ctx context.Context, key string) (Decision, error) {
	if key == "" {
		return Decision{}, fmt.Errorf("rate limit key is required")
	}

	allowed, count, ttl, err := l.store.Acquire(ctx, l.key(key), l.max, l.window)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit check failed: %w", err)
	}

	remaining := l.max - count
	if remaining < 0 {
		remaining = 0
	}

	d := Decision{
		Allowed:   allowed,
		Limit:     l.max,
		Remaining: remaining,
	}
	if !allowed {
		d.RetryAfter = ttl
	}

	return d, nil
}

// Refund returns one consumed slot to key's budget
func (l *Limiter) Refund(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}

	if err := l.store.Release(ctx, l.key(key)); err != nil {
		return fmt.Errorf("rate limit refund failed: %w", err)
	}

	return nil
}

// Limit returns the number of slots per window
func (l *Limiter) Limit() int64 {
	return l.max
}

// Window returns the window length
func (l *Limiter) Window() time.Duration {
	return l.window
}

func (l *Limiter) key(key string) string {
	return fmt.Sprintf("rate_limit:%s:%s", l.action, key)
}
