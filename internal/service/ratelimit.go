package service

import (
	"context"
	"sync"
	"time"
)

// Limiter bounds how many webhook deliveries are processed per key in a
// fixed window. Exceeding the ceiling is an explicit rejection, not a
// silent drop; the key becomes eligible again once the window rolls
// over.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

type fixedWindow struct {
	count       int
	windowStart time.Time
}

type localFixedWindowLimiter struct {
	mu      sync.Mutex
	store   map[string]*fixedWindow
	cleanup time.Time
	now     func() time.Time
}

// NewLocalFixedWindowLimiter returns the single-process limiter.
func NewLocalFixedWindowLimiter() Limiter {
	return &localFixedWindowLimiter{
		store:   make(map[string]*fixedWindow),
		cleanup: time.Now().Add(time.Minute),
		now:     time.Now,
	}
}

func (rl *localFixedWindowLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.After(rl.cleanup) {
		for k, v := range rl.store {
			if now.Sub(v.windowStart) > 2*window {
				delete(rl.store, k)
			}
		}
		rl.cleanup = now.Add(window)
	}

	entry, ok := rl.store[key]
	if !ok || now.Sub(entry.windowStart) >= window {
		rl.store[key] = &fixedWindow{count: 1, windowStart: now}
		return true, 0, nil
	}
	if entry.count >= limit {
		retryAfter := window - now.Sub(entry.windowStart)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter, nil
	}
	entry.count++
	return true, 0, nil
}
