package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/canteenhq/canteen-payments/internal/http/response"
	"github.com/canteenhq/canteen-payments/internal/service"
)

type FailureMode string

const (
	FailOpen   FailureMode = "fail_open"
	FailClosed FailureMode = "fail_closed"
)

// RateLimiter applies a per-client fixed window to an HTTP route group.
// The webhook handler does its own per-transaction limiting; this guard
// covers the client-facing API.
type RateLimiter struct {
	limiter service.Limiter
	limit   int
	window  time.Duration
	mode    FailureMode
	keyFunc func(r *http.Request) string
}

func NewRateLimiter(limiter service.Limiter, limit int, window time.Duration, mode FailureMode, keyFunc func(r *http.Request) string) *RateLimiter {
	if keyFunc == nil {
		keyFunc = clientIPKey
	}
	return &RateLimiter{
		limiter: limiter,
		limit:   limit,
		window:  window,
		mode:    mode,
		keyFunc: keyFunc,
	}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rl.keyFunc(r)
			if key == "" {
				key = clientIPKey(r)
			}
			allowed, retryAfter, err := rl.limiter.Allow(r.Context(), key, rl.limit, rl.window)
			if err != nil {
				if rl.mode == FailOpen {
					slog.Warn("rate limiter backend unavailable, allowing request",
						"mode", string(rl.mode),
						"error", err.Error(),
					)
					next.ServeHTTP(w, r)
					return
				}
				w.Header().Set("Retry-After", retryAfterHeader(rl.window))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", retryAfterHeader(retryAfter))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func retryAfterHeader(d time.Duration) string {
	if d <= 0 {
		return "1"
	}
	seconds := int(d.Round(time.Second).Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return fmt.Sprintf("%d", seconds)
}
