package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisFixedWindowScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])

local count = redis.call("INCR", key)
if count == 1 then
  redis.call("PEXPIRE", key, window_ms)
end
if count > limit then
  local ttl = redis.call("PTTL", key)
  if ttl < 0 then
    ttl = window_ms
  end
  return {0, ttl}
end
return {1, 0}
`)

// RedisFixedWindowLimiter shares window state across instances.
type RedisFixedWindowLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisFixedWindowLimiter(client redis.UniversalClient, prefix string) *RedisFixedWindowLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisFixedWindowLimiter{client: client, prefix: prefix}
}

func (l *RedisFixedWindowLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	if l.client == nil {
		return false, 0, fmt.Errorf("redis client is nil")
	}
	if key == "" {
		key = "unknown"
	}
	windowMS := int(window / time.Millisecond)
	if windowMS <= 0 {
		windowMS = 1000
	}
	raw, err := redisFixedWindowScript.Run(
		ctx,
		l.client,
		[]string{fmt.Sprintf("%s:%s", l.prefix, key)},
		limit,
		windowMS,
	).Result()
	if err != nil {
		return false, 0, err
	}
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return false, 0, fmt.Errorf("unexpected redis script response type")
	}
	allowed, err := parseRedisInt64(values[0])
	if err != nil {
		return false, 0, err
	}
	retryMS, err := parseRedisInt64(values[1])
	if err != nil {
		return false, 0, err
	}
	return allowed == 1, time.Duration(retryMS) * time.Millisecond, nil
}

func parseRedisInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected redis response type %T", v)
	}
}
