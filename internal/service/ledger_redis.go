package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisLedgerBeginScript = redis.NewScript(`
local key = KEYS[1]
local lease_ms = ARGV[1]

if redis.call("EXISTS", key) == 0 then
  redis.call("HSET", key, "status", "in_progress")
  redis.call("PEXPIRE", key, lease_ms)
  return {"new"}
end

local status = redis.call("HGET", key, "status")
if status == "completed" then
  return {"replay", redis.call("HGET", key, "outcome") or ""}
end

return {"in_progress"}
`)

var redisLedgerCompleteScript = redis.NewScript(`
local key = KEYS[1]
local ttl_ms = ARGV[1]
local outcome = ARGV[2]

redis.call("HSET", key, "status", "completed", "outcome", outcome)
redis.call("PEXPIRE", key, ttl_ms)
return 1
`)

var redisLedgerAbandonScript = redis.NewScript(`
local key = KEYS[1]

if redis.call("HGET", key, "status") == "in_progress" then
  redis.call("DEL", key)
  return 1
end
return 0
`)

// RedisLedger shares processed-transaction state across instances so
// horizontal scaling does not reopen the duplicate-delivery window.
type RedisLedger struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

func NewRedisLedger(client redis.UniversalClient, prefix string, retention time.Duration) *RedisLedger {
	if prefix == "" {
		prefix = "pwh"
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &RedisLedger{client: client, prefix: prefix, retention: retention}
}

func (l *RedisLedger) redisKey(transactionID string) string {
	return fmt.Sprintf("%s:%s", l.prefix, transactionID)
}

func (l *RedisLedger) Begin(ctx context.Context, transactionID string) (LedgerResult, error) {
	// New claims get the short lease TTL; the key simply evaporates if
	// the claimant dies before Complete extends it to the retention
	// window, so the provider's retry can reprocess.
	raw, err := redisLedgerBeginScript.Run(
		ctx,
		l.client,
		[]string{l.redisKey(transactionID)},
		int(claimLease/time.Millisecond),
	).Result()
	if err != nil {
		return LedgerResult{}, err
	}
	values, ok := raw.([]interface{})
	if !ok || len(values) == 0 {
		return LedgerResult{}, fmt.Errorf("unexpected redis begin result type")
	}
	switch LedgerState(asString(values[0])) {
	case LedgerStateNew:
		return LedgerResult{State: LedgerStateNew}, nil
	case LedgerStateInProgress:
		return LedgerResult{State: LedgerStateInProgress}, nil
	case LedgerStateReplay:
		if len(values) < 2 {
			return LedgerResult{}, fmt.Errorf("unexpected replay payload")
		}
		return LedgerResult{State: LedgerStateReplay, Outcome: asString(values[1])}, nil
	default:
		return LedgerResult{}, fmt.Errorf("unknown ledger state %q", asString(values[0]))
	}
}

func (l *RedisLedger) Complete(ctx context.Context, transactionID, outcome string) error {
	_, err := redisLedgerCompleteScript.Run(
		ctx,
		l.client,
		[]string{l.redisKey(transactionID)},
		int(l.retention/time.Millisecond),
		outcome,
	).Result()
	return err
}

func (l *RedisLedger) Abandon(ctx context.Context, transactionID string) error {
	_, err := redisLedgerAbandonScript.Run(
		ctx,
		l.client,
		[]string{l.redisKey(transactionID)},
	).Result()
	return err
}

func asString(v interface{}) string {
	switch typed := v.(type) {
	case string:
		return typed
	case []byte:
		return string(typed)
	default:
		return fmt.Sprint(v)
	}
}
