package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "rl:"

// slidingWindowScript trims the ZSET to the window, records the hit when
// under the limit and reports (allowed, count, resetAtMs).
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)
local allowed = 0
if count < max then
  redis.call("ZADD", key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call("PEXPIRE", key, window)
local reset = now + window
local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {allowed, count, reset}
`)

// RedisStore keeps hits in one ZSET per key, scored by hit time in ms.
type RedisStore struct {
	Client redis.Scripter
	Prefix string
}

// NewRedisStore returns a store using client.
func NewRedisStore(client redis.Scripter) *RedisStore {
	return &RedisStore{Client: client, Prefix: defaultPrefix}
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Hit implements Store.
func (s *RedisStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, maxHits int) (Result, error) {
	nowMs := now.UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()
	raw, err := slidingWindowScript.Run(ctx, s.Client, []string{s.Prefix + key},
		nowMs, window.Milliseconds(), maxHits, member).Result()
	if err != nil {
		return Result{}, fmt.Errorf("redis rate limit: %w", err)
	}
	vals, ok := raw.([]interface{})
	if !ok || len(vals) < 3 {
		return Result{}, fmt.Errorf("redis rate limit: unexpected reply %T", raw)
	}
	allowed, _ := vals[0].(int64)
	count, _ := vals[1].(int64)
	resetMs, _ := vals[2].(int64)

	res := Result{
		Allowed: allowed == 1,
		ResetAt: time.UnixMilli(resetMs),
	}
	if res.Allowed {
		res.Remaining = maxHits - int(count)
	}
	return res, nil
}
