package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/calchub/auth-service/internal/ports"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims the window, checks the count and records the hit
// in one round trip so concurrent instances share an exact budget.
const slidingWindowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)
if count >= limit then
  local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
  local retry = 0
  if oldest[2] then
    retry = tonumber(oldest[2]) + window - now
  end
  return {0, 0, retry}
end
redis.call("ZADD", key, now, ARGV[4])
redis.call("PEXPIRE", key, window)
return {1, limit - count - 1, 0}
`

var slidingWindowLua = redis.NewScript(slidingWindowScript)

// RedisRateLimiter implements a sliding-window limiter over sorted sets.
type RedisRateLimiter struct {
	client *redis.Client
	prefix string
}

func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, prefix: "auth:rl:"}
}

func (l *RedisRateLimiter) Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (ports.RateDecision, error) {
	nowMs := now.UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()
	res, err := slidingWindowLua.Run(ctx, l.client, []string{l.prefix + key},
		nowMs, window.Milliseconds(), limit, member,
	).Int64Slice()
	if err != nil {
		return ports.RateDecision{}, fmt.Errorf("rate limit hit: %w", err)
	}
	if len(res) != 3 {
		return ports.RateDecision{}, fmt.Errorf("rate limit hit: unexpected reply length %d", len(res))
	}
	retry := time.Duration(res[2]) * time.Millisecond
	if retry < 0 {
		retry = 0
	}
	return ports.RateDecision{
		Allowed:    res[0] == 1,
		Remaining:  int(res[1]),
		RetryAfter: retry,
	}, nil
}

func (l *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.prefix+key).Err()
}
