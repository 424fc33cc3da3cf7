package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var (
	ErrNotConfigured = errors.New("rate_limiter_not_configured")
	ErrEmptyKey      = errors.New("rate_limiter_empty_key")
	ErrInvalidLimit  = errors.New("rate_limiter_invalid_limit")
	errBadReply      = errors.New("rate_limiter_bad_reply")
)

// The script refills and takes in one round trip using the server clock, so
// replicas with skewed clocks still agree. Fractional tokens are returned as a
// string because Redis truncates Lua numbers in replies.
const takeScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl_ms = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local last = tonumber(state[2]) or now
if now > last then
  tokens = math.min(burst, tokens + ((now - last) / 1000) * rate)
end

local allowed = 0
local retry_ms = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  retry_ms = math.ceil(((1 - tokens) / rate) * 1000)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl_ms)

return {allowed, tostring(tokens), retry_ms, now}
`

// RateLimitResult describes one take against a bucket.
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// TokenBucket is a Redis backed bucket shared by every replica.
type TokenBucket struct {
	client redis.Scripter
	script *redis.Script
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client, script: redis.NewScript(takeScript)}
}

func (t *TokenBucket) Take(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error) {
	denied := &RateLimitResult{Limit: burst}
	if t == nil || t.client == nil {
		return denied, ErrNotConfigured
	}
	if err := validateTake(key, rate, burst); err != nil {
		return denied, err
	}

	ttl := bucketTTL(rate, burst)
	reply, err := t.script.Run(ctx, t.client, []string{key}, rate, burst, ttl.Milliseconds()).Slice()
	if err != nil {
		return denied, fmt.Errorf("token bucket %s: %w", key, err)
	}
	return parseReply(reply, burst)
}

func validateTake(key string, rate float64, burst int) error {
	if key == "" {
		return ErrEmptyKey
	}
	if rate <= 0 || burst <= 0 {
		return fmt.Errorf("%w: rate=%v burst=%d", ErrInvalidLimit, rate, burst)
	}
	return nil
}

// parseReply decodes {allowed, tokens, retry_ms, now_ms} from the script.
func parseReply(reply []interface{}, burst int) (*RateLimitResult, error) {
	if len(reply) != 4 {
		return &RateLimitResult{Limit: burst}, errBadReply
	}
	allowed, ok1 := reply[0].(int64)
	tokensRaw, ok2 := reply[1].(string)
	retryMs, ok3 := reply[2].(int64)
	nowMs, ok4 := reply[3].(int64)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return &RateLimitResult{Limit: burst}, errBadReply
	}
	tokens, err := strconv.ParseFloat(tokensRaw, 64)
	if err != nil {
		return &RateLimitResult{Limit: burst}, fmt.Errorf("%w: tokens %q", errBadReply, tokensRaw)
	}

	retryAfter := time.Duration(retryMs) * time.Millisecond
	return &RateLimitResult{
		Allowed:    allowed == 1,
		Limit:      burst,
		Remaining:  int(math.Max(0, math.Floor(tokens))),
		ResetTime:  time.UnixMilli(nowMs).Add(retryAfter),
		RetryAfter: retryAfter,
	}, nil
}

// bucketTTL keeps idle keys around for twice the full refill time.
func bucketTTL(rate float64, burst int) time.Duration {
	if rate <= 0 || burst <= 0 {
		return time.Second
	}
	seconds := math.Max(1, math.Ceil(float64(burst)/rate*2))
	return time.Duration(seconds) * time.Second
}
