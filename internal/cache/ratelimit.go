package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rateLimitUserPrefix = "ratelimit:user:"
	// IPs are hashed before they become part of a key.
	rateLimitIPPrefix = "ratelimit:ip:"
)

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int64
	// ResetAt is when the bucket will be full again.
	ResetAt time.Time
	// RetryAfter is how long a denied caller must wait for one token.
	RetryAfter time.Duration
}

// tokenBucketScript takes one token from the bucket at KEYS[1].
//
// ARGV[1] is the refill rate in tokens per millisecond and ARGV[2] the bucket
// capacity. Time comes from the Redis server so every API instance shares one
// clock. The fractional token count is stored as a string to survive the Lua
// to Redis integer conversion. Returns {allowed, wait_ms, remaining, full_ms}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])

local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

local state = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(state[1]) or burst
local ts = tonumber(state[2]) or now
if now > ts then
	tokens = math.min(burst, tokens + (now - ts) * rate)
end

local allowed = 0
local wait = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
else
	wait = math.ceil((1 - tokens) / rate)
end

local full = math.ceil((burst - tokens) / rate)
redis.call('HSET', key, 'tokens', tostring(tokens), 'ts', now)
redis.call('PEXPIRE', key, full + 1000)

return {allowed, wait, math.floor(tokens), full}
`)

// CheckUserRateLimit takes a token from the signed-in user's bucket.
// A non-positive rate disables the limit.
func (c *Cache) CheckUserRateLimit(ctx context.Context, userID string, ratePerMinute, burst int) (*RateLimitResult, error) {
	return c.takeToken(ctx, rateLimitUserPrefix+userID, ratePerMinute, burst)
}

// CheckIPRateLimit takes a token from the client IP's bucket.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, ratePerMinute, burst int) (*RateLimitResult, error) {
	return c.takeToken(ctx, rateLimitIPPrefix+hashIP(ip), ratePerMinute, burst)
}

// takeToken runs the bucket script. Redis failures are returned so the
// caller decides whether to fail open.
func (c *Cache) takeToken(ctx context.Context, key string, ratePerMinute, burst int) (*RateLimitResult, error) {
	if ratePerMinute <= 0 {
		return &RateLimitResult{Allowed: true, Remaining: int64(burst), ResetAt: time.Now()}, nil
	}
	burst = max(burst, 1)

	perMilli := float64(ratePerMinute) / float64(time.Minute.Milliseconds())
	res, err := tokenBucketScript.Run(ctx, c.client, []string{key}, perMilli, burst).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("token bucket %s: %w", key, err)
	}
	if len(res) != 4 {
		return nil, fmt.Errorf("token bucket %s: unexpected reply %v", key, res)
	}

	return &RateLimitResult{
		Allowed:    res[0] == 1,
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
		Remaining:  res[2],
		ResetAt:    time.Now().Add(time.Duration(res[3]) * time.Millisecond),
	}, nil
}

// hashIP returns the first 8 bytes of the IP's SHA-256 as hex.
func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}
