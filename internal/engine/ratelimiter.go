package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles create calls against the provisioning backend with a
// per-scope sliding window kept in a Redis sorted set. A Lua script cleans
// expired entries, checks the count and adds the new entry atomically.
type RateLimiter struct {
	redisClient *redis.Client
	logger      *slog.Logger
	script      *redis.Script
	limit       int
	window      time.Duration
}

// Lua script for atomic sliding window rate limiting.
// 1. Remove entries older than the window
// 2. Count remaining entries
// 3. If under the limit, add a new entry and return 1 (allowed)
// 4. If at/over the limit, return 0 (denied)
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('PEXPIRE', key, window + 1000)
    return 1
else
    return 0
end
`)

// NewRateLimiter allows at most limit create calls per second per scope.
// A limit of zero or less disables throttling.
func NewRateLimiter(redisClient *redis.Client, limit int, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		logger:      logger,
		script:      slidingWindowScript,
		limit:       limit,
		window:      time.Second,
	}
}

func rlKey(scope string) string {
	return fmt.Sprintf("rl:%s", scope)
}

// Allow reports whether one more create call for scope fits in the window.
func (rl *RateLimiter) Allow(ctx context.Context, scope string) bool {
	if rl.limit <= 0 {
		return true
	}

	now := time.Now()

	result, err := rl.script.Run(ctx, rl.redisClient, []string{rlKey(scope)},
		now.UnixMilli(), rl.window.Milliseconds(), rl.limit, uuid.NewString(),
	).Int64()
	if err != nil {
		rl.logger.Error("rate limiter script failed", "error", err, "scope", scope)
		return true // Fail open
	}

	if result == 0 {
		rl.logger.Debug("create call throttled", "scope", scope, "limit", rl.limit)
		return false
	}

	return true
}
