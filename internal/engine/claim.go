package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ClaimLock serializes concurrent deliveries for the same identity so only
// one of them reaches the create call at a time. The claim expires on its
// own if the holder dies.
type ClaimLock struct {
	redisClient *redis.Client
	ttl         time.Duration
	logger      *slog.Logger
}

// releaseScript deletes the claim only if it still holds our token, so an
// expired claim re-taken by another delivery is left alone.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

const claimPollInterval = 25 * time.Millisecond

func NewClaimLock(redisClient *redis.Client, ttl time.Duration, logger *slog.Logger) *ClaimLock {
	return &ClaimLock{
		redisClient: redisClient,
		ttl:         ttl,
		logger:      logger,
	}
}

func claimKey(identity string) string {
	return fmt.Sprintf("claim:%s", identity)
}

// Claim takes the claim for identity, waiting while another delivery holds
// it. acquired is false only when ctx ends first. Redis failures fall back to
// unclaimed processing and report acquired=true with a no-op release.
func (c *ClaimLock) Claim(ctx context.Context, identity string) (release func(), acquired bool) {
	token := uuid.NewString()
	key := claimKey(identity)

	ticker := time.NewTicker(claimPollInterval)
	defer ticker.Stop()

	for {
		ok, err := c.redisClient.SetNX(ctx, key, token, c.ttl).Result()
		switch {
		case err != nil && ctx.Err() != nil:
			return func() {}, false
		case err != nil:
			c.logger.Warn("claim lock unavailable, continuing without it",
				"error", err,
				"identity", identity,
			)
			return func() {}, true
		case ok:
			return c.releaseFunc(key, token, identity), true
		}

		select {
		case <-ctx.Done():
			return func() {}, false
		case <-ticker.C:
		}
	}
}

func (c *ClaimLock) releaseFunc(key, token, identity string) func() {
	return func() {
		// The request context may already be done; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, c.redisClient, []string{key}, token).Err(); err != nil {
			c.logger.Warn("failed to release claim", "error", err, "identity", identity)
		}
	}
}
