package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims the window, counts, and records the hit in one
// round trip so that concurrent instances see a consistent count.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local max = tonumber(ARGV[3])

	redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
	local count = redis.call("ZCARD", key)
	if count >= max then
		redis.call("PEXPIRE", key, window)
		return 0
	end

	redis.call("ZADD", key, now, ARGV[4])
	redis.call("PEXPIRE", key, window)
	return 1
`)

// Redis is a sliding-window limiter shared by every instance that points
// at the same Redis. Keys expire on their own once idle for a window.
type Redis struct {
	client    redis.Scripter
	keyPrefix string
	now       func() time.Time
}

var _ Limiter = (*Redis)(nil)

// NewRedis creates a Redis-backed limiter.
func NewRedis(client redis.Scripter, keyPrefix string) *Redis {
	return &Redis{
		client:    client,
		keyPrefix: keyPrefix + ":ratelimit:",
		now:       time.Now,
	}
}

// Allow returns an error when Redis cannot be reached.
func (r *Redis) Allow(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	if max <= 0 {
		return false, nil
	}

	res, err := slidingWindowScript.Run(ctx, r.client,
		[]string{r.keyPrefix + key},
		r.now().UnixMilli(),
		window.Milliseconds(),
		max,
		uuid.NewString(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis: %w", err)
	}

	return res == 1, nil
}
