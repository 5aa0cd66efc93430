package redis

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

var slidingWindow = redis.NewScript(slidingWindowLua)

// RateLimiter implements domain.RateLimiter with a sliding window over a
// sorted set, evaluated atomically in Lua.
type RateLimiter struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.Underlying(), now: time.Now}
}

// Allow reports whether one more request under key fits in the last window,
// counting it when it does.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	now := rl.now().UnixMicro()
	ttl := window.Milliseconds()
	if ttl < 1 {
		ttl = 1
	}
	res, err := slidingWindow.Run(ctx, rl.rdb,
		[]string{"ratelimit:" + key},
		strconv.FormatInt(now, 10),
		strconv.FormatInt(now-window.Microseconds(), 10),
		limit,
		strconv.FormatInt(ttl, 10),
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(res) != 2 {
		return false, fmt.Errorf("redis: rate limit %s: unexpected reply %v", key, res)
	}
	return res[0] == 1, nil
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
