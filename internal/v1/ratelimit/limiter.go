// Package ratelimit implements rate limiting logic using Redis or local memory.
package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/driftlab/roomrelay/internal/v1/logging"
)

// ConnLimiter throttles new connections per client IP. It is shared by
// every transport; the key is the remote IP regardless of how the
// client connected.
type ConnLimiter struct {
	conns *limiter.Limiter
	store limiter.Store
}

// NewConnLimiter builds a limiter for the given formatted rate
// (e.g. "60-M" for 60 per minute). With a Redis client the limit is
// shared across instances; otherwise it falls back to an in-memory
// store.
func NewConnLimiter(rate string, redisClient *redis.Client) (*ConnLimiter, error) {
	connRate, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid connection rate: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "limiter:v1:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		store = s
		logging.Info(context.Background(), "✅ Rate limiter using Redis store")
	} else {
		store = memory.NewStore()
		logging.Warn(context.Background(), "⚠️  Rate limiter using Memory store (Redis disabled or unavailable)")
	}

	return &ConnLimiter{
		conns: limiter.New(store, connRate),
		store: store,
	}, nil
}

// AllowConn reports whether a new connection from ip is within the
// limit. A nil limiter allows everything, and store failures fail open:
// refusing every connection because Redis blinked is worse than briefly
// not limiting.
func (l *ConnLimiter) AllowConn(ctx context.Context, ip string) bool {
	if l == nil {
		return true
	}

	lctx, err := l.conns.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "Rate limiter store failed", zap.Error(err))
		return true
	}
	return !lctx.Reached
}
