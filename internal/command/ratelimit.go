package command

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter gates sensitive commands to at most one invocation per
// fixed interval.
type RateLimiter interface {
	// TryAcquire reports whether the command keyed by key may run now.
	// Acquisition and interval start are atomic.
	TryAcquire(ctx context.Context, key string) bool

	// Interval returns the minimum spacing between invocations.
	Interval() time.Duration
}

// MemoryRateLimiter is a mutex-guarded last-invocation map. Limiting is
// per-instance; multi-instance deployments use the Redis limiter.
type MemoryRateLimiter struct {
	mu       sync.Mutex
	last     map[string]time.Time
	interval time.Duration
	now      func() time.Time
}

// NewMemoryRateLimiter creates an in-memory rate limiter.
func NewMemoryRateLimiter(interval time.Duration) *MemoryRateLimiter {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &MemoryRateLimiter{
		last:     make(map[string]time.Time),
		interval: interval,
		now:      time.Now,
	}
}

// SetClock overrides the limiter clock. For testing.
func (l *MemoryRateLimiter) SetClock(now func() time.Time) {
	l.now = now
}

// TryAcquire reports whether the command may run now.
func (l *MemoryRateLimiter) TryAcquire(_ context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.last[key]; ok && now.Sub(last) < l.interval {
		return false
	}
	l.last[key] = now
	return true
}

// Interval returns the minimum spacing between invocations.
func (l *MemoryRateLimiter) Interval() time.Duration {
	return l.interval
}

// RedisRateLimiter enforces the interval across instances with a single
// SET NX PX per acquisition: whoever sets the key owns the interval.
type RedisRateLimiter struct {
	client   redis.UniversalClient
	interval time.Duration
	logger   *zap.Logger
}

// NewRedisRateLimiter creates a Redis-backed rate limiter.
func NewRedisRateLimiter(client redis.UniversalClient, interval time.Duration, logger *zap.Logger) *RedisRateLimiter {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRateLimiter{client: client, interval: interval, logger: logger}
}

// TryAcquire reports whether the command may run now. Redis being
// unreachable fails open: commands are not blocked by limiter outages.
func (l *RedisRateLimiter) TryAcquire(ctx context.Context, key string) bool {
	ok, err := l.client.SetNX(ctx, "ratelimit:"+key, 1, l.interval).Result()
	if err != nil {
		l.logger.Warn("rate limiter unavailable, allowing command",
			zap.String("key", key),
			zap.Error(err),
		)
		return true
	}
	return ok
}

// Interval returns the minimum spacing between invocations.
func (l *RedisRateLimiter) Interval() time.Duration {
	return l.interval
}
