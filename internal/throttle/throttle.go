package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type Limiter interface {
	Allow(ctx context.Context, userID int64) (bool, error)
}

// Nop never limits.
type Nop struct{}

func (Nop) Allow(context.Context, int64) (bool, error) {
	return true, nil
}

// RedisLimiter is a fixed window counter per user.
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
	}
}

// NewRedisClient parses url and checks connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	logrus.Infof("redis connected at %s", opts.Addr)
	return client, nil
}

func key(userID int64) string {
	return fmt.Sprintf("throttle:%d", userID)
}

// Allow fails open: a redis error lets the press through and is returned for logging.
// The expiry is re-asserted with NX on every press, so a key never outlives its window.
func (l *RedisLimiter) Allow(ctx context.Context, userID int64) (bool, error) {
	k := key(userID)

	var incr *redis.IntCmd
	if _, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, l.window)
		return nil
	}); err != nil {
		return true, fmt.Errorf("counting press: %w", err)
	}

	return incr.Val() <= l.limit, nil
}
