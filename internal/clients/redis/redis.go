package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/attendlab/gatesight-backend/internal/logger"
)

// Client wraps the redis pieces the engine needs: the per-session discovery
// lock, ingestion dedupe keys, and accepted-scan milestone counters.
type Client interface {
	// AcquireLock takes a value-guarded lock; release with the returned token.
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
	// SetIfAbsent is the SETNX fast path for ingestion idempotency.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	Close() error
}

type client struct {
	log *logger.Logger
	rdb *goredis.Client
}

// releaseScript deletes the lock only when it still holds our token, so an
// expired-and-reacquired lock is never released by the old holder.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end`

func New(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &client{
		log: log.With("service", "RedisClient"),
		rdb: rdb,
	}, nil
}

func (c *client) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if c == nil || c.rdb == nil {
		return "", false, fmt.Errorf("redis client not initialized")
	}
	token := fmt.Sprintf("%d-%d", time.Now().UnixNano(), os.Getpid())
	ok, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (c *client) ReleaseLock(ctx context.Context, key, token string) error {
	if c == nil || c.rdb == nil {
		return fmt.Errorf("redis client not initialized")
	}
	return c.rdb.Eval(ctx, releaseScript, []string{key}, token).Err()
}

func (c *client) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if c == nil || c.rdb == nil {
		return false, fmt.Errorf("redis client not initialized")
	}
	ok, err := c.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (c *client) Incr(ctx context.Context, key string) (int64, error) {
	if c == nil || c.rdb == nil {
		return 0, fmt.Errorf("redis client not initialized")
	}
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return n, nil
}

func (c *client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
