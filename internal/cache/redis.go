// Package cache holds the process Redis client and the cache-aside helpers
// built on it. Every helper is a no-op or a pass-through when no client is set.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"canopy/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const (
	connectTimeout = 5 * time.Second
	slowCommand    = 100 * time.Millisecond
)

var client *redis.Client

// instrument counts failed commands and logs slow ones. redis.Nil is a miss,
// not a failure.
type instrument struct{}

func (instrument) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (instrument) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		observe(ctx, cmd.Name(), start, err)
		return err
	}
}

func (instrument) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		observe(ctx, "pipeline", start, err)
		return err
	}
}

func observe(ctx context.Context, name string, start time.Time, err error) {
	if err != nil && !errors.Is(err, redis.Nil) {
		middleware.RedisErrors.WithLabelValues(name).Inc()
	}
	if took := time.Since(start); took > slowCommand {
		middleware.Logger.DebugContext(ctx, "slow redis command",
			slog.String("command", name), slog.Duration("took", took))
	}
}

// Connect dials addr, either host:port or a redis:// URL, and pings it.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		opts = parsed
	}

	rdb := redis.NewClient(opts)
	rdb.AddHook(instrument{})

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping %s: %w", opts.Addr, err)
	}
	return rdb, nil
}

// InitRedis connects and installs the result as the package client. Redis is
// optional: on failure it logs, clears the client and returns nil.
func InitRedis(addr string) *redis.Client {
	rdb, err := Connect(context.Background(), addr)
	if err != nil {
		middleware.Logger.Warn("Redis unavailable, continuing without cache", slog.String("error", err.Error()))
		client = nil
		return nil
	}
	middleware.Logger.Info("Redis connected", slog.String("addr", rdb.Options().Addr))
	client = rdb
	return client
}

// SetClient replaces the package client. Tests use it with miniredis.
func SetClient(rdb *redis.Client) {
	client = rdb
}

// GetClient returns the package client, or nil.
func GetClient() *redis.Client {
	return client
}
