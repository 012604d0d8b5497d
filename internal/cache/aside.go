package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"canopy/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// Aside implements cache-aside for key. On a hit dst is filled from Redis.
// On a miss load must fill dst, which is then stored for ttl unless key was
// invalidated while load ran. Redis failures are logged and never fail the
// call; without a client load always runs.
func Aside(ctx context.Context, key string, dst any, ttl time.Duration, load func() error) error {
	if client == nil {
		return load()
	}

	hit, err := GetJSON(ctx, key, dst)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	if hit {
		return nil
	}

	gen, genErr := generation(ctx, key)
	if err := load(); err != nil {
		return err
	}
	if genErr != nil {
		middleware.Logger.WarnContext(ctx, "cache generation unreadable", slog.String("key", key), slog.String("error", genErr.Error()))
		return nil
	}

	stored, err := storeIfCurrent(ctx, key, gen, dst, ttl)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	} else if !stored {
		middleware.Logger.DebugContext(ctx, "cache write skipped after invalidation", slog.String("key", key))
	}
	return nil
}

func genKey(key string) string {
	return key + ":gen"
}

// generation is the invalidation counter of key; 0 until first invalidated.
func generation(ctx context.Context, key string) (int64, error) {
	n, err := client.Get(ctx, genKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// storeIfCurrent writes v under key only while its generation still equals
// gen.
func storeIfCurrent(ctx context.Context, key string, gen int64, v any, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return false, err
	}

	stored := false
	err = client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey(key)).Int64()
		if errors.Is(err, redis.Nil) {
			cur = 0
		} else if err != nil {
			return err
		}
		if cur != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, ttl)
			return nil
		})
		if err == nil {
			stored = true
		}
		return err
	}, genKey(key))
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	return stored, err
}

// GetJSON decodes the cached value for key into dst and reports whether it
// was present.
func GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if client == nil {
		return false, nil
	}
	raw, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		// A payload we cannot decode is as good as a miss.
		client.Del(ctx, key)
		return false, err
	}
	return true, nil
}

// SetJSON stores v under key for ttl.
func SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if client == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, raw, ttl).Err()
}
