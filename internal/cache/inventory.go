package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	PlantersKey   = "planters:all"
	UserKeyPrefix = "user:%d"
)

const (
	PlantersTTL = 30 * time.Second
	UserTTL     = 5 * time.Minute
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

// Invalidate drops key and bumps its generation, so loads already in flight
// do not store what they read.
func Invalidate(ctx context.Context, key string) {
	if client == nil {
		return
	}
	_, _ = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(key))
		pipe.Del(ctx, key)
		return nil
	})
}

// InvalidatePlanters drops the planter aggregate; every tree mutation calls it.
func InvalidatePlanters(ctx context.Context) {
	Invalidate(ctx, PlantersKey)
}
