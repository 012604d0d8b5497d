// Package notifications fans tree change events out to live tracking feeds,
// across instances through Redis pub/sub or in-process when Redis is absent.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"

	"canopy/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// PlantersChannel carries PlantersChanged events between instances.
const PlantersChannel = "canopy:planters"

// Tree change actions.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// PlantersChanged says a tree mutation altered the planter aggregate.
type PlantersChanged struct {
	Action    string `json:"action"`
	TreeID    uint   `json:"treeId"`
	PlanterID uint   `json:"planterId"`
}

// Notifier publishes change events. With no Redis client it hands them
// straight to the local hub.
type Notifier struct {
	rdb   *redis.Client
	local *Hub
}

// NewNotifier creates a Notifier. Either argument may be nil.
func NewNotifier(rdb *redis.Client, local *Hub) *Notifier {
	return &Notifier{rdb: rdb, local: local}
}

// PublishPlantersChanged announces a tree mutation. A nil Notifier is a no-op.
func (n *Notifier) PublishPlantersChanged(ctx context.Context, ev PlantersChanged) error {
	if n == nil {
		return nil
	}
	if n.rdb == nil {
		if n.local != nil {
			n.local.Broadcast(ev)
		}
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return n.rdb.Publish(ctx, PlantersChannel, payload).Err()
}

// StartPlantersSubscriber subscribes to PlantersChannel and calls onMessage
// for every event until ctx ends. It returns once the subscription is live.
func (n *Notifier) StartPlantersSubscriber(ctx context.Context, onMessage func(PlantersChanged)) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	sub := n.rdb.Subscribe(ctx, PlantersChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", PlantersChannel, err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev PlantersChanged
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					middleware.Logger.Warn("invalid planters event",
						slog.String("payload", msg.Payload), slog.String("error", err.Error()))
					continue
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("panic in planters subscriber",
								slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
						}
					}()
					onMessage(ev)
				}()
			}
		}
	}()

	return nil
}
