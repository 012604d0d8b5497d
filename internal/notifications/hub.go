package notifications

import (
	"context"
	"errors"
	"sync"

	"canopy/internal/observability"
)

const (
	// Max subscriptions per user
	maxSubsPerUser = 12
	// Max total subscriptions
	maxTotalSubs = 10000
)

var (
	ErrUserLimit   = errors.New("user connection limit reached")
	ErrServerLimit = errors.New("server connection limit reached")
	ErrHubClosed   = errors.New("hub is shut down")
)

// Subscription receives change events for one tracking connection. Events
// coalesce: a subscriber that falls behind sees at least the latest one.
type Subscription struct {
	UserID uint
	events chan PlantersChanged
}

// Events is closed when the subscription ends.
func (s *Subscription) Events() <-chan PlantersChanged { return s.events }

func (s *Subscription) trySend(ev PlantersChanged) {
	select {
	case s.events <- ev:
	default:
	}
}

// Hub maps userID -> subscriptions of open tracking feeds.
type Hub struct {
	mu     sync.Mutex
	subs   map[uint]map[*Subscription]struct{}
	total  int
	closed bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint]map[*Subscription]struct{})}
}

// Subscribe registers a feed for userID, enforcing per-user and global limits.
func (h *Hub) Subscribe(userID uint) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	if h.total >= maxTotalSubs {
		return nil, ErrServerLimit
	}
	m, ok := h.subs[userID]
	if !ok {
		m = make(map[*Subscription]struct{})
		h.subs[userID] = m
	}
	if len(m) >= maxSubsPerUser {
		return nil, ErrUserLimit
	}

	sub := &Subscription{UserID: userID, events: make(chan PlantersChanged, 1)}
	m[sub] = struct{}{}
	h.total++
	return sub, nil
}

// Unsubscribe removes sub and closes its channel. Repeated calls are no-ops.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.subs[sub.UserID]
	if !ok {
		return
	}
	if _, exists := m[sub]; !exists {
		return
	}
	delete(m, sub)
	h.total--
	if len(m) == 0 {
		delete(h.subs, sub.UserID)
	}
	close(sub.events)
}

// Len is the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

// Broadcast delivers ev to every subscription without blocking.
func (h *Hub) Broadcast(ev PlantersChanged) {
	h.mu.Lock()
	defer h.mu.Unlock()
	observability.PlanterEvents.WithLabelValues(ev.Action).Inc()
	for _, subs := range h.subs {
		for sub := range subs {
			sub.trySend(ev)
		}
	}
}

// StartWiring forwards events published through n, from any instance, to
// this hub's subscriptions.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartPlantersSubscriber(ctx, h.Broadcast)
}

// Shutdown closes every subscription. Later Subscribe calls fail.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for _, subs := range h.subs {
		for sub := range subs {
			close(sub.events)
		}
	}
	h.subs = make(map[uint]map[*Subscription]struct{})
	h.total = 0
	return nil
}
