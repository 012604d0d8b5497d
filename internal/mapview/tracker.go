package mapview

import (
	"context"
	"sync"
	"time"

	"canopy/internal/observability"
)

// DefaultTrackInterval is the refresh period in tracking mode.
const DefaultTrackInterval = 10 * time.Second

// TrackerOptions configure a Tracker. OnUpdate and OnError must not call
// SetTracking or Stop.
type TrackerOptions struct {
	Interval time.Duration
	Fetch    FetchFunc
	OnUpdate func(Data)
	OnError  func(error)
}

// Tracker polls Fetch while tracking is on: once immediately, then on every
// tick. Results that arrive after tracking stops are dropped.
type Tracker struct {
	opts TrackerOptions

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	kick   chan struct{}

	// deliver is held while a result is handed to OnUpdate, so that after
	// stop returns no callback can start.
	deliver sync.Mutex
}

func NewTracker(opts TrackerOptions) *Tracker {
	if opts.Interval <= 0 {
		opts.Interval = DefaultTrackInterval
	}
	return &Tracker{opts: opts, kick: make(chan struct{}, 1)}
}

// SetTracking starts or stops polling. Turning it on twice keeps the running
// loop. ctx bounds the loop's lifetime as well.
func (t *Tracker) SetTracking(ctx context.Context, on bool) {
	if !on {
		t.Stop()
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(loopCtx, t.done)
}

// Tracking reports whether the loop is running.
func (t *Tracker) Tracking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// Refresh asks a running loop to poll now instead of waiting for the next
// tick. Requests made while a poll is in flight collapse into one.
func (t *Tracker) Refresh() {
	select {
	case t.kick <- struct{}{}:
	default:
	}
}

// Stop ends polling and waits for the loop goroutine to exit.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	t.deliver.Lock()
	cancel()
	t.deliver.Unlock()
	<-done
}

func (t *Tracker) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer t.forget(done)

	ticker := time.NewTicker(t.opts.Interval)
	defer ticker.Stop()

	for {
		t.poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-t.kick:
		}
	}
}

// forget clears the loop state when the parent context ended the loop
// rather than Stop.
func (t *Tracker) forget(done chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done == done {
		t.cancel()
		t.cancel, t.done = nil, nil
	}
}

func (t *Tracker) poll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	data, err := t.opts.Fetch(ctx)

	t.deliver.Lock()
	defer t.deliver.Unlock()

	switch {
	case ctx.Err() != nil:
		observability.TrackerPolls.WithLabelValues("stale").Inc()
	case err != nil:
		observability.TrackerPolls.WithLabelValues("error").Inc()
		if t.opts.OnError != nil {
			t.opts.OnError(err)
		}
	default:
		observability.TrackerPolls.WithLabelValues("ok").Inc()
		if t.opts.OnUpdate != nil {
			t.opts.OnUpdate(data)
		}
	}
}
