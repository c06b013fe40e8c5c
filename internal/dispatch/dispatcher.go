// Package dispatch fans lifecycle events out to subscribers. Delivery is
// best-effort with bounded retry; a slow subscriber never blocks the
// publisher.
package dispatch

import (
	"context"
	"log"
	"sync"
	"time"

	"voicestack.local/voicegate/internal/events"
	"voicestack.local/voicegate/internal/subscribers"
)

type Dispatcher struct {
	logger       *log.Logger
	retryCount   int
	retryBackoff time.Duration

	mu   sync.RWMutex
	subs map[string]subscribers.Subscriber
}

func New(logger *log.Logger, subs []subscribers.Subscriber) *Dispatcher {
	d := &Dispatcher{
		logger:       logger,
		retryCount:   3,
		retryBackoff: 150 * time.Millisecond,
		subs:         make(map[string]subscribers.Subscriber),
	}
	for _, sub := range subs {
		if sub != nil {
			d.subs[sub.Name()] = sub
		}
	}
	return d
}

// Register attaches a subscriber at runtime. Used by the WebSocket event
// stream, which comes and goes with the connection.
func (d *Dispatcher) Register(sub subscribers.Subscriber) {
	if sub == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs[sub.Name()] = sub
}

func (d *Dispatcher) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.subs, name)
}

func (d *Dispatcher) Dispatch(ctx context.Context, event events.Envelope) {
	d.mu.RLock()
	targets := make([]subscribers.Subscriber, 0, len(d.subs))
	for _, sub := range d.subs {
		targets = append(targets, sub)
	}
	d.mu.RUnlock()

	for _, sub := range targets {
		s := sub
		go d.dispatchOne(ctx, s, event)
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, sub subscribers.Subscriber, event events.Envelope) {
	for attempt := 1; attempt <= d.retryCount; attempt++ {
		err := sub.Handle(ctx, event)
		if err == nil {
			return
		}

		d.logger.Printf("subscriber=%s event_id=%s attempt=%d err=%v", sub.Name(), event.EventID, attempt, err)
		if attempt == d.retryCount {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(d.retryBackoff):
		}
	}
}
