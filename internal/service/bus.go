package service

import (
	"context"
	"sync"
)

// Event represents a scene mutation or lifecycle change.
type Event struct {
	Resource string `json:"resource"`         // "scenes"
	Action   string `json:"action"`           // "created", "updated", "deleted", "built", "styled"
	ID       string `json:"id"`               // scene id
	Detail   string `json:"detail,omitempty"` // e.g. the selected basemap
}

// EventBus is a simple fan-out pub/sub for scene events.
type EventBus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan Event]struct{})}
}

// Publish sends an event to all subscribers (non-blocking).
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// subscriber too slow, skip
		}
	}
}

// Subscribe returns a buffered channel of events. The subscription ends
// and the channel is closed when ctx is done.
func (b *EventBus) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
		close(ch)
	}()
	return ch
}

// Subscribers returns the number of live subscriptions.
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
