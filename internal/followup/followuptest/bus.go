package followuptest

import (
	"context"
	"errors"
	"sync"

	"nurture_backend/internal/events"
)

// Bus records published events and runs handlers synchronously.
type Bus struct {
	mu        sync.Mutex
	published []events.Event
	handlers  map[string][]events.Handler
}

// NewBus creates an empty recording bus.
func NewBus() *Bus {
	return &Bus{handlers: map[string][]events.Handler{}}
}

func (b *Bus) Subscribe(eventName string, handler events.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

func (b *Bus) Publish(ctx context.Context, event events.Event) {
	_ = b.PublishSync(ctx, event)
}

func (b *Bus) PublishSync(ctx context.Context, event events.Event) error {
	b.mu.Lock()
	b.published = append(b.published, event)
	handlers := append([]events.Handler(nil), b.handlers[event.EventName()]...)
	b.mu.Unlock()

	var errs []error
	for _, h := range handlers {
		errs = append(errs, h.Handle(ctx, event))
	}
	return errors.Join(errs...)
}

// Published returns the events published under name.
func (b *Bus) Published(name string) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, e := range b.published {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}
