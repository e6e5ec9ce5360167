package eventstore

import (
	"context"
	"errors"
	"sync"
)

// Handler consumes one published record.
type Handler func(ctx context.Context, r Record) error

// Bus is an in-process Publisher that dispatches synchronously to
// subscribers in registration order.
type Bus struct {
	mu   sync.RWMutex
	subs []subscription
}

type subscription struct {
	eventType string
	handler   Handler
}

var _ Publisher = (*Bus)(nil)

func NewBus() *Bus { return &Bus{} }

// Subscribe registers h for eventType. An empty type receives everything.
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{eventType: eventType, handler: h})
}

// Publish delivers every record to every matching subscriber. A failing
// handler does not stop delivery to the others; all errors are joined.
func (b *Bus) Publish(ctx context.Context, records ...Record) error {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	var errs []error
	for _, r := range records {
		for _, s := range subs {
			if s.eventType != "" && s.eventType != r.Type {
				continue
			}
			if err := s.handler(ctx, r); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Fanout publishes to several publishers.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, records ...Record) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, records...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
