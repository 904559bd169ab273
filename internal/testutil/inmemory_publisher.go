package testutil

import (
	"context"
	"sync"

	"github.com/stackbill/stackbill/internal/events"
)

// InMemoryPublisher captures published events so tests can assert on the
// audit trail.
type InMemoryPublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

var _ events.Publisher = (*InMemoryPublisher)(nil)

func NewInMemoryPublisher() *InMemoryPublisher {
	return &InMemoryPublisher{}
}

func (p *InMemoryPublisher) Publish(_ context.Context, evs ...*events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evs...)
}

// Events returns a copy of everything published so far.
func (p *InMemoryPublisher) Events() []*events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*events.Event, len(p.events))
	copy(out, p.events)
	return out
}

// EventsNamed returns the published events with the given name.
func (p *InMemoryPublisher) EventsNamed(name string) []*events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*events.Event
	for _, ev := range p.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (p *InMemoryPublisher) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}
