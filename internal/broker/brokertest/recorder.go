// Package brokertest provides an in-memory event producer for tests.
package brokertest

import (
	"context"
	"sync"
)

// Published is one recorded event
type Published struct {
	Key   string
	Event interface{}
}

// Recorder implements broker.EventProducer by keeping events in memory
type Recorder struct {
	mu     sync.Mutex
	events []Published
	Err    error
}

// PublishEvent records the event, or returns Err when set
func (r *Recorder) PublishEvent(_ context.Context, key string, event interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, Published{Key: key, Event: event})
	return nil
}

// Events returns a copy of everything published so far
func (r *Recorder) Events() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Published, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the event_type of every recorded event that carries one
func (r *Recorder) Types() []string {
	var types []string
	for _, p := range r.Events() {
		if t, ok := p.Event.(interface{ Type() string }); ok {
			types = append(types, t.Type())
		}
	}
	return types
}

// Reset drops recorded events
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
