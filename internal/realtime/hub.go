// Package realtime fans domain events out to the streams of connected users.
package realtime

import (
	"encoding/json"
	"sync"

	"rental-service/internal/util"
)

// Event is one message pushed to a subscriber
type Event struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Hub tracks per-user subscriptions on this instance. Delivery is best
// effort: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscription is one open stream of a user
type Subscription struct {
	UserID string
	ch     chan Event
	hub    *Hub
	once   sync.Once
}

// Subscribe opens a stream for userID. Callers must Close it.
func (h *Hub) Subscribe(userID string) *Subscription {
	sub := &Subscription{UserID: userID, ch: make(chan Event, h.buffer), hub: h}

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*Subscription]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()

	util.RealtimeSubscribers.Inc()
	return sub
}

// Events is closed once the subscription is closed
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close removes the subscription from the hub
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		if set, ok := h.subs[s.UserID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, s.UserID)
			}
		}
		close(s.ch)
		h.mu.Unlock()
		util.RealtimeSubscribers.Dec()
	})
}

// Publish delivers ev to every open stream of userID and returns how many
// streams received it.
func (h *Hub) Publish(userID string, ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.subs[userID] {
		select {
		case sub.ch <- ev:
			delivered++
		default:
			util.RealtimeDroppedTotal.Inc()
		}
	}
	return delivered
}

// Subscribers counts open streams across all users
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

// CloseAll ends every open stream
func (h *Hub) CloseAll() {
	h.mu.RLock()
	var all []*Subscription
	for _, set := range h.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range all {
		sub.Close()
	}
}
