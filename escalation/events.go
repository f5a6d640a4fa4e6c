package escalation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nilayparikh/loanflow/loan"
)

// EventType identifies a queue lifecycle event.
type EventType string

const (
	// EventEscalated fires when a record enters the queue.
	EventEscalated EventType = "escalated"

	// EventDecided fires when a reviewer decides a record.
	EventDecided EventType = "decided"
)

// Event is one queue change, fanned out to live watchers.
type Event struct {
	Type      EventType              `json:"type"`
	Record    *loan.EscalationRecord `json:"record"`
	Timestamp time.Time              `json:"timestamp"`
}

const defaultSubscriberBuffer = 16

// Hub fans out queue events to subscribers. Publishing never blocks:
// a subscriber whose buffer is full misses the event and should
// re-sync from the store.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
	logger *zap.Logger
}

// NewHub creates an event hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[chan Event]struct{}),
		logger: logger.With(zap.String("component", "escalation_events")),
	}
}

// Subscribe registers a watcher. The returned cancel func is safe to
// call more than once and after Close.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, defaultSubscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber with buffer room.
func (h *Hub) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	for ch := range h.subs {
		select {
		case ch <- event:
		default:
			h.logger.Debug("subscriber buffer full, event dropped",
				zap.String("type", string(event.Type)))
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects all subscribers. Later Subscribe calls return a
// closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

// NotifyingStore decorates a Store with event publication, so watchers
// see queue changes without the pipeline or handlers knowing about the
// hub.
type NotifyingStore struct {
	Store
	hub *Hub
}

var _ Store = (*NotifyingStore)(nil)

// NewNotifyingStore wraps inner so successful Add and Decide calls
// publish to hub.
func NewNotifyingStore(inner Store, hub *Hub) *NotifyingStore {
	return &NotifyingStore{Store: inner, hub: hub}
}

// Add inserts the record and announces it to watchers.
func (s *NotifyingStore) Add(ctx context.Context, record *loan.EscalationRecord) error {
	if err := s.Store.Add(ctx, record); err != nil {
		return err
	}
	s.hub.Publish(Event{Type: EventEscalated, Record: record.Clone()})
	return nil
}

// Decide transitions the record and announces the decision.
func (s *NotifyingStore) Decide(ctx context.Context, id string, decision loan.ReviewStatus, reviewer, notes string) (*loan.EscalationRecord, error) {
	record, err := s.Store.Decide(ctx, id, decision, reviewer, notes)
	if err != nil {
		return nil, err
	}
	s.hub.Publish(Event{Type: EventDecided, Record: record.Clone()})
	return record, nil
}
