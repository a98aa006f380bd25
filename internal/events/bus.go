// Package events carries live notifications emitted during simulation and
// test runs. Publishing never blocks: slow subscribers drop events rather
// than stalling the run that produced them.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type categorizes events.
type Type string

const (
	// Rate-limit and stress test lifecycle.
	TestStarted      Type = "test.started"
	RequestCompleted Type = "request.completed"
	RequestFailed    Type = "request.failed"
	TestCompleted    Type = "test.completed"

	// Simulator lifecycle.
	SimulatorStarted        Type = "simulator.started"
	SimulatorStopped        Type = "simulator.stopped"
	ConfigUpdated           Type = "simulator.config_updated"
	NetworkConditionChanged Type = "simulator.network_condition_changed"
	SimulatedError          Type = "simulator.error"

	// Retry lifecycle.
	RetryAttempt Type = "retry.attempt"
	RetryRetry   Type = "retry.retry"
	RetrySuccess Type = "retry.success"
	RetryFailed  Type = "retry.failed"
)

// Event is one notification.
type Event struct {
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Subscription delivers matching events on C until Unsubscribe is called.
type Subscription struct {
	C chan Event

	bus   *Bus
	types map[Type]bool
	id    int
}

// Unsubscribe detaches the subscription and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.bus.remove(s.id)
}

func (s *Subscription) wants(t Type) bool {
	return len(s.types) == 0 || s.types[t]
}

// Bus is an in-memory event bus.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*Subscription
	nextID int
	buffer int
}

// NewBus creates a bus whose subscriptions buffer up to 64 events.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*Subscription), buffer: 64}
}

// Subscribe registers interest in the given types. No types means all types.
func (b *Bus) Subscribe(types ...Type) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		C:     make(chan Event, b.buffer),
		bus:   b,
		types: make(map[Type]bool, len(types)),
		id:    b.nextID,
	}
	for _, t := range types {
		sub.types[t] = true
	}
	b.subs[b.nextID] = sub
	b.nextID++
	return sub
}

// Publish delivers the event to every matching subscription without blocking.
// A nil bus is a valid no-op publisher.
func (b *Bus) Publish(t Type, fields map[string]interface{}) {
	if b == nil {
		return
	}
	ev := Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now(),
		Fields:    fields,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !sub.wants(t) {
			continue
		}
		select {
		case sub.C <- ev:
		default:
			// Subscriber is behind; drop rather than stall the run.
		}
	}
}

func (b *Bus) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.C)
	}
}
