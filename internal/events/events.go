package events

import (
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventOrderTransitioned    EventType = "order.transitioned"
	EventOrderCreated         EventType = "order.created"
	EventMessageReceived      EventType = "chat.message_received"
	EventChannelDegraded      EventType = "chat.degraded"
	EventChannelReady         EventType = "chat.ready"
	EventNotificationsUpdated EventType = "notifications.updated"
	EventSessionChanged       EventType = "session.changed"
)

// Event is published on the bus. Payload holds a copy owned by the receiver.
type Event struct {
	Type      EventType
	Timestamp time.Time
	OrderID   int64
	Payload   any
	Err       error
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

type subscription struct {
	types map[EventType]bool
}

func (s subscription) wants(t EventType) bool {
	return len(s.types) == 0 || s.types[t]
}

// Bus fans events out to subscribers. Publishing never blocks: a subscriber whose
// buffer is full misses the event.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]subscription
	bufferSize  int
	closed      bool
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[Subscriber]subscription),
		bufferSize:  64,
	}
}

// Subscribe creates a subscription for the given types, or all types when none are given.
func (b *Bus) Subscribe(types ...EventType) Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, b.bufferSize)
	if b.closed {
		close(sub)
		return sub
	}

	filter := subscription{types: make(map[EventType]bool, len(types))}
	for _, t := range types {
		filter.types[t] = true
	}
	b.subscribers[sub] = filter
	return sub
}

// Unsubscribe removes a subscription and closes its channel
func (b *Bus) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish delivers the event to every matching subscriber
func (b *Bus) Publish(event *Event) {
	if b == nil || event == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub, filter := range b.subscribers {
		if !filter.wants(event.Type) {
			continue
		}
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// Close unsubscribes everyone. Later subscriptions receive a closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subscribers {
		close(sub)
	}
	b.subscribers = make(map[Subscriber]subscription)
	b.closed = true
}

// SubscriberCount returns the number of active subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
