// Package events provides a process-wide publish-subscribe bus keyed by topic.
// It decouples the redirect receiver, which runs in reaction to inbound network
// I/O, from the login coordinator awaiting a specific session's outcome.
package events

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Topic names used by the login flow.
const (
	// TopicRedirect carries *receiver.Payload values captured from the
	// provider's loopback redirect.
	TopicRedirect = "oauth.redirect"
	// TopicReceiverError carries *receiver.Error values when a listener
	// fails or is torn down before a redirect arrives.
	TopicReceiverError = "oauth.receiver_error"
)

// Handler receives published payloads. Handlers are invoked synchronously on
// the publisher's goroutine, in subscription order, so delivery order within a
// topic matches publish order.
type Handler func(payload any)

// Subscription is the handle returned by Subscribe. Releasing it via
// Unsubscribe removes the handler; every exit path of a login attempt must
// release its subscription to avoid leaking per-session listeners.
type Subscription struct {
	bus   *Bus
	topic string
	id    uint64
	once  sync.Once
}

// Unsubscribe removes the subscription from the bus. It is idempotent and safe
// to call concurrently with Publish.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.bus.remove(s.topic, s.id)
	})
}

type subscriber struct {
	id      uint64
	handler Handler
}

// Bus is a multi-producer notification channel keyed by topic. It is not a
// durable queue: a publish with no subscribers is dropped.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	topics map[string][]subscriber
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{topics: make(map[string][]subscriber)}
}

// Subscribe registers a handler for the given topic and returns its handle.
func (b *Bus) Subscribe(topic string, handler Handler) *Subscription {
	if handler == nil {
		return &Subscription{bus: b, topic: topic}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.topics[topic] = append(b.topics[topic], subscriber{id: id, handler: handler})
	return &Subscription{bus: b, topic: topic, id: id}
}

// Publish delivers payload to all current subscribers of topic. Delivery is
// synchronous and in subscription order; there is no retry and no buffering.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.topics[topic]))
	copy(subs, b.topics[topic])
	b.mu.RUnlock()

	if len(subs) == 0 {
		log.Debugf("events: no subscribers for topic %s, payload dropped", topic)
		return
	}
	for _, sub := range subs {
		sub.handler(payload)
	}
}

func (b *Bus) remove(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.topics[topic]
	for i := range subs {
		if subs[i].id == id {
			b.topics[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.topics[topic]) == 0 {
		delete(b.topics, topic)
	}
}
