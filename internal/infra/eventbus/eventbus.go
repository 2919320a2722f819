// Package eventbus is a small in-memory publish/subscribe bus. The send
// pipeline publishes a completion event per exchange; the usage recorder
// consumes it off the request path so accounting never delays a response.
//
// Design:
//   - Buffered channel per subscriber (buffer=64).
//   - Publish never blocks: an event is dropped when a subscriber lags.
//   - No persistence; events are fire-and-forget.
package eventbus

import "sync"

// Event is a single published message.
type Event struct {
	Topic   string
	Payload any
}

// EventBus is the publishing/subscribing contract, kept as an interface so
// consumers can be tested against a stub.
type EventBus interface {
	Publish(topic string, payload any)
	Subscribe(topic string) <-chan Event
}

const subscriberBuffer = 64

// Bus is the in-memory EventBus implementation.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Event
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[string][]chan Event)}
}

// Subscribe registers a subscriber for topic and returns its channel.
// The caller owns the consumption loop; an unconsumed channel only means
// dropped events, never a blocked publisher.
func (b *Bus) Subscribe(topic string) <-chan Event {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers an Event to every subscriber of topic, dropping it for
// subscribers whose buffer is full.
func (b *Bus) Publish(topic string, payload any) {
	evt := Event{Topic: topic, Payload: payload}
	b.mu.RLock()
	subs := b.subscribers[topic]
	b.mu.RUnlock()
	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
			// subscriber lagging — drop
		}
	}
}
