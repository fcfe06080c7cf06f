// Package events provides a small in-process pub/sub broker. Publishing never
// blocks; slow subscribers lose messages rather than stalling the scheduler.
package events

import "sync"

// Bus fans published payloads out to topic subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[Topic][]chan any
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]chan any)}
}

// Subscribe registers a listener and returns its channel plus an unsubscribe
// function. The channel is closed on unsubscribe.
func (b *Bus) Subscribe(topic Topic, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan any, buffer)
	b.subs[topic] = append(b.subs[topic], ch)

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		listeners := b.subs[topic]
		for i, c := range listeners {
			if c == ch {
				b.subs[topic] = append(listeners[:i], listeners[i+1:]...)
				close(c)
				return
			}
		}
	}
}

// Publish delivers payload to every subscriber of topic without blocking.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[topic] {
		select {
		case ch <- payload:
		default:
			// Subscriber is behind; drop to keep the publisher moving.
		}
	}
}
