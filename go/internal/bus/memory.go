package bus

import (
	"encoding/json"
	"sync"
)

// MemoryBus is an in-process Bus for tests and single-node play. Delivery is
// synchronous and in publish order per topic, which keeps tests deterministic;
// handlers must not block.
type MemoryBus struct {
	mu     sync.RWMutex
	topics map[string]map[*memorySubscription]bool
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		topics: make(map[string]map[*memorySubscription]bool),
	}
}

func (b *MemoryBus) Publish(topic, event string, payload interface{}) error {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = data
	}

	// Snapshot subscribers before invoking handlers so a handler can publish
	// or unsubscribe without deadlocking.
	b.mu.RLock()
	subs := make([]*memorySubscription, 0, len(b.topics[topic]))
	for sub := range b.topics[topic] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.handler(event, raw)
	}
	return nil
}

func (b *MemoryBus) Subscribe(topic string, h Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &memorySubscription{bus: b, topic: topic, handler: h}
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[*memorySubscription]bool)
	}
	b.topics[topic][sub] = true
	return sub, nil
}

type memorySubscription struct {
	bus     *MemoryBus
	topic   string
	handler Handler
}

func (s *memorySubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	delete(s.bus.topics[s.topic], s)
	if len(s.bus.topics[s.topic]) == 0 {
		delete(s.bus.topics, s.topic)
	}
	return nil
}
