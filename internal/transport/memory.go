package transport

import (
	"context"
	"sync"
)

// InMemory is a loopback Transport for tests and single-process demos: all
// "peers" sharing one InMemory instance see each other's published
// messages. It has no notion of network partitions or peers beyond the
// topic subscriber set.
type InMemory struct {
	mu   sync.RWMutex
	subs map[Topic][]chan []byte
	down bool
}

func NewInMemory() *InMemory {
	return &InMemory{subs: make(map[Topic][]chan []byte)}
}

func (m *InMemory) Publish(ctx context.Context, topic Topic, data []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.down {
		return nil
	}
	for _, ch := range m.subs[topic] {
		select {
		case ch <- data:
		default:
			// slow subscriber: drop, matching the design's backpressure
			// policy of dropping to slow subscribers rather than blocking.
		}
	}
	return nil
}

func (m *InMemory) Subscribe(ctx context.Context, topic Topic) (<-chan []byte, func(), error) {
	ch := make(chan []byte, 256)
	m.mu.Lock()
	m.subs[topic] = append(m.subs[topic], ch)
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		subs := m.subs[topic]
		for i, c := range subs {
			if c == ch {
				m.subs[topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}
	return ch, cancel, nil
}

func (m *InMemory) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = true
	for topic, subs := range m.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(m.subs, topic)
	}
	return nil
}
