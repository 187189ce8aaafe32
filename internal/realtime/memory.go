package realtime

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Transport. It backs tests and single node dev
// runs where Redis is not available.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySub]struct{}
	buffer int
	closed bool
}

func NewMemoryBus(buffer int) *MemoryBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemoryBus{
		subs:   make(map[string]map[*memorySub]struct{}),
		buffer: buffer,
	}
}

type memorySub struct {
	bus    *MemoryBus
	topics []string
	ch     chan Event
	done   chan struct{}
	once   sync.Once
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	for sub := range b.subs[topic] {
		select {
		case sub.ch <- ev:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, topics ...string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	sub := &memorySub{
		bus:    b,
		topics: topics,
		ch:     make(chan Event, b.buffer),
		done:   make(chan struct{}),
	}
	for _, topic := range topics {
		if b.subs[topic] == nil {
			b.subs[topic] = make(map[*memorySub]struct{})
		}
		b.subs[topic][sub] = struct{}{}
	}
	return sub, nil
}

// Close tears down every open subscription.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	var all []*memorySub
	for _, set := range b.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	b.closed = true
	b.mu.Unlock()

	for _, sub := range all {
		_ = sub.Close()
	}
	return nil
}

func (s *memorySub) Events() <-chan Event {
	return s.ch
}

func (s *memorySub) Close() error {
	s.once.Do(func() {
		// Unblock publishers first, they hold the read lock while sending.
		close(s.done)

		s.bus.mu.Lock()
		for _, topic := range s.topics {
			delete(s.bus.subs[topic], s)
			if len(s.bus.subs[topic]) == 0 {
				delete(s.bus.subs, topic)
			}
		}
		s.bus.mu.Unlock()

		close(s.ch)
	})
	return nil
}
