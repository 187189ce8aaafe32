package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/service-marketplace/internal/realtime"
)

// PubSub carries realtime row events between api-server replicas over Redis
// channels, one channel per topic.
type PubSub struct {
	client *redis.Client
	prefix string
}

func NewPubSub(client *redis.Client) *PubSub {
	return &PubSub{client: client, prefix: "rt:"}
}

func (p *PubSub) Publish(ctx context.Context, topic string, ev realtime.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal realtime event: %w", err)
	}
	if err := p.client.Publish(ctx, p.prefix+topic, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

func (p *PubSub) Subscribe(ctx context.Context, topics ...string) (realtime.Subscription, error) {
	channels := make([]string, len(topics))
	for i, t := range topics {
		channels[i] = p.prefix + t
	}

	ps := p.client.Subscribe(ctx, channels...)
	// Wait for the subscription confirmation so no event published after
	// Subscribe returns can be missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	sub := &redisSub{
		ps:   ps,
		out:  make(chan realtime.Event, 64),
		done: make(chan struct{}),
	}
	go sub.pump()
	return sub, nil
}

type redisSub struct {
	ps   *redis.PubSub
	out  chan realtime.Event
	done chan struct{}
	once sync.Once
}

func (s *redisSub) pump() {
	defer close(s.out)

	in := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			var ev realtime.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("dropping malformed realtime payload on %s: %v", msg.Channel, err)
				continue
			}
			select {
			case s.out <- ev:
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSub) Events() <-chan realtime.Event {
	return s.out
}

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
