package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"flock-messaging/pkg/logger"
)

type RedisBroker struct {
	Client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{Client: client}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return b.Client.Publish(ctx, channel, data).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, channel string, handler Handler) error {
	pubsub := b.Client.Subscribe(ctx, channel)
	go b.consume(ctx, pubsub, handler)
	return nil
}

func (b *RedisBroker) PSubscribe(ctx context.Context, pattern string, handler Handler) error {
	pubsub := b.Client.PSubscribe(ctx, pattern)
	go b.consume(ctx, pubsub, handler)
	return nil
}

func (b *RedisBroker) consume(ctx context.Context, pubsub *redis.PubSub, handler Handler) {
	defer pubsub.Close()
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				if l := logger.GetGlobalLogger(); l != nil {
					l.Errorf("event unmarshal failed on %s: %v", msg.Channel, err)
				}
				continue
			}
			if err := handler(ctx, msg.Channel, event); err != nil {
				if l := logger.GetGlobalLogger(); l != nil {
					l.Errorf("event handler failed on %s: %v", msg.Channel, err)
				}
			}
		}
	}
}
