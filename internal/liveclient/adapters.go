package liveclient

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"flock-messaging/internal/services"
	"flock-messaging/pkg/events"
)

// ServiceFetcher snapshots directly from the message and conversation
// services. Used by in-process consumers such as bots and the dev CLI.
type ServiceFetcher struct {
	service       *services.MessageService
	conversations *services.ConversationService
	viewer        uuid.UUID
}

func NewServiceFetcher(service *services.MessageService, conversations *services.ConversationService, viewer uuid.UUID) *ServiceFetcher {
	return &ServiceFetcher{service: service, conversations: conversations, viewer: viewer}
}

func (f *ServiceFetcher) Snapshot(ctx context.Context, conversationID uuid.UUID, limit int) (Snapshot, error) {
	views, err := f.service.ListMessages(ctx, conversationID, f.viewer, limit)
	if err != nil {
		return Snapshot{}, err
	}

	other, err := f.conversations.OtherParticipant(ctx, conversationID, f.viewer)
	if err != nil {
		return Snapshot{}, err
	}

	out := make([]MessageView, 0, len(views))
	for _, v := range views {
		out = append(out, MessageView{
			Message:    v.Message,
			Reactions:  v.Reactions,
			MyReaction: v.MyReaction,
		})
	}
	return Snapshot{Other: other, Messages: out}, nil
}

// RedisTransport multiplexes the conversation's message channel and the
// shared reaction channel into one event stream.
type RedisTransport struct {
	subscriber events.Subscriber
}

func NewRedisTransport(subscriber events.Subscriber) *RedisTransport {
	return &RedisTransport{subscriber: subscriber}
}

func (t *RedisTransport) Events(ctx context.Context, conversationID uuid.UUID) (<-chan events.Event, error) {
	out := make(chan events.Event, 64)

	forward := func(ctx context.Context, channel string, event events.Event) error {
		select {
		case out <- event:
		case <-ctx.Done():
		}
		return nil
	}

	if err := t.subscriber.Subscribe(ctx, fmt.Sprintf("dm:%s", conversationID), forward); err != nil {
		return nil, err
	}
	if err := t.subscriber.Subscribe(ctx, "dm:reactions", forward); err != nil {
		return nil, err
	}

	// The channel is never closed here. Forwarders may still be blocked on
	// a send when the context ends, and closing under them would panic.
	// Consumers stop on ctx.Done instead.
	return out, nil
}
