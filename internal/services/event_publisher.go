package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"flock-messaging/internal/domain/chat"
	"flock-messaging/pkg/events"
	"flock-messaging/pkg/logger"
)

const (
	tableMessages  = "messages"
	tableReactions = "message_reactions"

	// Reaction events go to one shared channel because a reaction row does
	// not carry its conversation id; subscribers filter by message id.
	reactionsChannel = "dm:reactions"
)

func conversationChannel(conversationID uuid.UUID) string {
	return fmt.Sprintf("dm:%s", conversationID)
}

// changeFeed fans row-level changes out to the live channel. Publishing is
// best effort; a dropped event is repaired by the next snapshot fetch, so
// failures are logged and swallowed.
type changeFeed struct {
	publisher events.Publisher
}

func newChangeFeed(publisher events.Publisher) *changeFeed {
	return &changeFeed{publisher: publisher}
}

func (f *changeFeed) publish(ctx context.Context, channel, table string, eventType events.EventType, oldRow, newRow interface{}) {
	if f.publisher == nil {
		return
	}

	log := logger.GetGlobalLogger()

	event := events.Event{
		Table:     table,
		Type:      eventType,
		Timestamp: time.Now().UnixMilli(),
	}
	if oldRow != nil {
		data, err := json.Marshal(oldRow)
		if err != nil {
			if log != nil {
				log.Errorf("marshal event old row: %v", err)
			}
			return
		}
		event.Old = data
	}
	if newRow != nil {
		data, err := json.Marshal(newRow)
		if err != nil {
			if log != nil {
				log.Errorf("marshal event new row: %v", err)
			}
			return
		}
		event.New = data
	}

	if err := f.publisher.Publish(ctx, channel, event); err != nil && log != nil {
		log.Warnf("publish %s event on %s: %v", eventType, channel, err)
	}
}

func (f *changeFeed) messageInserted(ctx context.Context, m chat.Message) {
	f.publish(ctx, conversationChannel(m.ConversationID), tableMessages, events.EventInsert, nil, m)
}

func (f *changeFeed) messageUpdated(ctx context.Context, m chat.Message) {
	f.publish(ctx, conversationChannel(m.ConversationID), tableMessages, events.EventUpdate, nil, m)
}

func (f *changeFeed) reactionInserted(ctx context.Context, r chat.MessageReaction) {
	f.publish(ctx, reactionsChannel, tableReactions, events.EventInsert, nil, r)
}

func (f *changeFeed) reactionUpdated(ctx context.Context, old, updated chat.MessageReaction) {
	f.publish(ctx, reactionsChannel, tableReactions, events.EventUpdate, old, updated)
}

func (f *changeFeed) reactionDeleted(ctx context.Context, r chat.MessageReaction) {
	f.publish(ctx, reactionsChannel, tableReactions, events.EventDelete, r, nil)
}
