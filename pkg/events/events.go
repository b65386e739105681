package events

import (
	"context"
	"encoding/json"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Event is a single change-feed record. Old carries the row's prior field
// values (UPDATE, DELETE), New the current ones (INSERT, UPDATE).
type Event struct {
	Table     string          `json:"table"`
	Type      EventType       `json:"type"`
	Old       json.RawMessage `json:"old,omitempty"`
	New       json.RawMessage `json:"new,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

type Handler func(ctx context.Context, channel string, event Event) error

type Publisher interface {
	Publish(ctx context.Context, channel string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler Handler) error
	PSubscribe(ctx context.Context, pattern string, handler Handler) error
}

type Broker interface {
	Publisher
	Subscriber
}
