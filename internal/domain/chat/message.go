package chat

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageVoice MessageType = "voice"
	MessageMedia MessageType = "media"
)

// Message is one entry in a conversation's append-only log. The Type
// discriminant decides which variant fields are set; the New*Message
// constructors are the only sanctioned way to build one, so a text message
// never carries media columns and vice versa.
//
// Two independent delete mechanisms exist: DeletedAt/DeletedBy is the global
// tombstone only the sender may set, DeletedFor is the per-recipient hide
// set. Content is never edited and rows are never physically removed.
type Message struct {
	ID             uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID   `gorm:"type:uuid;not null;index:idx_messages_history,priority:1" json:"conversation_id"`
	SenderID       uuid.UUID   `gorm:"type:uuid;not null" json:"sender_id"`
	Type           MessageType `gorm:"type:varchar(16);not null" json:"type"`

	Text            *string `gorm:"type:text" json:"text,omitempty"`
	VoiceURL        *string `gorm:"type:text" json:"voice_url,omitempty"`
	VoiceDurationMs *int64  `json:"voice_duration_ms,omitempty"`
	MediaURL        *string `gorm:"type:text" json:"media_url,omitempty"`
	MediaMime       *string `gorm:"type:varchar(128)" json:"media_mime,omitempty"`

	CreatedAt  time.Time  `gorm:"default:CURRENT_TIMESTAMP;index:idx_messages_history,priority:2" json:"created_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
	DeletedBy  *uuid.UUID `gorm:"type:uuid" json:"deleted_by,omitempty"`
	DeletedFor []string   `gorm:"type:jsonb;serializer:json" json:"deleted_for,omitempty"`
}

func NewTextMessage(conversationID, senderID uuid.UUID, text string) Message {
	return Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Type:           MessageText,
		Text:           &text,
	}
}

func NewVoiceMessage(conversationID, senderID uuid.UUID, voiceURL string, durationMs int64) Message {
	m := Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Type:           MessageVoice,
		VoiceURL:       &voiceURL,
	}
	if durationMs > 0 {
		m.VoiceDurationMs = &durationMs
	}
	return m
}

func NewMediaMessage(conversationID, senderID uuid.UUID, mediaURL, mime string) Message {
	return Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Type:           MessageMedia,
		MediaURL:       &mediaURL,
		MediaMime:      &mime,
	}
}

// VisibleTo is the single visibility predicate. Both the store's query
// filter and the live-event filter must agree with it, otherwise a deleted
// message can resurrect through the live channel.
func (m Message) VisibleTo(userID uuid.UUID) bool {
	if m.DeletedAt != nil {
		return false
	}
	return !m.HiddenFor(userID)
}

func (m Message) HiddenFor(userID uuid.UUID) bool {
	id := userID.String()
	for _, u := range m.DeletedFor {
		if u == id {
			return true
		}
	}
	return false
}

// HideFor adds userID to the per-recipient hide set. Idempotent; reports
// whether the set changed.
func (m *Message) HideFor(userID uuid.UUID) bool {
	if m.HiddenFor(userID) {
		return false
	}
	m.DeletedFor = append(m.DeletedFor, userID.String())
	return true
}

// Tombstone marks the message deleted for everyone. Only the sender may do
// this; callers enforce that before mutating.
func (m *Message) Tombstone(by uuid.UUID, at time.Time) {
	m.DeletedAt = &at
	m.DeletedBy = &by
}
