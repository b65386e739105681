package chat

import (
	"time"

	"github.com/google/uuid"
)

// MessageReaction holds at most one emoji per user per message; switching
// emoji overwrites the existing row in place.
type MessageReaction struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MessageID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_reactions_message_user,priority:1" json:"message_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_reactions_message_user,priority:2" json:"user_id"`
	Emoji     string    `gorm:"type:varchar(64);not null" json:"emoji"`
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

func NewMessageReaction(messageID, userID uuid.UUID, emoji string) MessageReaction {
	return MessageReaction{
		ID:        uuid.New(),
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
	}
}

// MessageLike is a pure presence marker, no payload beyond the pair.
type MessageLike struct {
	MessageID uuid.UUID `gorm:"type:uuid;primaryKey" json:"message_id"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

// MessageComment is append-only; comments are never edited or deleted.
type MessageComment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MessageID uuid.UUID `gorm:"type:uuid;not null;index:idx_comments_message" json:"message_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null" json:"user_id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

func NewMessageComment(messageID, userID uuid.UUID, text string) MessageComment {
	return MessageComment{
		ID:        uuid.New(),
		MessageID: messageID,
		UserID:    userID,
		Text:      text,
	}
}
