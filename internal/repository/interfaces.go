package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"flock-messaging/internal/domain/chat"
	"flock-messaging/internal/domain/user"
)

type UserRepository interface {
	Create(ctx context.Context, u *user.User) error
	GetByID(ctx context.Context, id uuid.UUID) (user.User, error)
	GetByUsername(ctx context.Context, username string) (user.User, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]user.User, error)
	IsFollowing(ctx context.Context, followerID, followingID uuid.UUID) (bool, error)
}

type ConversationRepository interface {
	CreateWithParticipants(ctx context.Context, conv *chat.Conversation, participants []chat.Participant) error
	GetByID(ctx context.Context, id uuid.UUID) (chat.Conversation, error)
	GetByPairKey(ctx context.Context, pairKey string) (chat.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
	GetParticipant(ctx context.Context, conversationID, userID uuid.UUID) (chat.Participant, error)
	GetParticipants(ctx context.Context, conversationID uuid.UUID) ([]chat.Participant, error)
	GetUserParticipants(ctx context.Context, userID uuid.UUID) ([]chat.Participant, error)
	SetPinned(ctx context.Context, conversationID, userID uuid.UUID, pinned bool) error
	AdvanceLastRead(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) error
}

type MessageRepository interface {
	Create(ctx context.Context, m *chat.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (chat.Message, error)
	GetVisibleMessages(ctx context.Context, conversationID, viewerID uuid.UUID, limit int) ([]chat.Message, error)
	GetLatestVisible(ctx context.Context, conversationID, viewerID uuid.UUID) (chat.Message, error)
	CountUnread(ctx context.Context, conversationID, viewerID uuid.UUID, since time.Time) (int64, error)
	MarkDeletedForAll(ctx context.Context, messageID, senderID uuid.UUID, at time.Time) (chat.Message, error)
	HideForUser(ctx context.Context, messageID, userID uuid.UUID) (chat.Message, error)
}

type LedgerRepository interface {
	UpsertReaction(ctx context.Context, r *chat.MessageReaction) error
	DeleteReaction(ctx context.Context, messageID, userID uuid.UUID) (chat.MessageReaction, error)
	GetReactions(ctx context.Context, messageID uuid.UUID) ([]chat.MessageReaction, error)
	GetReactionsForMessages(ctx context.Context, messageIDs []uuid.UUID) ([]chat.MessageReaction, error)
	GetUserReaction(ctx context.Context, messageID, userID uuid.UUID) (chat.MessageReaction, error)

	UpsertLike(ctx context.Context, l *chat.MessageLike) error
	DeleteLike(ctx context.Context, messageID, userID uuid.UUID) error
	CountLikes(ctx context.Context, messageID uuid.UUID) (int64, error)
	IsLiked(ctx context.Context, messageID, userID uuid.UUID) (bool, error)

	CreateComment(ctx context.Context, c *chat.MessageComment) error
	GetComments(ctx context.Context, messageID uuid.UUID, limit int) ([]chat.MessageComment, error)
}
