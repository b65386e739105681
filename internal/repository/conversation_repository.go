package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"flock-messaging/internal/domain/chat"
	flock_errors "flock-messaging/pkg/errors"
)

type PostgresConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &PostgresConversationRepository{db: db}
}

// CreateWithParticipants inserts the conversation and its participant rows
// in one transaction so a crash never leaves a conversation without
// membership. A pair_key collision surfaces as ErrAlreadyExists and the
// caller re-reads the winner.
func (r *PostgresConversationRepository) CreateWithParticipants(ctx context.Context, conv *chat.Conversation, participants []chat.Participant) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		if len(participants) > 0 {
			if err := tx.Create(&participants).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return flock_errors.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *PostgresConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (chat.Conversation, error) {
	var conv chat.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.Conversation{}, flock_errors.ErrNotFound
		}
		return chat.Conversation{}, err
	}
	return conv, nil
}

func (r *PostgresConversationRepository) GetByPairKey(ctx context.Context, pairKey string) (chat.Conversation, error) {
	var conv chat.Conversation
	err := r.db.WithContext(ctx).Where("pair_key = ?", pairKey).First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.Conversation{}, flock_errors.ErrNotFound
		}
		return chat.Conversation{}, err
	}
	return conv, nil
}

func (r *PostgresConversationRepository) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&chat.Participant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *PostgresConversationRepository) GetParticipant(ctx context.Context, conversationID, userID uuid.UUID) (chat.Participant, error) {
	var p chat.Participant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.Participant{}, flock_errors.ErrNotFound
		}
		return chat.Participant{}, err
	}
	return p, nil
}

func (r *PostgresConversationRepository) GetParticipants(ctx context.Context, conversationID uuid.UUID) ([]chat.Participant, error) {
	var participants []chat.Participant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Find(&participants).Error
	if err != nil {
		return nil, err
	}
	return participants, nil
}

func (r *PostgresConversationRepository) GetUserParticipants(ctx context.Context, userID uuid.UUID) ([]chat.Participant, error) {
	var participants []chat.Participant
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&participants).Error
	if err != nil {
		return nil, err
	}
	return participants, nil
}

func (r *PostgresConversationRepository) SetPinned(ctx context.Context, conversationID, userID uuid.UUID, pinned bool) error {
	res := r.db.WithContext(ctx).
		Model(&chat.Participant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("pinned", pinned)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return flock_errors.ErrNotFound
	}
	return nil
}

// AdvanceLastRead only moves the marker forward; a stale retry with an
// older timestamp is a no-op rather than a regression.
func (r *PostgresConversationRepository) AdvanceLastRead(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&chat.Participant{}).
		Where("conversation_id = ? AND user_id = ? AND (last_read_at IS NULL OR last_read_at < ?)",
			conversationID, userID, at).
		Update("last_read_at", at)
	if res.Error != nil {
		return res.Error
	}
	return nil
}
