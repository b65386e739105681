package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"flock-messaging/internal/domain/chat"
	flock_errors "flock-messaging/pkg/errors"
)

func forUpdate() clause.Locking {
	return clause.Locking{Strength: "UPDATE"}
}

type PostgresMessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &PostgresMessageRepository{db: db}
}

func (r *PostgresMessageRepository) Create(ctx context.Context, m *chat.Message) error {
	res := r.db.WithContext(ctx).Create(m)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return flock_errors.ErrAlreadyExists
		}
		return res.Error
	}
	return nil
}

func (r *PostgresMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (chat.Message, error) {
	var m chat.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.Message{}, flock_errors.ErrNotFound
		}
		return chat.Message{}, err
	}
	return m, nil
}

// hiddenFrom is the jsonb containment filter for the per-recipient hide
// set. deleted_for is a json array of user id strings; @> checks whether
// it contains the viewer.
func hiddenFrom(viewerID uuid.UUID) (string, string) {
	return "NOT (deleted_for @> ?)", fmt.Sprintf("[%q]", viewerID.String())
}

// GetVisibleMessages returns the newest messages the viewer may see,
// oldest first. The query runs descending so the limit keeps the recent
// end of the history, then the page is reversed for display order.
func (r *PostgresMessageRepository) GetVisibleMessages(ctx context.Context, conversationID, viewerID uuid.UUID, limit int) ([]chat.Message, error) {
	cond, arg := hiddenFrom(viewerID)
	var messages []chat.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND deleted_at IS NULL", conversationID).
		Where(cond, arg).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *PostgresMessageRepository) GetLatestVisible(ctx context.Context, conversationID, viewerID uuid.UUID) (chat.Message, error) {
	cond, arg := hiddenFrom(viewerID)
	var m chat.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND deleted_at IS NULL", conversationID).
		Where(cond, arg).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.Message{}, flock_errors.ErrNotFound
		}
		return chat.Message{}, err
	}
	return m, nil
}

// CountUnread counts visible messages from the other side newer than the
// viewer's read marker.
func (r *PostgresMessageRepository) CountUnread(ctx context.Context, conversationID, viewerID uuid.UUID, since time.Time) (int64, error) {
	cond, arg := hiddenFrom(viewerID)
	var count int64
	err := r.db.WithContext(ctx).
		Model(&chat.Message{}).
		Where("conversation_id = ? AND sender_id != ? AND deleted_at IS NULL AND created_at > ?",
			conversationID, viewerID, since).
		Where(cond, arg).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// MarkDeletedForAll tombstones the message if and only if senderID is the
// author. Repeating the call on an already tombstoned message returns the
// row unchanged.
func (r *PostgresMessageRepository) MarkDeletedForAll(ctx context.Context, messageID, senderID uuid.UUID, at time.Time) (chat.Message, error) {
	var m chat.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", messageID).First(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return flock_errors.ErrNotFound
			}
			return err
		}
		if m.SenderID != senderID {
			return flock_errors.ErrForbidden
		}
		if m.DeletedAt != nil {
			return nil
		}
		m.Tombstone(senderID, at)
		return tx.Model(&chat.Message{}).
			Where("id = ?", messageID).
			Updates(map[string]interface{}{
				"deleted_at": m.DeletedAt,
				"deleted_by": m.DeletedBy,
			}).Error
	})
	if err != nil {
		return chat.Message{}, err
	}
	return m, nil
}

// HideForUser appends userID to the message's hide set. Read-modify-write
// inside a transaction; concurrent hides of the same message serialize on
// the row lock.
func (r *PostgresMessageRepository) HideForUser(ctx context.Context, messageID, userID uuid.UUID) (chat.Message, error) {
	var m chat.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(forUpdate()).Where("id = ?", messageID).First(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return flock_errors.ErrNotFound
			}
			return err
		}
		if !m.HideFor(userID) {
			return nil
		}
		// Struct update so the jsonb serializer runs on deleted_for.
		return tx.Model(&chat.Message{}).
			Where("id = ?", messageID).
			Select("deleted_for").
			Updates(&m).Error
	})
	if err != nil {
		return chat.Message{}, err
	}
	return m, nil
}
