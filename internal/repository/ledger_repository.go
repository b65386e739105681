package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"flock-messaging/internal/domain/chat"
	flock_errors "flock-messaging/pkg/errors"
)

type PostgresLedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &PostgresLedgerRepository{db: db}
}

// UpsertReaction keeps the one-reaction-per-user invariant in the database
// itself: a second reaction from the same user overwrites the emoji on the
// (message_id, user_id) row instead of inserting.
func (r *PostgresLedgerRepository) UpsertReaction(ctx context.Context, reaction *chat.MessageReaction) error {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"emoji", "created_at"}),
	}).Create(reaction)
	if res.Error != nil {
		return res.Error
	}
	return nil
}

// DeleteReaction removes the caller's reaction row and returns it so the
// change feed can say which emoji count to decrement. Absent row is not an
// error; clearing is idempotent.
func (r *PostgresLedgerRepository) DeleteReaction(ctx context.Context, messageID, userID uuid.UUID) (chat.MessageReaction, error) {
	var reaction chat.MessageReaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("message_id = ? AND user_id = ?", messageID, userID).First(&reaction).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return flock_errors.ErrNotFound
			}
			return err
		}
		return tx.Delete(&chat.MessageReaction{}, "message_id = ? AND user_id = ?", messageID, userID).Error
	})
	if err != nil {
		return chat.MessageReaction{}, err
	}
	return reaction, nil
}

func (r *PostgresLedgerRepository) GetReactions(ctx context.Context, messageID uuid.UUID) ([]chat.MessageReaction, error) {
	var reactions []chat.MessageReaction
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Find(&reactions).Error
	if err != nil {
		return nil, err
	}
	return reactions, nil
}

func (r *PostgresLedgerRepository) GetReactionsForMessages(ctx context.Context, messageIDs []uuid.UUID) ([]chat.MessageReaction, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var reactions []chat.MessageReaction
	err := r.db.WithContext(ctx).
		Where("message_id IN ?", messageIDs).
		Find(&reactions).Error
	if err != nil {
		return nil, err
	}
	return reactions, nil
}

func (r *PostgresLedgerRepository) GetUserReaction(ctx context.Context, messageID, userID uuid.UUID) (chat.MessageReaction, error) {
	var reaction chat.MessageReaction
	err := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		First(&reaction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.MessageReaction{}, flock_errors.ErrNotFound
		}
		return chat.MessageReaction{}, err
	}
	return reaction, nil
}

func (r *PostgresLedgerRepository) UpsertLike(ctx context.Context, like *chat.MessageLike) error {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(like)
	if res.Error != nil {
		return res.Error
	}
	return nil
}

func (r *PostgresLedgerRepository) DeleteLike(ctx context.Context, messageID, userID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Delete(&chat.MessageLike{}, "message_id = ? AND user_id = ?", messageID, userID)
	if res.Error != nil {
		return res.Error
	}
	return nil
}

func (r *PostgresLedgerRepository) CountLikes(ctx context.Context, messageID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&chat.MessageLike{}).
		Where("message_id = ?", messageID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PostgresLedgerRepository) IsLiked(ctx context.Context, messageID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&chat.MessageLike{}).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *PostgresLedgerRepository) CreateComment(ctx context.Context, c *chat.MessageComment) error {
	res := r.db.WithContext(ctx).Create(c)
	if res.Error != nil {
		return res.Error
	}
	return nil
}

func (r *PostgresLedgerRepository) GetComments(ctx context.Context, messageID uuid.UUID, limit int) ([]chat.MessageComment, error) {
	var comments []chat.MessageComment
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at ASC").
		Limit(limit).
		Find(&comments).Error
	if err != nil {
		return nil, err
	}
	return comments, nil
}
