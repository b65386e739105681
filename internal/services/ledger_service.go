package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"flock-messaging/internal/domain/chat"
	"flock-messaging/internal/domain/user"
	"flock-messaging/internal/repository"
	flock_errors "flock-messaging/pkg/errors"
	"flock-messaging/pkg/events"
)

const (
	maxEmojiChars   = 16
	maxCommentsPage = 100
)

// LedgerService manages the engagement rows that hang off a message:
// single-emoji reactions, like marks, and the append-only comment thread.
type LedgerService struct {
	ledgerRepo  repository.LedgerRepository
	messageRepo repository.MessageRepository
	userRepo    repository.UserRepository
	access      *Access
	feed        *changeFeed
}

func NewLedgerService(
	ledgerRepo repository.LedgerRepository,
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	access *Access,
	publisher events.Publisher,
) *LedgerService {
	return &LedgerService{
		ledgerRepo:  ledgerRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		access:      access,
		feed:        newChangeFeed(publisher),
	}
}

// requireMessage loads the message and checks the caller can see it. A
// tombstoned or hidden message rejects engagement the same way a foreign
// one does.
func (s *LedgerService) requireMessage(ctx context.Context, messageID, callerID uuid.UUID) (chat.Message, error) {
	m, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return chat.Message{}, err
	}
	if err := s.access.RequireParticipant(ctx, m.ConversationID, callerID); err != nil {
		return chat.Message{}, err
	}
	if !m.VisibleTo(callerID) {
		return chat.Message{}, flock_errors.ErrNotFound
	}
	return m, nil
}

// SetReaction records the caller's emoji on the message, replacing any
// previous one. The change feed distinguishes a first reaction from a
// switch so subscribers can adjust the right counters.
func (s *LedgerService) SetReaction(ctx context.Context, messageID, callerID uuid.UUID, emoji string) (chat.MessageReaction, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > maxEmojiChars {
		return chat.MessageReaction{}, flock_errors.ErrInvalidInput
	}

	if _, err := s.requireMessage(ctx, messageID, callerID); err != nil {
		return chat.MessageReaction{}, err
	}

	prior, err := s.ledgerRepo.GetUserReaction(ctx, messageID, callerID)
	hadPrior := err == nil
	if err != nil && !errors.Is(err, flock_errors.ErrNotFound) {
		return chat.MessageReaction{}, err
	}

	reaction := chat.NewMessageReaction(messageID, callerID, emoji)
	if err := s.ledgerRepo.UpsertReaction(ctx, &reaction); err != nil {
		return chat.MessageReaction{}, err
	}

	if hadPrior {
		if prior.Emoji != emoji {
			s.feed.reactionUpdated(ctx, prior, reaction)
		}
	} else {
		s.feed.reactionInserted(ctx, reaction)
	}
	return reaction, nil
}

// ClearReaction removes the caller's reaction if one exists. Clearing a
// reaction that was never set is a no-op.
func (s *LedgerService) ClearReaction(ctx context.Context, messageID, callerID uuid.UUID) error {
	if _, err := s.requireMessage(ctx, messageID, callerID); err != nil {
		return err
	}

	removed, err := s.ledgerRepo.DeleteReaction(ctx, messageID, callerID)
	if err != nil {
		if errors.Is(err, flock_errors.ErrNotFound) {
			return nil
		}
		return err
	}

	s.feed.reactionDeleted(ctx, removed)
	return nil
}

type ReactionSummary struct {
	Counts  map[string]int `json:"counts"`
	MyEmoji string         `json:"my_emoji,omitempty"`
}

func (s *LedgerService) GetReactions(ctx context.Context, messageID, callerID uuid.UUID) (ReactionSummary, error) {
	if _, err := s.requireMessage(ctx, messageID, callerID); err != nil {
		return ReactionSummary{}, err
	}

	reactions, err := s.ledgerRepo.GetReactions(ctx, messageID)
	if err != nil {
		return ReactionSummary{}, err
	}

	summary := ReactionSummary{Counts: make(map[string]int)}
	for _, r := range reactions {
		summary.Counts[r.Emoji]++
		if r.UserID == callerID {
			summary.MyEmoji = r.Emoji
		}
	}
	return summary, nil
}

func (s *LedgerService) Like(ctx context.Context, messageID, callerID uuid.UUID) error {
	if _, err := s.requireMessage(ctx, messageID, callerID); err != nil {
		return err
	}
	like := chat.MessageLike{MessageID: messageID, UserID: callerID, CreatedAt: time.Now()}
	return s.ledgerRepo.UpsertLike(ctx, &like)
}

func (s *LedgerService) Unlike(ctx context.Context, messageID, callerID uuid.UUID) error {
	if _, err := s.requireMessage(ctx, messageID, callerID); err != nil {
		return err
	}
	return s.ledgerRepo.DeleteLike(ctx, messageID, callerID)
}

type LikeSummary struct {
	Likes     int64 `json:"likes"`
	LikedByMe bool  `json:"liked_by_me"`
}

func (s *LedgerService) GetLikes(ctx context.Context, messageID, callerID uuid.UUID) (LikeSummary, error) {
	if _, err := s.requireMessage(ctx, messageID, callerID); err != nil {
		return LikeSummary{}, err
	}

	count, err := s.ledgerRepo.CountLikes(ctx, messageID)
	if err != nil {
		return LikeSummary{}, err
	}
	liked, err := s.ledgerRepo.IsLiked(ctx, messageID, callerID)
	if err != nil {
		return LikeSummary{}, err
	}
	return LikeSummary{Likes: count, LikedByMe: liked}, nil
}

func (s *LedgerService) AddComment(ctx context.Context, messageID, callerID uuid.UUID, text string) (chat.MessageComment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return chat.MessageComment{}, flock_errors.ErrEmptyMessage
	}

	if _, err := s.requireMessage(ctx, messageID, callerID); err != nil {
		return chat.MessageComment{}, err
	}

	comment := chat.NewMessageComment(messageID, callerID, text)
	if err := s.ledgerRepo.CreateComment(ctx, &comment); err != nil {
		return chat.MessageComment{}, err
	}
	return comment, nil
}

type CommentView struct {
	chat.MessageComment
	Author user.Summary `json:"author"`
}

// ListComments returns the thread oldest first with each commenter's
// profile summary attached.
func (s *LedgerService) ListComments(ctx context.Context, messageID, callerID uuid.UUID) ([]CommentView, error) {
	if _, err := s.requireMessage(ctx, messageID, callerID); err != nil {
		return nil, err
	}

	comments, err := s.ledgerRepo.GetComments(ctx, messageID, maxCommentsPage)
	if err != nil {
		return nil, err
	}

	authorIDs := make([]uuid.UUID, 0, len(comments))
	seen := make(map[uuid.UUID]bool)
	for _, c := range comments {
		if !seen[c.UserID] {
			seen[c.UserID] = true
			authorIDs = append(authorIDs, c.UserID)
		}
	}

	authors, err := s.userRepo.GetByIDs(ctx, authorIDs)
	if err != nil {
		return nil, err
	}
	summaries := make(map[uuid.UUID]user.Summary, len(authors))
	for _, a := range authors {
		summaries[a.ID] = a.Summary()
	}

	views := make([]CommentView, 0, len(comments))
	for _, c := range comments {
		views = append(views, CommentView{MessageComment: c, Author: summaries[c.UserID]})
	}
	return views, nil
}
