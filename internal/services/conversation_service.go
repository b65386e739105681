package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"flock-messaging/internal/domain/chat"
	"flock-messaging/internal/domain/user"
	"flock-messaging/internal/repository"
	flock_errors "flock-messaging/pkg/errors"
)

type ConversationService struct {
	convRepo    repository.ConversationRepository
	messageRepo repository.MessageRepository
	userRepo    repository.UserRepository
	access      *Access
}

func NewConversationService(
	convRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	access *Access,
) *ConversationService {
	return &ConversationService{
		convRepo:    convRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		access:      access,
	}
}

type MessagePreview struct {
	ID        uuid.UUID        `json:"id"`
	SenderID  uuid.UUID        `json:"sender_id"`
	Type      chat.MessageType `json:"type"`
	Text      *string          `json:"text,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

type ChatSummary struct {
	ConversationID uuid.UUID       `json:"conversation_id"`
	Other          user.Summary    `json:"other"`
	Pinned         bool            `json:"pinned"`
	Unread         int64           `json:"unread"`
	LastMessage    *MessagePreview `json:"last_message,omitempty"`
	lastActivity   time.Time
}

// FindOrCreateConversation resolves the target by username and returns the
// existing pair conversation or creates it. Concurrent creates for the same
// pair race on the pair_key unique constraint; the loser re-reads the
// winner's row, so both callers land on one conversation.
func (s *ConversationService) FindOrCreateConversation(ctx context.Context, callerID uuid.UUID, username string) (chat.Conversation, user.Summary, error) {
	target, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return chat.Conversation{}, user.Summary{}, err
	}

	if err := s.access.CanMessage(ctx, callerID, target); err != nil {
		return chat.Conversation{}, user.Summary{}, err
	}

	pairKey := chat.PairKey(callerID, target.ID)
	conv, err := s.convRepo.GetByPairKey(ctx, pairKey)
	if err == nil {
		return conv, target.Summary(), nil
	}
	if !errors.Is(err, flock_errors.ErrNotFound) {
		return chat.Conversation{}, user.Summary{}, err
	}

	newConv, participants := chat.NewConversation(callerID, target.ID)
	err = s.convRepo.CreateWithParticipants(ctx, &newConv, participants)
	if err == nil {
		return newConv, target.Summary(), nil
	}
	if !errors.Is(err, flock_errors.ErrAlreadyExists) {
		return chat.Conversation{}, user.Summary{}, err
	}

	// Lost the race; the winner's row exists now.
	conv, err = s.convRepo.GetByPairKey(ctx, pairKey)
	if err != nil {
		return chat.Conversation{}, user.Summary{}, err
	}
	return conv, target.Summary(), nil
}

// ListChats returns every conversation the user belongs to, pinned ones
// first and the rest by last message recency. Unread counts only visible
// messages from the other side newer than the caller's read marker.
func (s *ConversationService) ListChats(ctx context.Context, userID uuid.UUID) ([]ChatSummary, error) {
	memberships, err := s.convRepo.GetUserParticipants(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]ChatSummary, 0, len(memberships))
	for _, membership := range memberships {
		summary, err := s.buildSummary(ctx, userID, membership)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].Pinned != summaries[j].Pinned {
			return summaries[i].Pinned
		}
		return summaries[i].lastActivity.After(summaries[j].lastActivity)
	})

	return summaries, nil
}

func (s *ConversationService) buildSummary(ctx context.Context, userID uuid.UUID, membership chat.Participant) (ChatSummary, error) {
	summary := ChatSummary{
		ConversationID: membership.ConversationID,
		Pinned:         membership.Pinned,
		lastActivity:   membership.CreatedAt,
	}

	other, err := s.OtherParticipant(ctx, membership.ConversationID, userID)
	if err != nil {
		return ChatSummary{}, err
	}
	summary.Other = other

	latest, err := s.messageRepo.GetLatestVisible(ctx, membership.ConversationID, userID)
	if err == nil {
		summary.LastMessage = &MessagePreview{
			ID:        latest.ID,
			SenderID:  latest.SenderID,
			Type:      latest.Type,
			Text:      latest.Text,
			CreatedAt: latest.CreatedAt,
		}
		summary.lastActivity = latest.CreatedAt
	} else if !errors.Is(err, flock_errors.ErrNotFound) {
		return ChatSummary{}, err
	}

	since := time.Time{}
	if membership.LastReadAt != nil {
		since = *membership.LastReadAt
	}
	unread, err := s.messageRepo.CountUnread(ctx, membership.ConversationID, userID, since)
	if err != nil {
		return ChatSummary{}, err
	}
	summary.Unread = unread

	return summary, nil
}

// OtherParticipant resolves the counterpart's profile. In a self
// conversation the single participant is the counterpart.
func (s *ConversationService) OtherParticipant(ctx context.Context, conversationID, userID uuid.UUID) (user.Summary, error) {
	participants, err := s.convRepo.GetParticipants(ctx, conversationID)
	if err != nil {
		return user.Summary{}, err
	}

	otherID := userID
	for _, p := range participants {
		if p.UserID != userID {
			otherID = p.UserID
			break
		}
	}

	other, err := s.userRepo.GetByID(ctx, otherID)
	if err != nil {
		return user.Summary{}, err
	}
	return other.Summary(), nil
}

func (s *ConversationService) SetPinned(ctx context.Context, conversationID, userID uuid.UUID, pinned bool) error {
	if err := s.access.RequireParticipant(ctx, conversationID, userID); err != nil {
		return err
	}
	return s.convRepo.SetPinned(ctx, conversationID, userID, pinned)
}

func (s *ConversationService) MarkRead(ctx context.Context, conversationID, userID uuid.UUID) error {
	if err := s.access.RequireParticipant(ctx, conversationID, userID); err != nil {
		return err
	}
	return s.convRepo.AdvanceLastRead(ctx, conversationID, userID, time.Now())
}

func (s *ConversationService) UnreadCount(ctx context.Context, conversationID, userID uuid.UUID) (int64, error) {
	membership, err := s.convRepo.GetParticipant(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, flock_errors.ErrNotFound) {
			return 0, flock_errors.ErrForbidden
		}
		return 0, err
	}

	since := time.Time{}
	if membership.LastReadAt != nil {
		since = *membership.LastReadAt
	}
	return s.messageRepo.CountUnread(ctx, conversationID, userID, since)
}
