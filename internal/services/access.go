package services

import (
	"context"

	"github.com/google/uuid"

	"flock-messaging/internal/domain/user"
	"flock-messaging/internal/repository"
	flock_errors "flock-messaging/pkg/errors"
)

// Access answers the two membership questions every operation starts with:
// is the caller in this conversation, and may the caller open one with this
// user in the first place.
type Access struct {
	convRepo repository.ConversationRepository
	userRepo repository.UserRepository
}

func NewAccess(convRepo repository.ConversationRepository, userRepo repository.UserRepository) *Access {
	return &Access{convRepo: convRepo, userRepo: userRepo}
}

// RequireParticipant returns ErrForbidden when userID is not a member of
// the conversation. A missing conversation is reported the same way as a
// foreign one; membership is the only thing that makes it visible.
func (a *Access) RequireParticipant(ctx context.Context, conversationID, userID uuid.UUID) error {
	ok, err := a.convRepo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return flock_errors.ErrForbidden
	}
	return nil
}

// RequireCanMessage re-checks the private profile rule against the
// conversation's counterpart. The counterpart may have turned private
// after first contact, so membership alone does not keep the send path
// open.
func (a *Access) RequireCanMessage(ctx context.Context, conversationID, senderID uuid.UUID) error {
	participants, err := a.convRepo.GetParticipants(ctx, conversationID)
	if err != nil {
		return err
	}

	otherID := senderID
	for _, p := range participants {
		if p.UserID != senderID {
			otherID = p.UserID
			break
		}
	}
	if otherID == senderID {
		return nil
	}

	other, err := a.userRepo.GetByID(ctx, otherID)
	if err != nil {
		return err
	}
	return a.CanMessage(ctx, senderID, other)
}

// CanMessage enforces the private profile rule: a private account accepts
// new conversations only from its followers. Messaging yourself is always
// allowed.
func (a *Access) CanMessage(ctx context.Context, sender uuid.UUID, target user.User) error {
	if sender == target.ID {
		return nil
	}
	if !target.Private {
		return nil
	}
	follows, err := a.userRepo.IsFollowing(ctx, sender, target.ID)
	if err != nil {
		return err
	}
	if !follows {
		return flock_errors.ErrForbidden
	}
	return nil
}
