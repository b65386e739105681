package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock-messaging/internal/domain/chat"
	"flock-messaging/internal/domain/user"
	flock_errors "flock-messaging/pkg/errors"
)

type conversationFixture struct {
	users    *fakeUserRepo
	convs    *fakeConversationRepo
	messages *fakeMessageRepo
	service  *ConversationService
}

func newConversationFixture() *conversationFixture {
	users := newFakeUserRepo()
	convs := newFakeConversationRepo()
	messages := newFakeMessageRepo()
	access := NewAccess(convs, users)
	return &conversationFixture{
		users:    users,
		convs:    convs,
		messages: messages,
		service:  NewConversationService(convs, messages, users, access),
	}
}

func TestFindOrCreateConversation(t *testing.T) {
	ctx := context.Background()

	t.Run("creates then reuses the same conversation", func(t *testing.T) {
		fx := newConversationFixture()
		alice := fx.users.add(user.User{Username: "alice"})
		bob := fx.users.add(user.User{Username: "bob"})

		first, other, err := fx.service.FindOrCreateConversation(ctx, alice.ID, "bob")
		require.NoError(t, err)
		assert.Equal(t, "bob", other.Username)

		// Opening from the other side lands on the same row.
		second, _, err := fx.service.FindOrCreateConversation(ctx, bob.ID, "alice")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("race loser re-reads the winner", func(t *testing.T) {
		fx := newConversationFixture()
		alice := fx.users.add(user.User{Username: "alice"})
		bob := fx.users.add(user.User{Username: "bob"})

		winner, _ := chat.NewConversation(alice.ID, bob.ID)
		fx.convs.loseRaceTo = &winner

		conv, _, err := fx.service.FindOrCreateConversation(ctx, alice.ID, "bob")
		require.NoError(t, err)
		assert.Equal(t, winner.ID, conv.ID)
	})

	t.Run("unknown username", func(t *testing.T) {
		fx := newConversationFixture()
		alice := fx.users.add(user.User{Username: "alice"})

		_, _, err := fx.service.FindOrCreateConversation(ctx, alice.ID, "nobody")
		assert.ErrorIs(t, err, flock_errors.ErrNotFound)
	})

	t.Run("private target rejects non-followers", func(t *testing.T) {
		fx := newConversationFixture()
		alice := fx.users.add(user.User{Username: "alice"})
		fx.users.add(user.User{Username: "bob", Private: true})

		_, _, err := fx.service.FindOrCreateConversation(ctx, alice.ID, "bob")
		assert.ErrorIs(t, err, flock_errors.ErrForbidden)
	})

	t.Run("private target accepts followers", func(t *testing.T) {
		fx := newConversationFixture()
		alice := fx.users.add(user.User{Username: "alice"})
		bob := fx.users.add(user.User{Username: "bob", Private: true})
		fx.users.follow(alice.ID, bob.ID)

		_, _, err := fx.service.FindOrCreateConversation(ctx, alice.ID, "bob")
		assert.NoError(t, err)
	})

	t.Run("private user can open a self conversation", func(t *testing.T) {
		fx := newConversationFixture()
		alice := fx.users.add(user.User{Username: "alice", Private: true})

		conv, other, err := fx.service.FindOrCreateConversation(ctx, alice.ID, "alice")
		require.NoError(t, err)
		assert.Equal(t, "alice", other.Username)

		participants, err := fx.convs.GetParticipants(ctx, conv.ID)
		require.NoError(t, err)
		assert.Len(t, participants, 1)
	})
}

func TestListChats(t *testing.T) {
	ctx := context.Background()
	fx := newConversationFixture()
	me := fx.users.add(user.User{Username: "me"})
	friend := fx.users.add(user.User{Username: "friend"})
	colleague := fx.users.add(user.User{Username: "colleague"})

	withFriend, _, err := fx.service.FindOrCreateConversation(ctx, me.ID, "friend")
	require.NoError(t, err)
	withColleague, _, err := fx.service.FindOrCreateConversation(ctx, me.ID, "colleague")
	require.NoError(t, err)

	// The colleague conversation has the newest message.
	older := chat.NewTextMessage(withFriend.ID, friend.ID, "hi")
	require.NoError(t, fx.messages.Create(ctx, &older))
	newer := chat.NewTextMessage(withColleague.ID, colleague.ID, "meeting moved")
	require.NoError(t, fx.messages.Create(ctx, &newer))

	t.Run("orders by last message recency", func(t *testing.T) {
		chats, err := fx.service.ListChats(ctx, me.ID)
		require.NoError(t, err)
		require.Len(t, chats, 2)
		assert.Equal(t, withColleague.ID, chats[0].ConversationID)
		assert.Equal(t, withFriend.ID, chats[1].ConversationID)
	})

	t.Run("pinned conversations come first", func(t *testing.T) {
		require.NoError(t, fx.service.SetPinned(ctx, withFriend.ID, me.ID, true))

		chats, err := fx.service.ListChats(ctx, me.ID)
		require.NoError(t, err)
		require.Len(t, chats, 2)
		assert.Equal(t, withFriend.ID, chats[0].ConversationID)
		assert.True(t, chats[0].Pinned)
	})

	t.Run("carries unread counts and previews", func(t *testing.T) {
		chats, err := fx.service.ListChats(ctx, me.ID)
		require.NoError(t, err)

		for _, c := range chats {
			assert.Equal(t, int64(1), c.Unread)
			require.NotNil(t, c.LastMessage)
		}
	})

	t.Run("own messages are never unread", func(t *testing.T) {
		mine := chat.NewTextMessage(withFriend.ID, me.ID, "sent by me")
		require.NoError(t, fx.messages.Create(ctx, &mine))

		unread, err := fx.service.UnreadCount(ctx, withFriend.ID, me.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), unread)
	})
}

func TestMarkRead(t *testing.T) {
	ctx := context.Background()
	fx := newConversationFixture()
	me := fx.users.add(user.User{Username: "me"})
	friend := fx.users.add(user.User{Username: "friend"})

	conv, _, err := fx.service.FindOrCreateConversation(ctx, me.ID, "friend")
	require.NoError(t, err)

	m := chat.NewTextMessage(conv.ID, friend.ID, "unread until marked")
	require.NoError(t, fx.messages.Create(ctx, &m))

	unread, err := fx.service.UnreadCount(ctx, conv.ID, me.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	require.NoError(t, fx.service.MarkRead(ctx, conv.ID, me.ID))

	unread, err = fx.service.UnreadCount(ctx, conv.ID, me.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)

	t.Run("watermark never moves backwards", func(t *testing.T) {
		membership, err := fx.convs.GetParticipant(ctx, conv.ID, me.ID)
		require.NoError(t, err)
		require.NotNil(t, membership.LastReadAt)
		current := *membership.LastReadAt

		past := current.Add(-time.Hour)
		require.NoError(t, fx.convs.AdvanceLastRead(ctx, conv.ID, me.ID, past))

		membership, err = fx.convs.GetParticipant(ctx, conv.ID, me.ID)
		require.NoError(t, err)
		assert.Equal(t, current, *membership.LastReadAt)
	})

	t.Run("non-participant is rejected", func(t *testing.T) {
		stranger := fx.users.add(user.User{Username: "stranger"})
		assert.ErrorIs(t, fx.service.MarkRead(ctx, conv.ID, stranger.ID), flock_errors.ErrForbidden)

		_, err := fx.service.UnreadCount(ctx, conv.ID, stranger.ID)
		assert.ErrorIs(t, err, flock_errors.ErrForbidden)
	})
}

func TestUnreadIgnoresInvisibleMessages(t *testing.T) {
	ctx := context.Background()
	fx := newConversationFixture()
	me := fx.users.add(user.User{Username: "me"})
	friend := fx.users.add(user.User{Username: "friend"})

	conv, _, err := fx.service.FindOrCreateConversation(ctx, me.ID, "friend")
	require.NoError(t, err)

	m := chat.NewTextMessage(conv.ID, friend.ID, "retracted")
	require.NoError(t, fx.messages.Create(ctx, &m))

	_, err = fx.messages.MarkDeletedForAll(ctx, m.ID, friend.ID, time.Now())
	require.NoError(t, err)

	unread, err := fx.service.UnreadCount(ctx, conv.ID, me.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)

	// A tombstoned message also disappears from the chat list preview.
	chats, err := fx.service.ListChats(ctx, me.ID)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Nil(t, chats[0].LastMessage)
}

func TestSetPinnedRequiresMembership(t *testing.T) {
	ctx := context.Background()
	fx := newConversationFixture()
	me := fx.users.add(user.User{Username: "me"})
	fx.users.add(user.User{Username: "friend"})
	stranger := fx.users.add(user.User{Username: "stranger"})

	conv, _, err := fx.service.FindOrCreateConversation(ctx, me.ID, "friend")
	require.NoError(t, err)

	assert.ErrorIs(t, fx.service.SetPinned(ctx, conv.ID, stranger.ID, true), flock_errors.ErrForbidden)
	assert.ErrorIs(t, fx.service.SetPinned(ctx, uuid.New(), me.ID, true), flock_errors.ErrForbidden)
}

func TestOtherParticipant(t *testing.T) {
	ctx := context.Background()
	fx := newConversationFixture()
	me := fx.users.add(user.User{Username: "me"})
	display := "Friend"
	friend := fx.users.add(user.User{Username: "friend", DisplayName: &display})

	conv, _, err := fx.service.FindOrCreateConversation(ctx, me.ID, "friend")
	require.NoError(t, err)

	t.Run("each side sees the counterpart", func(t *testing.T) {
		other, err := fx.service.OtherParticipant(ctx, conv.ID, me.ID)
		require.NoError(t, err)
		assert.Equal(t, friend.ID, other.ID)
		assert.Equal(t, "Friend", other.DisplayName)

		other, err = fx.service.OtherParticipant(ctx, conv.ID, friend.ID)
		require.NoError(t, err)
		assert.Equal(t, me.ID, other.ID)
	})

	t.Run("self conversation mirrors the owner", func(t *testing.T) {
		self, _, err := fx.service.FindOrCreateConversation(ctx, me.ID, "me")
		require.NoError(t, err)

		other, err := fx.service.OtherParticipant(ctx, self.ID, me.ID)
		require.NoError(t, err)
		assert.Equal(t, me.ID, other.ID)
	})
}
