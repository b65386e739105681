package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock-messaging/internal/domain/chat"
	"flock-messaging/internal/domain/user"
	flock_errors "flock-messaging/pkg/errors"
	"flock-messaging/pkg/events"
)

type ledgerFixture struct {
	users     *fakeUserRepo
	convs     *fakeConversationRepo
	messages  *fakeMessageRepo
	ledger    *fakeLedgerRepo
	publisher *fakePublisher
	service   *LedgerService

	me     user.User
	friend user.User
	msg    chat.Message
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()

	fx := &ledgerFixture{
		users:     newFakeUserRepo(),
		convs:     newFakeConversationRepo(),
		messages:  newFakeMessageRepo(),
		ledger:    newFakeLedgerRepo(),
		publisher: &fakePublisher{},
	}
	access := NewAccess(fx.convs, fx.users)
	fx.service = NewLedgerService(fx.ledger, fx.messages, fx.users, access, fx.publisher)

	fx.me = fx.users.add(user.User{Username: "me"})
	fx.friend = fx.users.add(user.User{Username: "friend"})
	conv, participants := chat.NewConversation(fx.me.ID, fx.friend.ID)
	fx.convs.install(conv, participants)

	m := chat.NewTextMessage(conv.ID, fx.friend.ID, "react to me")
	require.NoError(t, fx.messages.Create(context.Background(), &m))
	fx.msg = m
	return fx
}

func TestSetReaction(t *testing.T) {
	ctx := context.Background()

	t.Run("first reaction publishes an insert", func(t *testing.T) {
		fx := newLedgerFixture(t)

		r, err := fx.service.SetReaction(ctx, fx.msg.ID, fx.me.ID, " ❤️ ")
		require.NoError(t, err)
		assert.Equal(t, "❤️", r.Emoji)

		last, ok := fx.publisher.last()
		require.True(t, ok)
		assert.Equal(t, "dm:reactions", last.channel)
		assert.Equal(t, events.EventInsert, last.event.Type)
		assert.Equal(t, "message_reactions", last.event.Table)
	})

	t.Run("switching emoji publishes an update with both rows", func(t *testing.T) {
		fx := newLedgerFixture(t)

		_, err := fx.service.SetReaction(ctx, fx.msg.ID, fx.me.ID, "❤️")
		require.NoError(t, err)
		_, err = fx.service.SetReaction(ctx, fx.msg.ID, fx.me.ID, "🔥")
		require.NoError(t, err)

		last, ok := fx.publisher.last()
		require.True(t, ok)
		assert.Equal(t, events.EventUpdate, last.event.Type)
		assert.NotEmpty(t, last.event.Old)
		assert.NotEmpty(t, last.event.New)

		// Only one row per user per message.
		summary, err := fx.service.GetReactions(ctx, fx.msg.ID, fx.me.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"🔥": 1}, summary.Counts)
		assert.Equal(t, "🔥", summary.MyEmoji)
	})

	t.Run("repeating the same emoji publishes nothing new", func(t *testing.T) {
		fx := newLedgerFixture(t)

		_, err := fx.service.SetReaction(ctx, fx.msg.ID, fx.me.ID, "❤️")
		require.NoError(t, err)
		before := len(fx.publisher.published)

		_, err = fx.service.SetReaction(ctx, fx.msg.ID, fx.me.ID, "❤️")
		require.NoError(t, err)
		assert.Len(t, fx.publisher.published, before)
	})

	t.Run("rejects blank and oversized emoji", func(t *testing.T) {
		fx := newLedgerFixture(t)

		_, err := fx.service.SetReaction(ctx, fx.msg.ID, fx.me.ID, "   ")
		assert.ErrorIs(t, err, flock_errors.ErrInvalidInput)

		_, err = fx.service.SetReaction(ctx, fx.msg.ID, fx.me.ID, strings.Repeat("x", 17))
		assert.ErrorIs(t, err, flock_errors.ErrInvalidInput)
	})

	t.Run("deleted message rejects engagement", func(t *testing.T) {
		fx := newLedgerFixture(t)
		_, err := fx.messages.MarkDeletedForAll(ctx, fx.msg.ID, fx.friend.ID, time.Now())
		require.NoError(t, err)

		_, err = fx.service.SetReaction(ctx, fx.msg.ID, fx.me.ID, "❤️")
		assert.ErrorIs(t, err, flock_errors.ErrNotFound)
	})

	t.Run("hidden message rejects engagement for the hidden user only", func(t *testing.T) {
		fx := newLedgerFixture(t)
		_, err := fx.messages.HideForUser(ctx, fx.msg.ID, fx.me.ID)
		require.NoError(t, err)

		_, err = fx.service.SetReaction(ctx, fx.msg.ID, fx.me.ID, "❤️")
		assert.ErrorIs(t, err, flock_errors.ErrNotFound)

		_, err = fx.service.SetReaction(ctx, fx.msg.ID, fx.friend.ID, "❤️")
		assert.NoError(t, err)
	})

	t.Run("non-participant is rejected", func(t *testing.T) {
		fx := newLedgerFixture(t)
		stranger := fx.users.add(user.User{Username: "stranger"})

		_, err := fx.service.SetReaction(ctx, fx.msg.ID, stranger.ID, "❤️")
		assert.ErrorIs(t, err, flock_errors.ErrForbidden)
	})
}

func TestClearReaction(t *testing.T) {
	ctx := context.Background()

	t.Run("removes the row and publishes a delete", func(t *testing.T) {
		fx := newLedgerFixture(t)

		_, err := fx.service.SetReaction(ctx, fx.msg.ID, fx.me.ID, "❤️")
		require.NoError(t, err)
		require.NoError(t, fx.service.ClearReaction(ctx, fx.msg.ID, fx.me.ID))

		last, ok := fx.publisher.last()
		require.True(t, ok)
		assert.Equal(t, events.EventDelete, last.event.Type)
		assert.NotEmpty(t, last.event.Old)

		summary, err := fx.service.GetReactions(ctx, fx.msg.ID, fx.me.ID)
		require.NoError(t, err)
		assert.Empty(t, summary.Counts)
		assert.Empty(t, summary.MyEmoji)
	})

	t.Run("clearing nothing is a no-op", func(t *testing.T) {
		fx := newLedgerFixture(t)

		require.NoError(t, fx.service.ClearReaction(ctx, fx.msg.ID, fx.me.ID))
		assert.Empty(t, fx.publisher.published)
	})
}

func TestLikes(t *testing.T) {
	ctx := context.Background()
	fx := newLedgerFixture(t)

	require.NoError(t, fx.service.Like(ctx, fx.msg.ID, fx.me.ID))
	// Liking twice leaves a single row.
	require.NoError(t, fx.service.Like(ctx, fx.msg.ID, fx.me.ID))
	require.NoError(t, fx.service.Like(ctx, fx.msg.ID, fx.friend.ID))

	summary, err := fx.service.GetLikes(ctx, fx.msg.ID, fx.me.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Likes)
	assert.True(t, summary.LikedByMe)

	require.NoError(t, fx.service.Unlike(ctx, fx.msg.ID, fx.me.ID))
	// Unliking what is not liked is a no-op.
	require.NoError(t, fx.service.Unlike(ctx, fx.msg.ID, fx.me.ID))

	summary, err = fx.service.GetLikes(ctx, fx.msg.ID, fx.me.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Likes)
	assert.False(t, summary.LikedByMe)
}

func TestComments(t *testing.T) {
	ctx := context.Background()

	t.Run("thread is oldest first with author profiles", func(t *testing.T) {
		fx := newLedgerFixture(t)

		first, err := fx.service.AddComment(ctx, fx.msg.ID, fx.me.ID, "first!")
		require.NoError(t, err)
		_, err = fx.service.AddComment(ctx, fx.msg.ID, fx.friend.ID, "second")
		require.NoError(t, err)

		views, err := fx.service.ListComments(ctx, fx.msg.ID, fx.me.ID)
		require.NoError(t, err)
		require.Len(t, views, 2)
		assert.Equal(t, first.ID, views[0].ID)
		assert.Equal(t, "me", views[0].Author.Username)
		assert.Equal(t, "friend", views[1].Author.Username)
	})

	t.Run("rejects blank comments", func(t *testing.T) {
		fx := newLedgerFixture(t)

		_, err := fx.service.AddComment(ctx, fx.msg.ID, fx.me.ID, "  \n ")
		assert.ErrorIs(t, err, flock_errors.ErrEmptyMessage)
	})

	t.Run("trims surrounding whitespace", func(t *testing.T) {
		fx := newLedgerFixture(t)

		c, err := fx.service.AddComment(ctx, fx.msg.ID, fx.me.ID, "  tidy  ")
		require.NoError(t, err)
		assert.Equal(t, "tidy", c.Text)
	})
}
