package services

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"flock-messaging/internal/domain/chat"
	"flock-messaging/internal/domain/user"
	flock_errors "flock-messaging/pkg/errors"
	"flock-messaging/pkg/events"
)

// In-memory repository fakes. They reproduce the behaviors the services
// depend on: sentinel errors, the pair-key uniqueness constraint, the
// visibility filter, and the monotonic read watermark.

type fakeUserRepo struct {
	users   map[uuid.UUID]user.User
	follows map[[2]uuid.UUID]bool
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:   make(map[uuid.UUID]user.User),
		follows: make(map[[2]uuid.UUID]bool),
	}
}

func (f *fakeUserRepo) add(u user.User) user.User {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	f.users[u.ID] = u
	return u
}

func (f *fakeUserRepo) follow(follower, following uuid.UUID) {
	f.follows[[2]uuid.UUID{follower, following}] = true
}

func (f *fakeUserRepo) Create(ctx context.Context, u *user.User) error {
	for _, existing := range f.users {
		if existing.Username == u.Username {
			return flock_errors.ErrAlreadyExists
		}
	}
	f.users[u.ID] = *u
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (user.User, error) {
	u, ok := f.users[id]
	if !ok {
		return user.User{}, flock_errors.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserRepo) GetByUsername(ctx context.Context, username string) (user.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return user.User{}, flock_errors.ErrNotFound
}

func (f *fakeUserRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]user.User, error) {
	var out []user.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUserRepo) IsFollowing(ctx context.Context, followerID, followingID uuid.UUID) (bool, error) {
	return f.follows[[2]uuid.UUID{followerID, followingID}], nil
}

type participantKey struct {
	conv uuid.UUID
	user uuid.UUID
}

type fakeConversationRepo struct {
	conversations map[uuid.UUID]chat.Conversation
	byPairKey     map[string]uuid.UUID
	participants  map[participantKey]chat.Participant

	// When set, the next CreateWithParticipants fails with ErrAlreadyExists
	// after first installing the winner's row, simulating a lost race.
	loseRaceTo *chat.Conversation
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{
		conversations: make(map[uuid.UUID]chat.Conversation),
		byPairKey:     make(map[string]uuid.UUID),
		participants:  make(map[participantKey]chat.Participant),
	}
}

func (f *fakeConversationRepo) install(conv chat.Conversation, participants []chat.Participant) {
	f.conversations[conv.ID] = conv
	f.byPairKey[conv.PairKey] = conv.ID
	for _, p := range participants {
		f.participants[participantKey{p.ConversationID, p.UserID}] = p
	}
}

func (f *fakeConversationRepo) CreateWithParticipants(ctx context.Context, conv *chat.Conversation, participants []chat.Participant) error {
	if f.loseRaceTo != nil {
		winner := *f.loseRaceTo
		f.loseRaceTo = nil
		winnerParticipants := make([]chat.Participant, 0, len(participants))
		for _, p := range participants {
			p.ConversationID = winner.ID
			winnerParticipants = append(winnerParticipants, p)
		}
		f.install(winner, winnerParticipants)
		return flock_errors.ErrAlreadyExists
	}
	if _, taken := f.byPairKey[conv.PairKey]; taken {
		return flock_errors.ErrAlreadyExists
	}
	f.install(*conv, participants)
	return nil
}

func (f *fakeConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (chat.Conversation, error) {
	conv, ok := f.conversations[id]
	if !ok {
		return chat.Conversation{}, flock_errors.ErrNotFound
	}
	return conv, nil
}

func (f *fakeConversationRepo) GetByPairKey(ctx context.Context, pairKey string) (chat.Conversation, error) {
	id, ok := f.byPairKey[pairKey]
	if !ok {
		return chat.Conversation{}, flock_errors.ErrNotFound
	}
	return f.conversations[id], nil
}

func (f *fakeConversationRepo) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	_, ok := f.participants[participantKey{conversationID, userID}]
	return ok, nil
}

func (f *fakeConversationRepo) GetParticipant(ctx context.Context, conversationID, userID uuid.UUID) (chat.Participant, error) {
	p, ok := f.participants[participantKey{conversationID, userID}]
	if !ok {
		return chat.Participant{}, flock_errors.ErrNotFound
	}
	return p, nil
}

func (f *fakeConversationRepo) GetParticipants(ctx context.Context, conversationID uuid.UUID) ([]chat.Participant, error) {
	var out []chat.Participant
	for key, p := range f.participants {
		if key.conv == conversationID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeConversationRepo) GetUserParticipants(ctx context.Context, userID uuid.UUID) ([]chat.Participant, error) {
	var out []chat.Participant
	for key, p := range f.participants {
		if key.user == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeConversationRepo) SetPinned(ctx context.Context, conversationID, userID uuid.UUID, pinned bool) error {
	key := participantKey{conversationID, userID}
	p, ok := f.participants[key]
	if !ok {
		return flock_errors.ErrNotFound
	}
	p.Pinned = pinned
	f.participants[key] = p
	return nil
}

func (f *fakeConversationRepo) AdvanceLastRead(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) error {
	key := participantKey{conversationID, userID}
	p, ok := f.participants[key]
	if !ok {
		return nil
	}
	if p.LastReadAt == nil || p.LastReadAt.Before(at) {
		p.LastReadAt = &at
		f.participants[key] = p
	}
	return nil
}

type fakeMessageRepo struct {
	messages map[uuid.UUID]chat.Message
	clock    time.Time
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{
		messages: make(map[uuid.UUID]chat.Message),
		clock:    time.Now().Add(-time.Minute),
	}
}

func (f *fakeMessageRepo) Create(ctx context.Context, m *chat.Message) error {
	if m.CreatedAt.IsZero() {
		f.clock = f.clock.Add(time.Millisecond)
		m.CreatedAt = f.clock
	}
	f.messages[m.ID] = *m
	return nil
}

func (f *fakeMessageRepo) GetByID(ctx context.Context, id uuid.UUID) (chat.Message, error) {
	m, ok := f.messages[id]
	if !ok {
		return chat.Message{}, flock_errors.ErrNotFound
	}
	return m, nil
}

func (f *fakeMessageRepo) visible(conversationID, viewerID uuid.UUID) []chat.Message {
	var out []chat.Message
	for _, m := range f.messages {
		if m.ConversationID == conversationID && m.VisibleTo(viewerID) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (f *fakeMessageRepo) GetVisibleMessages(ctx context.Context, conversationID, viewerID uuid.UUID, limit int) ([]chat.Message, error) {
	out := f.visible(conversationID, viewerID)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeMessageRepo) GetLatestVisible(ctx context.Context, conversationID, viewerID uuid.UUID) (chat.Message, error) {
	out := f.visible(conversationID, viewerID)
	if len(out) == 0 {
		return chat.Message{}, flock_errors.ErrNotFound
	}
	return out[len(out)-1], nil
}

func (f *fakeMessageRepo) CountUnread(ctx context.Context, conversationID, viewerID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	for _, m := range f.visible(conversationID, viewerID) {
		if m.SenderID != viewerID && m.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeMessageRepo) MarkDeletedForAll(ctx context.Context, messageID, senderID uuid.UUID, at time.Time) (chat.Message, error) {
	m, ok := f.messages[messageID]
	if !ok {
		return chat.Message{}, flock_errors.ErrNotFound
	}
	if m.SenderID != senderID {
		return chat.Message{}, flock_errors.ErrForbidden
	}
	if m.DeletedAt == nil {
		m.Tombstone(senderID, at)
		f.messages[messageID] = m
	}
	return m, nil
}

func (f *fakeMessageRepo) HideForUser(ctx context.Context, messageID, userID uuid.UUID) (chat.Message, error) {
	m, ok := f.messages[messageID]
	if !ok {
		return chat.Message{}, flock_errors.ErrNotFound
	}
	m.HideFor(userID)
	f.messages[messageID] = m
	return m, nil
}

type reactionKey struct {
	message uuid.UUID
	user    uuid.UUID
}

type fakeLedgerRepo struct {
	reactions map[reactionKey]chat.MessageReaction
	likes     map[reactionKey]chat.MessageLike
	comments  []chat.MessageComment
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{
		reactions: make(map[reactionKey]chat.MessageReaction),
		likes:     make(map[reactionKey]chat.MessageLike),
	}
}

func (f *fakeLedgerRepo) UpsertReaction(ctx context.Context, r *chat.MessageReaction) error {
	f.reactions[reactionKey{r.MessageID, r.UserID}] = *r
	return nil
}

func (f *fakeLedgerRepo) DeleteReaction(ctx context.Context, messageID, userID uuid.UUID) (chat.MessageReaction, error) {
	key := reactionKey{messageID, userID}
	r, ok := f.reactions[key]
	if !ok {
		return chat.MessageReaction{}, flock_errors.ErrNotFound
	}
	delete(f.reactions, key)
	return r, nil
}

func (f *fakeLedgerRepo) GetReactions(ctx context.Context, messageID uuid.UUID) ([]chat.MessageReaction, error) {
	var out []chat.MessageReaction
	for _, r := range f.reactions {
		if r.MessageID == messageID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeLedgerRepo) GetReactionsForMessages(ctx context.Context, messageIDs []uuid.UUID) ([]chat.MessageReaction, error) {
	wanted := make(map[uuid.UUID]bool, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = true
	}
	var out []chat.MessageReaction
	for _, r := range f.reactions {
		if wanted[r.MessageID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeLedgerRepo) GetUserReaction(ctx context.Context, messageID, userID uuid.UUID) (chat.MessageReaction, error) {
	r, ok := f.reactions[reactionKey{messageID, userID}]
	if !ok {
		return chat.MessageReaction{}, flock_errors.ErrNotFound
	}
	return r, nil
}

func (f *fakeLedgerRepo) UpsertLike(ctx context.Context, l *chat.MessageLike) error {
	key := reactionKey{l.MessageID, l.UserID}
	if _, ok := f.likes[key]; !ok {
		f.likes[key] = *l
	}
	return nil
}

func (f *fakeLedgerRepo) DeleteLike(ctx context.Context, messageID, userID uuid.UUID) error {
	delete(f.likes, reactionKey{messageID, userID})
	return nil
}

func (f *fakeLedgerRepo) CountLikes(ctx context.Context, messageID uuid.UUID) (int64, error) {
	var count int64
	for _, l := range f.likes {
		if l.MessageID == messageID {
			count++
		}
	}
	return count, nil
}

func (f *fakeLedgerRepo) IsLiked(ctx context.Context, messageID, userID uuid.UUID) (bool, error) {
	_, ok := f.likes[reactionKey{messageID, userID}]
	return ok, nil
}

func (f *fakeLedgerRepo) CreateComment(ctx context.Context, c *chat.MessageComment) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	f.comments = append(f.comments, *c)
	return nil
}

func (f *fakeLedgerRepo) GetComments(ctx context.Context, messageID uuid.UUID, limit int) ([]chat.MessageComment, error) {
	var out []chat.MessageComment
	for _, c := range f.comments {
		if c.MessageID == messageID {
			out = append(out, c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeBlobStore struct {
	uploads []string
}

func (f *fakeBlobStore) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	f.uploads = append(f.uploads, key)
	return "https://cdn.test/" + key, nil
}

type publishedEvent struct {
	channel string
	event   events.Event
}

type fakePublisher struct {
	published []publishedEvent
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, event events.Event) error {
	f.published = append(f.published, publishedEvent{channel: channel, event: event})
	return nil
}

func (f *fakePublisher) last() (publishedEvent, bool) {
	if len(f.published) == 0 {
		return publishedEvent{}, false
	}
	return f.published[len(f.published)-1], true
}
