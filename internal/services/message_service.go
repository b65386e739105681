package services

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"flock-messaging/config"
	"flock-messaging/internal/domain/chat"
	"flock-messaging/internal/repository"
	flock_errors "flock-messaging/pkg/errors"
	"flock-messaging/pkg/events"
)

const (
	// Snapshot ceiling; HTTP callers are clamped lower by the handler.
	MaxSnapshotLimit = 200
	DefaultListLimit = 50
)

// BlobStore stores uploaded voice and media payloads and returns a public
// URL for the stored object.
type BlobStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
}

type MessageService struct {
	messageRepo repository.MessageRepository
	ledgerRepo  repository.LedgerRepository
	access      *Access
	blobs       BlobStore
	feed        *changeFeed

	maxImageBytes int64
	maxVideoBytes int64
	maxVoiceBytes int64
}

func NewMessageService(
	messageRepo repository.MessageRepository,
	ledgerRepo repository.LedgerRepository,
	access *Access,
	blobs BlobStore,
	publisher events.Publisher,
	cfg *config.Config,
) *MessageService {
	return &MessageService{
		messageRepo:   messageRepo,
		ledgerRepo:    ledgerRepo,
		access:        access,
		blobs:         blobs,
		feed:          newChangeFeed(publisher),
		maxImageBytes: cfg.MaxImageBytes,
		maxVideoBytes: cfg.MaxVideoBytes,
		maxVoiceBytes: cfg.MaxVoiceBytes,
	}
}

// requireSender gates every send path: the caller must be a participant
// and must still pass the private profile rule against the counterpart.
func (s *MessageService) requireSender(ctx context.Context, conversationID, senderID uuid.UUID) error {
	if err := s.access.RequireParticipant(ctx, conversationID, senderID); err != nil {
		return err
	}
	return s.access.RequireCanMessage(ctx, conversationID, senderID)
}

// MessageView is a message decorated with its reaction state for one
// viewer.
type MessageView struct {
	chat.Message
	Reactions  map[string]int `json:"reactions,omitempty"`
	MyReaction string         `json:"my_reaction,omitempty"`
}

// ListMessages returns the conversation history the viewer is allowed to
// see, oldest first, with per-emoji reaction counts attached.
func (s *MessageService) ListMessages(ctx context.Context, conversationID, viewerID uuid.UUID, limit int) ([]MessageView, error) {
	if err := s.access.RequireParticipant(ctx, conversationID, viewerID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxSnapshotLimit {
		limit = MaxSnapshotLimit
	}

	messages, err := s.messageRepo.GetVisibleMessages(ctx, conversationID, viewerID, limit)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	reactions, err := s.ledgerRepo.GetReactionsForMessages(ctx, ids)
	if err != nil {
		return nil, err
	}

	counts := make(map[uuid.UUID]map[string]int)
	mine := make(map[uuid.UUID]string)
	for _, r := range reactions {
		if counts[r.MessageID] == nil {
			counts[r.MessageID] = make(map[string]int)
		}
		counts[r.MessageID][r.Emoji]++
		if r.UserID == viewerID {
			mine[r.MessageID] = r.Emoji
		}
	}

	views := make([]MessageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, MessageView{
			Message:    m,
			Reactions:  counts[m.ID],
			MyReaction: mine[m.ID],
		})
	}
	return views, nil
}

func (s *MessageService) SendText(ctx context.Context, conversationID, senderID uuid.UUID, text string) (chat.Message, error) {
	if err := s.requireSender(ctx, conversationID, senderID); err != nil {
		return chat.Message{}, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return chat.Message{}, flock_errors.ErrEmptyMessage
	}

	m := chat.NewTextMessage(conversationID, senderID, text)
	if err := s.messageRepo.Create(ctx, &m); err != nil {
		return chat.Message{}, err
	}

	s.feed.messageInserted(ctx, m)
	return m, nil
}

type VoiceUpload struct {
	Filename    string
	ContentType string
	Data        []byte
	DurationMs  int64
}

func (s *MessageService) SendVoice(ctx context.Context, conversationID, senderID uuid.UUID, upload VoiceUpload) (chat.Message, error) {
	if err := s.requireSender(ctx, conversationID, senderID); err != nil {
		return chat.Message{}, err
	}

	if len(upload.Data) == 0 {
		return chat.Message{}, flock_errors.ErrEmptyMessage
	}
	if !strings.HasPrefix(upload.ContentType, "audio/") {
		return chat.Message{}, flock_errors.ErrUnsupportedType
	}
	if int64(len(upload.Data)) > s.maxVoiceBytes {
		return chat.Message{}, flock_errors.ErrTooLarge
	}

	key := objectKey("voices", senderID, upload.Filename, upload.ContentType)
	url, err := s.blobs.Upload(ctx, key, upload.ContentType, upload.Data)
	if err != nil {
		return chat.Message{}, err
	}

	m := chat.NewVoiceMessage(conversationID, senderID, url, upload.DurationMs)
	if err := s.messageRepo.Create(ctx, &m); err != nil {
		return chat.Message{}, err
	}

	s.feed.messageInserted(ctx, m)
	return m, nil
}

type MediaUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (s *MessageService) SendMedia(ctx context.Context, conversationID, senderID uuid.UUID, upload MediaUpload) (chat.Message, error) {
	if err := s.requireSender(ctx, conversationID, senderID); err != nil {
		return chat.Message{}, err
	}

	if len(upload.Data) == 0 {
		return chat.Message{}, flock_errors.ErrEmptyMessage
	}

	var max int64
	switch {
	case strings.HasPrefix(upload.ContentType, "image/"):
		max = s.maxImageBytes
	case strings.HasPrefix(upload.ContentType, "video/"):
		max = s.maxVideoBytes
	default:
		return chat.Message{}, flock_errors.ErrUnsupportedType
	}
	if int64(len(upload.Data)) > max {
		return chat.Message{}, flock_errors.ErrTooLarge
	}

	key := objectKey("dm_media", senderID, upload.Filename, upload.ContentType)
	url, err := s.blobs.Upload(ctx, key, upload.ContentType, upload.Data)
	if err != nil {
		return chat.Message{}, err
	}

	m := chat.NewMediaMessage(conversationID, senderID, url, upload.ContentType)
	if err := s.messageRepo.Create(ctx, &m); err != nil {
		return chat.Message{}, err
	}

	s.feed.messageInserted(ctx, m)
	return m, nil
}

type DeleteScope string

const (
	DeleteForAll DeleteScope = "all"
	DeleteForMe  DeleteScope = "me"
)

// DeleteMessage applies one of the two delete mechanisms. Scope all is a
// sender-only tombstone that removes the message for everyone; scope me
// hides it from the caller alone. Both are idempotent, and both emit an
// UPDATE event so live viewers can re-evaluate visibility.
func (s *MessageService) DeleteMessage(ctx context.Context, messageID, callerID uuid.UUID, scope DeleteScope) error {
	m, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.access.RequireParticipant(ctx, m.ConversationID, callerID); err != nil {
		return err
	}

	switch scope {
	case DeleteForAll:
		updated, err := s.messageRepo.MarkDeletedForAll(ctx, messageID, callerID, time.Now())
		if err != nil {
			return err
		}
		s.feed.messageUpdated(ctx, updated)
		return nil
	case DeleteForMe:
		updated, err := s.messageRepo.HideForUser(ctx, messageID, callerID)
		if err != nil {
			return err
		}
		s.feed.messageUpdated(ctx, updated)
		return nil
	default:
		return flock_errors.ErrInvalidInput
	}
}

// objectKey builds the storage path for an upload. The extension comes
// from the filename when present, otherwise from the content type.
func objectKey(prefix string, userID uuid.UUID, filename, contentType string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	return fmt.Sprintf("%s/%s/%d-%s%s", prefix, userID, time.Now().UnixMilli(), uuid.New(), ext)
}
