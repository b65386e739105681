package chat

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a direct-message thread between exactly two users, or a
// user and themself. PairKey is the normalized identity of the unordered
// participant pair; its uniqueness constraint is what makes concurrent
// first-contact from both directions converge on a single conversation.
type Conversation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PairKey   string    `gorm:"type:varchar(80);not null;uniqueIndex" json:"-"`
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`

	Participants []Participant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
}

// Participant is per-user state attached to a conversation: the pin flag and
// the read watermark. Rows are created in pairs at conversation creation and
// never deleted.
type Participant struct {
	ConversationID uuid.UUID  `gorm:"type:uuid;primaryKey" json:"conversation_id"`
	UserID         uuid.UUID  `gorm:"type:uuid;primaryKey;index:idx_participants_user" json:"user_id"`
	Pinned         bool       `gorm:"default:false" json:"pinned"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty"`
	CreatedAt      time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

// PairKey normalizes an unordered user pair into a stable key. The same two
// users always produce the same key regardless of who initiates.
func PairKey(a, b uuid.UUID) string {
	lo, hi := a.String(), b.String()
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + ":" + hi
}

// NewConversation builds a conversation for the given pair along with its
// participant rows. Self-chat collapses to a single participant row.
func NewConversation(a, b uuid.UUID) (Conversation, []Participant) {
	conv := Conversation{
		ID:      uuid.New(),
		PairKey: PairKey(a, b),
	}
	participants := []Participant{{ConversationID: conv.ID, UserID: a}}
	if a != b {
		participants = append(participants, Participant{ConversationID: conv.ID, UserID: b})
	}
	return conv, participants
}
