package user

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Username     string    `gorm:"type:varchar(32);not null;uniqueIndex" json:"username"`
	DisplayName  *string   `gorm:"type:varchar(64)" json:"display_name,omitempty"`
	AvatarURL    *string   `gorm:"type:text" json:"avatar_url,omitempty"`
	Verified     bool      `gorm:"default:false" json:"verified"`
	Private      bool      `gorm:"default:false" json:"private"`
	PasswordHash string    `gorm:"type:varchar(128);not null" json:"-"`
	CreatedAt    time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

// Follow is a directed edge: follower follows following.
type Follow struct {
	FollowerID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"follower_id"`
	FollowingID uuid.UUID `gorm:"type:uuid;primaryKey" json:"following_id"`
	CreatedAt   time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

// Summary is the public profile shape embedded in chat responses.
type Summary struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url"`
	Verified    bool      `json:"verified"`
}

func (u User) Summary() Summary {
	display := "@" + u.Username
	if u.DisplayName != nil && *u.DisplayName != "" {
		display = *u.DisplayName
	}
	return Summary{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: display,
		AvatarURL:   u.AvatarURL,
		Verified:    u.Verified,
	}
}
