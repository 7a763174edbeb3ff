package domain

import (
	"time"

	"github.com/google/uuid"
)

const DefaultChatTitle = "New Chat"

// Chat is an owned, titled conversation. The id is an opaque string so
// clients may supply their own; NewChatID synthesizes one server-side.
type Chat struct {
	ID     string    `gorm:"size:255;primaryKey" json:"id"`
	Title  string    `gorm:"size:200;not null;index" json:"title"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_chat_user_updated,priority:1" json:"user_id"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index;index:idx_chat_user_updated,priority:2" json:"updated_at"`

	Messages []Message `gorm:"foreignKey:ChatID;references:ID" json:"messages,omitempty"`
}

func (Chat) TableName() string { return "chat" }

// NewChatID returns a collision-resistant, time-ordered chat id.
func NewChatID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
