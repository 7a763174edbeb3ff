package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a chat transcript. Order is a dense 0-based
// sequence within the chat; messages are never mutated individually,
// each save replaces the chat's full set.
type Message struct {
	ID     string `gorm:"size:255;primaryKey" json:"id"`
	ChatID string `gorm:"size:255;not null;index;index:idx_message_chat_order,unique,priority:1" json:"chat_id"`
	Role   string `gorm:"size:20;not null;index" json:"role"`
	Order  int    `gorm:"column:order;not null;index:idx_message_chat_order,unique,priority:2" json:"order"`

	Parts datatypes.JSON `gorm:"type:jsonb;not null" json:"parts"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (Message) TableName() string { return "message" }

func NewMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "msg_" + uuid.NewString()
	}
	return "msg_" + id.String()
}

func ValidRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}
