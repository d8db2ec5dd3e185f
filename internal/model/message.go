package model

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	ID        string    `gorm:"primaryKey;size:36" bson:"_id" json:"_id"`
	ChatID    string    `gorm:"size:36;not null;index:idx_messages_chat_created,priority:1" bson:"chatId" json:"chatId"`
	Role      string    `gorm:"size:16;not null" bson:"role" json:"role"`
	Content   string    `gorm:"type:text;not null" bson:"content" json:"content"`
	CreatedAt time.Time `gorm:"type:datetime(6);index:idx_messages_chat_created,priority:2" bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `gorm:"type:datetime(6)" bson:"updatedAt" json:"updatedAt"`
}

// MessageCreated is the event published after a message is stored.
type MessageCreated struct {
	MessageID string    `json:"messageId"`
	ChatID    string    `json:"chatId"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}
