package model

import "time"

type Chat struct {
	ID            string    `gorm:"primaryKey;size:36" bson:"_id" json:"_id"`
	UserID        string    `gorm:"size:36;not null;index:idx_chats_user_updated,priority:1" bson:"userId" json:"userId"`
	Title         string    `gorm:"size:255;not null" bson:"title" json:"title"`
	Deleted       bool      `gorm:"not null;default:false" bson:"deleted" json:"deleted"`
	LastMessageID *string   `gorm:"size:36" bson:"lastMessage,omitempty" json:"lastMessage,omitempty"`
	CreatedAt     time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"index:idx_chats_user_updated,priority:2" bson:"updatedAt" json:"updatedAt"`
}

type ChatWithMessages struct {
	Chat
	Messages []Message `json:"messages"`
}

// ChatSummary is a chat with its last message expanded in place of the id.
type ChatSummary struct {
	Chat
	LastMessage *Message `json:"lastMessage,omitempty"`
}
