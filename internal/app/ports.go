package app

import (
	"context"
	"time"

	"gopherchat/internal/model"
)

// Lookups return (nil, nil) when the record does not exist.

type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	// GetActiveByEmail ignores soft-deleted users.
	GetActiveByEmail(ctx context.Context, email string) (*model.User, error)
	// EmailTaken includes soft-deleted users; exceptID excludes one user from the check.
	EmailTaken(ctx context.Context, email, exceptID string) (bool, error)
	ListActive(ctx context.Context) ([]model.User, error)
	Update(ctx context.Context, id string, update model.UserUpdate, at time.Time) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	SetRefreshToken(ctx context.Context, id string, token *string) error
}

type ChatStore interface {
	Create(ctx context.Context, chat *model.Chat) error
	GetByID(ctx context.Context, id string) (*model.Chat, error)
	// ListByUserID returns non-deleted chats, most recently updated first.
	ListByUserID(ctx context.Context, userID string) ([]model.Chat, error)
	SoftDelete(ctx context.Context, id string, at time.Time) error
	UpdateTitle(ctx context.Context, id, title string) error
	Touch(ctx context.Context, id string, at time.Time) error
	SetLastMessage(ctx context.Context, chatID, messageID string) error
}

type MessageStore interface {
	Create(ctx context.Context, message *model.Message) error
	// ListByChatID returns messages in ascending creation order.
	ListByChatID(ctx context.Context, chatID string) ([]model.Message, error)
	// ListRecentByChatID returns up to limit messages, newest first.
	ListRecentByChatID(ctx context.Context, chatID string, limit int) ([]model.Message, error)
	CountByChatID(ctx context.Context, chatID string) (int64, error)
	GetByIDs(ctx context.Context, ids []string) ([]model.Message, error)
}

type HistoryCache interface {
	GetHistory(ctx context.Context, chatID string) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, chatID string, messages []model.Message) error
	DeleteHistory(ctx context.Context, chatID string) error
	MarkDirty(ctx context.Context, chatID string) error
	IsDirty(ctx context.Context, chatID string) (bool, error)
}

type AsyncMessagePublisher interface {
	Publish(ctx context.Context, event model.MessageCreated) error
}

type ChatMetrics interface {
	ObserveGeneration(provider, outcome string)
	IncTitleRewrite()
}

type noopMetrics struct{}

func (noopMetrics) ObserveGeneration(string, string) {}
func (noopMetrics) IncTitleRewrite()                 {}
