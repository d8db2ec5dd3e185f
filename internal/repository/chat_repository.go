package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"gopherchat/internal/model"
)

type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) Create(ctx context.Context, chat *model.Chat) error {
	if err := r.db.WithContext(ctx).Create(chat).Error; err != nil {
		return fmt.Errorf("create chat failed: %w", err)
	}
	return nil
}

func (r *ChatRepository) GetByID(ctx context.Context, id string) (*model.Chat, error) {
	var chat model.Chat
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&chat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat failed: %w", err)
	}
	return &chat, nil
}

func (r *ChatRepository) ListByUserID(ctx context.Context, userID string) ([]model.Chat, error) {
	chats := []model.Chat{}
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND deleted = ?", userID, false).
		Order("updated_at DESC").
		Find(&chats).Error
	if err != nil {
		return nil, fmt.Errorf("list chats failed: %w", err)
	}
	return chats, nil
}

func (r *ChatRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&model.Chat{}).Where("id = ?", id).
		Updates(map[string]interface{}{"deleted": true, "updated_at": at}).Error
	if err != nil {
		return fmt.Errorf("soft delete chat failed: %w", err)
	}
	return nil
}

func (r *ChatRepository) UpdateTitle(ctx context.Context, id, title string) error {
	if err := r.db.WithContext(ctx).Model(&model.Chat{}).Where("id = ?", id).UpdateColumn("title", title).Error; err != nil {
		return fmt.Errorf("update chat title failed: %w", err)
	}
	return nil
}

func (r *ChatRepository) Touch(ctx context.Context, id string, at time.Time) error {
	if err := r.db.WithContext(ctx).Model(&model.Chat{}).Where("id = ?", id).UpdateColumn("updated_at", at).Error; err != nil {
		return fmt.Errorf("touch chat failed: %w", err)
	}
	return nil
}

func (r *ChatRepository) SetLastMessage(ctx context.Context, chatID, messageID string) error {
	err := r.db.WithContext(ctx).Model(&model.Chat{}).Where("id = ?", chatID).
		UpdateColumn("last_message_id", messageID).Error
	if err != nil {
		return fmt.Errorf("set chat last message failed: %w", err)
	}
	return nil
}
