package app

import (
	"context"

	"go.uber.org/zap"

	"gopherchat/internal/logger"
	"gopherchat/internal/model"
)

const DefaultHistoryLimit = 10

// ContextAssembler builds the bounded window of recent messages sent with each prompt.
type ContextAssembler struct {
	messages MessageStore
	cache    HistoryCache
	limit    int
	log      *zap.SugaredLogger
}

func NewContextAssembler(messages MessageStore, cache HistoryCache, limit int, log *zap.SugaredLogger) *ContextAssembler {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ContextAssembler{
		messages: messages,
		cache:    cache,
		limit:    limit,
		log:      log.With("component", "context"),
	}
}

// RecentHistory returns the newest limit messages of a chat in chronological
// order. limit <= 0 uses the configured default.
func (a *ContextAssembler) RecentHistory(ctx context.Context, chatID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = a.limit
	}

	if cached, ok := a.cachedTranscript(ctx, chatID); ok {
		if len(cached) > limit {
			cached = cached[len(cached)-limit:]
		}
		return cached, nil
	}

	recent, err := a.messages.ListRecentByChatID(ctx, chatID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent, nil
}

func (a *ContextAssembler) cachedTranscript(ctx context.Context, chatID string) ([]model.Message, bool) {
	if a.cache == nil {
		return nil, false
	}
	dirty, err := a.cache.IsDirty(ctx, chatID)
	if err != nil || dirty {
		return nil, false
	}
	cached, hit, err := a.cache.GetHistory(ctx, chatID)
	if err != nil {
		a.log.Warnw("read transcript cache failed", "chat_id", chatID, "error", err)
		return nil, false
	}
	return cached, hit
}
