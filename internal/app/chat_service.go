package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gopherchat/internal/ai"
	"gopherchat/internal/logger"
	"gopherchat/internal/model"
)

const (
	DefaultChatTitle  = "New Chat"
	defaultTitleRunes = 30
	titleEllipsis     = "..."
)

type ChatService struct {
	chats        ChatStore
	messages     MessageStore
	assembler    *ContextAssembler
	generator    ai.Generator
	historyCache HistoryCache
	publisher    AsyncMessagePublisher
	metrics      ChatMetrics
	defaultTitle string
	titleRunes   int
	log          *zap.SugaredLogger
	now          func() time.Time
}

// ChatOptions carries the optional collaborators; nil cache or publisher disables them.
type ChatOptions struct {
	DefaultTitle string
	TitleRunes   int
	HistoryCache HistoryCache
	Publisher    AsyncMessagePublisher
	Metrics      ChatMetrics
	Logger       *zap.SugaredLogger
}

type SendMessageInput struct {
	UserID  string
	ChatID  string
	Content string
}

type SendMessageResult struct {
	ChatID           string         `json:"chatId"`
	UserMessage      *model.Message `json:"userMessage"`
	AssistantMessage *model.Message `json:"assistantMessage"`
}

func NewChatService(
	chats ChatStore,
	messages MessageStore,
	assembler *ContextAssembler,
	generator ai.Generator,
	opts ChatOptions,
) *ChatService {
	if opts.DefaultTitle == "" {
		opts.DefaultTitle = DefaultChatTitle
	}
	if opts.TitleRunes <= 0 {
		opts.TitleRunes = defaultTitleRunes
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &ChatService{
		chats:        chats,
		messages:     messages,
		assembler:    assembler,
		generator:    generator,
		historyCache: opts.HistoryCache,
		publisher:    opts.Publisher,
		metrics:      opts.Metrics,
		defaultTitle: opts.DefaultTitle,
		titleRunes:   opts.TitleRunes,
		log:          opts.Logger.With("component", "chat"),
		now:          time.Now,
	}
}

func (s *ChatService) CreateChat(ctx context.Context, userID, title string) (*model.Chat, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = s.defaultTitle
	}

	now := s.now()
	chat := &model.Chat{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.chats.Create(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

// ListChats returns the user's non-deleted chats, most recently updated first,
// with the last message expanded.
func (s *ChatService) ListChats(ctx context.Context, userID string) ([]model.ChatSummary, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	chats, err := s.chats.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(chats))
	for _, c := range chats {
		if c.LastMessageID != nil {
			ids = append(ids, *c.LastMessageID)
		}
	}
	lastMessages, err := s.messages.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Message, len(lastMessages))
	for _, m := range lastMessages {
		byID[m.ID] = m
	}

	out := make([]model.ChatSummary, 0, len(chats))
	for _, c := range chats {
		summary := model.ChatSummary{Chat: c}
		if c.LastMessageID != nil {
			if m, ok := byID[*c.LastMessageID]; ok {
				summary.LastMessage = &m
			}
		}
		out = append(out, summary)
	}
	return out, nil
}

// GetChatWithMessages returns a chat, deleted or not, with its messages in
// ascending order. A non-empty ownerID hides chats owned by someone else.
func (s *ChatService) GetChatWithMessages(ctx context.Context, chatID, ownerID string) (*model.ChatWithMessages, error) {
	chat, err := s.loadChat(ctx, chatID, ownerID)
	if err != nil {
		return nil, err
	}
	messages, err := s.transcript(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []model.Message{}
	}
	return &model.ChatWithMessages{Chat: *chat, Messages: messages}, nil
}

// SoftDeleteChat hides a chat from listings. Its messages are kept.
func (s *ChatService) SoftDeleteChat(ctx context.Context, chatID, ownerID string) (*model.Chat, error) {
	chat, err := s.loadChat(ctx, chatID, ownerID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.chats.SoftDelete(ctx, chatID, now); err != nil {
		return nil, err
	}
	chat.Deleted = true
	chat.UpdatedAt = now
	s.log.Infow("chat deleted", "chat_id", chatID)
	return chat, nil
}

// AppendMessage stores a message in an existing chat. Role alternation is not enforced.
func (s *ChatService) AppendMessage(ctx context.Context, chatID, role, content string) (*model.Message, error) {
	if role != model.RoleUser && role != model.RoleAssistant {
		return nil, ErrInvalidInput
	}
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}
	return s.appendAt(ctx, chatID, role, content, s.now())
}

// SendMessage runs one conversational turn. The history window handed to the
// generator excludes the user message just stored, so it holds only earlier
// turns and the new content reaches the model once, as the prompt. When
// generation fails the user message stays stored and no assistant message is
// created.
func (s *ChatService) SendMessage(ctx context.Context, input SendMessageInput) (*SendMessageResult, error) {
	content := strings.TrimSpace(input.Content)
	if input.UserID == "" || content == "" {
		return nil, ErrInvalidInput
	}

	chat, err := s.resolveChat(ctx, input.UserID, input.ChatID)
	if err != nil {
		return nil, err
	}

	userMessage, err := s.appendAt(ctx, chat.ID, model.RoleUser, content, s.now())
	if err != nil {
		return nil, err
	}

	recent, err := s.assembler.RecentHistory(ctx, chat.ID, 0)
	if err != nil {
		return nil, err
	}
	history := make([]ai.Turn, 0, len(recent))
	for _, m := range recent {
		if m.ID == userMessage.ID {
			continue
		}
		history = append(history, ai.Turn{Role: m.Role, Content: m.Content})
	}

	provider := s.generator.Provider()
	reply, err := s.generator.Generate(ctx, content, history)
	if err != nil {
		outcome := "error"
		if errors.Is(err, ai.ErrEmptyResponse) {
			outcome = "empty"
		}
		s.metrics.ObserveGeneration(provider, outcome)
		s.log.Errorw("generation failed", "chat_id", chat.ID, "provider", provider, "error", err)
		return nil, ErrGenerationFailed
	}
	s.metrics.ObserveGeneration(provider, "ok")

	assistantMessage, err := s.appendAt(ctx, chat.ID, model.RoleAssistant, reply, after(s.now(), userMessage.CreatedAt))
	if err != nil {
		return nil, err
	}

	count, err := s.messages.CountByChatID(ctx, chat.ID)
	if err != nil {
		return nil, err
	}
	if count == 2 {
		if err := s.chats.UpdateTitle(ctx, chat.ID, TitleFromContent(content, s.titleRunes)); err != nil {
			return nil, err
		}
		s.metrics.IncTitleRewrite()
	}

	if err := s.chats.Touch(ctx, chat.ID, s.now()); err != nil {
		return nil, err
	}

	return &SendMessageResult{
		ChatID:           chat.ID,
		UserMessage:      userMessage,
		AssistantMessage: assistantMessage,
	}, nil
}

// RecordLastMessage points a chat at a newly created message unless it already
// references a newer one.
func (s *ChatService) RecordLastMessage(ctx context.Context, event model.MessageCreated) error {
	chat, err := s.chats.GetByID(ctx, event.ChatID)
	if err != nil {
		return err
	}
	if chat == nil {
		return nil
	}
	if chat.LastMessageID != nil && *chat.LastMessageID != event.MessageID {
		current, err := s.messages.GetByIDs(ctx, []string{*chat.LastMessageID})
		if err != nil {
			return err
		}
		if len(current) == 1 && current[0].CreatedAt.After(event.CreatedAt) {
			return nil
		}
	}
	return s.chats.SetLastMessage(ctx, event.ChatID, event.MessageID)
}

// TitleFromContent keeps the first n runes of content and appends an ellipsis when truncated.
func TitleFromContent(content string, n int) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n]) + titleEllipsis
}

func (s *ChatService) resolveChat(ctx context.Context, userID, chatID string) (*model.Chat, error) {
	if chatID == "" {
		return s.CreateChat(ctx, userID, "")
	}
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil || chat.Deleted || chat.UserID != userID {
		return nil, ErrChatNotFound
	}
	return chat, nil
}

func (s *ChatService) loadChat(ctx context.Context, chatID, ownerID string) (*model.Chat, error) {
	if chatID == "" {
		return nil, ErrChatNotFound
	}
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil || (ownerID != "" && chat.UserID != ownerID) {
		return nil, ErrChatNotFound
	}
	return chat, nil
}

func (s *ChatService) appendAt(ctx context.Context, chatID, role, content string, at time.Time) (*model.Message, error) {
	message := &model.Message{
		ID:        newMessageID(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		CreatedAt: at,
		UpdatedAt: at,
	}
	if err := s.messages.Create(ctx, message); err != nil {
		return nil, err
	}

	if s.historyCache != nil {
		if err := s.historyCache.MarkDirty(ctx, chatID); err != nil {
			s.log.Warnw("mark transcript dirty failed", "chat_id", chatID, "error", err)
		}
		if err := s.historyCache.DeleteHistory(ctx, chatID); err != nil {
			s.log.Warnw("drop cached transcript failed", "chat_id", chatID, "error", err)
		}
	}

	event := model.MessageCreated{
		MessageID: message.ID,
		ChatID:    chatID,
		Role:      role,
		CreatedAt: message.CreatedAt,
	}
	if s.publisher != nil {
		err := s.publisher.Publish(ctx, event)
		if err == nil {
			return message, nil
		}
		s.log.Warnw("publish message event failed, updating inline", "chat_id", chatID, "error", err)
	}
	if err := s.RecordLastMessage(ctx, event); err != nil {
		s.log.Warnw("record last message failed", "chat_id", chatID, "error", err)
	}
	return message, nil
}

func (s *ChatService) transcript(ctx context.Context, chatID string) ([]model.Message, error) {
	cacheable := false
	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, chatID)
		if err == nil && !dirty {
			cacheable = true
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, chatID); cacheErr == nil && hit {
				return cached, nil
			}
		}
	}

	messages, err := s.messages.ListByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if cacheable {
		s.fillTranscriptCache(ctx, chatID, messages)
	}
	return messages, nil
}

// fillTranscriptCache stores messages only while no append has marked the chat
// dirty since the read. The marker is checked again after the write so an
// append racing the write cannot leave the old list behind.
func (s *ChatService) fillTranscriptCache(ctx context.Context, chatID string, messages []model.Message) {
	if dirty, err := s.historyCache.IsDirty(ctx, chatID); err != nil || dirty {
		return
	}
	if err := s.historyCache.SetHistory(ctx, chatID, messages); err != nil {
		s.log.Warnw("fill transcript cache failed", "chat_id", chatID, "error", err)
		return
	}
	if dirty, err := s.historyCache.IsDirty(ctx, chatID); err != nil || dirty {
		if err := s.historyCache.DeleteHistory(ctx, chatID); err != nil {
			s.log.Warnw("drop cached transcript failed", "chat_id", chatID, "error", err)
		}
	}
}

// after returns t, or the instant just past prev when t does not come later.
func after(t, prev time.Time) time.Time {
	if t.After(prev) {
		return t
	}
	return prev.Add(time.Microsecond)
}

func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
