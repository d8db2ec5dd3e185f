// Package memory is an in-process store used by the memory storage driver and in tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"gopherchat/internal/model"
)

var ErrDuplicate = errors.New("duplicate key")

type Store struct {
	mu       sync.RWMutex
	users    map[string]model.User
	chats    map[string]model.Chat
	messages map[string]storedMessage
	seq      uint64
}

type storedMessage struct {
	message model.Message
	seq     uint64
}

func New() *Store {
	return &Store{
		users:    make(map[string]model.User),
		chats:    make(map[string]model.Chat),
		messages: make(map[string]storedMessage),
	}
}

func (s *Store) Users() *UserRepository       { return &UserRepository{s: s} }
func (s *Store) Chats() *ChatRepository       { return &ChatRepository{s: s} }
func (s *Store) Messages() *MessageRepository { return &MessageRepository{s: s} }

type UserRepository struct {
	s *Store
}

func (r *UserRepository) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.ID]; ok {
		return ErrDuplicate
	}
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return ErrDuplicate
		}
	}
	r.s.users[user.ID] = cloneUser(*user)
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	u = cloneUser(u)
	return &u, nil
}

func (r *UserRepository) GetActiveByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.Email == email && !u.Deleted {
			u = cloneUser(u)
			return &u, nil
		}
	}
	return nil, nil
}

func (r *UserRepository) EmailTaken(_ context.Context, email, exceptID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for id, u := range r.s.users {
		if u.Email == email && id != exceptID {
			return true, nil
		}
	}
	return false, nil
}

func (r *UserRepository) ListActive(_ context.Context) ([]model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	users := make([]model.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		if !u.Deleted {
			users = append(users, cloneUser(u))
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (r *UserRepository) Update(_ context.Context, id string, update model.UserUpdate, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil
	}
	if update.Email != nil {
		for otherID, other := range r.s.users {
			if otherID != id && other.Email == *update.Email {
				return ErrDuplicate
			}
		}
		u.Email = *update.Email
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.PasswordHash != nil {
		u.PasswordHash = *update.PasswordHash
	}
	if update.Admin != nil {
		u.Admin = *update.Admin
	}
	u.UpdatedAt = at
	r.s.users[id] = u
	return nil
}

func (r *UserRepository) SoftDelete(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[id]; ok {
		u.Deleted = true
		u.UpdatedAt = at
		r.s.users[id] = u
	}
	return nil
}

func (r *UserRepository) SetRefreshToken(_ context.Context, id string, token *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[id]; ok {
		u.RefreshToken = cloneString(token)
		r.s.users[id] = u
	}
	return nil
}

type ChatRepository struct {
	s *Store
}

func (r *ChatRepository) Create(_ context.Context, chat *model.Chat) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.chats[chat.ID]; ok {
		return ErrDuplicate
	}
	r.s.chats[chat.ID] = cloneChat(*chat)
	return nil
}

func (r *ChatRepository) GetByID(_ context.Context, id string) (*model.Chat, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.chats[id]
	if !ok {
		return nil, nil
	}
	c = cloneChat(c)
	return &c, nil
}

func (r *ChatRepository) ListByUserID(_ context.Context, userID string) ([]model.Chat, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	chats := []model.Chat{}
	for _, c := range r.s.chats {
		if c.UserID == userID && !c.Deleted {
			chats = append(chats, cloneChat(c))
		}
	}
	sort.SliceStable(chats, func(i, j int) bool { return chats[i].UpdatedAt.After(chats[j].UpdatedAt) })
	return chats, nil
}

func (r *ChatRepository) SoftDelete(_ context.Context, id string, at time.Time) error {
	return r.mutate(id, func(c *model.Chat) {
		c.Deleted = true
		c.UpdatedAt = at
	})
}

func (r *ChatRepository) UpdateTitle(_ context.Context, id, title string) error {
	return r.mutate(id, func(c *model.Chat) { c.Title = title })
}

func (r *ChatRepository) Touch(_ context.Context, id string, at time.Time) error {
	return r.mutate(id, func(c *model.Chat) { c.UpdatedAt = at })
}

func (r *ChatRepository) SetLastMessage(_ context.Context, chatID, messageID string) error {
	return r.mutate(chatID, func(c *model.Chat) { c.LastMessageID = &messageID })
}

func (r *ChatRepository) mutate(id string, fn func(*model.Chat)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c, ok := r.s.chats[id]; ok {
		fn(&c)
		r.s.chats[id] = c
	}
	return nil
}

type MessageRepository struct {
	s *Store
}

func (r *MessageRepository) Create(_ context.Context, message *model.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.messages[message.ID]; ok {
		return ErrDuplicate
	}
	r.s.seq++
	r.s.messages[message.ID] = storedMessage{message: *message, seq: r.s.seq}
	return nil
}

func (r *MessageRepository) ListByChatID(_ context.Context, chatID string) ([]model.Message, error) {
	return r.ordered(chatID, false, 0), nil
}

func (r *MessageRepository) ListRecentByChatID(_ context.Context, chatID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return []model.Message{}, nil
	}
	return r.ordered(chatID, true, limit), nil
}

func (r *MessageRepository) CountByChatID(_ context.Context, chatID string) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var n int64
	for _, m := range r.s.messages {
		if m.message.ChatID == chatID {
			n++
		}
	}
	return n, nil
}

func (r *MessageRepository) GetByIDs(_ context.Context, ids []string) ([]model.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := r.s.messages[id]; ok {
			out = append(out, m.message)
		}
	}
	return out, nil
}

func (r *MessageRepository) ordered(chatID string, desc bool, limit int) []model.Message {
	r.s.mu.RLock()
	stored := make([]storedMessage, 0)
	for _, m := range r.s.messages {
		if m.message.ChatID == chatID {
			stored = append(stored, m)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(stored, func(i, j int) bool {
		a, b := stored[i], stored[j]
		if !a.message.CreatedAt.Equal(b.message.CreatedAt) {
			if desc {
				return a.message.CreatedAt.After(b.message.CreatedAt)
			}
			return a.message.CreatedAt.Before(b.message.CreatedAt)
		}
		if desc {
			return a.seq > b.seq
		}
		return a.seq < b.seq
	})
	if limit > 0 && len(stored) > limit {
		stored = stored[:limit]
	}

	out := make([]model.Message, len(stored))
	for i, m := range stored {
		out[i] = m.message
	}
	return out
}

func cloneUser(u model.User) model.User {
	u.RefreshToken = cloneString(u.RefreshToken)
	return u
}

func cloneChat(c model.Chat) model.Chat {
	c.LastMessageID = cloneString(c.LastMessageID)
	return c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
