package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"gopherchat/internal/model"
	platformmysql "gopherchat/internal/platform/mysql"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "chat.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, platformmysql.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func ids(messages []model.Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ID)
	}
	return out
}

func TestUserRepositoryMissingIsNil(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))

	user, err := repo.GetByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, user)

	user, err = repo.GetActiveByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Nil(t, user)

	users, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)
}

func TestUserRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, &model.User{ID: "u1", Name: "Ada", Email: "ada@example.com", PasswordHash: "h1", CreatedAt: at, UpdatedAt: at}))
	require.NoError(t, repo.Create(ctx, &model.User{ID: "u2", Name: "Bob", Email: "bob@example.com", PasswordHash: "h2", CreatedAt: at.Add(time.Second), UpdatedAt: at}))
	assert.Error(t, repo.Create(ctx, &model.User{ID: "u3", Name: "Dup", Email: "ada@example.com", PasswordHash: "h3"}))

	taken, err := repo.EmailTaken(ctx, "ada@example.com", "")
	require.NoError(t, err)
	assert.True(t, taken)
	taken, err = repo.EmailTaken(ctx, "ada@example.com", "u1")
	require.NoError(t, err)
	assert.False(t, taken)

	name, admin, hash := "Ada L.", true, "h1b"
	require.NoError(t, repo.Update(ctx, "u1", model.UserUpdate{Name: &name, Admin: &admin, PasswordHash: &hash}, at.Add(time.Minute)))
	user, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "Ada L.", user.Name)
	assert.Equal(t, "h1b", user.PasswordHash)
	assert.True(t, user.Admin)

	token := "refresh-1"
	require.NoError(t, repo.SetRefreshToken(ctx, "u1", &token))
	user, err = repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, user.RefreshToken)
	assert.Equal(t, token, *user.RefreshToken)

	require.NoError(t, repo.SetRefreshToken(ctx, "u1", nil))
	user, err = repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, user.RefreshToken)

	require.NoError(t, repo.SoftDelete(ctx, "u1", at.Add(time.Hour)))
	user, err = repo.GetActiveByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Nil(t, user)
	user, err = repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.True(t, user.Deleted)

	users, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "u2", users[0].ID)
}

func TestMessageRepositoryOrdersByCreatedAtThenID(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(newTestDB(t))
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for _, m := range []model.Message{
		{ID: "c", ChatID: "chat-1", Role: model.RoleUser, Content: "three", CreatedAt: at.Add(time.Second)},
		{ID: "b", ChatID: "chat-1", Role: model.RoleAssistant, Content: "two", CreatedAt: at},
		{ID: "a", ChatID: "chat-1", Role: model.RoleUser, Content: "one", CreatedAt: at},
		{ID: "z", ChatID: "chat-2", Role: model.RoleUser, Content: "other", CreatedAt: at},
	} {
		m := m
		m.UpdatedAt = m.CreatedAt
		require.NoError(t, repo.Create(ctx, &m))
	}

	all, err := repo.ListByChatID(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(all))

	recent, err := repo.ListRecentByChatID(ctx, "chat-1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, ids(recent))

	recent, err = repo.ListRecentByChatID(ctx, "chat-1", 0)
	require.NoError(t, err)
	assert.Empty(t, recent)

	count, err := repo.CountByChatID(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	byIDs, err := repo.GetByIDs(ctx, []string{"a", "z", "missing"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "z"}, ids(byIDs))

	empty, err := repo.ListByChatID(ctx, "chat-none")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestChatRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(newTestDB(t))
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	chat, err := repo.GetByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, chat)

	for i, id := range []string{"c1", "c2", "c3"} {
		created := at.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Create(ctx, &model.Chat{ID: id, UserID: "u1", Title: "New Chat", CreatedAt: created, UpdatedAt: created}))
	}
	require.NoError(t, repo.Create(ctx, &model.Chat{ID: "other", UserID: "u2", Title: "x", CreatedAt: at, UpdatedAt: at}))

	require.NoError(t, repo.Touch(ctx, "c1", at.Add(time.Minute)))
	require.NoError(t, repo.SoftDelete(ctx, "c2", at.Add(2*time.Minute)))
	require.NoError(t, repo.UpdateTitle(ctx, "c3", "Trip plans"))
	require.NoError(t, repo.SetLastMessage(ctx, "c3", "m9"))

	chats, err := repo.ListByUserID(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "c1", chats[0].ID)
	assert.Equal(t, "c3", chats[1].ID)
	assert.Equal(t, "Trip plans", chats[1].Title)
	require.NotNil(t, chats[1].LastMessageID)
	assert.Equal(t, "m9", *chats[1].LastMessageID)

	deleted, err := repo.GetByID(ctx, "c2")
	require.NoError(t, err)
	require.NotNil(t, deleted)
	assert.True(t, deleted.Deleted)

	none, err := repo.ListByUserID(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
