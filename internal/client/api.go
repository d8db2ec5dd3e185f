package client

import (
	"context"
	"net/http"
	"net/url"

	"gopherchat/internal/model"
)

type RegisterRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type UserPatch struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	Admin    *bool   `json:"admin,omitempty"`
}

type SendMessageResult struct {
	ChatID           string        `json:"chatId"`
	UserMessage      model.Message `json:"userMessage"`
	AssistantMessage model.Message `json:"assistantMessage"`
}

type mutationResult struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// Register creates an account and returns its id. It does not log in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (string, error) {
	var out mutationResult
	if err := c.call(ctx, http.MethodPost, "/user", req, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// Login stores the returned token pair for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (*model.User, error) {
	var out struct {
		User         model.User `json:"user"`
		AccessToken  string     `json:"access_token"`
		RefreshToken string     `json:"refresh_token"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.call(ctx, http.MethodPost, loginPath, body, &out); err != nil {
		return nil, err
	}
	if err := c.tokens.Save(Tokens{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Logout revokes the server-side refresh token. Local tokens are cleared even
// when the request fails.
func (c *Client) Logout(ctx context.Context) error {
	tokens, err := c.tokens.Load()
	if err != nil {
		return err
	}
	if tokens.AccessToken == "" {
		return ErrNotLoggedIn
	}
	callErr := c.call(ctx, http.MethodPost, "/auth/logout", nil, nil)
	if err := c.tokens.Clear(); err != nil {
		return err
	}
	return callErr
}

func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := c.call(ctx, http.MethodGet, "/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := c.call(ctx, http.MethodGet, "/user", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) UpdateUser(ctx context.Context, id string, patch UserPatch) error {
	return c.call(ctx, http.MethodPatch, "/user/"+url.PathEscape(id), patch, nil)
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/user/"+url.PathEscape(id), nil, nil)
}

func (c *Client) CreateChat(ctx context.Context, title string) (*model.Chat, error) {
	var chat model.Chat
	if err := c.call(ctx, http.MethodPost, "/chat", map[string]string{"title": title}, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (c *Client) MyChats(ctx context.Context) ([]model.ChatSummary, error) {
	var chats []model.ChatSummary
	if err := c.call(ctx, http.MethodGet, "/chat/my-chats", nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

func (c *Client) GetChat(ctx context.Context, id string) (*model.ChatWithMessages, error) {
	var chat model.ChatWithMessages
	if err := c.call(ctx, http.MethodGet, "/chat/"+url.PathEscape(id), nil, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (c *Client) DeleteChat(ctx context.Context, id string) (*model.Chat, error) {
	var chat model.Chat
	if err := c.call(ctx, http.MethodDelete, "/chat/"+url.PathEscape(id), nil, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// SendMessage posts content to chatID, or to a new chat when chatID is empty.
func (c *Client) SendMessage(ctx context.Context, chatID, content string) (*SendMessageResult, error) {
	body := map[string]string{"content": content}
	if chatID != "" {
		body["chatId"] = chatID
	}
	var out SendMessageResult
	if err := c.call(ctx, http.MethodPost, "/chat/send-message", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
