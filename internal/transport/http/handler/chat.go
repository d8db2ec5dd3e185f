package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gopherchat/internal/app"
	"gopherchat/internal/transport/http/middleware"
	"gopherchat/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
	protectByID bool
}

type CreateChatRequest struct {
	Title string `json:"title" binding:"max=128"`
}

type SendMessageRequest struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content" binding:"required"`
}

// NewChatHandler builds the chat endpoints. With protectByID the id-addressed
// routes only serve chats owned by the caller.
func NewChatHandler(chatService *app.ChatService, protectByID bool) *ChatHandler {
	return &ChatHandler{chatService: chatService, protectByID: protectByID}
}

func (h *ChatHandler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req CreateChatRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
			return
		}
	}

	chat, err := h.chatService.CreateChat(c.Request.Context(), userID, req.Title)
	if err != nil {
		writeChatError(c, err, "create chat failed")
		return
	}

	response.Created(c, chat)
}

func (h *ChatHandler) MyChats(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	chats, err := h.chatService.ListChats(c.Request.Context(), userID)
	if err != nil {
		writeChatError(c, err, "list chats failed")
		return
	}
	response.OK(c, chats)
}

func (h *ChatHandler) ListByUser(c *gin.Context) {
	targetID := c.Param("id")
	if h.protectByID {
		callerID, _ := middleware.UserID(c)
		if callerID != targetID && !middleware.IsAdmin(c) {
			response.Error(c, http.StatusForbidden, response.CodeForbidden, app.ErrForbidden.Error())
			return
		}
	}

	chats, err := h.chatService.ListChats(c.Request.Context(), targetID)
	if err != nil {
		writeChatError(c, err, "list chats failed")
		return
	}
	response.OK(c, chats)
}

func (h *ChatHandler) Get(c *gin.Context) {
	chat, err := h.chatService.GetChatWithMessages(c.Request.Context(), c.Param("id"), h.ownerScope(c))
	if err != nil {
		writeChatError(c, err, "get chat failed")
		return
	}
	response.OK(c, chat)
}

func (h *ChatHandler) Delete(c *gin.Context) {
	chat, err := h.chatService.SoftDeleteChat(c.Request.Context(), c.Param("id"), h.ownerScope(c))
	if err != nil {
		writeChatError(c, err, "delete chat failed")
		return
	}
	response.OK(c, chat)
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.chatService.SendMessage(c.Request.Context(), app.SendMessageInput{
		UserID:  userID,
		ChatID:  req.ChatID,
		Content: req.Content,
	})
	if err != nil {
		writeChatError(c, err, "send message failed")
		return
	}

	response.OK(c, result)
}

func (h *ChatHandler) ownerScope(c *gin.Context) string {
	if !h.protectByID {
		return ""
	}
	userID, _ := middleware.UserID(c)
	return userID
}

func writeChatError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrChatNotFound):
		response.Error(c, http.StatusNotFound, response.CodeChatNotFound, err.Error())
	case errors.Is(err, app.ErrForbidden):
		response.Error(c, http.StatusForbidden, response.CodeForbidden, err.Error())
	case errors.Is(err, app.ErrGenerationFailed):
		response.Error(c, http.StatusBadGateway, response.CodeGenerationFailed, app.ErrGenerationFailed.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
