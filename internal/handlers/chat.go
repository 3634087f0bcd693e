package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/blockvault/blockvault/internal/models"
	"github.com/blockvault/blockvault/internal/realtime"
	"github.com/blockvault/blockvault/internal/services"
	appErrors "github.com/blockvault/blockvault/pkg/errors"
	"github.com/blockvault/blockvault/pkg/response"
)

// ChatHandler exposes user/provider conversations and their live stream.
type ChatHandler struct {
	chats *services.ChatService
	hub   *realtime.Hub
}

// NewChatHandler constructs a ChatHandler.
func NewChatHandler(chats *services.ChatService, hub *realtime.Hub) (*ChatHandler, error) {
	if chats == nil {
		return nil, errors.New("chat handler: chat service is required")
	}
	if hub == nil {
		return nil, errors.New("chat handler: hub is required")
	}
	return &ChatHandler{chats: chats, hub: hub}, nil
}

type openChatRequest struct {
	ProviderEmail string `json:"provider_email" validate:"required,email"`
}

type sendMessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

// Open returns the conversation between the caller and a provider, creating it
// on first use.
func (h *ChatHandler) Open(c *gin.Context) {
	var req openChatRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	email := callerEmail(c)
	if email == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	chat, err := h.chats.OpenChat(c.Request.Context(), email, req.ProviderEmail)
	if err != nil {
		response.Error(c, mapChatError(err))
		return
	}

	response.Success(c, http.StatusOK, chat)
}

// List returns the caller's conversations, most recently active first.
func (h *ChatHandler) List(c *gin.Context) {
	email := callerEmail(c)
	if email == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	summaries, err := h.chats.ListChatsByParticipant(c.Request.Context(), email)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, summaries)
}

// Send posts a message into a conversation the caller belongs to.
func (h *ChatHandler) Send(c *gin.Context) {
	var req sendMessageRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	chat, role, err := h.membership(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	message, err := h.chats.SendMessage(c.Request.Context(), services.SendMessageParams{
		ChatID:      chat.ID,
		SenderEmail: callerEmail(c),
		SenderRole:  role,
		Content:     req.Content,
	})
	if err != nil {
		response.Error(c, mapChatError(err))
		return
	}

	response.Success(c, http.StatusCreated, message)
}

// Messages returns persisted messages in chronological order. Supports a limit
// query parameter and an RFC 3339 before cursor for paging backwards.
func (h *ChatHandler) Messages(c *gin.Context) {
	chat, _, err := h.membership(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	limit := parseIntQuery(c, "limit", 50)

	var before time.Time
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.NewBadRequest("before must be an RFC 3339 timestamp"))
			return
		}
		before = parsed
	}

	messages, err := h.chats.ListMessages(c.Request.Context(), chat.ID, limit, before)
	if err != nil {
		response.Error(c, mapChatError(err))
		return
	}

	response.Success(c, http.StatusOK, messages)
}

// Stream upgrades the request to a websocket and delivers new messages for the
// conversation until the client disconnects.
func (h *ChatHandler) Stream(c *gin.Context) {
	chat, _, err := h.membership(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.hub.Serve(chat.ID, c.Writer, c.Request)
}

// membership loads the chat from the id path parameter and verifies the caller
// is one of its participants, returning the side they are on.
func (h *ChatHandler) membership(c *gin.Context) (*models.Chat, string, error) {
	email := callerEmail(c)
	if email == "" {
		return nil, "", appErrors.ErrUnauthorized
	}

	chat, err := h.chats.GetChat(c.Request.Context(), c.Param("id"))
	if err != nil {
		return nil, "", mapChatError(err)
	}

	switch email {
	case chat.UserEmail:
		return chat, models.ChatRoleUser, nil
	case chat.ProviderEmail:
		return chat, models.ChatRoleProvider, nil
	default:
		return nil, "", appErrors.ErrForbidden
	}
}

// callerEmail returns the authenticated account email from the JWT claims.
func callerEmail(c *gin.Context) string {
	claims := currentClaims(c)
	if claims == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(claims.Email))
}

func mapChatError(err error) error {
	switch {
	case errors.Is(err, services.ErrChatNotFound):
		return appErrors.ErrNotFound
	case errors.Is(err, services.ErrNotChatMember):
		return appErrors.ErrForbidden
	case errors.Is(err, services.ErrUserNotFound), errors.Is(err, services.ErrProviderNotFound):
		return appErrors.ErrNotFound
	default:
		return err
	}
}
