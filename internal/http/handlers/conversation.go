package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/parlorchat/parlor-backend/internal/domain"
	"github.com/parlorchat/parlor-backend/internal/http/response"
	"github.com/parlorchat/parlor-backend/internal/pkg/ctxutil"
	"github.com/parlorchat/parlor-backend/internal/pkg/dbctx"
	"github.com/parlorchat/parlor-backend/internal/pkg/logger"
	"github.com/parlorchat/parlor-backend/internal/platform/apierr"
	"github.com/parlorchat/parlor-backend/internal/services"
)

type ConversationHandler struct {
	log           *logger.Logger
	conversations services.ConversationService
}

func NewConversationHandler(log *logger.Logger, conversations services.ConversationService) *ConversationHandler {
	return &ConversationHandler{
		log:           log.With("handler", "ConversationHandler"),
		conversations: conversations,
	}
}

// upsertRequest accepts the chat id under its canonical name or either
// legacy alias. At most one may be set.
type upsertRequest struct {
	ChatID         string             `json:"chatId"`
	ID             string             `json:"id"`
	ConversationID string             `json:"conversationId"`
	Title          string             `json:"title"`
	Messages       []domain.UIMessage `json:"messages"`
}

func (r upsertRequest) chatID() (string, error) {
	return coalesceChatID(r.ChatID, r.ID, r.ConversationID)
}

// coalesceChatID resolves the canonical id from the aliased fields.
// Duplicates of the same value are tolerated, disagreeing values are an
// error.
func coalesceChatID(vals ...string) (string, error) {
	var set []string
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			set = append(set, strings.TrimSpace(v))
		}
	}
	switch len(set) {
	case 0:
		return "", nil
	case 1:
		return set[0], nil
	}
	if set[0] == set[1] && (len(set) == 2 || set[1] == set[2]) {
		return set[0], nil
	}
	return "", fmt.Errorf("conflicting chat id fields")
}

type createRequest struct {
	Title string `json:"title"`
}

// Create makes an empty chat up front; most chats are instead created
// implicitly by the first stream completion.
func (h *ConversationHandler) Create(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondError(c, apierr.Unauthorized("missing_token", fmt.Errorf("no identity in context")))
		return
	}
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, apierr.BadRequest("invalid_body", err))
		return
	}
	chat, err := h.conversations.Create(dbctx.New(c.Request.Context()), rd.UserID, req.Title)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, http.StatusCreated, gin.H{"chat": chat})
}

func (h *ConversationHandler) Upsert(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondError(c, apierr.Unauthorized("missing_token", fmt.Errorf("no identity in context")))
		return
	}
	var req upsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, apierr.BadRequest("invalid_body", err))
		return
	}
	chatID, err := req.chatID()
	if err != nil {
		response.RespondError(c, apierr.BadRequest("ambiguous_chat_id", err))
		return
	}
	for i, m := range req.Messages {
		if err := m.Validate(); err != nil {
			response.RespondError(c, apierr.BadRequest("invalid_message",
				fmt.Errorf("message %d: %w", i, err)))
			return
		}
	}
	resolved, err := h.conversations.Upsert(dbctx.New(c.Request.Context()), services.UpsertInput{
		ChatID:   chatID,
		UserID:   rd.UserID,
		Messages: req.Messages,
		Title:    req.Title,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, http.StatusOK, gin.H{"chatId": resolved})
}

func (h *ConversationHandler) List(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondError(c, apierr.Unauthorized("missing_token", fmt.Errorf("no identity in context")))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	chats, err := h.conversations.List(dbctx.New(c.Request.Context()), rd.UserID, limit)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, http.StatusOK, gin.H{"chats": chats})
}

func (h *ConversationHandler) Get(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondError(c, apierr.Unauthorized("missing_token", fmt.Errorf("no identity in context")))
		return
	}
	chatID := c.Param("id")
	chat, err := h.conversations.Get(dbctx.New(c.Request.Context()), rd.UserID, chatID)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	if chat == nil {
		response.RespondError(c, apierr.NotFound("chat_not_found",
			fmt.Errorf("chat %s not found", chatID)))
		return
	}
	response.RespondOK(c, http.StatusOK, gin.H{"chat": chat})
}

type updateTitleRequest struct {
	Title string `json:"title" binding:"required"`
}

func (h *ConversationHandler) UpdateTitle(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondError(c, apierr.Unauthorized("missing_token", fmt.Errorf("no identity in context")))
		return
	}
	var req updateTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, apierr.BadRequest("invalid_body", err))
		return
	}
	chat, err := h.conversations.UpdateTitle(dbctx.New(c.Request.Context()), rd.UserID, c.Param("id"), req.Title)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, http.StatusOK, gin.H{"chat": chat})
}
