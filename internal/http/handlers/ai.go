package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parlorchat/parlor-backend/internal/domain"
	"github.com/parlorchat/parlor-backend/internal/http/response"
	"github.com/parlorchat/parlor-backend/internal/pkg/ctxutil"
	"github.com/parlorchat/parlor-backend/internal/pkg/logger"
	"github.com/parlorchat/parlor-backend/internal/platform/apierr"
	"github.com/parlorchat/parlor-backend/internal/services"
)

type AIHandler struct {
	log    *logger.Logger
	stream services.StreamService
}

func NewAIHandler(log *logger.Logger, stream services.StreamService) *AIHandler {
	return &AIHandler{log: log.With("handler", "AIHandler"), stream: stream}
}

type textStreamRequest struct {
	ChatID         string             `json:"chatId"`
	ID             string             `json:"id"`
	ConversationID string             `json:"conversationId"`
	Model          string             `json:"model"`
	WebSearch      bool               `json:"webSearch"`
	Tools          []string           `json:"tools"`
	Messages       []domain.UIMessage `json:"messages"`
}

func (r textStreamRequest) chatID() (string, error) {
	return coalesceChatID(r.ChatID, r.ID, r.ConversationID)
}

// sseEmitter writes stream events as data-framed lines and flushes
// after each one so deltas reach the client immediately. Headers are
// committed on the first event, which keeps pre-stream failures free to
// respond with a plain HTTP status.
type sseEmitter struct {
	w       gin.ResponseWriter
	flusher http.Flusher
	sent    int
}

func (e *sseEmitter) Emit(ev services.StreamEvent) error {
	if e.sent == 0 {
		h := e.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	e.sent++
	e.flusher.Flush()
	return nil
}

// TextStream runs a model turn over the posted transcript. Failures
// before the first event keep their HTTP status; later ones are
// reported in band.
func (h *AIHandler) TextStream(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondError(c, apierr.Unauthorized("missing_token", fmt.Errorf("no identity in context")))
		return
	}
	var req textStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, apierr.BadRequest("invalid_body", err))
		return
	}

	chatID, err := req.chatID()
	if err != nil {
		response.RespondError(c, apierr.BadRequest("ambiguous_chat_id", err))
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.RespondError(c, apierr.New(http.StatusInternalServerError, "streaming_unsupported",
			fmt.Errorf("response writer does not support flushing")))
		return
	}

	emitter := &sseEmitter{w: c.Writer, flusher: flusher}
	err = h.stream.Stream(c.Request.Context(), rd.UserID, services.StreamRequest{
		ChatID:    chatID,
		Model:     req.Model,
		WebSearch: req.WebSearch,
		Tools:     req.Tools,
		Messages:  req.Messages,
	}, emitter)
	if err != nil {
		if emitter.sent == 0 {
			response.RespondError(c, err)
			return
		}
		h.log.Error("stream ended with error", "err", err)
	}
}
