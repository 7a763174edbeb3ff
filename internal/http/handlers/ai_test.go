package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorchat/parlor-backend/internal/clients/openai"
	"github.com/parlorchat/parlor-backend/internal/data/repos"
	"github.com/parlorchat/parlor-backend/internal/pkg/ctxutil"
	"github.com/parlorchat/parlor-backend/internal/services"
	"github.com/parlorchat/parlor-backend/internal/tools"
)

type scriptedLLM struct {
	deltas []string
}

func (s *scriptedLLM) StreamChat(ctx context.Context, in openai.StreamInput, h openai.StreamHandlers) (*openai.StreamResult, error) {
	var text strings.Builder
	for _, d := range s.deltas {
		if err := h.OnTextDelta(d); err != nil {
			return nil, err
		}
		text.WriteString(d)
	}
	return &openai.StreamResult{Text: text.String(), FinishReason: "stop"}, nil
}

func (f *fixture) streamRouter(llm openai.Client) *gin.Engine {
	chats := repos.NewChatRepo(f.db, f.log)
	registry := tools.NewRegistry(f.log)
	stream := services.NewStreamService(f.db, f.log, llm, registry, f.conversations, chats)
	h := NewAIHandler(f.log, stream)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{UserID: f.user.ID})
		c.Request = c.Request.WithContext(ctx)
	})
	router.POST("/api/ai/text-stream", h.TextStream)
	return router
}

func parseSSE(t *testing.T, body string) []services.StreamEvent {
	t.Helper()
	var events []services.StreamEvent
	for _, line := range strings.Split(body, "\n") {
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var ev services.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(payload), &ev))
		events = append(events, ev)
	}
	return events
}

func TestTextStreamEmitsEventFrames(t *testing.T) {
	f := newFixture(t)
	router := f.streamRouter(&scriptedLLM{deltas: []string{"Hel", "lo"}})

	body, err := json.Marshal(map[string]any{
		"messages": []map[string]any{
			{"id": "msg_1", "role": "user", "parts": []map[string]any{{"type": "text", "text": "greet me"}}},
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/ai/text-stream", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := parseSSE(t, w.Body.String())
	require.Len(t, events, 3)
	assert.Equal(t, services.EventTextDelta, events[0].Type)
	assert.Equal(t, "Hel", events[0].TextDelta)
	assert.Equal(t, services.EventFinish, events[2].Type)
	assert.NotEmpty(t, events[2].ChatID)
}

func TestTextStreamValidationFailuresKeepStatus(t *testing.T) {
	f := newFixture(t)
	router := f.streamRouter(&scriptedLLM{})

	req := httptest.NewRequest(http.MethodPost, "/api/ai/text-stream",
		bytes.NewReader([]byte(`{"messages":[]}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"error"`)
}

func TestTextStreamRejectsConflictingIDs(t *testing.T) {
	f := newFixture(t)
	router := f.streamRouter(&scriptedLLM{deltas: []string{"never"}})

	body, err := json.Marshal(map[string]any{
		"chatId":         "chat_a",
		"conversationId": "chat_b",
		"messages": []map[string]any{
			{"role": "user", "parts": []map[string]any{{"type": "text", "text": "hi"}}},
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/ai/text-stream", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "ambiguous_chat_id")
}

func TestTextStreamPersistsTranscript(t *testing.T) {
	f := newFixture(t)
	router := f.streamRouter(&scriptedLLM{deltas: []string{"pong"}})

	body, err := json.Marshal(map[string]any{
		"conversationId": "chat_ping",
		"messages": []map[string]any{
			{"id": "msg_1", "role": "user", "parts": []map[string]any{{"type": "text", "text": "ping"}}},
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/ai/text-stream", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var count int64
	require.NoError(t, f.db.Table("message").Where("chat_id = ?", "chat_ping").Count(&count).Error)
	assert.EqualValues(t, 2, count)
}
