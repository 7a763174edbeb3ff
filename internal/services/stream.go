package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parlorchat/parlor-backend/internal/clients/openai"
	"github.com/parlorchat/parlor-backend/internal/data/repos"
	"github.com/parlorchat/parlor-backend/internal/domain"
	"github.com/parlorchat/parlor-backend/internal/pkg/dbctx"
	"github.com/parlorchat/parlor-backend/internal/pkg/logger"
	"github.com/parlorchat/parlor-backend/internal/platform/apierr"
	"github.com/parlorchat/parlor-backend/internal/platform/envutil"
	"github.com/parlorchat/parlor-backend/internal/tools"
)

const systemPrompt = "You are a helpful assistant that can answer questions and help with tasks."

// WebSearchToolName is the tool enabled by the request's webSearch flag.
const WebSearchToolName = "serper"

// StreamRequest is the decoded body of a streaming completion call.
// The transcript always arrives in full, already containing the newest
// user turn.
type StreamRequest struct {
	ChatID    string
	Model     string
	WebSearch bool
	Tools     []string
	Messages  []domain.UIMessage
}

// StreamEvent is one wire event of the response stream.
type StreamEvent struct {
	Type           string          `json:"type"`
	TextDelta      string          `json:"textDelta,omitempty"`
	ReasoningDelta string          `json:"reasoningDelta,omitempty"`
	ToolName       string          `json:"toolName,omitempty"`
	ToolCallID     string          `json:"toolCallId,omitempty"`
	Input          json.RawMessage `json:"input,omitempty"`
	Output         json.RawMessage `json:"output,omitempty"`
	ErrorText      string          `json:"errorText,omitempty"`
	FinishReason   string          `json:"finishReason,omitempty"`
	ChatID         string          `json:"chatId,omitempty"`
}

const (
	EventTextDelta           = "text-delta"
	EventReasoningDelta      = "reasoning-delta"
	EventToolInputAvailable  = "tool-input-available"
	EventToolOutputAvailable = "tool-output-available"
	EventToolOutputError     = "tool-output-error"
	EventError               = "error"
	EventFinish              = "finish"
)

// StreamEmitter delivers events to the connected client. Emit must be
// safe to call from the streaming goroutine; implementations flush
// after every event.
type StreamEmitter interface {
	Emit(ev StreamEvent) error
}

type StreamService interface {
	// Stream validates the transcript, runs the model turn, forwards
	// events to the emitter and persists the finished conversation.
	// Errors after the first emitted event are reported in band.
	Stream(ctx context.Context, userID uuid.UUID, req StreamRequest, out StreamEmitter) error
}

type streamService struct {
	db            *gorm.DB
	log           *logger.Logger
	llm           openai.Client
	registry      *tools.Registry
	conversations ConversationService
	chats         repos.ChatRepo
	timeout       time.Duration
}

func NewStreamService(
	db *gorm.DB,
	log *logger.Logger,
	llm openai.Client,
	registry *tools.Registry,
	conversations ConversationService,
	chats repos.ChatRepo,
) StreamService {
	timeoutSec := envutil.Int("STREAM_TIMEOUT_SECONDS", 60)
	return &streamService{
		db:            db,
		log:           log.With("service", "StreamService"),
		llm:           llm,
		registry:      registry,
		conversations: conversations,
		chats:         chats,
		timeout:       time.Duration(timeoutSec) * time.Second,
	}
}

func (s *streamService) Stream(ctx context.Context, userID uuid.UUID, req StreamRequest, out StreamEmitter) error {
	if err := s.validate(userID, req); err != nil {
		return err
	}

	// Ownership is checked before the first byte is streamed so the
	// failure can still surface as a plain HTTP status.
	chatID := strings.TrimSpace(req.ChatID)
	synthesized := false
	if chatID == "" {
		chatID = domain.NewChatID()
		synthesized = true
	} else {
		existing, err := s.chats.GetByID(dbctx.New(ctx), chatID)
		if err != nil {
			return fmt.Errorf("load chat: %w", err)
		}
		if existing != nil && existing.UserID != userID {
			return apierr.Forbidden("chat_ownership_violation",
				fmt.Errorf("chat %s belongs to a different user", chatID))
		}
	}

	streamCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	toolNames := req.Tools
	if req.WebSearch {
		toolNames = append(toolNames, WebSearchToolName)
	}
	selected := s.registry.Resolve(toolNames)

	in := openai.StreamInput{
		Model:    req.Model,
		Messages: s.modelMessages(req.Messages),
		Tools:    selected,
	}

	result, err := s.llm.StreamChat(streamCtx, in, openai.StreamHandlers{
		OnTextDelta: func(delta string) error {
			return out.Emit(StreamEvent{Type: EventTextDelta, TextDelta: delta})
		},
		OnReasoningDelta: func(delta string) error {
			return out.Emit(StreamEvent{Type: EventReasoningDelta, ReasoningDelta: delta})
		},
		OnToolInput: func(ev openai.ToolCallEvent) error {
			return out.Emit(StreamEvent{
				Type:       EventToolInputAvailable,
				ToolName:   ev.Name,
				ToolCallID: ev.CallID,
				Input:      ev.Input,
			})
		},
		OnToolResult: func(ev openai.ToolCallEvent) error {
			if ev.ErrorText != "" {
				return out.Emit(StreamEvent{
					Type:       EventToolOutputError,
					ToolName:   ev.Name,
					ToolCallID: ev.CallID,
					Input:      ev.Input,
					ErrorText:  ev.ErrorText,
				})
			}
			return out.Emit(StreamEvent{
				Type:       EventToolOutputAvailable,
				ToolName:   ev.Name,
				ToolCallID: ev.CallID,
				Input:      ev.Input,
				Output:     ev.Output,
			})
		},
	})
	if err != nil {
		s.log.Error("model stream failed", "err", err, "chat_id", chatID)
		_ = out.Emit(StreamEvent{Type: EventError, ErrorText: "stream failed"})
		return err
	}

	s.persist(ctx, userID, chatID, req.Messages, result)

	finish := StreamEvent{Type: EventFinish, FinishReason: result.FinishReason}
	if synthesized {
		finish.ChatID = chatID
	}
	return out.Emit(finish)
}

func (s *streamService) validate(userID uuid.UUID, req StreamRequest) error {
	if userID == uuid.Nil {
		return apierr.Unauthorized("missing_user", fmt.Errorf("missing user id"))
	}
	if len(req.Messages) == 0 {
		return apierr.BadRequest("empty_messages", fmt.Errorf("messages are required"))
	}
	for i, m := range req.Messages {
		if err := m.Validate(); err != nil {
			return apierr.BadRequest("invalid_message",
				fmt.Errorf("message %d: %w", i, err))
		}
	}
	return nil
}

// modelMessages flattens the part-structured transcript into the plain
// text-and-images shape the provider accepts. Tool, reasoning and
// source parts from previous turns are dropped.
func (s *streamService) modelMessages(msgs []domain.UIMessage) []openai.Message {
	out := make([]openai.Message, 0, len(msgs)+1)
	out = append(out, openai.Message{Role: domain.RoleSystem, Text: systemPrompt})
	for _, m := range msgs {
		var texts []string
		var images []string
		for _, p := range m.Parts {
			switch {
			case p.Type == domain.PartTypeText:
				if p.Text != "" {
					texts = append(texts, p.Text)
				}
			case p.Type == domain.PartTypeFile && strings.HasPrefix(p.MediaType, "image/"):
				if p.URL != "" {
					images = append(images, p.URL)
				}
			}
		}
		if len(texts) == 0 && len(images) == 0 {
			continue
		}
		out = append(out, openai.Message{
			Role:      m.Role,
			Text:      strings.Join(texts, "\n\n"),
			ImageURLs: images,
		})
	}
	return out
}

// persist writes the finished transcript back through the conversation
// service. Persistence failures are logged and swallowed: the client
// already has the streamed content.
func (s *streamService) persist(ctx context.Context, userID uuid.UUID, chatID string, history []domain.UIMessage, result *openai.StreamResult) {
	assistant := domain.UIMessage{
		ID:    domain.NewMessageID(),
		Role:  domain.RoleAssistant,
		Parts: assistantParts(result),
	}
	full := make([]domain.UIMessage, 0, len(history)+1)
	full = append(full, history...)
	full = append(full, assistant)

	_, err := s.conversations.Upsert(dbctx.New(ctx), UpsertInput{
		ChatID:   chatID,
		UserID:   userID,
		Messages: full,
	})
	if err != nil {
		s.log.Error("persist conversation failed", "err", err, "chat_id", chatID)
	}
}

func assistantParts(result *openai.StreamResult) []domain.Part {
	parts := []domain.Part{}
	if result.Reasoning != "" {
		parts = append(parts, domain.Part{
			Type:  domain.PartTypeReasoning,
			Text:  result.Reasoning,
			State: "done",
		})
	}
	for _, tc := range result.ToolCalls {
		p := domain.Part{
			Type:       domain.ToolPartPrefix + tc.Name,
			ToolCallID: tc.CallID,
			Input:      tc.Input,
		}
		if tc.ErrorText != "" {
			p.State = domain.ToolStateOutputError
			p.ErrorText = tc.ErrorText
		} else {
			p.State = domain.ToolStateOutputAvailable
			p.Output = tc.Output
		}
		parts = append(parts, p)
	}
	if result.Text != "" {
		parts = append(parts, domain.Part{
			Type:  domain.PartTypeText,
			Text:  result.Text,
			State: "done",
		})
	}
	return parts
}
