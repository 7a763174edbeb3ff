package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/parlorchat/parlor-backend/internal/pkg/logger"
	"github.com/parlorchat/parlor-backend/internal/platform/envutil"
	"github.com/parlorchat/parlor-backend/internal/tools"
)

const DefaultModel = "gpt-5-mini"

// maxToolSteps bounds the stream / execute-tools / re-stream loop so a
// misbehaving model cannot spin forever.
const maxToolSteps = 4

// Message is the normalized model input shape.
type Message struct {
	Role      string
	Text      string
	ImageURLs []string
}

type StreamInput struct {
	Model    string
	Messages []Message
	Tools    []tools.Tool
}

// ToolCallEvent describes one tool invocation as it moves through its
// lifecycle: input first, then output or error.
type ToolCallEvent struct {
	Name      string
	CallID    string
	Input     json.RawMessage
	Output    json.RawMessage
	ErrorText string
}

// StreamHandlers receive events as they arrive from the provider. A
// handler returning an error aborts the stream.
type StreamHandlers struct {
	OnTextDelta      func(delta string) error
	OnReasoningDelta func(delta string) error
	OnToolInput      func(ev ToolCallEvent) error
	OnToolResult     func(ev ToolCallEvent) error
}

// StreamResult is the finalized turn after the stream has completed.
type StreamResult struct {
	Text         string
	Reasoning    string
	ToolCalls    []ToolCallEvent
	FinishReason string
}

type Client interface {
	StreamChat(ctx context.Context, in StreamInput, h StreamHandlers) (*StreamResult, error)
}

type client struct {
	log   *logger.Logger
	api   *goopenai.Client
	model string
}

func NewClient(log *logger.Logger) (Client, error) {
	apiKey := envutil.Get("OPENAI_API_KEY", "")
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL := envutil.Get("OPENAI_BASE_URL", ""); baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"
	}

	model := envutil.Get("OPENAI_MODEL", DefaultModel)

	return &client{
		log:   log.With("client", "OpenAIClient"),
		api:   goopenai.NewClientWithConfig(cfg),
		model: model,
	}, nil
}

func (c *client) StreamChat(ctx context.Context, in StreamInput, h StreamHandlers) (*StreamResult, error) {
	model := strings.TrimSpace(in.Model)
	if model == "" {
		model = c.model
	}

	req := goopenai.ChatCompletionRequest{
		Model:    model,
		Messages: toChatMessages(in.Messages),
		Tools:    toChatTools(in.Tools),
	}

	byName := map[string]tools.Tool{}
	for _, t := range in.Tools {
		byName[t.Name] = t
	}

	result := &StreamResult{}
	var text, reasoning strings.Builder

	for step := 0; step < maxToolSteps; step++ {
		stream, err := c.api.CreateChatCompletionStream(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("create completion stream: %w", err)
		}

		pending, finish, err := c.consumeStream(stream, h, &text, &reasoning)
		stream.Close()
		if err != nil {
			return nil, err
		}
		result.FinishReason = finish

		if finish != string(goopenai.FinishReasonToolCalls) || len(pending) == 0 {
			break
		}

		toolMsgs, events, err := c.runTools(ctx, byName, pending, h)
		if err != nil {
			return nil, err
		}
		result.ToolCalls = append(result.ToolCalls, events...)

		req.Messages = append(req.Messages, assistantToolCallMessage(pending))
		req.Messages = append(req.Messages, toolMsgs...)
	}

	result.Text = text.String()
	result.Reasoning = reasoning.String()
	return result, nil
}

// pendingCall is a tool call accumulated from streamed deltas.
type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

func (c *client) consumeStream(
	stream *goopenai.ChatCompletionStream,
	h StreamHandlers,
	text, reasoning *strings.Builder,
) ([]*pendingCall, string, error) {
	var (
		calls  []*pendingCall
		finish string
	)

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("stream recv: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]

		if delta := choice.Delta.Content; delta != "" {
			text.WriteString(delta)
			if h.OnTextDelta != nil {
				if err := h.OnTextDelta(delta); err != nil {
					return nil, "", err
				}
			}
		}
		if delta := choice.Delta.ReasoningContent; delta != "" {
			reasoning.WriteString(delta)
			if h.OnReasoningDelta != nil {
				if err := h.OnReasoningDelta(delta); err != nil {
					return nil, "", err
				}
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			for len(calls) <= idx {
				calls = append(calls, &pendingCall{})
			}
			call := calls[idx]
			if tc.ID != "" {
				call.id = tc.ID
			}
			if tc.Function.Name != "" {
				call.name = tc.Function.Name
			}
			call.args.WriteString(tc.Function.Arguments)
		}
		if choice.FinishReason != "" {
			finish = string(choice.FinishReason)
		}
	}

	return calls, finish, nil
}

func (c *client) runTools(
	ctx context.Context,
	byName map[string]tools.Tool,
	pending []*pendingCall,
	h StreamHandlers,
) ([]goopenai.ChatCompletionMessage, []ToolCallEvent, error) {
	var (
		msgs   []goopenai.ChatCompletionMessage
		events []ToolCallEvent
	)

	for _, call := range pending {
		input := json.RawMessage(call.args.String())
		if len(input) == 0 {
			input = json.RawMessage("{}")
		}
		ev := ToolCallEvent{Name: call.name, CallID: call.id, Input: input}

		if h.OnToolInput != nil {
			if err := h.OnToolInput(ev); err != nil {
				return nil, nil, err
			}
		}

		tool, ok := byName[call.name]
		var (
			output any
			err    error
		)
		if !ok {
			err = fmt.Errorf("unknown tool %q", call.name)
		} else {
			output, err = tool.Run(ctx, input)
		}

		var content string
		if err != nil {
			ev.ErrorText = err.Error()
			content = `{"error":` + jsonQuote(err.Error()) + `}`
			c.log.Warn("tool execution failed", "tool", call.name, "error", err)
		} else {
			raw, merr := json.Marshal(output)
			if merr != nil {
				ev.ErrorText = merr.Error()
				content = `{"error":` + jsonQuote(merr.Error()) + `}`
			} else {
				ev.Output = raw
				content = string(raw)
			}
		}

		if h.OnToolResult != nil {
			if err := h.OnToolResult(ev); err != nil {
				return nil, nil, err
			}
		}
		events = append(events, ev)

		msgs = append(msgs, goopenai.ChatCompletionMessage{
			Role:       goopenai.ChatMessageRoleTool,
			Content:    content,
			ToolCallID: call.id,
		})
	}

	return msgs, events, nil
}

func assistantToolCallMessage(pending []*pendingCall) goopenai.ChatCompletionMessage {
	msg := goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleAssistant}
	for _, call := range pending {
		msg.ToolCalls = append(msg.ToolCalls, goopenai.ToolCall{
			ID:   call.id,
			Type: goopenai.ToolTypeFunction,
			Function: goopenai.FunctionCall{
				Name:      call.name,
				Arguments: call.args.String(),
			},
		})
	}
	return msg
}

func toChatMessages(in []Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(in))
	for _, m := range in {
		if len(m.ImageURLs) == 0 {
			out = append(out, goopenai.ChatCompletionMessage{Role: m.Role, Content: m.Text})
			continue
		}
		parts := []goopenai.ChatMessagePart{}
		if m.Text != "" {
			parts = append(parts, goopenai.ChatMessagePart{
				Type: goopenai.ChatMessagePartTypeText,
				Text: m.Text,
			})
		}
		for _, u := range m.ImageURLs {
			parts = append(parts, goopenai.ChatMessagePart{
				Type:     goopenai.ChatMessagePartTypeImageURL,
				ImageURL: &goopenai.ChatMessageImageURL{URL: u},
			})
		}
		out = append(out, goopenai.ChatCompletionMessage{Role: m.Role, MultiContent: parts})
	}
	return out
}

func toChatTools(in []tools.Tool) []goopenai.Tool {
	if len(in) == 0 {
		return nil
	}
	out := make([]goopenai.Tool, 0, len(in))
	for _, t := range in {
		out = append(out, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func jsonQuote(s string) string {
	raw, _ := json.Marshal(s)
	return string(raw)
}
