package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Part is one typed segment of a message's content. The wire shape is a
// tagged union on "type"; unknown fields for a given type are carried
// through untouched so new upstream variants do not require schema churn.
const (
	PartTypeText           = "text"
	PartTypeReasoning      = "reasoning"
	PartTypeFile           = "file"
	PartTypeStepStart      = "step-start"
	PartTypeSourceURL      = "source-url"
	PartTypeSourceDocument = "source-document"

	ToolPartPrefix = "tool-"
)

// Tool-call part lifecycle states.
const (
	ToolStateInputStreaming  = "input-streaming"
	ToolStateInputAvailable  = "input-available"
	ToolStateOutputAvailable = "output-available"
	ToolStateOutputError     = "output-error"
)

type Part struct {
	Type string `json:"type"`

	// text / reasoning
	Text  string `json:"text,omitempty"`
	State string `json:"state,omitempty"`

	// file
	MediaType string `json:"mediaType,omitempty"`
	Filename  string `json:"filename,omitempty"`
	URL       string `json:"url,omitempty"`

	// source-url / source-document
	SourceID string `json:"sourceId,omitempty"`
	Title    string `json:"title,omitempty"`

	// tool-<name>
	ToolCallID string          `json:"toolCallId,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	ErrorText  string          `json:"errorText,omitempty"`
}

// IsToolPart reports whether the part is a tool-call variant.
func (p Part) IsToolPart() bool {
	return strings.HasPrefix(p.Type, ToolPartPrefix) && len(p.Type) > len(ToolPartPrefix)
}

// ToolName returns the tool name encoded in a tool part's type.
func (p Part) ToolName() string {
	if !p.IsToolPart() {
		return ""
	}
	return p.Type[len(ToolPartPrefix):]
}

// Validate rejects unknown or malformed part shapes. Validation happens
// before any provider call so a bad payload never bills a stream.
func (p Part) Validate() error {
	switch p.Type {
	case "":
		return fmt.Errorf("part missing type")
	case PartTypeText, PartTypeReasoning:
		if p.State != "" && p.State != "streaming" && p.State != "done" {
			return fmt.Errorf("%s part has invalid state %q", p.Type, p.State)
		}
		return nil
	case PartTypeFile:
		if p.MediaType == "" {
			return fmt.Errorf("file part missing mediaType")
		}
		if p.URL == "" {
			return fmt.Errorf("file part missing url")
		}
		return nil
	case PartTypeStepStart:
		return nil
	case PartTypeSourceURL:
		if p.URL == "" {
			return fmt.Errorf("source-url part missing url")
		}
		return nil
	case PartTypeSourceDocument:
		if p.MediaType == "" {
			return fmt.Errorf("source-document part missing mediaType")
		}
		return nil
	}
	if p.IsToolPart() {
		if p.ToolCallID == "" {
			return fmt.Errorf("%s part missing toolCallId", p.Type)
		}
		switch p.State {
		case "", ToolStateInputStreaming, ToolStateInputAvailable,
			ToolStateOutputAvailable, ToolStateOutputError:
			return nil
		}
		return fmt.Errorf("%s part has invalid state %q", p.Type, p.State)
	}
	return fmt.Errorf("unknown part type %q", p.Type)
}

// UIMessage is the wire shape for a transcript entry.
type UIMessage struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

func (m UIMessage) Validate() error {
	if !ValidRole(m.Role) {
		return fmt.Errorf("invalid role %q", m.Role)
	}
	if len(m.Parts) == 0 {
		return fmt.Errorf("message has no parts")
	}
	for i, p := range m.Parts {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("part %d: %w", i, err)
		}
	}
	return nil
}

// FirstText returns the text of the message's first text part.
func (m UIMessage) FirstText() string {
	for _, p := range m.Parts {
		if p.Type == PartTypeText {
			return p.Text
		}
	}
	return ""
}

const titleRuneLimit = 50

// DeriveTitle builds a chat title from the first user message's first
// text part, truncated with a continuation marker. Falls back to the
// fixed default when no user text exists.
func DeriveTitle(messages []UIMessage) string {
	for _, m := range messages {
		if m.Role != RoleUser {
			continue
		}
		text := strings.TrimSpace(m.FirstText())
		if text == "" {
			break
		}
		runes := []rune(text)
		if len(runes) > titleRuneLimit {
			runes = runes[:titleRuneLimit]
		}
		return string(runes) + "..."
	}
	return DefaultChatTitle
}
