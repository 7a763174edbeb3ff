package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartValidate(t *testing.T) {
	cases := []struct {
		name    string
		part    Part
		wantErr bool
	}{
		{"text", Part{Type: PartTypeText, Text: "hi"}, false},
		{"text with state", Part{Type: PartTypeText, Text: "hi", State: "done"}, false},
		{"text bad state", Part{Type: PartTypeText, State: "finished"}, true},
		{"reasoning", Part{Type: PartTypeReasoning, Text: "thinking"}, false},
		{"file", Part{Type: PartTypeFile, MediaType: "image/png", URL: "https://x/y.png"}, false},
		{"file missing url", Part{Type: PartTypeFile, MediaType: "image/png"}, true},
		{"file missing media type", Part{Type: PartTypeFile, URL: "https://x/y.png"}, true},
		{"step start", Part{Type: PartTypeStepStart}, false},
		{"source url", Part{Type: PartTypeSourceURL, URL: "https://x"}, false},
		{"source url missing url", Part{Type: PartTypeSourceURL}, true},
		{"source document", Part{Type: PartTypeSourceDocument, MediaType: "application/pdf"}, false},
		{"tool output available", Part{Type: "tool-serper", ToolCallID: "call_1", State: ToolStateOutputAvailable}, false},
		{"tool missing call id", Part{Type: "tool-serper", State: ToolStateOutputAvailable}, true},
		{"tool bad state", Part{Type: "tool-serper", ToolCallID: "call_1", State: "exploded"}, true},
		{"bare tool prefix", Part{Type: "tool-", ToolCallID: "call_1"}, true},
		{"missing type", Part{}, true},
		{"unknown type", Part{Type: "hologram"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.part.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPartToolName(t *testing.T) {
	p := Part{Type: "tool-deepSearch", ToolCallID: "call_9"}
	assert.True(t, p.IsToolPart())
	assert.Equal(t, "deepSearch", p.ToolName())

	assert.False(t, Part{Type: PartTypeText}.IsToolPart())
	assert.Equal(t, "", Part{Type: PartTypeText}.ToolName())
}

func TestUIMessageValidate(t *testing.T) {
	msg := UIMessage{
		ID:   "msg_1",
		Role: RoleUser,
		Parts: []Part{
			{Type: PartTypeText, Text: "hello"},
		},
	}
	require.NoError(t, msg.Validate())

	assert.Error(t, UIMessage{Role: "moderator", Parts: msg.Parts}.Validate())
	assert.Error(t, UIMessage{Role: RoleUser}.Validate())
	assert.Error(t, UIMessage{
		Role:  RoleUser,
		Parts: []Part{{Type: "???"}},
	}.Validate())
}

func TestDeriveTitle(t *testing.T) {
	text := func(s string) Part { return Part{Type: PartTypeText, Text: s} }

	t.Run("first user message wins", func(t *testing.T) {
		got := DeriveTitle([]UIMessage{
			{Role: RoleSystem, Parts: []Part{text("system prompt")}},
			{Role: RoleUser, Parts: []Part{text("What is Go?")}},
			{Role: RoleAssistant, Parts: []Part{text("A language.")}},
			{Role: RoleUser, Parts: []Part{text("second question")}},
		})
		assert.Equal(t, "What is Go?...", got)
	})

	t.Run("truncates long titles", func(t *testing.T) {
		long := strings.Repeat("a", 80)
		got := DeriveTitle([]UIMessage{
			{Role: RoleUser, Parts: []Part{text(long)}},
		})
		assert.Equal(t, strings.Repeat("a", 50)+"...", got)
	})

	t.Run("counts runes not bytes", func(t *testing.T) {
		long := strings.Repeat("é", 60)
		got := DeriveTitle([]UIMessage{
			{Role: RoleUser, Parts: []Part{text(long)}},
		})
		assert.Equal(t, strings.Repeat("é", 50)+"...", got)
	})

	t.Run("empty first user message falls back", func(t *testing.T) {
		got := DeriveTitle([]UIMessage{
			{Role: RoleUser, Parts: []Part{{Type: PartTypeStepStart}}},
			{Role: RoleUser, Parts: []Part{text("later text")}},
		})
		assert.Equal(t, DefaultChatTitle, got)
	})

	t.Run("no messages", func(t *testing.T) {
		assert.Equal(t, DefaultChatTitle, DeriveTitle(nil))
	})
}

func TestPartJSONRoundTrip(t *testing.T) {
	p := Part{
		Type:       "tool-serper",
		ToolCallID: "call_1",
		State:      ToolStateOutputAvailable,
		Input:      json.RawMessage(`{"q":"golang"}`),
		Output:     json.RawMessage(`{"organic":[]}`),
	}
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"text"`)

	var back Part
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, p.ToolCallID, back.ToolCallID)
	assert.JSONEq(t, string(p.Input), string(back.Input))
}

func TestNewMessageIDCarriesPrefix(t *testing.T) {
	first := NewMessageID()
	second := NewMessageID()
	assert.True(t, strings.HasPrefix(first, "msg_"))
	assert.True(t, strings.HasPrefix(second, "msg_"))
	assert.NotEqual(t, first, second)
}
