package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorchat/parlor-backend/internal/pkg/logger"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	log, err := logger.New("development")
	require.NoError(t, err)
	return NewRegistry(log)
}

func TestResolveDropsUnknownAndDedupes(t *testing.T) {
	r := newTestRegistry(t)

	selected := r.Resolve([]string{"serper", "nonexistent", "serper", "deepSearch"})
	names := make([]string, 0, len(selected))
	for _, tool := range selected {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"serper", "deepSearch"}, names)

	assert.Empty(t, r.Resolve(nil))
	assert.Empty(t, r.Resolve([]string{"ghost"}))
}

func TestRegistryNames(t *testing.T) {
	r := newTestRegistry(t)
	names := r.Names()
	assert.Contains(t, names, "serper")
	assert.Contains(t, names, "deepSearch")
}

func TestSerperWithoutAPIKeyReturnsPayloadError(t *testing.T) {
	t.Setenv("SERPER_API_KEY", "")
	r := newTestRegistry(t)

	selected := r.Resolve([]string{"serper"})
	require.Len(t, selected, 1)

	out, err := selected[0].Run(context.Background(), json.RawMessage(`{"q":"golang"}`))
	require.NoError(t, err)

	payload, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, payload, "error")
	assert.Equal(t, "golang", payload["query"])
}

func TestDeepSearchDefaults(t *testing.T) {
	r := newTestRegistry(t)

	selected := r.Resolve([]string{"deepSearch"})
	require.Len(t, selected, 1)

	out, err := selected[0].Run(context.Background(), json.RawMessage(`{"query":"concurrency"}`))
	require.NoError(t, err)

	payload, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 10, payload["maxResults"])
	assert.Equal(t, "all", payload["timeRange"])
	assert.Equal(t, "concurrency", payload["query"])
}

func TestSerperPayloadShape(t *testing.T) {
	data := serperResponse{
		SearchInformation: map[string]any{"totalResults": "12300"},
		Organic: []map[string]any{
			{"title": "a"}, {"title": "b"}, {"title": "c"}, {"title": "d"},
			{"title": "e"}, {"title": "f"}, {"title": "g"}, {"title": "h"},
			{"title": "i"}, {"title": "j"}, {"title": "k"}, {"title": "l"},
		},
	}

	payload := serperPayload("golang", data)
	assert.Equal(t, "golang", payload["query"])
	assert.Equal(t, "12300", payload["totalResults"])
	assert.Len(t, payload["organic"], 10)

	empty := serperPayload("nothing", serperResponse{})
	assert.Equal(t, 0, empty["totalResults"])
}
