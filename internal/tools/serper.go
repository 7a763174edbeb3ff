package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/parlorchat/parlor-backend/internal/pkg/httpx"
	"github.com/parlorchat/parlor-backend/internal/pkg/logger"
	"github.com/parlorchat/parlor-backend/internal/platform/envutil"
)

const serperEndpoint = "https://google.serper.dev/search"

type serperInput struct {
	Q string `json:"q"`
}

type serperResponse struct {
	SearchInformation map[string]any   `json:"searchInformation"`
	KnowledgeGraph    map[string]any   `json:"knowledgeGraph"`
	AnswerBox         map[string]any   `json:"answerBox"`
	Organic           []map[string]any `json:"organic"`
	PeopleAlsoAsk     []map[string]any `json:"peopleAlsoAsk"`
	RelatedSearches   []map[string]any `json:"relatedSearches"`
}

// newSerperTool searches the web through the Serper API. Failures are
// returned as a payload rather than an error so the model can recover.
func newSerperTool(log *logger.Logger) Tool {
	httpClient := &http.Client{Timeout: 15 * time.Second}
	toolLog := log.With("tool", "serper")

	return Tool{
		Name:        "serper",
		Description: "Search the web using Serper API for real-time results",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"q": map[string]any{
					"type":        "string",
					"description": "Search query",
				},
			},
			"required": []string{"q"},
		},
		Run: func(ctx context.Context, input json.RawMessage) (any, error) {
			var in serperInput
			if err := json.Unmarshal(input, &in); err != nil {
				return map[string]any{"error": "invalid input: " + err.Error()}, nil
			}

			apiKey := envutil.Get("SERPER_API_KEY", "")
			if apiKey == "" {
				return map[string]any{"error": "missing SERPER_API_KEY", "query": in.Q}, nil
			}

			body, err := json.Marshal(map[string]string{"q": in.Q})
			if err != nil {
				return nil, err
			}
			resp, err := serperDo(ctx, httpClient, apiKey, body)
			if err != nil {
				toolLog.Warn("serper request failed", "error", err)
				return map[string]any{"error": err.Error(), "query": in.Q}, nil
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
				toolLog.Warn("serper returned non-200", "status", resp.StatusCode, "body", string(raw))
				return map[string]any{
					"error": fmt.Sprintf("Serper API error: %d", resp.StatusCode),
					"query": in.Q,
				}, nil
			}

			var data serperResponse
			if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
				return map[string]any{"error": err.Error(), "query": in.Q}, nil
			}
			return serperPayload(in.Q, data), nil
		},
	}
}

// serperPayload trims the raw API response down to what the model needs.
func serperPayload(query string, data serperResponse) map[string]any {
	organic := data.Organic
	if len(organic) > 10 {
		organic = organic[:10]
	}
	var total any = 0
	if v, ok := data.SearchInformation["totalResults"]; ok && v != nil {
		total = v
	}
	return map[string]any{
		"answerBox":         data.AnswerBox,
		"knowledgeGraph":    data.KnowledgeGraph,
		"organic":           organic,
		"peopleAlsoAsk":     data.PeopleAlsoAsk,
		"query":             query,
		"relatedSearches":   data.RelatedSearches,
		"searchInformation": data.SearchInformation,
		"totalResults":      total,
	}
}

// serperDo issues the search request with one retry on transient
// failures, honoring Retry-After when the API throttles.
func serperDo(ctx context.Context, client *http.Client, apiKey string, body []byte) (*http.Response, error) {
	const attempts = 2
	var resp *http.Response
	var err error
	for i := 0; i < attempts; i++ {
		var req *http.Request
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, serperEndpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-KEY", apiKey)

		resp, err = client.Do(req)
		last := i == attempts-1
		switch {
		case err != nil:
			if last || !httpx.Retryable(err) {
				return nil, err
			}
		case httpx.RetryableStatus(resp.StatusCode) && !last:
			wait := httpx.RetryAfter(resp, time.Second, 5*time.Second)
			resp.Body.Close()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(httpx.Jitter(wait)):
			}
		default:
			return resp, nil
		}
	}
	return resp, err
}

type deepSearchInput struct {
	Query      string `json:"query"`
	MaxResults int    `json:"maxResults"`
	TimeRange  string `json:"timeRange"`
}

func newDeepSearchTool() Tool {
	return Tool{
		Name:        "deepSearch",
		Description: "Perform deep web search with advanced filtering and analysis",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query",
				},
				"maxResults": map[string]any{
					"type":        "number",
					"description": "Maximum number of results",
				},
				"timeRange": map[string]any{
					"type":        "string",
					"description": "Time range: day, week, month, year, all",
				},
			},
			"required": []string{"query"},
		},
		Run: func(ctx context.Context, input json.RawMessage) (any, error) {
			var in deepSearchInput
			if err := json.Unmarshal(input, &in); err != nil {
				return map[string]any{"error": "invalid input: " + err.Error()}, nil
			}
			if in.MaxResults <= 0 {
				in.MaxResults = 10
			}
			if in.TimeRange == "" {
				in.TimeRange = "all"
			}
			// TODO: back this with a real search pipeline; the shape is
			// stable so clients can already render it.
			return map[string]any{
				"maxResults": in.MaxResults,
				"message":    "Deep search functionality not yet implemented",
				"query":      in.Query,
				"results":    []any{},
				"timeRange":  in.TimeRange,
				"totalFound": 0,
			}, nil
		},
	}
}
