package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SaiNageswarS/medicode-agent/schema"
	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnthropicClient(t *testing.T, url string) *AnthropicClient {
	t.Helper()
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	client, err := NewAnthropicClient("claude-sonnet-4", time.Minute)
	require.NoError(t, err)
	c := client.(*AnthropicClient)
	c.url = url
	return c
}

func TestNewAnthropicClientMissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewAnthropicClient("claude-sonnet-4", time.Minute)
	assert.ErrorIs(t, err, schema.ErrConfiguration)
}

func TestAnthropicSystemPromptAndToolResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var request anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))

		assert.Contains(t, request.System, "You code claims")
		assert.Contains(t, request.System, "single JSON object")
		require.Len(t, request.Messages, 2)
		assert.Equal(t, "user", request.Messages[1].Role)
		assert.Equal(t, "E11.9: ...", request.Messages[1].Content)

		json.NewEncoder(w).Encode(anthropicResponse{
			Content: []contentBlock{{Type: "text", Text: `{"codes":["E11.9"]}`}},
		})
	}))
	defer server.Close()

	client := newTestAnthropicClient(t, server.URL)

	var result string
	err := client.GenerateInference(context.Background(),
		[]Message{
			{Role: "user", Content: "code it"},
			{Role: "tool", Content: "E11.9: ...", IsToolResult: true},
		},
		func(chunk string) error {
			result = chunk
			return nil
		},
		WithSystemPrompt("You code claims"),
		WithJSONResponse(),
	)

	require.NoError(t, err)
	assert.Equal(t, `{"codes":["E11.9"]}`, result)
}

func TestAnthropicNativeToolUse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var request anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		require.Len(t, request.Tools, 1)
		assert.Equal(t, "search_hcpcs_codes", request.Tools[0].Name)

		json.NewEncoder(w).Encode(anthropicResponse{
			Content: []contentBlock{
				{Type: "text", Text: "Searching."},
				{Type: "tool_use", ID: "toolu_1", Name: "search_hcpcs_codes", Input: map[string]any{"terms": []any{"walker"}}},
			},
			StopReason: "tool_use",
		})
	}))
	defer server.Close()

	client := newTestAnthropicClient(t, server.URL)

	var calls []api.ToolCall
	var content string
	err := client.GenerateInferenceWithTools(context.Background(),
		[]Message{{Role: "user", Content: "code it"}},
		func(chunk string) error {
			content = chunk
			return nil
		},
		func(tc []api.ToolCall) error {
			calls = tc
			return nil
		},
		WithTools([]api.Tool{{Type: "function", Function: api.ToolFunction{Name: "search_hcpcs_codes"}}}),
	)

	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "search_hcpcs_codes", calls[0].Function.Name)
	assert.Equal(t, []any{"walker"}, calls[0].Function.Arguments["terms"])
	assert.Empty(t, content, "tool calls take precedence over interleaved text")
}
