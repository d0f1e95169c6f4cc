package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaClientChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req api.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "qwen3:4b", req.Model)
		assert.Equal(t, 0.0, req.Options["temperature"])

		w.Header().Set("Content-Type", "application/x-ndjson")
		json.NewEncoder(w).Encode(map[string]any{
			"model":   "qwen3:4b",
			"message": map[string]any{"role": "assistant", "content": "local answer"},
			"done":    true,
		})
	}))
	defer server.Close()

	base, err := url.Parse(server.URL)
	require.NoError(t, err)
	client := NewOllamaClientWith(api.NewClient(base, server.Client()), "qwen3:4b")

	var result string
	err = client.GenerateInference(context.Background(),
		[]Message{{Role: "user", Content: "hi"}},
		func(chunk string) error {
			result = chunk
			return nil
		},
		WithSystemPrompt("be brief"),
		WithTemperature(0),
	)

	require.NoError(t, err)
	assert.Equal(t, "local answer", result)
}

func TestOllamaClientToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"model": "qwen3:4b",
			"message": map[string]any{
				"role":    "assistant",
				"content": "",
				"tool_calls": []any{
					map[string]any{"function": map[string]any{"name": "search_cpt_codes", "arguments": map[string]any{"terms": []any{"office visit"}}}},
				},
			},
			"done": true,
		})
	}))
	defer server.Close()

	base, err := url.Parse(server.URL)
	require.NoError(t, err)
	client := NewOllamaClientWith(api.NewClient(base, server.Client()), "qwen3:4b")

	var calls []api.ToolCall
	err = client.GenerateInferenceWithTools(context.Background(),
		[]Message{{Role: "user", Content: "code"}},
		func(string) error { return nil },
		func(tc []api.ToolCall) error {
			calls = tc
			return nil
		},
	)

	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "search_cpt_codes", calls[0].Function.Name)
}
