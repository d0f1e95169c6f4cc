package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
)

// OllamaClient runs inference against a local or remote Ollama server
// resolved from OLLAMA_HOST.
type OllamaClient struct {
	client *api.Client
	model  string
}

func NewOllamaClient(model string, timeout time.Duration) (LLMClient, error) {
	client := api.NewClient(envconfig.Host(), &http.Client{Timeout: timeout})
	return NewOllamaClientWith(client, model), nil
}

func NewOllamaClientWith(client *api.Client, model string) *OllamaClient {
	return &OllamaClient{client: client, model: model}
}

func (c *OllamaClient) Capabilities() Capability {
	return NativeToolCalling | JSONMode
}

func (c *OllamaClient) GetModel() string {
	return c.model
}

func (c *OllamaClient) GenerateInference(ctx context.Context, messages []Message, callback func(chunk string) error, opts ...LLMOption) error {
	return c.GenerateInferenceWithTools(ctx, messages, callback, nil, opts...)
}

func (c *OllamaClient) GenerateInferenceWithTools(
	ctx context.Context,
	messages []Message,
	contentCallback func(chunk string) error,
	toolCallback func(toolCalls []api.ToolCall) error,
	opts ...LLMOption,
) error {
	settings := ResolveSettings(c.model, opts...)

	stream := false
	req := &api.ChatRequest{
		Model:  settings.model,
		Stream: &stream,
		Options: map[string]any{
			"temperature": settings.temperature,
			"num_predict": settings.maxTokens,
		},
	}
	if toolCallback != nil {
		req.Tools = settings.tools
	}
	if settings.jsonMode {
		req.Format = json.RawMessage(`"json"`)
	}

	if settings.system != "" {
		req.Messages = append(req.Messages, api.Message{Role: "system", Content: settings.system})
	}
	for _, m := range messages {
		role := m.Role
		if m.IsToolResult {
			role = "tool"
		}
		req.Messages = append(req.Messages, api.Message{Role: role, Content: m.Content})
	}

	var content strings.Builder
	var toolCalls []api.ToolCall
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		toolCalls = append(toolCalls, resp.Message.ToolCalls...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ollama: chat: %w", err)
	}

	if len(toolCalls) > 0 && toolCallback != nil {
		return toolCallback(toolCalls)
	}

	if content.Len() > 0 && contentCallback != nil {
		return contentCallback(content.String())
	}

	return nil
}
