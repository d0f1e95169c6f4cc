package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/SaiNageswarS/medicode-agent/schema"
	"github.com/ollama/ollama/api"
)

type AnthropicClient struct {
	apiKey     string
	httpClient *http.Client
	url        string
	model      string
}

func NewAnthropicClient(model string, timeout time.Duration) (LLMClient, error) {
	apiKey := os.Getenv(CredentialEnv(ProviderAnthropic))
	if apiKey == "" {
		return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY environment variable is not set", schema.ErrConfiguration)
	}

	return &AnthropicClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		url:        "https://api.anthropic.com/v1/messages",
		model:      model,
	}, nil
}

func (c *AnthropicClient) Capabilities() Capability {
	return NativeToolCalling
}

func (c *AnthropicClient) GetModel() string {
	return c.model
}

func (c *AnthropicClient) GenerateInference(ctx context.Context, messages []Message, callback func(chunk string) error, opts ...LLMOption) error {
	settings := ResolveSettings(c.model, opts...)
	return c.makeRequest(ctx, c.buildRequest(messages, settings), callback, nil)
}

func (c *AnthropicClient) GenerateInferenceWithTools(
	ctx context.Context,
	messages []Message,
	contentCallback func(chunk string) error,
	toolCallback func(toolCalls []api.ToolCall) error,
	opts ...LLMOption,
) error {
	settings := ResolveSettings(c.model, opts...)

	request := c.buildRequest(messages, settings)
	for _, tool := range settings.tools {
		request.Tools = append(request.Tools, anthropicTool{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: tool.Function.Parameters,
		})
	}

	return c.makeRequest(ctx, request, contentCallback, toolCallback)
}

func (c *AnthropicClient) buildRequest(messages []Message, settings LLMSettings) anthropicRequest {
	request := anthropicRequest{
		Model:       settings.model,
		MaxTokens:   settings.maxTokens,
		Temperature: settings.temperature,
		System:      settings.system,
	}

	// Anthropic takes the system prompt out of band and only knows user/assistant turns.
	var system []string
	if settings.system != "" {
		system = append(system, settings.system)
	}
	for _, m := range messages {
		switch {
		case m.Role == "system":
			system = append(system, m.Content)
		case m.IsToolResult:
			request.Messages = append(request.Messages, anthropicMessage{Role: "user", Content: m.Content})
		default:
			request.Messages = append(request.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
		}
	}
	request.System = strings.Join(system, "\n\n")

	if settings.jsonMode {
		request.System = strings.TrimSpace(request.System + "\n\nRespond with a single JSON object and nothing else.")
	}

	return request
}

func (c *AnthropicClient) makeRequest(
	ctx context.Context,
	request anthropicRequest,
	contentCallback func(chunk string) error,
	toolCallback func(toolCalls []api.ToolCall) error,
) error {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("anthropic: error making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Provider: "anthropic", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return fmt.Errorf("error unmarshaling response: %w", err)
	}

	if len(response.Content) == 0 {
		return fmt.Errorf("anthropic: no content in response")
	}

	var text strings.Builder
	var toolCalls []api.ToolCall
	for _, block := range response.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			toolCalls = append(toolCalls, api.ToolCall{
				Function: api.ToolCallFunction{
					Name:      block.Name,
					Arguments: block.Input,
				},
			})
		}
	}

	if len(toolCalls) > 0 && toolCallback != nil {
		return toolCallback(toolCalls)
	}

	if text.Len() > 0 && contentCallback != nil {
		return contentCallback(text.String())
	}

	return nil
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicTool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"input_schema"`
}

type anthropicResponse struct {
	Content    []contentBlock `json:"content"`
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Role       string         `json:"role"`
	StopReason string         `json:"stop_reason"`
}

type contentBlock struct {
	Type  string         `json:"type"`
	Text  string         `json:"text,omitempty"`
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
}
