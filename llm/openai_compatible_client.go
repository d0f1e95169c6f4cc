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

const (
	groqURL       = "https://api.groq.com/openai/v1/chat/completions"
	openRouterURL = "https://openrouter.ai/api/v1/chat/completions"
	geminiURL     = "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions"
)

// Models that support tool calling based on Groq documentation
var groqToolModels = []string{
	"llama-3.3-70b-versatile",
	"llama-3.1-8b-instant",
	"openai/gpt-oss-20b",
	"openai/gpt-oss-120b",
	"meta-llama/llama-4-scout-17b-16e-instruct",
	"meta-llama/llama-4-maverick-17b-128e-instruct",
	"moonshotai/kimi-k2-instruct",
	"moonshotai/kimi-k2-instruct-0905",
}

// OpenAICompatibleClient talks to any chat-completions endpoint following the
// OpenAI wire format. Groq, OpenRouter and Gemini all expose one.
type OpenAICompatibleClient struct {
	provider   string
	apiKey     string
	httpClient *http.Client
	url        string
	model      string
	toolModels []string // nil means every model supports tools
}

func NewGroqClient(model string, timeout time.Duration) (LLMClient, error) {
	return newOpenAICompatibleClient(ProviderGroq, groqURL, model, groqToolModels, timeout)
}

func NewOpenRouterClient(model string, timeout time.Duration) (LLMClient, error) {
	return newOpenAICompatibleClient(ProviderOpenRouter, openRouterURL, model, nil, timeout)
}

func NewGeminiClient(model string, timeout time.Duration) (LLMClient, error) {
	return newOpenAICompatibleClient(ProviderGemini, geminiURL, model, nil, timeout)
}

func newOpenAICompatibleClient(provider, url, model string, toolModels []string, timeout time.Duration) (*OpenAICompatibleClient, error) {
	keyEnv := CredentialEnv(provider)
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s environment variable is not set", schema.ErrConfiguration, keyEnv)
	}

	return &OpenAICompatibleClient{
		provider:   provider,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
		model:      model,
		toolModels: toolModels,
	}, nil
}

func (c *OpenAICompatibleClient) Capabilities() Capability {
	if c.toolModels == nil {
		return NativeToolCalling | JSONMode
	}

	for _, supportedModel := range c.toolModels {
		if strings.Contains(c.model, supportedModel) {
			return NativeToolCalling | JSONMode
		}
	}

	return JSONMode
}

func (c *OpenAICompatibleClient) GetModel() string {
	return c.model
}

func (c *OpenAICompatibleClient) GenerateInference(ctx context.Context, messages []Message, callback func(chunk string) error, opts ...LLMOption) error {
	settings := ResolveSettings(c.model, opts...)
	request := c.buildRequest(messages, settings)
	return c.makeRequest(ctx, request, callback, nil)
}

func (c *OpenAICompatibleClient) GenerateInferenceWithTools(
	ctx context.Context,
	messages []Message,
	contentCallback func(chunk string) error,
	toolCallback func(toolCalls []api.ToolCall) error,
	opts ...LLMOption,
) error {
	settings := ResolveSettings(c.model, opts...)

	request := c.buildRequest(messages, settings)
	request.Tools = convertToolsToOpenAIFormat(settings.tools)
	if len(request.Tools) > 0 {
		request.ToolChoice = "auto"
	}

	return c.makeRequest(ctx, request, contentCallback, toolCallback)
}

func (c *OpenAICompatibleClient) buildRequest(messages []Message, settings LLMSettings) chatRequest {
	request := chatRequest{
		Model:       settings.model,
		Messages:    toChatMessages(messages),
		Temperature: settings.temperature,
		MaxTokens:   settings.maxTokens,
	}

	// System prompt travels as the first message
	if settings.system != "" {
		request.Messages = append([]chatMessage{{Role: "system", Content: settings.system}}, request.Messages...)
	}

	if settings.jsonMode && c.Capabilities()&JSONMode != 0 {
		request.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	return request
}

func (c *OpenAICompatibleClient) makeRequest(
	ctx context.Context,
	request chatRequest,
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
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: error making request: %w", c.provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Provider: c.provider, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var response chatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return fmt.Errorf("error unmarshaling response: %w", err)
	}

	if len(response.Choices) == 0 {
		return fmt.Errorf("%s: no choices in response", c.provider)
	}

	choice := response.Choices[0]

	if len(choice.Message.ToolCalls) > 0 && toolCallback != nil {
		toolCalls := make([]api.ToolCall, len(choice.Message.ToolCalls))
		for i, tc := range choice.Message.ToolCalls {
			var args map[string]any
			if tc.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
					return fmt.Errorf("error parsing tool call arguments: %w", err)
				}
			}

			toolCalls[i] = api.ToolCall{
				Function: api.ToolCallFunction{
					Name:      tc.Function.Name,
					Arguments: args,
				},
			}
		}
		return toolCallback(toolCalls)
	}

	if choice.Message.Content != "" && contentCallback != nil {
		return contentCallback(choice.Message.Content)
	}

	return nil
}

// Tool results are replayed as user turns since the agent loop does not
// track provider tool call ids.
func toChatMessages(messages []Message) []chatMessage {
	out := make([]chatMessage, len(messages))
	for i, m := range messages {
		role := m.Role
		if m.IsToolResult {
			role = "user"
		}
		out[i] = chatMessage{Role: role, Content: m.Content}
	}
	return out
}

func convertToolsToOpenAIFormat(tools []api.Tool) []chatTool {
	if len(tools) == 0 {
		return nil
	}

	chatTools := make([]chatTool, len(tools))
	for i, tool := range tools {
		chatTools[i] = chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			},
		}
	}
	return chatTools
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Tools          []chatTool      `json:"tools,omitempty"`
	ToolChoice     string          `json:"tool_choice,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []chatToolCall `json:"tool_calls,omitempty"`
}

type chatToolCall struct {
	ID       string               `json:"id"`
	Type     string               `json:"type"`
	Function chatToolCallFunction `json:"function"`
}

type chatToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
