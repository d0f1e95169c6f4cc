package llm

import (
	"context"

	"github.com/ollama/ollama/api"
)

type Capability uint8

const (
	NativeToolCalling Capability = 1 << iota
	JSONMode
)

type LLMClient interface {
	GenerateInference(
		ctx context.Context,
		messages []Message,
		callback func(chunk string) error,
		opts ...LLMOption,
	) error

	// GenerateInferenceWithTools supports native tool calling
	GenerateInferenceWithTools(
		ctx context.Context,
		messages []Message,
		contentCallback func(chunk string) error,
		toolCallback func(toolCalls []api.ToolCall) error,
		opts ...LLMOption,
	) error

	Capabilities() Capability

	GetModel() string
}

type LLMSettings struct {
	model       string     // model name
	temperature float64    // randomness (0.0 to 1.0)
	maxTokens   int        // maximum tokens to generate
	system      string     // system prompt
	jsonMode    bool       // ask the provider for a JSON object response
	tools       []api.Tool // tools to use for tool calling
}

type LLMOption func(*LLMSettings)

// ResolveSettings applies opts over the provider defaults.
func ResolveSettings(model string, opts ...LLMOption) LLMSettings {
	s := LLMSettings{
		model:       model,
		temperature: 0.7,
		maxTokens:   4096,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (s LLMSettings) Model() string        { return s.model }
func (s LLMSettings) Temperature() float64 { return s.temperature }
func (s LLMSettings) MaxTokens() int       { return s.maxTokens }
func (s LLMSettings) SystemPrompt() string { return s.system }
func (s LLMSettings) JSONMode() bool       { return s.jsonMode }
func (s LLMSettings) Tools() []api.Tool    { return s.tools }

// Common options for all LLM providers
func WithTemperature(temp float64) LLMOption {
	return func(s *LLMSettings) { s.temperature = temp }
}

func WithMaxTokens(tokens int) LLMOption {
	return func(s *LLMSettings) { s.maxTokens = tokens }
}

func WithSystemPrompt(prompt string) LLMOption {
	return func(s *LLMSettings) { s.system = prompt }
}

// WithJSONResponse requests a single JSON object. Providers without a JSON
// mode ignore it and rely on the prompt.
func WithJSONResponse() LLMOption {
	return func(s *LLMSettings) { s.jsonMode = true }
}

func WithTools(tools []api.Tool) LLMOption {
	return func(s *LLMSettings) { s.tools = tools }
}

type Message struct {
	Role         string `json:"role"`    // "user", "assistant", "system"
	Content      string `json:"content"` // the message content
	IsToolResult bool   `json:"-"`
}
