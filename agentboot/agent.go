package agentboot

import (
	"context"

	"github.com/SaiNageswarS/medicode-agent/llm"
	"github.com/ollama/ollama/api"
)

// AgentConfig holds configuration for the agent
type AgentConfig struct {
	Name         string
	Model        llm.LLMClient
	SystemPrompt string
	Tools        []Tool
	MaxTokens    int
	MaxTurns     int
	Temperature  float64

	// JSONOutput asks the model for a JSON object on the final answer.
	JSONOutput bool
	// FinalPrompt is appended when the turn budget runs out before the
	// model answered on its own.
	FinalPrompt string
}

// Agent runs one task against a model, optionally with tools. It keeps no
// state between tasks and is safe to share.
type Agent struct {
	config AgentConfig
}

// Tool wraps an api.Tool and provides a handler for execution
type Tool struct {
	api.Tool
	Handler func(ctx context.Context, params api.ToolCallFunctionArguments) (string, error)
}

// Result is the outcome of one Execute call.
type Result struct {
	Answer         string
	ToolsUsed      []string
	Turns          int
	ProcessingTime int64
}

func (a *Agent) Name() string { return a.config.Name }
