package agentboot

import "github.com/SaiNageswarS/medicode-agent/llm"

type AgentBuilder struct {
	config AgentConfig
}

func NewAgentBuilder() *AgentBuilder {
	return &AgentBuilder{
		config: AgentConfig{
			MaxTurns:    5,
			MaxTokens:   2000,
			Temperature: 0.7,
		},
	}
}

func (b *AgentBuilder) WithName(name string) *AgentBuilder {
	b.config.Name = name
	return b
}

func (b *AgentBuilder) WithModel(client llm.LLMClient) *AgentBuilder {
	b.config.Model = client
	return b
}

func (b *AgentBuilder) WithSystemPrompt(prompt string) *AgentBuilder {
	b.config.SystemPrompt = prompt
	return b
}

func (b *AgentBuilder) AddTool(tool Tool) *AgentBuilder {
	b.config.Tools = append(b.config.Tools, tool)
	return b
}

func (b *AgentBuilder) WithMaxTokens(max int) *AgentBuilder {
	b.config.MaxTokens = max
	return b
}

func (b *AgentBuilder) WithMaxTurns(maxTurns int) *AgentBuilder {
	b.config.MaxTurns = maxTurns
	return b
}

func (b *AgentBuilder) WithTemperature(temp float64) *AgentBuilder {
	b.config.Temperature = temp
	return b
}

func (b *AgentBuilder) WithJSONOutput() *AgentBuilder {
	b.config.JSONOutput = true
	return b
}

func (b *AgentBuilder) WithFinalPrompt(prompt string) *AgentBuilder {
	b.config.FinalPrompt = prompt
	return b
}

func (b *AgentBuilder) Build() *Agent {
	if b.config.MaxTurns < 1 {
		b.config.MaxTurns = 1
	}
	return &Agent{config: b.config}
}
