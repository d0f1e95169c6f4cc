package agentboot

import (
	"context"
	"errors"
	"testing"

	"github.com/SaiNageswarS/medicode-agent/llm"
	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockProgressReporter implements ProgressReporter for testing
type MockProgressReporter struct {
	events []*ProgressEvent
}

func (m *MockProgressReporter) Send(event *ProgressEvent) error {
	m.events = append(m.events, event)
	return nil
}

func (m *MockProgressReporter) Stages() []Stage {
	out := make([]Stage, len(m.events))
	for i, e := range m.events {
		out[i] = e.Stage
	}
	return out
}

// testLLMClient replays scripted tool calls and responses, one per call.
type testLLMClient struct {
	model            string
	response         string
	shouldError      bool
	errorMessage     string
	callCount        int
	responses        []string
	toolCallsPerTurn [][]api.ToolCall
	settings         []llm.LLMSettings
	lastMessages     []llm.Message
}

func (m *testLLMClient) GenerateInference(
	ctx context.Context,
	messages []llm.Message,
	callback func(chunk string) error,
	opts ...llm.LLMOption,
) error {
	return m.GenerateInferenceWithTools(ctx, messages, callback, nil, opts...)
}

func (m *testLLMClient) GenerateInferenceWithTools(
	ctx context.Context,
	messages []llm.Message,
	contentCallback func(chunk string) error,
	toolCallback func(toolCalls []api.ToolCall) error,
	opts ...llm.LLMOption,
) error {
	m.settings = append(m.settings, llm.ResolveSettings(m.model, opts...))
	m.lastMessages = messages
	if m.shouldError {
		return errors.New(m.errorMessage)
	}

	response := m.response
	if m.callCount < len(m.responses) {
		response = m.responses[m.callCount]
	}
	var toolCalls []api.ToolCall
	if m.callCount < len(m.toolCallsPerTurn) {
		toolCalls = m.toolCallsPerTurn[m.callCount]
	}
	m.callCount++

	if len(toolCalls) > 0 && toolCallback != nil {
		return toolCallback(toolCalls)
	}
	return contentCallback(response)
}

func (m *testLLMClient) Capabilities() llm.Capability { return llm.NativeToolCalling }
func (m *testLLMClient) GetModel() string             { return m.model }

func searchCall(terms ...any) []api.ToolCall {
	return []api.ToolCall{{
		Function: api.ToolCallFunction{
			Name:      "search",
			Arguments: map[string]any{"terms": terms},
		},
	}}
}

func searchTool(calls *[][]string) Tool {
	return NewToolBuilder("search", "search codes").
		StringSliceParam("terms", "terms", true).
		WithHandler(func(ctx context.Context, params api.ToolCallFunctionArguments) (string, error) {
			terms := StringSliceArg(params, "terms")
			*calls = append(*calls, terms)
			return "asthma: [{code: J45.909}]", nil
		}).
		Build()
}

func TestAgentExecuteWithoutTools(t *testing.T) {
	model := &testLLMClient{model: "test-model", response: `{"icd_terms": []}`}

	agent := NewAgentBuilder().
		WithName("structurer").
		WithModel(model).
		WithSystemPrompt("You structure text").
		WithTemperature(0).
		WithJSONOutput().
		Build()

	reporter := &MockProgressReporter{}
	result, err := agent.Execute(context.Background(), reporter, "Patient has asthma")

	require.NoError(t, err)
	assert.Equal(t, `{"icd_terms": []}`, result.Answer)
	assert.Empty(t, result.ToolsUsed)
	assert.Equal(t, 0, result.Turns)
	assert.Equal(t, 1, model.callCount)

	require.Len(t, model.settings, 1)
	assert.True(t, model.settings[0].JSONMode())
	assert.Equal(t, 0.0, model.settings[0].Temperature())
	assert.Equal(t, "You structure text", model.settings[0].SystemPrompt())
	assert.Empty(t, model.settings[0].Tools())

	assert.Equal(t, []Stage{StageTaskStarted, StageAnswerGenerating, StageTaskCompleted}, reporter.Stages())
}

func TestAgentExecuteWithTools(t *testing.T) {
	var toolCalls [][]string
	model := &testLLMClient{
		model:            "test-model",
		toolCallsPerTurn: [][]api.ToolCall{searchCall("asthma")},
		responses:        []string{"", `{"codes": ["J45.909"]}`},
	}

	agent := NewAgentBuilder().
		WithModel(model).
		WithMaxTurns(3).
		AddTool(searchTool(&toolCalls)).
		Build()

	result, err := agent.Execute(context.Background(), &MockProgressReporter{}, "Code asthma")

	require.NoError(t, err)
	assert.Equal(t, `{"codes": ["J45.909"]}`, result.Answer)
	assert.Equal(t, []string{"search"}, result.ToolsUsed)
	assert.Equal(t, 2, result.Turns)
	assert.Equal(t, [][]string{{"asthma"}}, toolCalls)

	// the second turn saw the tool result
	require.Len(t, model.lastMessages, 3)
	assert.True(t, model.lastMessages[2].IsToolResult)
	assert.Len(t, model.settings[0].Tools(), 1)
}

func TestAgentExecuteExhaustsTurnsThenAnswers(t *testing.T) {
	var toolCalls [][]string
	model := &testLLMClient{
		model:            "test-model",
		toolCallsPerTurn: [][]api.ToolCall{searchCall("a"), searchCall("b")},
		responses:        []string{"", "", `{"codes": []}`},
	}

	agent := NewAgentBuilder().
		WithModel(model).
		WithMaxTurns(2).
		WithJSONOutput().
		WithFinalPrompt("answer now").
		AddTool(searchTool(&toolCalls)).
		Build()

	result, err := agent.Execute(context.Background(), nil, "Code it")

	require.NoError(t, err)
	assert.Equal(t, `{"codes": []}`, result.Answer)
	assert.Equal(t, 2, result.Turns)
	assert.Equal(t, 3, model.callCount)
	assert.Len(t, toolCalls, 2)

	// final call has no tools, is JSON mode and ends with the final prompt
	final := model.settings[2]
	assert.Empty(t, final.Tools())
	assert.True(t, final.JSONMode())
	last := model.lastMessages[len(model.lastMessages)-1]
	assert.Equal(t, "answer now", last.Content)
}

func TestAgentExecuteToolFailureFailsTask(t *testing.T) {
	failing := NewToolBuilder("search", "search").
		WithHandler(func(ctx context.Context, params api.ToolCallFunctionArguments) (string, error) {
			return "", errors.New("index unreachable")
		}).
		Build()

	model := &testLLMClient{model: "m", toolCallsPerTurn: [][]api.ToolCall{searchCall("x")}}
	agent := NewAgentBuilder().WithModel(model).AddTool(failing).Build()

	reporter := &MockProgressReporter{}
	result, err := agent.Execute(context.Background(), reporter, "Code it")

	assert.Nil(t, result)
	assert.ErrorContains(t, err, "index unreachable")
	assert.Equal(t, StageTaskFailed, reporter.Stages()[len(reporter.Stages())-1])
}

func TestAgentExecuteModelError(t *testing.T) {
	model := &testLLMClient{model: "m", shouldError: true, errorMessage: "503"}
	agent := NewAgentBuilder().WithModel(model).Build()

	_, err := agent.Execute(context.Background(), nil, "task")
	assert.ErrorContains(t, err, "503")
}

func TestAgentExecuteEmptyAnswer(t *testing.T) {
	model := &testLLMClient{model: "m", response: "   "}
	agent := NewAgentBuilder().WithModel(model).Build()

	_, err := agent.Execute(context.Background(), nil, "task")
	assert.ErrorContains(t, err, "empty answer")
}

func TestAgentExecuteWithoutModel(t *testing.T) {
	_, err := NewAgentBuilder().Build().Execute(context.Background(), nil, "task")
	assert.Error(t, err)
}
