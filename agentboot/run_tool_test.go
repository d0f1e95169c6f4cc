package agentboot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatToolInputsToMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		toolName string
		params   api.ToolCallFunctionArguments
		expected []string
	}{
		{
			name:     "empty parameters",
			toolName: "lookup",
			params:   api.ToolCallFunctionArguments{},
			expected: []string{"Tool: `lookup` (no parameters)"},
		},
		{
			name:     "term list",
			toolName: "search_icd10_codes",
			params: api.ToolCallFunctionArguments{
				"terms": []any{"type 2 diabetes", "hypertension"},
			},
			expected: []string{
				"Tool: `search\\_icd10\\_codes`",
				"Parameters:",
				"- **terms**: type 2 diabetes, hypertension",
			},
		},
		{
			name:     "scalar parameters",
			toolName: "search",
			params: api.ToolCallFunctionArguments{
				"query": "J45.* codes",
				"top_k": 5,
			},
			expected: []string{
				"- **query**: J45.\\* codes",
				"- **top\\_k**: 5",
			},
		},
		{
			name:     "angle brackets",
			toolName: "test<>",
			params:   api.ToolCallFunctionArguments{"input": "<b>"},
			expected: []string{
				"Tool: `test&lt;&gt;`",
				"- **input**: &lt;b&gt;",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatToolInputsToMarkdown(tt.toolName, tt.params)
			for _, expected := range tt.expected {
				assert.Contains(t, result, expected)
			}
		})
	}
}

func TestFormatToolInputsToMarkdownDeterministic(t *testing.T) {
	params := api.ToolCallFunctionArguments{
		"z_param": "last",
		"a_param": "first",
		"m_param": "middle",
	}

	result1 := formatToolInputsToMarkdown("test", params)
	result2 := formatToolInputsToMarkdown("test", params)
	assert.Equal(t, result1, result2)

	aPos := strings.Index(result1, "- **a\\_param**:")
	mPos := strings.Index(result1, "- **m\\_param**:")
	zPos := strings.Index(result1, "- **z\\_param**:")
	assert.True(t, aPos < mPos && mPos < zPos, "Parameters should be sorted alphabetically")
}

func TestRunTool(t *testing.T) {
	tool := NewToolBuilder("echo", "Echo the terms").
		StringSliceParam("terms", "terms", true).
		WithHandler(func(ctx context.Context, params api.ToolCallFunctionArguments) (string, error) {
			return strings.Join(StringSliceArg(params, "terms"), "|"), nil
		}).
		Build()

	agent := NewAgentBuilder().WithName("tester").AddTool(tool).Build()
	reporter := &MockProgressReporter{}

	out, err := agent.RunTool(context.Background(), reporter, &api.ToolCall{
		Function: api.ToolCallFunction{Name: "echo", Arguments: map[string]any{"terms": []any{"a", "b"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "a|b", out)
	assert.Equal(t, []Stage{StageToolExecutionStarting, StageToolExecutionCompleted}, reporter.Stages())

	_, err = agent.RunTool(context.Background(), reporter, &api.ToolCall{Function: api.ToolCallFunction{Name: "missing"}})
	assert.ErrorContains(t, err, "unknown tool")
}

func TestRunToolHandlerError(t *testing.T) {
	boom := errors.New("index unreachable")
	tool := NewToolBuilder("fail", "always fails").
		WithHandler(func(ctx context.Context, params api.ToolCallFunctionArguments) (string, error) {
			return "", boom
		}).
		Build()

	agent := NewAgentBuilder().AddTool(tool).Build()
	_, err := agent.RunTool(context.Background(), &NoOpProgressReporter{}, &api.ToolCall{Function: api.ToolCallFunction{Name: "fail"}})
	assert.ErrorIs(t, err, boom)
}
