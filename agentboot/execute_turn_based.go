package agentboot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/SaiNageswarS/medicode-agent/llm"
	"github.com/SaiNageswarS/medicode-agent/memory"
	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// Execute runs task to completion. With tools, the model is asked in turns
// until it answers without calling a tool or MaxTurns is spent; the final
// answer is then requested without tools. Without tools a single call is made.
func (a *Agent) Execute(ctx context.Context, reporter ProgressReporter, task string) (*Result, error) {
	startTime := getCurrentTimeMs()
	if reporter == nil {
		reporter = &NoOpProgressReporter{}
	}
	if a.config.Model == nil {
		return nil, errors.New("agent has no model configured")
	}

	result := &Result{ToolsUsed: []string{}}
	conversation := memory.NewConversation(a.config.Name)
	conversation.AddUserMessage(task)

	reporter.Send(NewProgressUpdate(a.config.Name, StageTaskStarted,
		fmt.Sprintf("Running %s on %s", a.config.Name, a.config.Model.GetModel())))

	fail := func(err error) (*Result, error) {
		reporter.Send(NewProgressUpdate(a.config.Name, StageTaskFailed, err.Error()))
		return nil, err
	}

	if len(a.config.Tools) > 0 {
		for turn := 0; turn < a.config.MaxTurns; turn++ {
			result.Turns++

			toolCalls, content, err := a.SelectTools(ctx, conversation.Messages)
			if err != nil {
				return fail(err)
			}

			if len(toolCalls) == 0 {
				result.Answer = strings.TrimSpace(content)
				break
			}

			conversation.AddToolCalls(toolCalls)
			for i := range toolCalls {
				toolResult, err := a.RunTool(ctx, reporter, &toolCalls[i])
				if err != nil {
					return fail(err)
				}
				conversation.AddToolResult(toolResult)
				result.ToolsUsed = append(result.ToolsUsed, toolCalls[i].Function.Name)
			}
		}
	}

	if result.Answer == "" {
		if len(result.ToolsUsed) > 0 && a.config.FinalPrompt != "" {
			conversation.AddUserMessage(a.config.FinalPrompt)
		}

		reporter.Send(NewProgressUpdate(a.config.Name, StageAnswerGenerating, "Generating final answer"))
		answer, err := a.generateAnswer(ctx, conversation.Messages)
		if err != nil {
			return fail(err)
		}
		result.Answer = answer
	}

	result.ProcessingTime = getCurrentTimeMs() - startTime
	conversation.AddAssistantMessage(result.Answer)

	reporter.Send(NewProgressUpdate(a.config.Name, StageTaskCompleted,
		fmt.Sprintf("%s finished in %d ms", a.config.Name, result.ProcessingTime)))
	return result, nil
}

// SelectTools runs one tool-enabled turn and returns either the requested
// tool calls or the model's direct answer.
func (a *Agent) SelectTools(ctx context.Context, msgs []llm.Message) ([]api.ToolCall, string, error) {
	var toolCalls []api.ToolCall
	var content strings.Builder

	err := a.config.Model.GenerateInferenceWithTools(
		ctx, msgs,
		func(chunk string) error {
			content.WriteString(chunk)
			return nil
		},
		func(calls []api.ToolCall) error {
			toolCalls = append(toolCalls, calls...)
			return nil
		},
		llm.WithTools(toAPITools(a.config.Tools)),
		llm.WithMaxTokens(a.config.MaxTokens),
		llm.WithTemperature(a.config.Temperature),
		llm.WithSystemPrompt(a.config.SystemPrompt),
	)
	if err != nil {
		logger.Error("Failed to select tools", zap.String("agent", a.config.Name), zap.Error(err))
		return nil, "", fmt.Errorf("%s: tool selection: %w", a.config.Name, err)
	}

	return toolCalls, content.String(), nil
}

func (a *Agent) generateAnswer(ctx context.Context, msgs []llm.Message) (string, error) {
	opts := []llm.LLMOption{
		llm.WithMaxTokens(a.config.MaxTokens),
		llm.WithTemperature(a.config.Temperature),
		llm.WithSystemPrompt(a.config.SystemPrompt),
	}
	if a.config.JSONOutput {
		opts = append(opts, llm.WithJSONResponse())
	}

	var inference strings.Builder
	err := a.config.Model.GenerateInference(ctx, msgs,
		func(chunk string) error {
			inference.WriteString(chunk)
			return nil
		},
		opts...,
	)
	if err != nil {
		logger.Error("Failed to run inference", zap.String("agent", a.config.Name), zap.Error(err))
		return "", fmt.Errorf("%s: inference: %w", a.config.Name, err)
	}

	answer := strings.TrimSpace(inference.String())
	if answer == "" {
		return "", fmt.Errorf("%s: model returned an empty answer", a.config.Name)
	}
	return answer, nil
}
