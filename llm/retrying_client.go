package llm

import (
	"context"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/SaiNageswarS/medicode-agent/retry"
	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// RetryingClient repeats failed provider calls under a retry.Policy.
// Callbacks are buffered per attempt and fire once, after the attempt that
// succeeded, so a retried call never emits partial output twice.
type RetryingClient struct {
	inner  LLMClient
	policy retry.Policy
}

func WithRetry(inner LLMClient, policy retry.Policy) *RetryingClient {
	return &RetryingClient{inner: inner, policy: policy}
}

func (c *RetryingClient) Capabilities() Capability { return c.inner.Capabilities() }

func (c *RetryingClient) GetModel() string { return c.inner.GetModel() }

func (c *RetryingClient) GenerateInference(ctx context.Context, messages []Message, callback func(chunk string) error, opts ...LLMOption) error {
	return c.GenerateInferenceWithTools(ctx, messages, callback, nil, opts...)
}

func (c *RetryingClient) GenerateInferenceWithTools(
	ctx context.Context,
	messages []Message,
	contentCallback func(chunk string) error,
	toolCallback func(toolCalls []api.ToolCall) error,
	opts ...LLMOption,
) error {
	var chunks []string
	var toolCalls []api.ToolCall

	attempt := 0
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		attempt++
		chunks, toolCalls = nil, nil

		collectContent := func(chunk string) error {
			chunks = append(chunks, chunk)
			return nil
		}

		var err error
		if toolCallback == nil {
			err = c.inner.GenerateInference(ctx, messages, collectContent, opts...)
		} else {
			err = c.inner.GenerateInferenceWithTools(ctx, messages, collectContent, func(calls []api.ToolCall) error {
				toolCalls = calls
				return nil
			}, opts...)
		}

		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return retry.Permanent(err)
		}
		logger.Error("LLM call failed",
			zap.String("model", c.inner.GetModel()),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return err
	})
	if err != nil {
		return err
	}

	if len(toolCalls) > 0 && toolCallback != nil {
		return toolCallback(toolCalls)
	}
	if contentCallback != nil {
		for _, chunk := range chunks {
			if err := contentCallback(chunk); err != nil {
				return err
			}
		}
	}
	return nil
}
