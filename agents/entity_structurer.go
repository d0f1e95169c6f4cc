package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/SaiNageswarS/medicode-agent/agentboot"
	"github.com/SaiNageswarS/medicode-agent/llm"
	"github.com/SaiNageswarS/medicode-agent/prompts"
	"github.com/SaiNageswarS/medicode-agent/schema"
	"go.uber.org/zap"
)

// EntityStructurer turns clinical text into the three term lists that drive
// the coding agents. It has no tools and never delegates.
type EntityStructurer struct {
	persona   prompts.Persona
	model     llm.LLMClient
	validator *schema.Validator
	retries   int
	maxTokens int
}

type StructurerOption func(*EntityStructurer)

// WithValidationRetries re-asks the model up to n times when its output
// fails validation. The default is no retry.
func WithValidationRetries(n int) StructurerOption {
	return func(s *EntityStructurer) {
		if n > 0 {
			s.retries = n
		}
	}
}

func NewEntityStructurer(model llm.LLMClient, persona prompts.Persona, validator *schema.Validator, opts ...StructurerOption) *EntityStructurer {
	s := &EntityStructurer{
		persona:   persona,
		model:     model,
		validator: validator,
		maxTokens: 2000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *EntityStructurer) Structure(ctx context.Context, reporter agentboot.ProgressReporter, clinicalText string) (schema.StructuredEntities, error) {
	if strings.TrimSpace(clinicalText) == "" {
		return schema.StructuredEntities{}, fmt.Errorf("%w: clinical text is empty", schema.ErrInput)
	}

	systemPrompt, userPrompt, err := prompts.RenderEntityStructuringPrompt(s.persona, clinicalText)
	if err != nil {
		return schema.StructuredEntities{}, fmt.Errorf("render structuring prompt: %w", err)
	}

	agent := agentboot.NewAgentBuilder().
		WithName(s.persona.Role).
		WithModel(s.model).
		WithSystemPrompt(systemPrompt).
		WithMaxTokens(s.maxTokens).
		WithTemperature(0).
		WithJSONOutput().
		Build()

	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		result, err := agent.Execute(ctx, reporter, userPrompt)
		if err != nil {
			return schema.StructuredEntities{}, err
		}

		entities, err := schema.DecodeStructuredEntities(s.validator, result.Answer)
		if err == nil {
			logger.Info("Structured clinical entities",
				zap.Int("icdTerms", len(entities.ICDTerms)),
				zap.Int("cptTerms", len(entities.CPTTerms)),
				zap.Int("hcpcsTerms", len(entities.HCPCSTerms)))
			return entities, nil
		}

		lastErr = err
		if !errors.Is(err, schema.ErrValidation) {
			break
		}
		logger.Error("Structured entities failed validation", zap.Int("attempt", attempt+1), zap.Error(err))
	}

	return schema.StructuredEntities{}, lastErr
}
